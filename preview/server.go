package preview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/achilleasa/volren/log"
	"github.com/achilleasa/volren/renderer"
	"github.com/achilleasa/volren/scene"
	"github.com/achilleasa/volren/types"
)

// A Message is sent by clients to move the camera.
type Message struct {
	// Orbit angles in radians.
	Yaw   float32 `json:"yaw"`
	Pitch float32 `json:"pitch"`
}

// Stats are sent as a text message after every frame.
type Stats struct {
	Iteration    uint32  `json:"iteration"`
	RenderMillis float64 `json:"renderMs"`
	Strategy     string  `json:"strategy"`
	Device       string  `json:"device"`
	EmptyBricks  int     `json:"emptyBricks"`
	TotalBricks  int     `json:"totalBricks"`
}

type Options struct {
	Width  int
	Height int

	// Rendering pauses once this many iterations have accumulated.
	MaxIterations uint32

	// Delay between frames; defaults to 50ms.
	Interval time.Duration
}

// Server streams progressive frames of a renderer to websocket clients as
// PNG images.
type Server struct {
	logger   log.Logger
	r        *renderer.Renderer
	opts     Options
	upgrader websocket.Upgrader

	camMu sync.Mutex
	cam   *scene.Camera

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*sync.Mutex
}

// Create a preview server for r. The camera is applied to the renderer.
func New(r *renderer.Renderer, cam *scene.Camera, opts Options) (*Server, error) {
	if opts.Interval <= 0 {
		opts.Interval = 50 * time.Millisecond
	}
	if err := r.SetCamera(cam); err != nil {
		return nil, err
	}
	return &Server{
		logger: log.New("preview"),
		r:      r,
		opts:   opts,
		cam:    cam,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}, nil
}

// HTTP handler serving the websocket endpoint at /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Camera position.
func (s *Server) CameraPosition() types.Vec3 {
	s.camMu.Lock()
	defer s.camMu.Unlock()
	return s.cam.Position
}

// Orbit the camera around its target and restart accumulation.
func (s *Server) Orbit(yaw, pitch float32) error {
	s.camMu.Lock()
	defer s.camMu.Unlock()
	s.cam.Orbit(yaw, pitch)
	return s.r.SetCamera(s.cam)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		s.logger.Warningf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.clientsMu.Lock()
	s.clients[conn] = &sync.Mutex{}
	s.clientsMu.Unlock()
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
	}()
	s.logger.Infof("client %s connected", conn.RemoteAddr())

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				s.logger.Warningf("ignoring malformed message from %s: %v", conn.RemoteAddr(), err)
				continue
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debugf("client %s read error: %v", conn.RemoteAddr(), err)
			}
			return
		}
		if err := s.Orbit(msg.Yaw, msg.Pitch); err != nil {
			s.logger.Warningf("ignoring orbit from %s: %v", conn.RemoteAddr(), err)
		}
	}
}

func (s *Server) clientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Run renders and broadcasts frames until ctx is canceled. Frames are only
// rendered while clients are connected and the iteration budget is not
// exhausted.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if s.clientCount() == 0 {
			continue
		}
		if s.opts.MaxIterations != 0 && s.r.Iteration() >= s.opts.MaxIterations {
			continue
		}

		frame, err := s.r.RenderFrame(s.opts.Width, s.opts.Height)
		if errors.Is(err, renderer.ErrFrameSkipped) {
			continue
		} else if err != nil {
			return err
		}

		var buf bytes.Buffer
		if err = png.Encode(&buf, frame.Image()); err != nil {
			return err
		}
		stats := s.r.Stats()
		s.broadcast(buf.Bytes(), Stats{
			Iteration:    stats.Iteration,
			RenderMillis: float64(stats.RenderTime) / float64(time.Millisecond),
			Strategy:     stats.Strategy,
			Device:       stats.Device,
			EmptyBricks:  stats.EmptyBricks,
			TotalBricks:  stats.TotalBricks,
		})
	}
}

func (s *Server) broadcast(frame []byte, stats Stats) {
	var failed []*websocket.Conn

	s.clientsMu.RLock()
	for conn, mu := range s.clients {
		mu.Lock()
		err := conn.WriteMessage(websocket.BinaryMessage, frame)
		if err == nil {
			err = conn.WriteJSON(stats)
		}
		mu.Unlock()
		if err != nil {
			s.logger.Warningf("dropping client %s: %v", conn.RemoteAddr(), err)
			failed = append(failed, conn)
		}
	}
	s.clientsMu.RUnlock()

	if len(failed) == 0 {
		return
	}
	s.clientsMu.Lock()
	for _, conn := range failed {
		conn.Close()
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()
}

// Serve the preview on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	errCh := make(chan error, 2)
	go func() { errCh <- s.Run(ctx) }()
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Noticef("serving preview on ws://%s/ws", addr)

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); err == nil {
		err = shutdownErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
