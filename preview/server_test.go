package preview

import (
	"bytes"
	"context"
	"image/png"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/achilleasa/volren/renderer"
	"github.com/achilleasa/volren/scene"
	"github.com/achilleasa/volren/tff"
	"github.com/achilleasa/volren/volume"
)

func setupServer(t *testing.T, maxIterations uint32) (*Server, *renderer.Renderer) {
	t.Helper()
	r, err := renderer.New(renderer.Options{Workers: 2})
	if err != nil {
		t.Fatal(err)
	}

	data := make([]byte, 4*4*4)
	for i := range data {
		data[i] = byte(i * 4)
	}
	if _, err = r.LoadVolume(data, volume.Metadata{Resolution: [3]int{4, 4, 4}}); err != nil {
		t.Fatal(err)
	}
	err = r.SetTransferFunctionStops(tff.Stops{
		{Position: 0, Color: tff.Color{0, 0, 0, 0}},
		{Position: 1, Color: tff.Color{255, 255, 255, 255}},
	}, tff.Linear)
	if err != nil {
		t.Fatal(err)
	}

	srv, err := New(r, scene.NewCamera(45), Options{
		Width:         16,
		Height:        8,
		MaxIterations: maxIterations,
		Interval:      time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	return srv, r
}

func dial(t *testing.T, httpSrv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Stats {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	kind, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("expected a binary frame message; got type %d", kind)
	}
	img, err := png.Decode(bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 8 {
		t.Fatalf("expected a 16x8 frame; got %v", b)
	}

	var stats Stats
	if err = conn.ReadJSON(&stats); err != nil {
		t.Fatal(err)
	}
	return stats
}

func TestStreamsProgressiveFrames(t *testing.T) {
	srv, r := setupServer(t, 3)
	defer r.Close()

	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()
	conn := dial(t, httpSrv)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	for i := uint32(0); i < 3; i++ {
		stats := readFrame(t, conn)
		if stats.Iteration != i {
			t.Fatalf("expected iteration %d; got %d", i, stats.Iteration)
		}
		if stats.Strategy == "" {
			t.Fatal("expected stats to name the strategy")
		}
	}

	// The budget is exhausted so orbiting is needed to get another frame.
	prevPos := srv.CameraPosition()
	if err := conn.WriteJSON(Message{Yaw: 0.3}); err != nil {
		t.Fatal(err)
	}
	stats := readFrame(t, conn)
	if stats.Iteration != 0 {
		t.Fatalf("expected orbit to restart accumulation; got iteration %d", stats.Iteration)
	}
	if srv.CameraPosition() == prevPos {
		t.Fatal("expected camera to move")
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("expected context.Canceled; got %v", err)
	}
}

func TestIdleWithoutClients(t *testing.T) {
	srv, r := setupServer(t, 0)
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := srv.Run(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected context.DeadlineExceeded; got %v", err)
	}
	if r.Iteration() != 0 {
		t.Fatalf("expected no frames without clients; got %d iterations", r.Iteration())
	}
}
