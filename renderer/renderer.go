package renderer

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/achilleasa/volren/bricks"
	"github.com/achilleasa/volren/compute"
	"github.com/achilleasa/volren/log"
	"github.com/achilleasa/volren/tff"
	"github.com/achilleasa/volren/tracer"
	"github.com/achilleasa/volren/tracer/kernel"
	"github.com/achilleasa/volren/tracer/native"
	"github.com/achilleasa/volren/volume"
)

// A Fallback records a strategy that failed to initialize.
type Fallback struct {
	Strategy string
	Err      error
}

// Renderer owns the tracer, the loaded volume with its brick grids, the
// transfer function and the progressive accumulation state. All methods are
// safe for concurrent use; frames are rendered one at a time.
type Renderer struct {
	logger log.Logger

	sync.Mutex

	opts Options
	exec *compute.Executor

	tracer    tracer.Tracer
	strategy  string
	fallbacks []Fallback

	vol      *volume.Volume
	grids    []*bricks.Grid
	timestep int
	tf       *tff.Table

	params kernel.FrameParams

	// Ring indices of the accumulation and hit buffers.
	accum tracer.Ring
	hits  tracer.Ring

	iteration uint32
	width     int
	height    int
	frame     []float32

	stats FrameStats
}

// Create a renderer using the first strategy of the initialization chain
// that succeeds.
func New(opts Options) (*Renderer, error) {
	r := &Renderer{
		logger: log.New("renderer"),
		opts:   opts,
		exec:   compute.NewExecutor(opts.Workers),
		params: kernel.DefaultFrameParams(),
	}
	if len(r.opts.Strategies) == 0 {
		r.opts.Strategies = []tracer.Strategy{native.Strategy()}
	}

	if err := r.initTracer(); err != nil {
		return nil, err
	}
	return r, nil
}

// Walk the strategy chain and keep the first tracer that initializes.
func (r *Renderer) initTracer() error {
	initOpts := tracer.InitOptions{
		Blacklist:   r.opts.BlackListedDevices,
		ForceDevice: r.opts.ForcePrimaryDevice,
		Workers:     r.opts.Workers,
	}
	if r.opts.AllowSharing {
		initOpts.Surface = r.opts.Surface
	}

	reasons := make([]string, 0, len(r.opts.Strategies))
	for _, strategy := range r.opts.Strategies {
		tr, err := strategy.Init(initOpts)
		if err != nil {
			r.logger.Warningf("strategy %q failed; falling back: %v", strategy.Name, err)
			r.fallbacks = append(r.fallbacks, Fallback{Strategy: strategy.Name, Err: err})
			reasons = append(reasons, fmt.Sprintf("%s: %v", strategy.Name, err))
			continue
		}

		r.tracer = tr
		r.strategy = strategy.Name
		dev := tr.Device()
		if len(r.fallbacks) != 0 {
			r.logger.Warningf("using fallback strategy %q on %s after %d failed strategies", strategy.Name, dev.Name, len(r.fallbacks))
		} else {
			r.logger.Noticef("using strategy %q on %s", strategy.Name, dev.Name)
		}
		return nil
	}

	return fmt.Errorf("%w: %s", ErrNoDevice, strings.Join(reasons, "; "))
}

// Shutdown the renderer and release the tracer.
func (r *Renderer) Close() {
	r.Lock()
	defer r.Unlock()

	if r.tracer != nil {
		r.tracer.Close()
		r.tracer = nil
	}
}

// Name of the strategy that initialized the tracer.
func (r *Renderer) Strategy() string {
	r.Lock()
	defer r.Unlock()
	return r.strategy
}

// Describe the active device.
func (r *Renderer) Device() tracer.DeviceInfo {
	r.Lock()
	defer r.Unlock()
	if r.tracer == nil {
		return tracer.DeviceInfo{}
	}
	return r.tracer.Device()
}

// Strategies that failed before the active one, in chain order.
func (r *Renderer) Fallbacks() []Fallback {
	r.Lock()
	defer r.Unlock()
	return append([]Fallback(nil), r.fallbacks...)
}

// Parse a raw volume buffer and make it current. Returns the number of
// timesteps. On failure the previously loaded volume is kept.
func (r *Renderer) LoadVolume(buf []byte, meta volume.Metadata) (int, error) {
	vol, err := volume.New(buf, meta)
	if err != nil {
		return 0, err
	}
	if err = r.SetVolume(vol); err != nil {
		return 0, err
	}
	return vol.Timesteps(), nil
}

// Make an already decoded volume current and upload its first timestep.
func (r *Renderer) SetVolume(vol *volume.Volume) error {
	r.Lock()
	defer r.Unlock()

	if r.tracer == nil {
		return ErrClosed
	}

	prevVol, prevGrids, prevT := r.vol, r.grids, r.timestep
	r.vol = vol
	r.grids = make([]*bricks.Grid, vol.Timesteps())
	if err := r.uploadTimestep(0); err != nil {
		r.vol, r.grids, r.timestep = prevVol, prevGrids, prevT
		if prevVol != nil {
			if restoreErr := r.uploadTimestep(prevT); restoreErr != nil {
				r.logger.Errorf("could not restore previous volume: %v", restoreErr)
			}
		}
		return err
	}
	r.logger.Infof("loaded %v volume with %d timesteps (%s)", vol.Resolution(), vol.Timesteps(), vol.Layout())
	return nil
}

// Upload timestep t and its brick grid, building the grid on first use.
// Must be called while holding r.Lock().
func (r *Renderer) uploadTimestep(t int) error {
	if t < 0 || t >= r.vol.Timesteps() {
		return fmt.Errorf("%w: %d of %d", volume.ErrTimestepRange, t, r.vol.Timesteps())
	}

	grid := r.grids[t]
	if grid == nil {
		var err error
		grid, err = bricks.Build(r.vol, t, bricks.Options{Divisor: r.opts.BrickDivisor}, r.exec)
		if err != nil {
			return err
		}
		r.grids[t] = grid
	}
	if !grid.Matches(r.vol) || grid.Timestep() != t {
		return fmt.Errorf("%w: grid for timestep %d", ErrStaleBricks, t)
	}

	if err := r.tracer.UploadVolume(r.vol, t); err != nil {
		return err
	}
	if err := r.tracer.UploadBricks(grid); err != nil {
		return err
	}
	r.timestep = t
	r.updateBrickStats()
	return r.resetAll()
}

// Build a transfer function from stops and make it current.
func (r *Renderer) SetTransferFunctionStops(stops tff.Stops, kind tff.Interpolation) error {
	tbl, err := tff.Build(stops, kind)
	if err != nil {
		return err
	}
	return r.setTable(tbl)
}

// Make a precomputed raw RGBA table current.
func (r *Renderer) SetRawTransferFunction(raw []byte) error {
	tbl, err := tff.FromRaw(raw)
	if err != nil {
		return err
	}
	return r.setTable(tbl)
}

// The current raw RGBA table, or nil if none is defined.
func (r *Renderer) RawTransferFunction() []byte {
	r.Lock()
	defer r.Unlock()
	if r.tf == nil {
		return nil
	}
	return r.tf.Raw()
}

func (r *Renderer) setTable(tbl *tff.Table) error {
	r.Lock()
	defer r.Unlock()

	if r.tracer == nil {
		return ErrClosed
	}
	if err := r.tracer.UploadTransferFunction(tbl); err != nil {
		return err
	}
	r.tf = tbl
	r.updateBrickStats()
	return r.resetAll()
}

// Restart progressive accumulation. Must be called while holding r.Lock().
func (r *Renderer) reset() {
	r.iteration = 0
}

// Restart accumulation and mark every tile as visible. Must be called while
// holding r.Lock().
func (r *Renderer) resetAll() error {
	r.reset()
	if r.width == 0 {
		return nil
	}
	return r.tracer.ResetHitBitmaps()
}

// Must be called while holding r.Lock().
func (r *Renderer) updateBrickStats() {
	r.stats.EmptyBricks, r.stats.TotalBricks = 0, 0
	if r.vol == nil || r.tf == nil || r.grids[r.timestep] == nil {
		return
	}
	grid := r.grids[r.timestep]
	dims := grid.Dims()
	r.stats.TotalBricks = dims[0] * dims[1] * dims[2]
	r.stats.EmptyBricks = grid.CountEmpty(r.tf)
}

// Render the next progressive iteration at the given size. Changing the size
// restarts accumulation.
func (r *Renderer) RenderFrame(width, height int) (*Frame, error) {
	r.Lock()
	defer r.Unlock()

	if r.tracer == nil {
		return nil, ErrClosed
	}
	if r.vol == nil {
		return nil, ErrNoVolume
	}
	if r.tf == nil {
		return nil, ErrNoTransferFunction
	}
	if grid := r.grids[r.timestep]; grid == nil || !grid.Matches(r.vol) || grid.Timestep() != r.timestep {
		return nil, fmt.Errorf("%w: grid for timestep %d", ErrStaleBricks, r.timestep)
	}

	if width != r.width || height != r.height {
		if err := r.tracer.Resize(width, height); err != nil {
			r.logger.Errorf("skipping frame; could not resize buffers to %dx%d: %v", width, height, err)
			r.width, r.height = 0, 0
			return nil, fmt.Errorf("%w: %v", ErrFrameSkipped, err)
		}
		r.width, r.height = width, height
		r.frame = make([]float32, width*height*4)
		r.reset()
	}

	params := r.params
	params.Width, params.Height = width, height
	params.Render.Iteration = r.iteration
	if err := params.Validate(); err != nil {
		return nil, err
	}

	// The buffers written by the last frame become the previous slots.
	r.accum.Flip()
	r.hits.Flip()
	elapsed, err := r.tracer.Render(params, r.accum, r.hits)
	if err != nil {
		r.accum.Flip()
		r.hits.Flip()
		r.logger.Errorf("skipping frame %d: %v", r.iteration, err)
		return nil, fmt.Errorf("%w: %v", ErrFrameSkipped, err)
	}

	tick := time.Now()
	if err = r.tracer.ReadFrame(r.accum.Current(), r.frame); err != nil {
		r.logger.Errorf("skipping frame %d; readback failed: %v", r.iteration, err)
		return nil, fmt.Errorf("%w: %v", ErrFrameSkipped, err)
	}

	r.stats.Strategy = r.strategy
	r.stats.Device = r.tracer.Device().Name
	r.stats.Technique = params.Render.Technique
	r.stats.Iteration = r.iteration
	r.stats.Width, r.stats.Height = width, height
	r.stats.RenderTime = elapsed
	r.stats.ReadbackTime = time.Since(tick)
	r.iteration++

	return &Frame{
		Width:  width,
		Height: height,
		Pixels: append([]float32(nil), r.frame...),
	}, nil
}

// Number of iterations accumulated so far.
func (r *Renderer) Iteration() uint32 {
	r.Lock()
	defer r.Unlock()
	return r.iteration
}

// Kernel execution time of the last frame.
func (r *Renderer) LastExecutionTime() time.Duration {
	r.Lock()
	defer r.Unlock()
	return r.stats.RenderTime
}

// Statistics of the last frame.
func (r *Renderer) Stats() FrameStats {
	r.Lock()
	defer r.Unlock()
	return r.stats
}

// Density histogram of timestep t of the loaded volume.
func (r *Renderer) Histogram(t int) ([volume.HistogramBins]uint32, error) {
	r.Lock()
	defer r.Unlock()
	if r.vol == nil {
		return [volume.HistogramBins]uint32{}, ErrNoVolume
	}
	return r.vol.Histogram(t)
}

// Enumerate the devices of every strategy in the chain. Strategies that fail
// to enumerate are skipped.
func (r *Renderer) ListComputeDevices() []tracer.DeviceInfo {
	seen := make(map[string]bool)
	var out []tracer.DeviceInfo
	for _, strategy := range r.opts.Strategies {
		if strategy.Devices == nil {
			continue
		}
		devList, err := strategy.Devices()
		if err != nil {
			r.logger.Debugf("strategy %q could not list devices: %v", strategy.Name, err)
			continue
		}
		for _, dev := range devList {
			if seen[dev.Id] {
				continue
			}
			seen[dev.Id] = true
			out = append(out, dev)
		}
	}
	return out
}

// Downsample timestep t of the loaded volume and write it as
// <basePath>_<x>.raw with a .dat sidecar. Returns both paths.
func (r *Renderer) DownsampleVolume(t, factor int, metric volume.Metric, basePath string) (string, string, error) {
	r.Lock()
	vol := r.vol
	r.Unlock()

	if vol == nil {
		return "", "", ErrNoVolume
	}
	out, err := volume.Downsample(vol, t, volume.DownsampleOptions{
		Factor:        factor,
		Metric:        metric,
		MinResolution: r.opts.MinDownsampleResolution,
	}, r.exec)
	if err != nil {
		return "", "", err
	}
	return volume.WriteRawDat(out, basePath)
}
