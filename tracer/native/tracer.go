package native

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/achilleasa/volren/bricks"
	"github.com/achilleasa/volren/compute"
	"github.com/achilleasa/volren/log"
	"github.com/achilleasa/volren/tff"
	"github.com/achilleasa/volren/tracer"
	"github.com/achilleasa/volren/tracer/kernel"
	"github.com/achilleasa/volren/volume"
)

const StrategyName = "native"

// Tracer runs the Go render kernel on a compute executor.
type Tracer struct {
	logger log.Logger

	sync.Mutex

	id   string
	exec *compute.Executor

	scene     kernel.Scene
	hasVolume bool
	hasTF     bool

	width  int
	height int
	accum  [2][]float32
	hits   [2][]uint8
}

// Create a native tracer with the given worker count.
func NewTracer(id string, workers int) *Tracer {
	return &Tracer{
		logger: log.New("native tracer"),
		id:     id,
		exec:   compute.NewExecutor(workers),
	}
}

// Strategy returns the chain entry that creates a native tracer. It only
// fails if the native device is blacklisted or another device is forced.
func Strategy() tracer.Strategy {
	return tracer.Strategy{
		Name: StrategyName,
		Init: func(opts tracer.InitOptions) (tracer.Tracer, error) {
			info := deviceInfo(opts.Workers)
			if !tracer.DeviceAllowed(info.Name, opts) {
				return nil, fmt.Errorf("%w: %s excluded by device filters", tracer.ErrNoDevices, info.Name)
			}
			return NewTracer("native-0", opts.Workers), nil
		},
		Devices: func() ([]tracer.DeviceInfo, error) {
			return []tracer.DeviceInfo{deviceInfo(0)}, nil
		},
	}
}

func deviceInfo(workers int) tracer.DeviceInfo {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return tracer.DeviceInfo{
		Id:           "native",
		Backend:      StrategyName,
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
		Name:         "Go executor",
		Type:         "CPU",
		ComputeUnits: uint32(workers),
	}
}

// Get tracer id.
func (tr *Tracer) Id() string {
	return tr.id
}

// Get tracer flags.
func (tr *Tracer) Flags() tracer.Flag {
	return tracer.Native
}

// Describe the device.
func (tr *Tracer) Device() tracer.DeviceInfo {
	return deviceInfo(tr.exec.Workers())
}

// Shutdown and cleanup tracer.
func (tr *Tracer) Close() {
	tr.Lock()
	defer tr.Unlock()

	tr.scene = kernel.Scene{}
	tr.hasVolume, tr.hasTF = false, false
	tr.accum = [2][]float32{}
	tr.hits = [2][]uint8{}
}

// Upload timestep t of a volume. Any previously uploaded bricks are dropped.
func (tr *Tracer) UploadVolume(vol *volume.Volume, t int) error {
	if t < 0 || t >= vol.Timesteps() {
		return fmt.Errorf("%w: timestep %d of %d", volume.ErrTimestepRange, t, vol.Timesteps())
	}
	tr.Lock()
	defer tr.Unlock()

	tr.scene.Volume = vol.Field(t)
	tr.scene.Layout = vol.Layout()
	tr.scene.ModelScale = vol.ModelScale()
	tr.scene.Bricks = nil
	tr.hasVolume = true
	tr.logger.Debugf("uploaded timestep %d (%v voxels)", t, vol.Resolution())
	return nil
}

// Upload the brick grid.
func (tr *Tracer) UploadBricks(grid *bricks.Grid) error {
	tr.Lock()
	defer tr.Unlock()

	if grid == nil {
		tr.scene.Bricks = nil
		return nil
	}
	tr.scene.Bricks = grid.Data()
	tr.scene.BrickDims = grid.Dims()
	tr.scene.BrickEdge = grid.BrickEdge()
	return nil
}

// Upload a transfer function.
func (tr *Tracer) UploadTransferFunction(tf *tff.Table) error {
	tr.Lock()
	defer tr.Unlock()

	tr.scene.TFF = tf.Floats()
	tr.scene.Prefix = tf.PrefixSum()
	tr.hasTF = true
	return nil
}

// Reallocate frame buffers.
func (tr *Tracer) Resize(width, height int) error {
	if width < 1 || height < 1 {
		return fmt.Errorf("native tracer: invalid frame size %dx%d", width, height)
	}
	tr.Lock()
	defer tr.Unlock()

	tr.width, tr.height = width, height
	for i := 0; i < 2; i++ {
		tr.accum[i] = make([]float32, width*height*4)
		tr.hits[i] = tracer.NewHitBitmap(width, height)
	}
	return nil
}

// Mark every tile of both hit bitmaps.
func (tr *Tracer) ResetHitBitmaps() error {
	tr.Lock()
	defer tr.Unlock()

	for i := 0; i < 2; i++ {
		for j := range tr.hits[i] {
			tr.hits[i][j] = 1
		}
	}
	return nil
}

// Render one iteration.
func (tr *Tracer) Render(params kernel.FrameParams, accum, hits tracer.Ring) (time.Duration, error) {
	tr.Lock()
	defer tr.Unlock()

	if !tr.hasVolume || !tr.hasTF {
		return 0, tracer.ErrNotReady
	}
	if params.Width != tr.width || params.Height != tr.height {
		return 0, fmt.Errorf("%w: frame is %dx%d; buffers are %dx%d", kernel.ErrTargetSize, params.Width, params.Height, tr.width, tr.height)
	}

	targets := &kernel.Targets{
		AccumPrev: tr.accum[accum.Previous()],
		AccumCurr: tr.accum[accum.Current()],
		HitPrev:   tr.hits[hits.Previous()],
		HitCurr:   tr.hits[hits.Current()],
	}
	k, r, err := kernel.NewFrameKernel(&tr.scene, params, targets)
	if err != nil {
		return 0, err
	}
	return tr.exec.Run(k, r)
}

// Copy an accumulation slot into dst.
func (tr *Tracer) ReadFrame(slot int, dst []float32) error {
	if err := tracer.CheckSlot(slot); err != nil {
		return err
	}
	tr.Lock()
	defer tr.Unlock()

	if len(dst) < len(tr.accum[slot]) {
		return fmt.Errorf("%w: destination holds %d floats; need %d", kernel.ErrTargetSize, len(dst), len(tr.accum[slot]))
	}
	copy(dst, tr.accum[slot])
	return nil
}
