package opencl

import (
	"fmt"
	"sync"
	"time"

	"github.com/achilleasa/volren/bricks"
	"github.com/achilleasa/volren/log"
	"github.com/achilleasa/volren/tff"
	"github.com/achilleasa/volren/tracer"
	"github.com/achilleasa/volren/tracer/kernel"
	"github.com/achilleasa/volren/tracer/opencl/device"
	"github.com/achilleasa/volren/volume"
)

type clTracer struct {
	logger log.Logger

	sync.Mutex

	// The device associated with this tracer instance.
	device *device.Device

	// The allocated device resources.
	resources *deviceResources

	// The tracer id.
	id string

	flags tracer.Flag

	// Volume dependent kernel inputs.
	scene     sceneInfo
	hasVolume bool
	hasTF     bool

	width  int
	height int

	// Frames are copied here before being handed to the display surface.
	surface    tracer.DisplaySurface
	presentBuf []float32
}

// Create a new opencl tracer for an initialized device. The tracer owns the
// device and closes it on Close.
func newTracer(id string, dev *device.Device, flags tracer.Flag, surface tracer.DisplaySurface) (*clTracer, error) {
	tr := &clTracer{
		logger:  log.New(fmt.Sprintf("opencl tracer (%s)", dev.Name)),
		device:  dev,
		id:      id,
		flags:   flags | tracer.OpenCL,
		surface: surface,
	}

	if err := dev.Init(programSource, buildOptions); err != nil {
		tr.cleanup()
		return nil, err
	}

	var err error
	tr.resources, err = newDeviceResources(dev)
	if err != nil {
		tr.cleanup()
		return nil, err
	}

	// Keep the bricks argument valid before any grid is uploaded.
	if err = tr.resources.buffers.UploadBricks(nil); err != nil {
		tr.cleanup()
		return nil, err
	}

	return tr, nil
}

// Get tracer id.
func (tr *clTracer) Id() string {
	return tr.id
}

// Get tracer flags.
func (tr *clTracer) Flags() tracer.Flag {
	return tr.flags
}

// Describe the device.
func (tr *clTracer) Device() tracer.DeviceInfo {
	return deviceInfo(tr.device)
}

// Shutdown and cleanup tracer.
func (tr *clTracer) Close() {
	tr.Lock()
	defer tr.Unlock()

	tr.cleanup()
}

// Cleanup tracer. This method is meant to be called while holding tr.Lock()
func (tr *clTracer) cleanup() {
	if tr.resources != nil {
		tr.resources.Close()
		tr.resources = nil
	}

	if tr.device != nil {
		tr.device.Close()
	}

	tr.hasVolume, tr.hasTF = false, false
	tr.width, tr.height = 0, 0
}

// Upload timestep t of a volume. Any previously uploaded bricks are dropped.
func (tr *clTracer) UploadVolume(vol *volume.Volume, t int) error {
	if t < 0 || t >= vol.Timesteps() {
		return fmt.Errorf("%w: timestep %d of %d", volume.ErrTimestepRange, t, vol.Timesteps())
	}
	tr.Lock()
	defer tr.Unlock()

	if tr.resources == nil {
		return tracer.ErrNotReady
	}
	if err := tr.resources.buffers.UploadVolume(vol, t); err != nil {
		return err
	}

	tr.scene = sceneInfo{
		res:        vol.Resolution(),
		channels:   vol.Channels(),
		modelScale: vol.ModelScale(),
	}
	tr.hasVolume = true
	tr.logger.Debugf("uploaded timestep %d (%v voxels)", t, vol.Resolution())
	return nil
}

// Upload the brick grid.
func (tr *clTracer) UploadBricks(grid *bricks.Grid) error {
	tr.Lock()
	defer tr.Unlock()

	if tr.resources == nil {
		return tracer.ErrNotReady
	}
	if err := tr.resources.buffers.UploadBricks(grid); err != nil {
		return err
	}

	tr.scene.hasBricks = grid != nil
	if grid != nil {
		tr.scene.brickDims = grid.Dims()
		tr.scene.brickEdge = grid.BrickEdge()
		tr.logger.Debugf("uploaded %v brick grid", grid.Dims())
	}
	return nil
}

// Upload a transfer function.
func (tr *clTracer) UploadTransferFunction(tf *tff.Table) error {
	tr.Lock()
	defer tr.Unlock()

	if tr.resources == nil {
		return tracer.ErrNotReady
	}
	if err := tr.resources.buffers.UploadTransferFunction(tf); err != nil {
		return err
	}
	tr.hasTF = true
	return nil
}

// Reallocate frame buffers. Both hit bitmaps start out marked.
func (tr *clTracer) Resize(width, height int) error {
	if width < 1 || height < 1 {
		return fmt.Errorf("opencl tracer: invalid frame size %dx%d", width, height)
	}
	tr.Lock()
	defer tr.Unlock()

	if tr.resources == nil {
		return tracer.ErrNotReady
	}
	if err := tr.resources.buffers.Resize(width, height); err != nil {
		return err
	}
	tr.width, tr.height = width, height
	_, err := tr.resources.ResetHitBitmaps(width, height)
	return err
}

// Mark every tile of both hit bitmaps.
func (tr *clTracer) ResetHitBitmaps() error {
	tr.Lock()
	defer tr.Unlock()

	if tr.resources == nil || tr.width == 0 {
		return ErrFrameNotSized
	}
	_, err := tr.resources.ResetHitBitmaps(tr.width, tr.height)
	return err
}

// Render one iteration. With display sharing enabled the finished frame is
// also handed to the display surface.
func (tr *clTracer) Render(params kernel.FrameParams, accum, hits tracer.Ring) (time.Duration, error) {
	if err := params.Validate(); err != nil {
		return 0, err
	}

	tr.Lock()
	defer tr.Unlock()

	if tr.resources == nil || !tr.hasVolume || !tr.hasTF {
		return 0, tracer.ErrNotReady
	}
	if tr.width == 0 {
		return 0, ErrFrameNotSized
	}
	if params.Width != tr.width || params.Height != tr.height {
		return 0, fmt.Errorf("%w: frame is %dx%d; buffers are %dx%d", kernel.ErrTargetSize, params.Width, params.Height, tr.width, tr.height)
	}

	if err := tr.resources.buffers.UploadParams(packFrameParams(params, tr.scene)); err != nil {
		return 0, err
	}
	elapsed, err := tr.resources.RenderFrame(tr.width, tr.height, accum, hits)
	if err != nil {
		return 0, err
	}

	if tr.flags&tracer.DisplaySharing != 0 && tr.surface != nil {
		if err = tr.present(accum.Current()); err != nil {
			return elapsed, err
		}
	}
	return elapsed, nil
}

// Hand an accumulation slot to the display surface. Called while holding tr.Lock().
func (tr *clTracer) present(slot int) error {
	size := tr.width * tr.height * 4
	if len(tr.presentBuf) != size {
		tr.presentBuf = make([]float32, size)
	}
	if err := tr.resources.buffers.Accum[slot].ReadData(0, 0, 0, tr.presentBuf); err != nil {
		return err
	}
	return tr.surface.Present(tr.presentBuf, tr.width, tr.height)
}

// Copy an accumulation slot into dst.
func (tr *clTracer) ReadFrame(slot int, dst []float32) error {
	if err := tracer.CheckSlot(slot); err != nil {
		return err
	}
	tr.Lock()
	defer tr.Unlock()

	if tr.resources == nil || tr.width == 0 {
		return ErrFrameNotSized
	}
	size := tr.width * tr.height * 4
	if len(dst) < size {
		return fmt.Errorf("%w: destination holds %d floats; need %d", kernel.ErrTargetSize, len(dst), size)
	}
	return tr.resources.buffers.Accum[slot].ReadData(0, 0, 0, dst[:size])
}
