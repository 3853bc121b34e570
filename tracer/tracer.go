package tracer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/achilleasa/volren/bricks"
	"github.com/achilleasa/volren/tff"
	"github.com/achilleasa/volren/tracer/kernel"
	"github.com/achilleasa/volren/volume"
)

var (
	ErrNotReady    = errors.New("tracer: resources not uploaded")
	ErrNoSharing   = errors.New("tracer: display sharing unavailable")
	ErrNoDevices   = errors.New("tracer: no matching compute devices")
	ErrInvalidSlot = errors.New("tracer: invalid ring slot")
)

type Flag uint8

// Tracer capability flags.
const (
	Native Flag = 1 << iota
	OpenCL
	GPU
	DisplaySharing
)

func (f Flag) String() string {
	var s string
	add := func(name string) {
		if s != "" {
			s += "|"
		}
		s += name
	}
	if f&Native != 0 {
		add("native")
	}
	if f&OpenCL != 0 {
		add("opencl")
	}
	if f&GPU != 0 {
		add("gpu")
	}
	if f&DisplaySharing != 0 {
		add("sharing")
	}
	if s == "" {
		return "none"
	}
	return s
}

// A DisplaySurface receives finished frames when the display-sharing
// strategy is active. Pixels are normalized RGBA floats, row-major with the
// first row at the top.
type DisplaySurface interface {
	Present(pixels []float32, width, height int) error
}

// Ring is a two-slot ring index. The slot that is not current is the
// previous one.
type Ring struct {
	current int
}

// Current slot.
func (r Ring) Current() int {
	return r.current
}

// Previous slot.
func (r Ring) Previous() int {
	return 1 - r.current
}

// Make the previous slot current.
func (r *Ring) Flip() {
	r.current = 1 - r.current
}

// Describes a compute device that a strategy can use.
type DeviceInfo struct {
	Id           string
	Backend      string
	Platform     string
	Name         string
	Type         string
	ComputeUnits uint32
	ClockMHz     uint32

	// Approximate speed in GFlops.
	Speed uint32

	Sharing bool
}

// Options passed to strategy initializers.
type InitOptions struct {
	// Devices whose name contains any of these strings are skipped.
	Blacklist []string

	// If set, only devices whose name contains this string are used.
	ForceDevice string

	// Native worker count; <= 0 selects runtime.NumCPU().
	Workers int

	// Target of the display-sharing strategy.
	Surface DisplaySurface
}

// A Strategy is one entry of the device initialization chain.
type Strategy struct {
	Name string

	Init func(opts InitOptions) (Tracer, error)

	// Optional device enumeration for diagnostics.
	Devices func() ([]DeviceInfo, error)
}

// A Tracer owns the device side copies of the scene and the frame-persistent
// ring buffers and runs the render kernel.
type Tracer interface {
	// Get tracer id.
	Id() string

	// Get tracer flags.
	Flags() Flag

	// Describe the underlying device.
	Device() DeviceInfo

	// Shutdown and cleanup tracer.
	Close()

	// Upload timestep t of a volume.
	UploadVolume(vol *volume.Volume, t int) error

	// Upload the brick grid matching the uploaded volume.
	UploadBricks(grid *bricks.Grid) error

	// Upload a transfer function table and its prefix sum.
	UploadTransferFunction(tf *tff.Table) error

	// Reallocate the accumulation and hit buffers for a new frame size. Hit
	// bitmaps start out marked.
	Resize(width, height int) error

	// Mark every tile of both hit bitmaps.
	ResetHitBitmaps() error

	// Render one iteration reading the previous and writing the current
	// slots of both rings.
	Render(params kernel.FrameParams, accum, hits Ring) (time.Duration, error)

	// Copy an accumulation slot into dst (width*height*4 floats).
	ReadFrame(slot int, dst []float32) error
}

// Validate a ring slot index.
func CheckSlot(slot int) error {
	if slot != 0 && slot != 1 {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	return nil
}

// Allocate a hit bitmap for a frame with every tile marked.
func NewHitBitmap(width, height int) []uint8 {
	w, h := kernel.HitDims(width, height)
	out := make([]uint8, w*h)
	for i := range out {
		out[i] = 1
	}
	return out
}

// Report whether a device name passes the blacklist and forced device
// filters.
func DeviceAllowed(name string, opts InitOptions) bool {
	for _, entry := range opts.Blacklist {
		if entry != "" && strings.Contains(name, entry) {
			return false
		}
	}
	return opts.ForceDevice == "" || strings.Contains(name, opts.ForceDevice)
}
