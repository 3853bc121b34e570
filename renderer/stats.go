package renderer

import (
	"time"

	"github.com/achilleasa/volren/tracer/kernel"
)

type FrameStats struct {
	// The strategy and device that rendered the frame.
	Strategy string
	Device   string

	Technique kernel.Technique

	// Progressive iteration of the frame; 0 for the first frame after a reset.
	Iteration uint32

	Width  int
	Height int

	// Kernel execution time as reported by the tracer.
	RenderTime time.Duration

	// Time spent copying the frame back from the device.
	ReadbackTime time.Duration

	// Bricks of the current timestep that the transfer function renders
	// invisible.
	EmptyBricks int
	TotalBricks int
}
