package renderer

import (
	"github.com/achilleasa/volren/tracer"
)

type Options struct {
	// Device selection.
	BlackListedDevices []string
	ForcePrimaryDevice string

	// Native executor worker count; <= 0 selects runtime.NumCPU().
	Workers int

	// Brick edge length is RoundPow2(res/BrickDivisor); <= 0 selects
	// bricks.DefaultDivisor.
	BrickDivisor int

	// Smallest axis resolution accepted by DownsampleVolume; <= 0 selects 64.
	MinDownsampleResolution int

	// Display sharing is only attempted if both flags are set.
	AllowSharing bool
	Surface      tracer.DisplaySurface

	// Device initialization chain tried in order. Defaults to the native
	// executor only.
	Strategies []tracer.Strategy
}
