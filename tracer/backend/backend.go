// Package backend assembles the default device initialization chain.
package backend

import (
	"github.com/achilleasa/volren/tracer"
	"github.com/achilleasa/volren/tracer/native"
	"github.com/achilleasa/volren/tracer/opencl"
)

// DefaultStrategies returns the full fallback chain: GPU with display
// sharing (when allowed), GPU, opencl CPU and finally the native executor.
func DefaultStrategies(allowSharing bool) []tracer.Strategy {
	return append(opencl.Strategies(allowSharing), native.Strategy())
}

// CPUStrategies returns the chain used when GPUs are not wanted.
func CPUStrategies() []tracer.Strategy {
	var out []tracer.Strategy
	for _, s := range opencl.Strategies(false) {
		if s.Name == opencl.CpuStrategy {
			out = append(out, s)
		}
	}
	return append(out, native.Strategy())
}
