// Package rng provides a stateless counter-based random number generator.
//
// Every value is a pure function of (seed, x, y, frame, dimension) so that
// kernels running on different devices or in different orders produce the
// same sequence for the same pixel. The OpenCL program mirrors these
// functions bit for bit.
package rng

const floatScale = 1.0 / 16777216.0

// Hash a 32 bit value with the PCG output permutation.
func Hash(v uint32) uint32 {
	state := v*747796405 + 2891336453
	word := ((state >> ((state >> 28) + 4)) ^ state) * 277803737
	return (word >> 22) ^ word
}

// Map a hash value to a float in [0, 1).
func ToFloat(h uint32) float32 {
	return float32(h>>8) * floatScale
}

// Return the d-th random float for a pixel of a given frame.
func Float(seed, x, y, frame, d uint32) float32 {
	return ToFloat(Hash(key(seed, x, y, frame) + d*0x9e3779b9))
}

func key(seed, x, y, frame uint32) uint32 {
	return Hash(seed ^ Hash(x^Hash(y^Hash(frame))))
}

// A Stream hands out consecutive dimensions of the same pixel key. It is a
// plain value; copying a Stream forks the sequence.
type Stream struct {
	key uint32
	dim uint32
}

// Create a stream for the given seed, pixel coordinates and frame index.
func NewStream(seed, x, y, frame uint32) Stream {
	return Stream{key: key(seed, x, y, frame)}
}

// Next random uint32.
func (s *Stream) Uint32() uint32 {
	h := Hash(s.key + s.dim*0x9e3779b9)
	s.dim++
	return h
}

// Next random float in [0, 1).
func (s *Stream) Float() float32 {
	return ToFloat(s.Uint32())
}
