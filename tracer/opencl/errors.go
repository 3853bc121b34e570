package opencl

import "errors"

var (
	ErrFrameNotSized = errors.New("opencl tracer: frame buffers not allocated")
)
