package opencl

import _ "embed"

// OpenCL source of the render kernels.
//
//go:embed CL/volumeraycast.cl
var programSource string

// Options passed to the opencl compiler.
const buildOptions = "-cl-std=CL1.2"
