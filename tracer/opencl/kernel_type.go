package opencl

import "fmt"

type kernelType uint8

// The list of kernels that implement the tracer.
const (
	renderFrame kernelType = iota
	resetHitBitmap
	//
	numKernels
)

// Implements Stringer; map kernel type to the kernel name as defined in the CL source files.
func (kt kernelType) String() string {
	switch kt {
	case renderFrame:
		return "renderFrame"
	case resetHitBitmap:
		return "resetHitBitmap"
	}
	return fmt.Sprintf("kernelType(%d)", uint8(kt))
}
