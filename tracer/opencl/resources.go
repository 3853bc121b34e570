package opencl

import (
	"fmt"
	"time"

	"github.com/achilleasa/volren/tracer"
	"github.com/achilleasa/volren/tracer/kernel"
	"github.com/achilleasa/volren/tracer/opencl/device"
)

// A container that stores handles to open CL kernels and any allocated device buffers.
type deviceResources struct {
	// The allocated device buffers.
	buffers *bufferSet

	// The set of kernels.
	kernels []*device.Kernel
}

// Using the supplied device as a target, load all defined kernels. The
// device program must already be built.
func newDeviceResources(dev *device.Device) (*deviceResources, error) {
	var err error

	if dev == nil {
		return nil, fmt.Errorf("device_resources: invalid device handle")
	}

	dr := &deviceResources{
		buffers: newBufferSet(dev),
		kernels: make([]*device.Kernel, numKernels),
	}

	var kType kernelType
	for kType = 0; kType < numKernels; kType++ {
		dr.kernels[kType], err = dev.Kernel(kType.String())
		if err != nil {
			dr.Close()
			return nil, err
		}
	}

	return dr, nil
}

// Release all allocated resources.
func (dr *deviceResources) Close() {
	if dr.buffers != nil {
		dr.buffers.Release()
		dr.buffers = nil
	}

	if dr.kernels != nil {
		for _, k := range dr.kernels {
			if k != nil {
				k.Release()
			}
		}
		dr.kernels = nil
	}
}

// Render one iteration. The frame parameters must already be uploaded.
// Work-groups are TileSize x TileSize so each group maps to one hit bitmap
// cell.
func (dr *deviceResources) RenderFrame(frameW, frameH int, accum, hits tracer.Ring) (time.Duration, error) {
	k := dr.kernels[renderFrame]

	err := k.SetArgs(
		dr.buffers.Params,
		dr.buffers.Volume,
		dr.buffers.Bricks,
		dr.buffers.TFF,
		dr.buffers.Prefix,
		dr.buffers.Accum[accum.Previous()],
		dr.buffers.Accum[accum.Current()],
		dr.buffers.Hits[hits.Previous()],
		dr.buffers.Hits[hits.Current()],
	)
	if err != nil {
		return 0, err
	}

	return k.Exec2D(
		0, 0,
		roundUp(frameW, kernel.TileSize), roundUp(frameH, kernel.TileSize),
		kernel.TileSize, kernel.TileSize,
	)
}

// Mark every cell of both hit bitmaps.
func (dr *deviceResources) ResetHitBitmaps(frameW, frameH int) (time.Duration, error) {
	k := dr.kernels[resetHitBitmap]
	hitW, hitH := kernel.HitDims(frameW, frameH)
	count := hitW * hitH

	var total time.Duration
	for _, buf := range dr.buffers.Hits {
		if err := k.SetArgs(buf, uint32(count)); err != nil {
			return 0, err
		}
		elapsed, err := k.Exec1D(0, count, 0)
		if err != nil {
			return 0, err
		}
		total += elapsed
	}
	return total, nil
}

func roundUp(v, multiple int) int {
	return (v + multiple - 1) / multiple * multiple
}
