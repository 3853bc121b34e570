package opencl

import (
	"reflect"

	"github.com/achilleasa/gopencl/v1.2/cl"

	"github.com/achilleasa/volren/bricks"
	"github.com/achilleasa/volren/tff"
	"github.com/achilleasa/volren/tracer/kernel"
	"github.com/achilleasa/volren/tracer/opencl/device"
	"github.com/achilleasa/volren/volume"
)

// Size of buffer elements in bytes.
const (
	sizeofAccumulatorSample = 16 // float4
	sizeofHitFlag           = 1  // uchar
)

type bufferSet struct {
	// Packed frame parameters.
	Params *device.Buffer

	// Voxel data of the uploaded timestep.
	Volume *device.Buffer

	// Brick (min, max) pairs. Holds a single dummy pair when no grid is
	// uploaded since opencl does not allow empty buffers.
	Bricks *device.Buffer

	// Transfer function entries and alpha prefix sum.
	TFF    *device.Buffer
	Prefix *device.Buffer

	// Accumulation and hit bitmap rings.
	Accum [2]*device.Buffer
	Hits  [2]*device.Buffer
}

// Allocate new buffer set.
func newBufferSet(dev *device.Device) *bufferSet {
	return &bufferSet{
		Params: dev.Buffer("frameParams"),
		Volume: dev.Buffer("volume"),
		Bricks: dev.Buffer("bricks"),
		TFF:    dev.Buffer("tff"),
		Prefix: dev.Buffer("tffPrefix"),
		Accum: [2]*device.Buffer{
			dev.Buffer("accum0"),
			dev.Buffer("accum1"),
		},
		Hits: [2]*device.Buffer{
			dev.Buffer("hits0"),
			dev.Buffer("hits1"),
		},
	}
}

// Release all buffers.
func (bs *bufferSet) Release() {
	reflVal := reflect.ValueOf(*bs)
	for fieldIndex := 0; fieldIndex < reflVal.NumField(); fieldIndex++ {
		switch val := reflVal.Field(fieldIndex).Interface().(type) {
		case *device.Buffer:
			val.Release()
		case [2]*device.Buffer:
			for _, d := range val {
				d.Release()
			}
		}
	}
}

// Resize frame-related buffers to the given frame dimensions. Both hit
// bitmaps need to be reset by the caller.
func (bs *bufferSet) Resize(frameW, frameH int) error {
	var err error
	pixels := frameW * frameH
	hitW, hitH := kernel.HitDims(frameW, frameH)

	for index := 0; index < 2; index++ {
		err = bs.Accum[index].Allocate(pixels*sizeofAccumulatorSample, cl.MEM_READ_WRITE)
		if err != nil {
			return err
		}
		err = bs.Hits[index].Allocate(hitW*hitH*sizeofHitFlag, cl.MEM_READ_WRITE)
		if err != nil {
			return err
		}
	}

	if bs.Params.Size() == 0 {
		return bs.Params.Allocate(sizeofFrameParams, cl.MEM_READ_ONLY)
	}
	return nil
}

// Upload the voxel data of timestep t and drop any uploaded bricks.
func (bs *bufferSet) UploadVolume(vol *volume.Volume, t int) error {
	if err := bs.Volume.AllocateAndWriteData(vol.Data(t), cl.MEM_READ_ONLY); err != nil {
		return err
	}
	return bs.UploadBricks(nil)
}

// Upload brick grid data.
func (bs *bufferSet) UploadBricks(grid *bricks.Grid) error {
	data := []float32{0, 0}
	if grid != nil {
		data = grid.Data()
	}
	return bs.Bricks.AllocateAndWriteData(data, cl.MEM_READ_ONLY)
}

// Upload the transfer function table and its prefix sum.
func (bs *bufferSet) UploadTransferFunction(tf *tff.Table) error {
	if err := bs.TFF.AllocateAndWriteData(tf.Floats(), cl.MEM_READ_ONLY); err != nil {
		return err
	}
	return bs.Prefix.AllocateAndWriteData(tf.PrefixSum(), cl.MEM_READ_ONLY)
}

// Copy packed frame parameters to the device.
func (bs *bufferSet) UploadParams(p packedFrameParams) error {
	return bs.Params.WriteData([]packedFrameParams{p}, 0)
}
