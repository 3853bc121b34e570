package volume

import (
	"fmt"
	"math"

	"github.com/achilleasa/volren/types"
)

// Number of histogram bins per timestep.
const HistogramBins = 256

// A Volume holds normalized float32 channels for every timestep. It is
// immutable once created.
type Volume struct {
	meta Metadata

	// Interleaved channels per timestep, x fastest.
	data [][]float32

	// Factor that maps normalized values back to the source range.
	scales []float32

	histograms [][HistogramBins]uint32
}

// Decode and normalize a raw buffer.
func New(buf []byte, meta Metadata) (*Volume, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if len(buf) != meta.ExpectedBytes() {
		return nil, fmt.Errorf("%w: expected %d bytes (%dx%dx%d, %d channel(s), %s, %d timestep(s)); got %d",
			ErrSizeMismatch, meta.ExpectedBytes(),
			meta.Resolution[0], meta.Resolution[1], meta.Resolution[2],
			meta.Layout.Channels(), meta.Format, meta.Timesteps, len(buf),
		)
	}

	v := &Volume{
		meta:       meta,
		data:       make([][]float32, meta.Timesteps),
		scales:     make([]float32, meta.Timesteps),
		histograms: make([][HistogramBins]uint32, meta.Timesteps),
	}

	stride := meta.TimestepBytes()
	for t := 0; t < meta.Timesteps; t++ {
		v.decodeTimestep(t, buf[t*stride:(t+1)*stride])
	}
	return v, nil
}

// Build a single timestep volume from already normalized values.
func FromFloats(data []float32, meta Metadata, scale float32) (*Volume, error) {
	meta.Timesteps = 1
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if exp := meta.VoxelCount() * meta.Layout.Channels(); len(data) != exp {
		return nil, fmt.Errorf("%w: expected %d values; got %d", ErrSizeMismatch, exp, len(data))
	}

	v := &Volume{
		meta:       meta,
		data:       [][]float32{data},
		scales:     []float32{scale},
		histograms: make([][HistogramBins]uint32, 1),
	}
	channels := meta.Layout.Channels()
	for i := 0; i < len(data); i += channels {
		v.histograms[0][histBin(data[i])]++
	}
	return v, nil
}

func (v *Volume) decodeTimestep(t int, raw []byte) {
	channels := v.meta.Layout.Channels()
	n := v.meta.VoxelCount() * channels
	order := v.meta.ByteOrder
	out := make([]float32, n)
	hist := &v.histograms[t]

	switch v.meta.Format {
	case Uint8:
		for i := 0; i < n; i++ {
			out[i] = float32(raw[i]) / 255
			if i%channels == 0 {
				hist[raw[i]]++
			}
		}
		v.scales[t] = 255
	case Uint16:
		var max uint16
		for i := 0; i < n; i++ {
			s := order.Uint16(raw[i*2:])
			out[i] = float32(s)
			if s > max {
				max = s
			}
		}
		// Bin after stretching so that 12 bit data spans the whole histogram.
		v.scales[t] = normalize(out, float32(max))
		for i := 0; i < n; i += channels {
			hist[histBin(out[i])]++
		}
	case Float32:
		var max float32
		for i := 0; i < n; i++ {
			s := math.Float32frombits(order.Uint32(raw[i*4:]))
			if s != s {
				s = 0
			}
			out[i] = s
			if s > max {
				max = s
			}
		}
		v.scales[t] = normalize(out, max)
		for i := 0; i < n; i += channels {
			hist[histBin(out[i])]++
		}
	}
	v.data[t] = out
}

// Divide values by max, stretching the used range to [0, 1]. Returns the
// applied scale.
func normalize(values []float32, max float32) float32 {
	if max <= 0 {
		return 1
	}
	for i := range values {
		values[i] /= max
	}
	return max
}

func histBin(v float32) int {
	b := int(math.Round(float64(v) * 255))
	if b < 0 {
		return 0
	}
	if b > 255 {
		return 255
	}
	return b
}

// Volume metadata.
func (v *Volume) Metadata() Metadata {
	return v.meta
}

// Resolution in voxels.
func (v *Volume) Resolution() [3]int {
	return v.meta.Resolution
}

// Number of timesteps.
func (v *Volume) Timesteps() int {
	return v.meta.Timesteps
}

// Channels per voxel.
func (v *Volume) Channels() int {
	return v.meta.Layout.Channels()
}

// Channel layout.
func (v *Volume) Layout() Layout {
	return v.meta.Layout
}

// Normalized data for timestep t. The returned slice must not be modified.
func (v *Volume) Data(t int) []float32 {
	return v.data[t]
}

// The factor mapping normalized values of timestep t back to source units.
func (v *Volume) Scale(t int) float32 {
	return v.scales[t]
}

// A sampling view of timestep t.
func (v *Volume) Field(t int) Field {
	return Field{Data: v.data[t], Res: v.meta.Resolution, Channels: v.Channels()}
}

// Raw-count histogram of the first channel of timestep t.
func (v *Volume) Histogram(t int) ([HistogramBins]uint32, error) {
	if t < 0 || t >= v.meta.Timesteps {
		return [HistogramBins]uint32{}, fmt.Errorf("%w: %d of %d", ErrTimestepRange, t, v.meta.Timesteps)
	}
	return v.histograms[t], nil
}

// Physical extent of each axis relative to the longest one. The volume
// occupies [-s, s] in model space.
func (v *Volume) ModelScale() types.Vec3 {
	var size types.Vec3
	for i := 0; i < 3; i++ {
		size[i] = float32(v.meta.Resolution[i]) * v.meta.SliceThickness[i] / v.meta.SliceThickness[0]
	}
	max := size.MaxComponent()
	return size.Mul(1 / max)
}
