package tff

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/achilleasa/volren/types"
)

const (
	// Number of table entries.
	TableSize = 1024

	// Length of the virtual timeline the easing curve is evaluated on.
	timelineTicks = 8192
)

// A dense RGBA lookup table plus the prefix sum of its alpha channel.
type Table struct {
	entries [TableSize]Color
	prefix  [TableSize]uint32
}

// Build a table by interpolating between sorted stops.
func Build(stops Stops, kind Interpolation) (*Table, error) {
	if kind > InOutCubic {
		return nil, fmt.Errorf("%w: %s", ErrInterpolation, kind)
	}
	if err := stops.Validate(); err != nil {
		return nil, err
	}
	sorted := stops.Sorted()

	t := &Table{}
	for i := 0; i < TableSize; i++ {
		tick := math.Round(float64(i) / TableSize * timelineTicks)
		t.entries[i] = sample(sorted, kind.ease(tick/timelineTicks))
	}
	t.updatePrefixSum()
	return t, nil
}

// Evaluate the color at progress p.
func sample(stops Stops, p float64) Color {
	first, last := stops[0], stops[len(stops)-1]
	if p <= float64(first.Position) {
		return first.Color
	}
	if p >= float64(last.Position) {
		return last.Color
	}

	// Find the last stop at or before p; the next one lies strictly after it.
	k := 0
	for k+1 < len(stops) && float64(stops[k+1].Position) <= p {
		k++
	}
	from, to := stops[k], stops[k+1]
	local := (p - float64(from.Position)) / float64(to.Position-from.Position)

	var out Color
	for c := 0; c < 4; c++ {
		v := float64(from.Color[c]) + (float64(to.Color[c])-float64(from.Color[c]))*local
		// Truncate like an int conversion and clamp to the 8-bit range.
		iv := int(v)
		if iv < 0 {
			iv = 0
		} else if iv > 255 {
			iv = 255
		}
		out[c] = uint8(iv)
	}
	return out
}

// Build a table from a raw RGBA byte dump. Dumps that do not hold exactly
// TableSize entries are resampled with nearest-neighbor lookups.
func FromRaw(raw []byte) (*Table, error) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidRawTable, len(raw))
	}

	n := len(raw) / 4
	t := &Table{}
	for i := 0; i < TableSize; i++ {
		src := i * n / TableSize
		copy(t.entries[i][:], raw[src*4:src*4+4])
	}
	t.updatePrefixSum()
	return t, nil
}

func (t *Table) updatePrefixSum() {
	var sum uint32
	for i, e := range t.entries {
		sum += uint32(e[3])
		t.prefix[i] = sum
	}
}

// Raw RGBA bytes, TableSize*4 long.
func (t *Table) Raw() []byte {
	out := make([]byte, TableSize*4)
	for i, e := range t.entries {
		copy(out[i*4:], e[:])
	}
	return out
}

// Entry at index i.
func (t *Table) Entry(i int) Color {
	return t.entries[i]
}

// Copy of the alpha prefix sum.
func (t *Table) PrefixSum() []uint32 {
	out := make([]uint32, TableSize)
	copy(out, t.prefix[:])
	return out
}

// The table as normalized float RGBA quadruplets, ready for device upload.
func (t *Table) Floats() []float32 {
	out := make([]float32, TableSize*4)
	for i, e := range t.entries {
		for c := 0; c < 4; c++ {
			out[i*4+c] = float32(e[c]) / 255
		}
	}
	return out
}

// Map a normalized density to a table index.
func Index(d float32) int {
	if !(d > 0) {
		return 0
	}
	idx := int(d * TableSize)
	if idx > TableSize-1 {
		return TableSize - 1
	}
	return idx
}

// Normalized color for density d.
func (t *Table) Lookup(d float32) types.Vec4 {
	e := t.entries[Index(d)]
	return types.Vec4{float32(e[0]) / 255, float32(e[1]) / 255, float32(e[2]) / 255, float32(e[3]) / 255}
}

// Report whether every density in [min, max] maps to zero alpha.
func (t *Table) IsTransparent(min, max float32) bool {
	return RangeTransparent(t.prefix[:], Index(min), Index(max))
}

// Report whether the inclusive index range [lo, hi] holds no alpha mass.
func RangeTransparent(prefix []uint32, lo, hi int) bool {
	if lo > hi {
		lo, hi = hi, lo
	}
	var before uint32
	if lo > 0 {
		before = prefix[lo-1]
	}
	return prefix[hi] == before
}

// Write the raw table to w.
func WriteRaw(w io.Writer, t *Table) error {
	_, err := w.Write(t.Raw())
	return err
}

// Read a raw table dump from r.
func ReadRaw(r io.Reader) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return FromRaw(raw)
}

// Write the alpha prefix sum as little-endian uint32 values.
func WritePrefixSum(w io.Writer, t *Table) error {
	return binary.Write(w, binary.LittleEndian, t.prefix[:])
}
