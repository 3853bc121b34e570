package volume

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrInvalidMetadata   = errors.New("volume: invalid metadata")
	ErrSizeMismatch      = errors.New("volume: data size does not match metadata")
	ErrUnsupportedLayout = errors.New("volume: unsupported channel layout")
	ErrTimestepRange     = errors.New("volume: timestep out of range")
)

// Sample precision of the raw data.
type Format uint8

const (
	Uint8 Format = iota
	Uint16
	Float32
)

// Size of a single channel sample in bytes.
func (f Format) Size() int {
	switch f {
	case Uint16:
		return 2
	case Float32:
		return 4
	}
	return 1
}

// Name used in .dat sidecar files.
func (f Format) String() string {
	switch f {
	case Uint8:
		return "UCHAR"
	case Uint16:
		return "USHORT"
	case Float32:
		return "FLOAT"
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// Parse a format name.
func ParseFormat(name string) (Format, error) {
	switch strings.ToUpper(name) {
	case "UCHAR", "UINT8", "BYTE":
		return Uint8, nil
	case "USHORT", "UINT16":
		return Uint16, nil
	case "FLOAT", "FLOAT32":
		return Float32, nil
	}
	return Uint8, fmt.Errorf("%w: unknown format %q", ErrInvalidMetadata, name)
}

// Channel layout of each voxel.
type Layout uint8

const (
	// Single density channel.
	Density Layout = 1
	// Density plus an auxiliary channel (precomputed gradient magnitude).
	DensityAux Layout = 2
	// Precomputed RGBA color.
	RGBA Layout = 4
)

// Number of channels per voxel.
func (l Layout) Channels() int {
	return int(l)
}

func (l Layout) valid() bool {
	return l == Density || l == DensityAux || l == RGBA
}

func (l Layout) String() string {
	switch l {
	case Density:
		return "density"
	case DensityAux:
		return "density+aux"
	case RGBA:
		return "rgba"
	}
	return fmt.Sprintf("layout(%d)", uint8(l))
}

// Parse a layout name or channel count.
func ParseLayout(name string) (Layout, error) {
	switch strings.ToLower(name) {
	case "", "1", "density", "r":
		return Density, nil
	case "2", "density+aux", "rg":
		return DensityAux, nil
	case "4", "rgba":
		return RGBA, nil
	}
	return Density, fmt.Errorf("%w: %q", ErrUnsupportedLayout, name)
}

// Metadata describes a raw volume buffer.
type Metadata struct {
	Resolution     [3]int
	Timesteps      int
	Format         Format
	Layout         Layout
	SliceThickness [3]float32

	// Byte order of multi-byte samples; nil means little endian.
	ByteOrder binary.ByteOrder
}

// Validate metadata and fill in defaults.
func (m *Metadata) Validate() error {
	for i, r := range m.Resolution {
		if r < 1 {
			return fmt.Errorf("%w: resolution axis %d is %d", ErrInvalidMetadata, i, r)
		}
	}
	if m.Timesteps == 0 {
		m.Timesteps = 1
	}
	if m.Timesteps < 0 {
		return fmt.Errorf("%w: timestep count %d", ErrInvalidMetadata, m.Timesteps)
	}
	if m.Format > Float32 {
		return fmt.Errorf("%w: format %d", ErrInvalidMetadata, m.Format)
	}
	if m.Layout == 0 {
		m.Layout = Density
	}
	if !m.Layout.valid() {
		return fmt.Errorf("%w: %d channels", ErrUnsupportedLayout, m.Layout)
	}
	for i, th := range m.SliceThickness {
		if th == 0 {
			m.SliceThickness[i] = 1
		} else if th < 0 || math.IsNaN(float64(th)) || math.IsInf(float64(th), 0) {
			return fmt.Errorf("%w: slice thickness axis %d is %f", ErrInvalidMetadata, i, th)
		}
	}
	if m.ByteOrder == nil {
		m.ByteOrder = binary.LittleEndian
	}
	return nil
}

// Voxels per timestep.
func (m Metadata) VoxelCount() int {
	return m.Resolution[0] * m.Resolution[1] * m.Resolution[2]
}

// Bytes per timestep.
func (m Metadata) TimestepBytes() int {
	return m.VoxelCount() * m.Layout.Channels() * m.Format.Size()
}

// Expected size of the raw buffer.
func (m Metadata) ExpectedBytes() int {
	return m.TimestepBytes() * m.Timesteps
}
