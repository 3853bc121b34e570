package volume

import (
	"github.com/chewxy/math32"

	"github.com/achilleasa/volren/types"
)

// Field is a read-only sampling view over interleaved voxel channels.
// Coordinates are normalized texture coordinates in [0, 1]³ with
// clamp-to-edge addressing and voxel centers at (i+0.5)/res.
type Field struct {
	Data     []float32
	Res      [3]int
	Channels int
}

// Channel c of voxel (x, y, z); coordinates are clamped to the grid.
func (f Field) Voxel(x, y, z, c int) float32 {
	x = clampInt(x, 0, f.Res[0]-1)
	y = clampInt(y, 0, f.Res[1]-1)
	z = clampInt(z, 0, f.Res[2]-1)
	return f.Data[((z*f.Res[1]+y)*f.Res[0]+x)*f.Channels+c]
}

// Nearest-neighbor sample of channel c.
func (f Field) Nearest(uvw types.Vec3, c int) float32 {
	return f.Voxel(
		int(math32.Floor(uvw[0]*float32(f.Res[0]))),
		int(math32.Floor(uvw[1]*float32(f.Res[1]))),
		int(math32.Floor(uvw[2]*float32(f.Res[2]))),
		c,
	)
}

// Trilinear sample of channel c.
func (f Field) Linear(uvw types.Vec3, c int) float32 {
	var base [3]int
	var frac [3]float32
	for i := 0; i < 3; i++ {
		p := uvw[i]*float32(f.Res[i]) - 0.5
		fl := math32.Floor(p)
		base[i] = int(fl)
		frac[i] = p - fl
	}

	x0, y0, z0 := base[0], base[1], base[2]
	c000 := f.Voxel(x0, y0, z0, c)
	c100 := f.Voxel(x0+1, y0, z0, c)
	c010 := f.Voxel(x0, y0+1, z0, c)
	c110 := f.Voxel(x0+1, y0+1, z0, c)
	c001 := f.Voxel(x0, y0, z0+1, c)
	c101 := f.Voxel(x0+1, y0, z0+1, c)
	c011 := f.Voxel(x0, y0+1, z0+1, c)
	c111 := f.Voxel(x0+1, y0+1, z0+1, c)

	c00 := lerp(c000, c100, frac[0])
	c10 := lerp(c010, c110, frac[0])
	c01 := lerp(c001, c101, frac[0])
	c11 := lerp(c011, c111, frac[0])
	return lerp(lerp(c00, c10, frac[1]), lerp(c01, c11, frac[1]), frac[2])
}

// Sample channel c using the requested filter.
func (f Field) Sample(uvw types.Vec3, c int, linear bool) float32 {
	if linear {
		return f.Linear(uvw, c)
	}
	return f.Nearest(uvw, c)
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
