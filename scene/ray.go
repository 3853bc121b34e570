package scene

import (
	"github.com/chewxy/math32"

	"github.com/achilleasa/volren/types"
)

type Ray struct {
	Origin types.Vec3
	Dir    types.Vec3
}

// Point at distance t.
func (r Ray) At(t float32) types.Vec3 {
	return r.Origin.Add(r.Dir.Mul(t))
}

// An axis aligned box.
type Box struct {
	Min types.Vec3
	Max types.Vec3
}

// The [-1, 1]³ cube.
func UnitCube() Box {
	return Box{Min: types.Splat3(-1), Max: types.Splat3(1)}
}

// Scale both corners component-wise.
func (b Box) Scale(s types.Vec3) Box {
	return Box{Min: b.Min.MulVec(s), Max: b.Max.MulVec(s)}
}

// Overlap of two boxes. The result may be empty (Min > Max on some axis).
func (b Box) Intersection(o Box) Box {
	return Box{Min: types.MaxVec3(b.Min, o.Min), Max: types.MinVec3(b.Max, o.Max)}
}

// Report whether the box encloses no volume.
func (b Box) Empty() bool {
	return b.Min[0] >= b.Max[0] || b.Min[1] >= b.Max[1] || b.Min[2] >= b.Max[2]
}

// Slab test. Returns the entry and exit distances; tnear may be negative when
// the origin lies inside the box.
func (b Box) Intersect(r Ray) (float32, float32, bool) {
	tnear := math32.Inf(-1)
	tfar := math32.Inf(1)
	for i := 0; i < 3; i++ {
		if r.Dir[i] == 0 {
			if r.Origin[i] < b.Min[i] || r.Origin[i] > b.Max[i] {
				return 0, 0, false
			}
			continue
		}
		inv := 1 / r.Dir[i]
		t0 := (b.Min[i] - r.Origin[i]) * inv
		t1 := (b.Max[i] - r.Origin[i]) * inv
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > tnear {
			tnear = t0
		}
		if t1 < tfar {
			tfar = t1
		}
	}
	if tnear > tfar || tfar < 0 {
		return 0, 0, false
	}
	return tnear, tfar, true
}

// Primary ray through normalized device coordinates (ndcX, ndcY) in [-1, 1],
// with +Y pointing up. fovY is in degrees.
func PrimaryRay(camToWorld types.Mat4, proj Projection, fovY, orthoExtent, aspect, ndcX, ndcY float32) Ray {
	if proj == Orthographic {
		local := types.XYZ(ndcX*aspect*orthoExtent, ndcY*orthoExtent, 0)
		return Ray{
			Origin: types.TransformPoint(camToWorld, local),
			Dir:    types.TransformDir(camToWorld, types.XYZ(0, 0, -1)).Normalize(),
		}
	}

	tanHalf := math32.Tan(fovY * math32.Pi / 360)
	dir := types.XYZ(ndcX*aspect*tanHalf, ndcY*tanHalf, -1)
	return Ray{
		Origin: types.TransformPoint(camToWorld, types.Vec3{}),
		Dir:    types.TransformDir(camToWorld, dir).Normalize(),
	}
}
