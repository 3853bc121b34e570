package kernel

import (
	"github.com/chewxy/math32"

	"github.com/achilleasa/volren/scene"
	"github.com/achilleasa/volren/tff"
	"github.com/achilleasa/volren/types"
	"github.com/achilleasa/volren/volume"
)

// Shading constants.
const (
	ambientTerm   = 0.3
	diffuseTerm   = 0.7
	specularTerm  = 0.2
	shininess     = 16
	celBands      = 4
	gradientScale = 2
)

// integrator holds per-frame derived state shared by all pixels.
type integrator struct {
	sc *Scene
	p  FrameParams

	// Volume box intersected with the clip box, in model space.
	box      scene.Box
	invScale types.Vec3
	texel    types.Vec3

	// World space size of a voxel along the longest axis and the desired
	// raycast step.
	voxel       float32
	desiredStep float32

	aspect   float32
	lightDir types.Vec3
}

func newIntegrator(sc *Scene, p FrameParams) *integrator {
	res := sc.Volume.Res
	maxRes := res[0]
	if res[1] > maxRes {
		maxRes = res[1]
	}
	if res[2] > maxRes {
		maxRes = res[2]
	}

	clip := scene.Box{Min: p.Camera.ClipMin, Max: p.Camera.ClipMax}
	in := &integrator{
		sc:       sc,
		p:        p,
		box:      scene.UnitCube().Intersection(clip).Scale(sc.ModelScale),
		invScale: types.XYZ(1/sc.ModelScale[0], 1/sc.ModelScale[1], 1/sc.ModelScale[2]),
		texel:    types.XYZ(1/float32(res[0]), 1/float32(res[1]), 1/float32(res[2])),
		voxel:    2 / float32(maxRes),
		aspect:   float32(p.Width) / float32(p.Height),
	}
	in.desiredStep = in.voxel / p.Raycast.SamplingRate

	// Headlight tilted towards the camera up vector.
	fwd := types.TransformDir(p.Camera.CamToWorld, types.XYZ(0, 0, -1))
	up := types.TransformDir(p.Camera.CamToWorld, types.XYZ(0, 1, 0))
	in.lightDir = fwd.Mul(-1).Add(up.Mul(0.5)).Normalize()
	return in
}

// Map a model space position to texture coordinates.
func (in *integrator) toUVW(pos types.Vec3) types.Vec3 {
	return types.XYZ(
		(pos[0]*in.invScale[0]+1)*0.5,
		(pos[1]*in.invScale[1]+1)*0.5,
		(pos[2]*in.invScale[2]+1)*0.5,
	)
}

func (in *integrator) density(uvw types.Vec3) float32 {
	return in.sc.Volume.Sample(uvw, 0, in.p.Render.Linear)
}

// Classified color and opacity at uvw.
func (in *integrator) classify(uvw types.Vec3) types.Vec4 {
	if in.sc.Layout == volume.RGBA {
		f := in.sc.Volume
		lin := in.p.Render.Linear
		return types.Vec4{f.Sample(uvw, 0, lin), f.Sample(uvw, 1, lin), f.Sample(uvw, 2, lin), f.Sample(uvw, 3, lin)}
	}
	return in.lookup(in.density(uvw))
}

func (in *integrator) lookup(d float32) types.Vec4 {
	i := tff.Index(d) * 4
	return types.Vec4{in.sc.TFF[i], in.sc.TFF[i+1], in.sc.TFF[i+2], in.sc.TFF[i+3]}
}

func (in *integrator) alpha(uvw types.Vec3) float32 {
	return in.classify(uvw)[3]
}

// Gradient estimate at uvw according to the illumination mode.
func (in *integrator) gradient(uvw types.Vec3) types.Vec3 {
	switch in.p.Render.Illumination {
	case IllumCentralDiffTff:
		return in.centralDiff(uvw, in.alpha)
	case IllumSobel:
		return in.sobel(uvw)
	}
	return in.centralDiff(uvw, in.density)
}

func (in *integrator) centralDiff(uvw types.Vec3, fn func(types.Vec3) float32) types.Vec3 {
	var g types.Vec3
	for a := 0; a < 3; a++ {
		fwd, back := uvw, uvw
		fwd[a] += in.texel[a]
		back[a] -= in.texel[a]
		g[a] = (fn(fwd) - fn(back)) * 0.5
	}
	return g
}

var sobelSmooth = [3]float32{1, 2, 1}

func (in *integrator) sobel(uvw types.Vec3) types.Vec3 {
	var g types.Vec3
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				p := types.XYZ(
					uvw[0]+float32(dx)*in.texel[0],
					uvw[1]+float32(dy)*in.texel[1],
					uvw[2]+float32(dz)*in.texel[2],
				)
				d := in.density(p)
				g[0] += float32(dx) * sobelSmooth[dy+1] * sobelSmooth[dz+1] * d
				g[1] += float32(dy) * sobelSmooth[dx+1] * sobelSmooth[dz+1] * d
				g[2] += float32(dz) * sobelSmooth[dx+1] * sobelSmooth[dy+1] * d
			}
		}
	}
	return g.Mul(1.0 / 32)
}

// Two-sided Blinn-Phong with light direction l and view direction v, both
// pointing away from the shaded point.
func shade(rgb, grad, l, v types.Vec3, cel bool) types.Vec3 {
	n := grad.Normalize()
	if n == (types.Vec3{}) {
		return rgb
	}

	diff := math32.Abs(n.Dot(l))
	spec := math32.Pow(math32.Abs(n.Dot(l.Add(v).Normalize())), shininess)
	if cel {
		diff = math32.Floor(diff*celBands) / celBands
		if spec > 0.5 {
			spec = 1
		} else {
			spec = 0
		}
	}
	return rgb.Mul(ambientTerm + diffuseTerm*diff).Add(types.Splat3(specularTerm * spec)).Clamp(0, 1)
}

func insideUnit(uvw types.Vec3) bool {
	return uvw[0] >= 0 && uvw[0] <= 1 && uvw[1] >= 0 && uvw[1] <= 1 && uvw[2] >= 0 && uvw[2] <= 1
}

// Build an orthonormal basis around n.
func basis(n types.Vec3) (types.Vec3, types.Vec3) {
	a := types.XYZ(1, 0, 0)
	if math32.Abs(n[0]) > 0.9 {
		a = types.XYZ(0, 1, 0)
	}
	t := a.Cross(n).Normalize()
	return t, n.Cross(t)
}
