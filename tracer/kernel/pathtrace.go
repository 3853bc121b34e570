package kernel

import (
	"github.com/chewxy/math32"

	"github.com/achilleasa/volren/rng"
	"github.com/achilleasa/volren/scene"
	"github.com/achilleasa/volren/types"
)

const (
	maxWoodcockSteps = 512

	// Gradient length above which a scattering event is shaded as a surface.
	surfaceGradient = 0.05

	// Fraction of direct light that survives a fully blocked shadow ray.
	shadowFloor = 0.3
)

// Woodcock (delta) tracking against the majorant extinction. Returns the
// collision distance with its classified sample.
func (in *integrator) woodcock(r scene.Ray, rnd *rng.Stream) (float32, types.Vec3, types.Vec4, bool) {
	tnear, tfar, hit := in.box.Intersect(r)
	if !hit {
		return 0, types.Vec3{}, types.Vec4{}, false
	}

	t := math32.Max(tnear, 0)
	invExt := 1 / in.p.Pathtrace.MaxExtinction
	for i := 0; i < maxWoodcockSteps; i++ {
		t -= math32.Log(1-rnd.Float()) * invExt
		if t >= tfar {
			break
		}
		uvw := in.toUVW(r.At(t))
		c := in.classify(uvw)
		if rnd.Float() < c[3] {
			return t, uvw, c, true
		}
	}
	return 0, types.Vec3{}, types.Vec4{}, false
}

// Uniformly distributed direction on the unit sphere.
func sphereDir(rnd *rng.Stream) types.Vec3 {
	z := 1 - 2*rnd.Float()
	r := math32.Sqrt(math32.Max(0, 1-z*z))
	sin, cos := math32.Sincos(2 * math32.Pi * rnd.Float())
	return types.XYZ(r*cos, r*sin, z)
}

// Trace a single path sample.
func (in *integrator) pathtrace(r scene.Ray, rnd *rng.Stream) types.Vec4 {
	bg := in.p.Render.Background
	if in.box.Empty() {
		return bg
	}
	t, uvw, c, hit := in.woodcock(r, rnd)
	if !hit {
		return bg
	}

	pos := r.At(t)
	albedo := c.Vec3()
	var col types.Vec3

	surface := false
	if in.p.Render.Illumination != IllumOff {
		if g := in.gradient(uvw); g.Len() > surfaceGradient {
			col = shade(albedo, g, in.lightDir, r.Dir.Mul(-1), in.p.Render.Illumination == IllumCel)
			surface = true
		}
	}
	if !surface {
		second := bg.Vec3()
		if _, _, c2, ok := in.woodcock(scene.Ray{Origin: pos, Dir: sphereDir(rnd)}, rnd); ok {
			second = c2.Vec3()
		}
		col = albedo.MulVec(second.Mul(0.5).Add(types.Splat3(0.5)))
	}

	// Shadow ray towards the headlight.
	vis := float32(1)
	if _, _, _, blocked := in.woodcock(scene.Ray{Origin: pos, Dir: in.lightDir}, rnd); blocked {
		vis = 0
	}
	return col.Mul(shadowFloor + (1-shadowFloor)*vis).Clamp(0, 1).Vec4(1)
}
