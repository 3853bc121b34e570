package kernel

import (
	"github.com/chewxy/math32"

	"github.com/achilleasa/volren/rng"
	"github.com/achilleasa/volren/scene"
	"github.com/achilleasa/volren/types"
	"github.com/achilleasa/volren/volume"
)

const (
	// Upper bound on samples along a single ray.
	maxRaySteps = 1 << 16

	// Accumulated opacity that terminates a ray.
	opaqueThreshold = 0.98

	// Accumulated opacity at which the surface used for ambient occlusion
	// is recorded.
	surfaceThreshold = 0.5

	aoRays  = 16
	aoSteps = 8
)

// march is the state of a single front-to-back compositing pass.
type march struct {
	in  *integrator
	ray scene.Ray

	tnear float32
	dist  float32
	base  float32
	step  float32
	steps int

	rgb   types.Vec3
	alpha float32

	hasSurface bool
	surfPos    types.Vec3
	surfGrad   types.Vec3
}

func (m *march) sampleT(i int) float32 {
	return m.base + float32(i)*m.step
}

// Composite sample i. Returns true once the ray is saturated.
func (m *march) sample(i int) bool {
	in := m.in
	t := m.sampleT(i)
	pos := m.ray.At(t)
	uvw := in.toUVW(pos)

	c := in.classify(uvw)
	a := c[3]
	if a <= 0 {
		return false
	}
	rgb := c.Vec3()

	var grad types.Vec3
	illum := in.p.Render.Illumination
	rp := in.p.Raycast
	if illum != IllumOff || rp.Contours || rp.AO {
		grad = in.gradient(uvw)
	}

	if illum == IllumGradientMagnitude {
		if in.sc.Layout == volume.DensityAux {
			a *= in.sc.Volume.Sample(uvw, 1, in.p.Render.Linear)
		} else {
			a *= math32.Min(1, gradientScale*grad.Len())
		}
		if a <= 0 {
			return false
		}
	}
	if illum != IllumOff {
		rgb = shade(rgb, grad, in.lightDir, m.ray.Dir.Mul(-1), illum == IllumCel)
	}
	if rp.Contours {
		if n := grad.Normalize(); n != (types.Vec3{}) {
			rgb = rgb.Mul(math32.Abs(m.ray.Dir.Dot(n)))
		}
	}
	if rp.Aerial {
		a *= 1 - (t-m.tnear)/m.dist
	}

	// Opacity correction for the sampling rate.
	a = 1 - math32.Pow(1-math32.Min(a, 1), 1/rp.SamplingRate)

	w := (1 - m.alpha) * a
	m.rgb = m.rgb.Add(rgb.Mul(w))
	m.alpha += w

	if !m.hasSurface && m.alpha >= surfaceThreshold {
		m.hasSurface = true
		m.surfPos = pos
		m.surfGrad = grad
	}
	return m.alpha > opaqueThreshold
}

// Raycast a primary ray and composite the result over the background.
func (in *integrator) raycast(r scene.Ray, rnd *rng.Stream) types.Vec4 {
	bg := in.p.Render.Background
	if in.box.Empty() {
		return bg
	}
	tnear, tfar, hit := in.box.Intersect(r)
	if !hit {
		return bg
	}
	if tnear < 0 {
		tnear = 0
	}
	dist := tfar - tnear
	if !(dist > 0) {
		return bg
	}
	n := math32.Ceil(dist / in.desiredStep)
	if math32.IsNaN(n) || math32.IsInf(n, 0) || n > maxRaySteps {
		return bg
	}
	steps := int(n)
	if steps < 1 {
		steps = 1
	}

	m := &march{
		in:    in,
		ray:   r,
		tnear: tnear,
		dist:  dist,
		step:  dist / float32(steps),
		steps: steps,
	}
	m.base = tnear + rnd.Float()*m.step

	if in.p.Raycast.ObjectESS && in.sc.Bricks != nil {
		m.marchBricks()
	} else {
		for i := 0; i < m.steps; i++ {
			if m.sample(i) {
				break
			}
		}
	}

	rgb := m.rgb
	if in.p.Raycast.AO && m.hasSurface {
		rgb = rgb.Mul(1 - in.occlusion(m.surfPos, m.surfGrad, r.Dir, rnd))
	}

	out := rgb.Add(bg.Vec3().Mul(1 - m.alpha))
	return out.Vec4(m.alpha + (1-m.alpha)*bg[3])
}

// Fraction of cosine weighted hemisphere rays around the surface normal that
// are blocked within a short distance.
func (in *integrator) occlusion(pos, grad, viewDir types.Vec3, rnd *rng.Stream) float32 {
	n := grad.Mul(-1).Normalize()
	if n == (types.Vec3{}) {
		n = viewDir.Mul(-1)
	} else if n.Dot(viewDir) > 0 {
		n = n.Mul(-1)
	}
	tangent, bitangent := basis(n)

	var occ float32
	for ray := 0; ray < aoRays; ray++ {
		r1, r2 := rnd.Float(), rnd.Float()
		sin, cos := math32.Sincos(2 * math32.Pi * r1)
		rad := math32.Sqrt(r2)
		dir := tangent.Mul(rad * cos).Add(bitangent.Mul(rad * sin)).Add(n.Mul(math32.Sqrt(1 - r2)))

		var a float32
		for s := 1; s <= aoSteps && a < opaqueThreshold; s++ {
			uvw := in.toUVW(pos.Add(dir.Mul(float32(s) * in.voxel)))
			if !insideUnit(uvw) {
				break
			}
			sa := in.alpha(uvw)
			a += (1 - a) * sa
		}
		occ += a
	}
	return occ / aoRays
}
