package kernel

import (
	"github.com/achilleasa/volren/compute"
	"github.com/achilleasa/volren/rng"
	"github.com/achilleasa/volren/scene"
	"github.com/achilleasa/volren/types"
)

// Color written for skipped tiles when empty space visualization is on.
var essDebugColor = types.XYZW(1, 0, 1, 1)

// NewFrameKernel assembles the render kernel for one progressive iteration.
// The kernel reads AccumPrev and HitPrev and writes AccumCurr and HitCurr.
func NewFrameKernel(sc *Scene, p FrameParams, tg *Targets) (compute.Kernel, compute.Range, error) {
	if err := p.Validate(); err != nil {
		return compute.Kernel{}, compute.Range{}, err
	}
	if err := tg.validate(p.Width, p.Height); err != nil {
		return compute.Kernel{}, compute.Range{}, err
	}

	in := newIntegrator(sc, p)
	// Partial tiles at the right and bottom edges get InRange == false items.
	r := compute.Range2D(p.Width, p.Height, TileSize, TileSize)
	groups := r.Groups()
	hitW, _ := HitDims(p.Width, p.Height)

	tileSkipped := func(gx, gy int) bool {
		for y := gy - 1; y <= gy+1; y++ {
			if y < 0 || y >= groups[1] {
				continue
			}
			for x := gx - 1; x <= gx+1; x++ {
				if x < 0 || x >= groups[0] {
					continue
				}
				if tg.HitPrev[y*hitW+x] != 0 {
					return false
				}
			}
		}
		return true
	}

	renderPixel := func(it *compute.Item) {
		if !it.InRange {
			return
		}
		x, y := it.Global[0], it.Global[1]
		bg := p.Render.Background

		var s types.Vec4
		if p.Render.ImageESS && tileSkipped(it.Group[0], it.Group[1]) {
			if p.Render.ShowESS {
				// Written straight to the target so the overlay never blends.
				copy(tg.AccumCurr[(y*p.Width+x)*4:], essDebugColor[:])
				return
			}
			s = bg
		} else {
			rnd := rng.NewStream(p.Render.Seed, uint32(x), uint32(y), p.Render.Iteration)
			jx, jy := float32(0.5), float32(0.5)
			if p.Render.Technique == Pathtrace {
				jx, jy = rnd.Float(), rnd.Float()
			}
			ndcX := 2*(float32(x)+jx)/float32(p.Width) - 1
			ndcY := 1 - 2*(float32(y)+jy)/float32(p.Height)
			ray := scene.PrimaryRay(p.Camera.CamToWorld, p.Camera.Projection, p.Camera.FOV, p.Camera.OrthoExtent, in.aspect, ndcX, ndcY)

			if p.Render.Technique == Pathtrace {
				s = in.pathtrace(ray, &rnd)
			} else {
				s = in.raycast(ray, &rnd)
			}
			if s.Vec3() != bg.Vec3() {
				it.Shared[0] = 1
			}
		}

		idx := (y*p.Width + x) * 4
		n := float32(p.Render.Iteration)
		for c := 0; c < 4; c++ {
			if p.Render.Iteration == 0 {
				tg.AccumCurr[idx+c] = s[c]
				continue
			}
			prev := tg.AccumPrev[idx+c]
			tg.AccumCurr[idx+c] = prev + (s[c]-prev)/(n+1)
		}
	}

	storeHit := func(it *compute.Item) {
		if !p.Render.ImageESS || it.Local[0] != 0 || it.Local[1] != 0 {
			return
		}
		tg.HitCurr[it.Group[1]*hitW+it.Group[0]] = uint8(it.Shared[0])
	}

	k := compute.Kernel{
		Name:       "renderFrame",
		SharedInts: 1,
		Phases:     []func(*compute.Item){renderPixel, storeHit},
	}
	return k, r, nil
}

// Render one iteration on exec.
func Render(exec *compute.Executor, sc *Scene, p FrameParams, tg *Targets) error {
	k, r, err := NewFrameKernel(sc, p, tg)
	if err != nil {
		return err
	}
	_, err = exec.Run(k, r)
	return err
}
