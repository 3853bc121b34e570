package renderer

import (
	"fmt"

	"github.com/achilleasa/volren/scene"
	"github.com/achilleasa/volren/tracer/kernel"
	"github.com/achilleasa/volren/types"
)

// A boolean render toggle.
type Toggle uint8

const (
	LinearFiltering Toggle = iota
	ImageESS
	ShowESS
	AmbientOcclusion
	Contours
	AerialPerspective
	ObjectESS
	numToggles
)

func (t Toggle) String() string {
	switch t {
	case LinearFiltering:
		return "linear"
	case ImageESS:
		return "image-ess"
	case ShowESS:
		return "show-ess"
	case AmbientOcclusion:
		return "ao"
	case Contours:
		return "contours"
	case AerialPerspective:
		return "aerial"
	case ObjectESS:
		return "object-ess"
	}
	return fmt.Sprintf("toggle(%d)", uint8(t))
}

// Snapshot of the current frame parameters. Width, height and iteration are
// filled in per frame.
func (r *Renderer) Params() kernel.FrameParams {
	r.Lock()
	defer r.Unlock()
	return r.params
}

// Apply fn to the frame parameters and restart accumulation. Use only for
// settings that cannot be invalid.
func (r *Renderer) set(fn func(p *kernel.FrameParams)) {
	r.Lock()
	defer r.Unlock()
	fn(&r.params)
	r.reset()
}

// Apply fn to a copy of the frame parameters and commit it if the result is
// valid. The previous parameters are kept on error.
func (r *Renderer) update(fn func(p *kernel.FrameParams)) error {
	r.Lock()
	defer r.Unlock()
	if err := r.commit(fn); err != nil {
		return err
	}
	r.reset()
	return nil
}

// Like update but also marks every tile of the hit bitmaps so that image
// order skipping starts over.
func (r *Renderer) updateAll(fn func(p *kernel.FrameParams)) error {
	r.Lock()
	defer r.Unlock()
	if err := r.commit(fn); err != nil {
		return err
	}
	if r.tracer == nil {
		r.reset()
		return nil
	}
	return r.resetAll()
}

// Must be called while holding r.Lock().
func (r *Renderer) commit(fn func(p *kernel.FrameParams)) error {
	next := r.params
	fn(&next)
	if err := next.ValidateSettings(); err != nil {
		return err
	}
	r.params = next
	return nil
}

// Set the camera to world transform from a view matrix.
func (r *Renderer) SetViewMatrix(view types.Mat4) {
	r.set(func(p *kernel.FrameParams) { p.Camera.CamToWorld = view.Inv() })
}

// Copy transform and projection settings from a camera.
func (r *Renderer) SetCamera(c *scene.Camera) error {
	return r.update(func(p *kernel.FrameParams) {
		p.Camera.CamToWorld = c.CamToWorld()
		p.Camera.Projection = c.Projection
		p.Camera.FOV = c.FOV
		p.Camera.OrthoExtent = c.OrthoExtent
	})
}

func (r *Renderer) SetProjection(proj scene.Projection) error {
	return r.update(func(p *kernel.FrameParams) { p.Camera.Projection = proj })
}

// Vertical field of view in degrees.
func (r *Renderer) SetFOV(fov float32) error {
	return r.update(func(p *kernel.FrameParams) { p.Camera.FOV = fov })
}

func (r *Renderer) SetOrthoExtent(extent float32) error {
	return r.update(func(p *kernel.FrameParams) { p.Camera.OrthoExtent = extent })
}

// Restrict rendering to a sub-box of the normalized [-1, 1]³ volume cube.
func (r *Renderer) SetClipBox(min, max types.Vec3) error {
	return r.updateAll(func(p *kernel.FrameParams) {
		p.Camera.ClipMin = min
		p.Camera.ClipMax = max
	})
}

// Samples per voxel along each ray.
func (r *Renderer) SetSamplingRate(rate float32) error {
	return r.update(func(p *kernel.FrameParams) { p.Raycast.SamplingRate = rate })
}

func (r *Renderer) SetIllumination(mode kernel.Illumination) error {
	return r.update(func(p *kernel.FrameParams) { p.Render.Illumination = mode })
}

func (r *Renderer) SetBackground(bg types.Vec4) {
	r.set(func(p *kernel.FrameParams) { p.Render.Background = bg })
}

func (r *Renderer) SetSeed(seed uint32) {
	r.set(func(p *kernel.FrameParams) { p.Render.Seed = seed })
}

func (r *Renderer) SetTechnique(t kernel.Technique) error {
	return r.updateAll(func(p *kernel.FrameParams) { p.Render.Technique = t })
}

// Majorant extinction used by the path tracer.
func (r *Renderer) SetMaxExtinction(ext float32) error {
	return r.update(func(p *kernel.FrameParams) { p.Pathtrace.MaxExtinction = ext })
}

// Enable or disable a render toggle.
func (r *Renderer) SetToggle(t Toggle, on bool) error {
	apply := func(p *kernel.FrameParams) {
		switch t {
		case LinearFiltering:
			p.Render.Linear = on
		case ImageESS:
			p.Render.ImageESS = on
		case ShowESS:
			p.Render.ShowESS = on
		case AmbientOcclusion:
			p.Raycast.AO = on
		case Contours:
			p.Raycast.Contours = on
		case AerialPerspective:
			p.Raycast.Aerial = on
		case ObjectESS:
			p.Raycast.ObjectESS = on
		}
	}

	switch {
	case t >= numToggles:
		return fmt.Errorf("renderer: unknown toggle %d", t)
	case t == ImageESS:
		return r.updateAll(apply)
	}
	return r.update(apply)
}

// Select the timestep to render.
func (r *Renderer) SetTimestep(t int) error {
	r.Lock()
	defer r.Unlock()

	if r.tracer == nil {
		return ErrClosed
	}
	if r.vol == nil {
		return ErrNoVolume
	}
	if t == r.timestep {
		return nil
	}
	return r.uploadTimestep(t)
}

// Currently rendered timestep.
func (r *Renderer) Timestep() int {
	r.Lock()
	defer r.Unlock()
	return r.timestep
}
