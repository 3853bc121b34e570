package kernel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/achilleasa/volren/scene"
	"github.com/achilleasa/volren/types"
)

var ErrInvalidParams = errors.New("kernel: invalid frame parameters")

// Rendering technique.
type Technique uint8

const (
	Raycast Technique = iota
	Pathtrace
)

func (t Technique) String() string {
	if t == Pathtrace {
		return "pathtrace"
	}
	return "raycast"
}

// Parse a technique name.
func ParseTechnique(name string) (Technique, error) {
	switch strings.ToLower(name) {
	case "", "raycast", "raycasting":
		return Raycast, nil
	case "pathtrace", "pathtracing":
		return Pathtrace, nil
	}
	return Raycast, fmt.Errorf("kernel: unknown technique %q", name)
}

// Illumination mode.
type Illumination uint8

const (
	IllumOff Illumination = iota
	IllumCentralDiff
	IllumCentralDiffTff
	IllumSobel
	IllumGradientMagnitude
	IllumCel
	numIlluminationModes
)

func (i Illumination) String() string {
	switch i {
	case IllumOff:
		return "off"
	case IllumCentralDiff:
		return "central"
	case IllumCentralDiffTff:
		return "central-tff"
	case IllumSobel:
		return "sobel"
	case IllumGradientMagnitude:
		return "magnitude"
	case IllumCel:
		return "cel"
	}
	return fmt.Sprintf("illumination(%d)", uint8(i))
}

// Parse an illumination mode name.
func ParseIllumination(name string) (Illumination, error) {
	for i := IllumOff; i < numIlluminationModes; i++ {
		if strings.EqualFold(name, i.String()) {
			return i, nil
		}
	}
	return IllumOff, fmt.Errorf("kernel: unknown illumination mode %q", name)
}

// Camera related frame parameters.
type CameraParams struct {
	CamToWorld  types.Mat4
	Projection  scene.Projection
	FOV         float32
	OrthoExtent float32

	// Clip box corners in normalized volume space [-1, 1]³.
	ClipMin types.Vec3
	ClipMax types.Vec3
}

// Parameters shared by both techniques.
type RenderParams struct {
	Technique    Technique
	Illumination Illumination
	Background   types.Vec4
	Linear       bool
	ImageESS     bool
	ShowESS      bool
	Seed         uint32
	Iteration    uint32
}

// Raycast specific parameters.
type RaycastParams struct {
	// Samples per voxel.
	SamplingRate float32
	AO           bool
	Contours     bool
	Aerial       bool
	ObjectESS    bool
}

// Path tracing specific parameters.
type PathtraceParams struct {
	MaxExtinction float32
}

// FrameParams is an immutable snapshot of everything a dispatch needs
// besides device buffers.
type FrameParams struct {
	Width  int
	Height int

	Camera    CameraParams
	Render    RenderParams
	Raycast   RaycastParams
	Pathtrace PathtraceParams
}

// Default parameters.
func DefaultFrameParams() FrameParams {
	return FrameParams{
		Camera: CameraParams{
			CamToWorld:  types.Ident4(),
			Projection:  scene.Perspective,
			FOV:         60,
			OrthoExtent: 1,
			ClipMin:     types.Splat3(-1),
			ClipMax:     types.Splat3(1),
		},
		Render: RenderParams{
			Technique:    Raycast,
			Illumination: IllumCentralDiff,
			Background:   types.XYZW(1, 1, 1, 1),
			Linear:       true,
			Seed:         42,
		},
		Raycast: RaycastParams{
			SamplingRate: 1.5,
		},
		Pathtrace: PathtraceParams{
			MaxExtinction: 100,
		},
	}
}

// Validate parameters before dispatch.
func (p FrameParams) Validate() error {
	if p.Width < 1 || p.Height < 1 {
		return fmt.Errorf("%w: frame size %dx%d", ErrInvalidParams, p.Width, p.Height)
	}
	return p.ValidateSettings()
}

// ValidateSettings checks everything but the frame size.
func (p FrameParams) ValidateSettings() error {
	if p.Render.Technique > Pathtrace {
		return fmt.Errorf("%w: technique %d", ErrInvalidParams, p.Render.Technique)
	}
	if p.Render.Illumination >= numIlluminationModes {
		return fmt.Errorf("%w: illumination %d", ErrInvalidParams, p.Render.Illumination)
	}
	if !(p.Raycast.SamplingRate > 0) {
		return fmt.Errorf("%w: sampling rate %f", ErrInvalidParams, p.Raycast.SamplingRate)
	}
	if !(p.Pathtrace.MaxExtinction > 0) {
		return fmt.Errorf("%w: max extinction %f", ErrInvalidParams, p.Pathtrace.MaxExtinction)
	}
	for i := 0; i < 3; i++ {
		lo, hi := p.Camera.ClipMin[i], p.Camera.ClipMax[i]
		if !(lo < hi) || lo < -1 || hi > 1 {
			return fmt.Errorf("%w: clip box [%v, %v]", ErrInvalidParams, p.Camera.ClipMin, p.Camera.ClipMax)
		}
	}
	if p.Camera.Projection == scene.Perspective && !(p.Camera.FOV > 0 && p.Camera.FOV < 180) {
		return fmt.Errorf("%w: field of view %f", ErrInvalidParams, p.Camera.FOV)
	}
	if p.Camera.Projection == scene.Orthographic && !(p.Camera.OrthoExtent > 0) {
		return fmt.Errorf("%w: ortho extent %f", ErrInvalidParams, p.Camera.OrthoExtent)
	}
	return nil
}
