package opencl

import (
	"github.com/chewxy/math32"

	"github.com/achilleasa/volren/scene"
	"github.com/achilleasa/volren/tracer/kernel"
	"github.com/achilleasa/volren/types"
)

// Render toggles packed into packedFrameParams.Flags[2].
const (
	toggleLinear uint32 = 1 << iota
	toggleImageESS
	toggleShowESS
	toggleAO
	toggleContours
	toggleAerial
	toggleObjectESS
)

// Size of packedFrameParams in bytes; must match FrameParams in the CL source.
const sizeofFrameParams = 4*16 + 7*16 + 5*16

// Frame parameters in the layout expected by the render kernel. Every field
// is 16 byte aligned so the struct can be copied verbatim to a device buffer.
type packedFrameParams struct {
	// Columns of the camera to world matrix.
	CamToWorld [4]types.Vec4

	// x: projection, y: tan(fov/2), z: ortho extent, w: aspect ratio.
	Projection types.Vec4

	// Clip box in model space; w unused.
	ClipMin types.Vec4
	ClipMax types.Vec4

	// xyz: model scale, w unused.
	ModelScale types.Vec4

	Background types.Vec4

	// x: sampling rate, y: max extinction, z: voxel size, w: desired step.
	Sampling types.Vec4

	// xyz: normalized headlight direction.
	LightDir types.Vec4

	// width, height, iteration, seed.
	Frame [4]uint32

	// xyz: volume resolution, w: channels.
	Volume [4]uint32

	// xyz: brick grid dimensions, w: 1 if bricks are available.
	BrickDims [4]uint32

	// xyz: brick edge length in voxels, w: layout.
	BrickEdge [4]uint32

	// x: technique, y: illumination, z: toggles.
	Flags [4]uint32
}

// Volume dependent inputs of packFrameParams.
type sceneInfo struct {
	res        [3]int
	channels   int
	modelScale types.Vec3
	brickDims  [3]int
	brickEdge  [3]int
	hasBricks  bool
}

func packFrameParams(p kernel.FrameParams, si sceneInfo) packedFrameParams {
	var out packedFrameParams

	for col := 0; col < 4; col++ {
		out.CamToWorld[col] = types.XYZW(
			p.Camera.CamToWorld[col*4],
			p.Camera.CamToWorld[col*4+1],
			p.Camera.CamToWorld[col*4+2],
			p.Camera.CamToWorld[col*4+3],
		)
	}

	var proj float32
	if p.Camera.Projection == scene.Orthographic {
		proj = 1
	}
	out.Projection = types.XYZW(
		proj,
		math32.Tan(p.Camera.FOV*math32.Pi/360),
		p.Camera.OrthoExtent,
		float32(p.Width)/float32(p.Height),
	)

	// Clip box is applied in model space, like the volume box.
	clip := scene.UnitCube().
		Intersection(scene.Box{Min: p.Camera.ClipMin, Max: p.Camera.ClipMax}).
		Scale(si.modelScale)
	out.ClipMin = clip.Min.Vec4(0)
	out.ClipMax = clip.Max.Vec4(0)
	out.ModelScale = si.modelScale.Vec4(0)
	out.Background = p.Render.Background

	maxRes := si.res[0]
	for _, r := range si.res[1:] {
		if r > maxRes {
			maxRes = r
		}
	}
	voxel := 2 / float32(maxRes)
	out.Sampling = types.XYZW(
		p.Raycast.SamplingRate,
		p.Pathtrace.MaxExtinction,
		voxel,
		voxel/p.Raycast.SamplingRate,
	)

	fwd := types.TransformDir(p.Camera.CamToWorld, types.XYZ(0, 0, -1))
	up := types.TransformDir(p.Camera.CamToWorld, types.XYZ(0, 1, 0))
	out.LightDir = fwd.Mul(-1).Add(up.Mul(0.5)).Normalize().Vec4(0)

	out.Frame = [4]uint32{uint32(p.Width), uint32(p.Height), p.Render.Iteration, p.Render.Seed}
	out.Volume = [4]uint32{uint32(si.res[0]), uint32(si.res[1]), uint32(si.res[2]), uint32(si.channels)}
	if si.hasBricks {
		out.BrickDims = [4]uint32{uint32(si.brickDims[0]), uint32(si.brickDims[1]), uint32(si.brickDims[2]), 1}
		out.BrickEdge = [4]uint32{uint32(si.brickEdge[0]), uint32(si.brickEdge[1]), uint32(si.brickEdge[2])}
	}
	out.BrickEdge[3] = uint32(si.channels)

	var toggles uint32
	set := func(on bool, flag uint32) {
		if on {
			toggles |= flag
		}
	}
	set(p.Render.Linear, toggleLinear)
	set(p.Render.ImageESS, toggleImageESS)
	set(p.Render.ShowESS, toggleShowESS)
	set(p.Raycast.AO, toggleAO)
	set(p.Raycast.Contours, toggleContours)
	set(p.Raycast.Aerial, toggleAerial)
	set(p.Raycast.ObjectESS && si.hasBricks, toggleObjectESS)
	out.Flags = [4]uint32{uint32(p.Render.Technique), uint32(p.Render.Illumination), toggles}

	return out
}
