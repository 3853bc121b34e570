package scene

import (
	"fmt"
	"strings"

	"github.com/chewxy/math32"

	"github.com/achilleasa/volren/types"
)

// Camera projection kind.
type Projection uint8

const (
	Perspective Projection = iota
	Orthographic
)

func (p Projection) String() string {
	if p == Orthographic {
		return "orthographic"
	}
	return "perspective"
}

// Parse a projection name.
func ParseProjection(name string) (Projection, error) {
	switch strings.ToLower(name) {
	case "", "perspective", "persp":
		return Perspective, nil
	case "orthographic", "ortho":
		return Orthographic, nil
	}
	return Perspective, fmt.Errorf("scene: unknown projection %q", name)
}

// The camera type controls the view transform and projection.
type Camera struct {
	Position types.Vec3
	LookAt   types.Vec3
	Up       types.Vec3

	// World to camera transform.
	ViewMat types.Mat4

	Projection Projection

	// Vertical field of view in degrees (perspective).
	FOV float32

	// Half height of the view plane in world units (orthographic).
	OrthoExtent float32
}

// Create a perspective camera looking down -Z from (0, 0, 3).
func NewCamera(fov float32) *Camera {
	c := &Camera{
		Position:    types.XYZ(0, 0, 3),
		LookAt:      types.XYZ(0, 0, 0),
		Up:          types.XYZ(0, 1, 0),
		FOV:         fov,
		OrthoExtent: 1,
	}
	c.Update()
	return c
}

// Recalculate the view matrix from position, target and up vector.
func (c *Camera) Update() {
	c.ViewMat = types.LookAt(c.Position, c.LookAt, c.Up)
}

// Rotate the camera position around its target. Yaw rotates around the up
// vector and pitch around the camera right vector; angles are in radians.
func (c *Camera) Orbit(yaw, pitch float32) {
	offset := c.Position.Sub(c.LookAt)
	right := offset.Mul(-1).Cross(c.Up).Normalize()

	yawQuat := types.QuatFromAxisAngle(c.Up, yaw)
	pitchQuat := types.QuatFromAxisAngle(right, pitch)
	orient := yawQuat.Mul(pitchQuat).Normalize()

	rotated := orient.Rotate(offset)
	// Refuse to flip over the poles.
	if math32.Abs(rotated.Normalize().Dot(c.Up.Normalize())) > 0.999 {
		rotated = yawQuat.Rotate(offset)
	}
	c.Position = c.LookAt.Add(rotated)
	c.Update()
}

// Camera to world transform.
func (c *Camera) CamToWorld() types.Mat4 {
	return c.ViewMat.Inv()
}
