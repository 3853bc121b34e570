package scene

import (
	"testing"

	"github.com/chewxy/math32"

	"github.com/achilleasa/volren/types"
)

func TestBoxIntersect(t *testing.T) {
	type spec struct {
		ray     Ray
		expHit  bool
		expNear float32
		expFar  float32
	}

	box := UnitCube()
	specs := []spec{
		{Ray{types.XYZ(0, 0, -3), types.XYZ(0, 0, 1)}, true, 2, 4},
		{Ray{types.XYZ(0, 0, 0), types.XYZ(1, 0, 0)}, true, -1, 1},
		{Ray{types.XYZ(0, 2, -3), types.XYZ(0, 0, 1)}, false, 0, 0},
		{Ray{types.XYZ(0, 0, 3), types.XYZ(0, 0, 1)}, false, 0, 0},
	}

	for specIndex, s := range specs {
		tn, tf, hit := box.Intersect(s.ray)
		if hit != s.expHit {
			t.Fatalf("[spec %d] expected hit %t; got %t", specIndex, s.expHit, hit)
		}
		if hit && (tn != s.expNear || tf != s.expFar) {
			t.Fatalf("[spec %d] expected [%f, %f]; got [%f, %f]", specIndex, s.expNear, s.expFar, tn, tf)
		}
	}
}

func TestBoxIntersection(t *testing.T) {
	clip := Box{Min: types.XYZ(-0.5, -1, 0), Max: types.XYZ(1, 1, 1)}
	got := UnitCube().Scale(types.XYZ(1, 0.5, 1)).Intersection(clip.Scale(types.XYZ(1, 0.5, 1)))
	exp := Box{Min: types.XYZ(-0.5, -0.5, 0), Max: types.XYZ(1, 0.5, 1)}
	if got != exp {
		t.Fatalf("expected %v; got %v", exp, got)
	}
	if !(Box{Min: types.XYZ(0, 0, 0), Max: types.XYZ(0, 1, 1)}).Empty() {
		t.Fatal("expected flat box to be empty")
	}
}

func TestPrimaryRays(t *testing.T) {
	cam := &Camera{
		Position:    types.XYZ(0, 0, -3),
		LookAt:      types.XYZ(0, 0, 0),
		Up:          types.XYZ(0, 1, 0),
		FOV:         90,
		OrthoExtent: 1,
	}
	cam.Update()
	c2w := cam.CamToWorld()

	ortho := PrimaryRay(c2w, Orthographic, cam.FOV, cam.OrthoExtent, 1, 0.5, 0.5)
	if ortho.Dir.Sub(types.XYZ(0, 0, 1)).Len() > 1e-5 {
		t.Fatalf("expected ortho ray to look down +Z; got %v", ortho.Dir)
	}
	// Camera right points to -X when looking down +Z with +Y up.
	if ortho.Origin.Sub(types.XYZ(-0.5, 0.5, -3)).Len() > 1e-5 {
		t.Fatalf("expected ortho origin (-0.5, 0.5, -3); got %v", ortho.Origin)
	}

	persp := PrimaryRay(c2w, Perspective, cam.FOV, cam.OrthoExtent, 1, 1, 0)
	exp := types.XYZ(-1, 0, 1).Normalize()
	if persp.Dir.Sub(exp).Len() > 1e-5 {
		t.Fatalf("expected 45 degree ray %v; got %v", exp, persp.Dir)
	}
	if persp.Origin.Sub(cam.Position).Len() > 1e-5 {
		t.Fatalf("expected perspective rays to start at the eye; got %v", persp.Origin)
	}
}

func TestOrbitKeepsDistance(t *testing.T) {
	cam := NewCamera(45)
	before := cam.Position.Sub(cam.LookAt).Len()
	cam.Orbit(math32.Pi/3, 0.4)
	after := cam.Position.Sub(cam.LookAt).Len()
	if math32.Abs(before-after) > 1e-4 {
		t.Fatalf("expected orbit to preserve target distance %f; got %f", before, after)
	}
	if cam.Position == types.XYZ(0, 0, 3) {
		t.Fatal("expected orbit to move the camera")
	}
}
