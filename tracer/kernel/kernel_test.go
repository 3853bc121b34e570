package kernel

import (
	"errors"
	"testing"

	"github.com/chewxy/math32"

	"github.com/achilleasa/volren/bricks"
	"github.com/achilleasa/volren/compute"
	"github.com/achilleasa/volren/scene"
	"github.com/achilleasa/volren/tff"
	"github.com/achilleasa/volren/types"
	"github.com/achilleasa/volren/volume"
)

var testExec = compute.NewExecutor(4)

func binaryStops() tff.Stops {
	return tff.Stops{
		{Position: 0, Color: tff.Color{0, 0, 0, 0}},
		{Position: 0.4999, Color: tff.Color{0, 0, 0, 0}},
		{Position: 0.5, Color: tff.Color{255, 255, 255, 255}},
		{Position: 1, Color: tff.Color{255, 255, 255, 255}},
	}
}

func rampStops() tff.Stops {
	return tff.Stops{
		{Position: 0, Color: tff.Color{0, 0, 0, 0}},
		{Position: 0.6, Color: tff.Color{255, 128, 0, 0}},
		{Position: 1, Color: tff.Color{255, 255, 255, 96}},
	}
}

func newTestScene(t *testing.T, res [3]int, data []float32, tf *tff.Table, divisor int) *Scene {
	t.Helper()
	v, err := volume.FromFloats(data, volume.Metadata{Resolution: res}, 1)
	if err != nil {
		t.Fatal(err)
	}
	grid, err := bricks.Build(v, 0, bricks.Options{Divisor: divisor}, testExec)
	if err != nil {
		t.Fatal(err)
	}
	return NewScene(v, 0, grid, tf)
}

func buildTable(t *testing.T, stops tff.Stops) *tff.Table {
	t.Helper()
	tbl, err := tff.Build(stops, tff.Linear)
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

// A 16³ volume with a soft ball in its center.
func ballVolume() ([3]int, []float32) {
	res := [3]int{16, 16, 16}
	data := make([]float32, 16*16*16)
	for z := 0; z < 16; z++ {
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				d := types.XYZ(float32(x)-7.5, float32(y)-7.5, float32(z)-7.5).Len()
				data[(z*16+y)*16+x] = math32.Max(0, 1-2*d/16)
			}
		}
	}
	return res, data
}

func newTargets(w, h int) *Targets {
	hw, hh := HitDims(w, h)
	return &Targets{
		AccumPrev: make([]float32, w*h*4),
		AccumCurr: make([]float32, w*h*4),
		HitPrev:   make([]uint8, hw*hh),
		HitCurr:   make([]uint8, hw*hh),
	}
}

func cameraParams(p *FrameParams, proj scene.Projection, eye types.Vec3) {
	cam := &scene.Camera{Position: eye, LookAt: types.XYZ(0, 0, 0), Up: types.XYZ(0, 1, 0)}
	cam.Update()
	p.Camera.CamToWorld = cam.CamToWorld()
	p.Camera.Projection = proj
}

func render(t *testing.T, sc *Scene, p FrameParams, tg *Targets) {
	t.Helper()
	if err := Render(testExec, sc, p, tg); err != nil {
		t.Fatal(err)
	}
}

func TestBinaryVolumeOrthographic(t *testing.T) {
	res := [3]int{2, 2, 2}
	data := []float32{0, 0, 1, 1, 0, 0, 1, 1}
	sc := newTestScene(t, res, data, buildTable(t, binaryStops()), 0)

	type spec struct {
		linear    bool
		objectESS bool
	}
	specs := []spec{{false, false}, {false, true}, {true, false}, {true, true}}

	for specIndex, s := range specs {
		p := DefaultFrameParams()
		p.Width, p.Height = 2, 2
		p.Render.Illumination = IllumOff
		p.Render.Background = types.XYZW(0, 0, 0, 0)
		p.Render.Linear = s.linear
		p.Raycast.ObjectESS = s.objectESS
		cameraParams(&p, scene.Orthographic, types.XYZ(0, 0, -3))

		tg := newTargets(2, 2)
		render(t, sc, p, tg)

		for y := 0; y < 2; y++ {
			exp := p.Render.Background
			if y == 0 {
				exp = types.XYZW(1, 1, 1, 1)
			}
			for x := 0; x < 2; x++ {
				idx := (y*2 + x) * 4
				var got types.Vec4
				copy(got[:], tg.AccumCurr[idx:idx+4])
				if !got.ApproxEqual(exp, 1e-4) {
					t.Fatalf("[spec %d] expected pixel (%d, %d) to be %v; got %v", specIndex, x, y, exp, got)
				}
			}
		}
	}
}

func TestTransparentTransferFunctionYieldsBackground(t *testing.T) {
	res, data := ballVolume()
	transparent := tff.Stops{{Position: 0, Color: tff.Color{255, 0, 0, 0}}, {Position: 1, Color: tff.Color{0, 255, 0, 0}}}
	sc := newTestScene(t, res, data, buildTable(t, transparent), 4)

	for _, tech := range []Technique{Raycast, Pathtrace} {
		p := DefaultFrameParams()
		p.Width, p.Height = 16, 12
		p.Render.Technique = tech
		p.Render.Background = types.XYZW(0.2, 0.3, 0.4, 1)
		p.Raycast.AO = true
		cameraParams(&p, scene.Perspective, types.XYZ(0.5, 0.5, 3))

		tg := newTargets(p.Width, p.Height)
		render(t, sc, p, tg)
		for i := 0; i < len(tg.AccumCurr); i += 4 {
			var got types.Vec4
			copy(got[:], tg.AccumCurr[i:i+4])
			if got != p.Render.Background {
				t.Fatalf("[%s] expected pixel %d to be the background; got %v", tech, i/4, got)
			}
		}
	}
}

func TestObjectESSMatchesPlainMarch(t *testing.T) {
	res, data := ballVolume()
	tbl := buildTable(t, rampStops())
	sc := newTestScene(t, res, data, tbl, 4)

	v, _ := volume.FromFloats(data, volume.Metadata{Resolution: res}, 1)
	grid, _ := bricks.Build(v, 0, bricks.Options{Divisor: 4}, testExec)
	if grid.CountEmpty(tbl) == 0 {
		t.Fatal("expected some bricks to be skippable")
	}

	for _, illum := range []Illumination{IllumOff, IllumCentralDiff, IllumSobel, IllumGradientMagnitude} {
		p := DefaultFrameParams()
		p.Width, p.Height = 32, 24
		p.Render.Illumination = illum
		p.Raycast.Contours = true
		cameraParams(&p, scene.Perspective, types.XYZ(0.4, 0.7, 2.5))

		plain := newTargets(p.Width, p.Height)
		render(t, sc, p, plain)

		p.Raycast.ObjectESS = true
		skipped := newTargets(p.Width, p.Height)
		render(t, sc, p, skipped)

		for i := range plain.AccumCurr {
			if plain.AccumCurr[i] != skipped.AccumCurr[i] {
				t.Fatalf("[%s] expected identical output at component %d; got %f and %f", illum, i, plain.AccumCurr[i], skipped.AccumCurr[i])
			}
		}
	}
}

func TestOpaqueVolumeSaturates(t *testing.T) {
	res := [3]int{4, 4, 4}
	data := make([]float32, 64)
	for i := range data {
		data[i] = 1
	}
	sc := newTestScene(t, res, data, buildTable(t, binaryStops()), 0)

	p := DefaultFrameParams()
	p.Width, p.Height = 8, 8
	p.Render.Background = types.XYZW(0, 0, 0, 0)
	p.Camera.OrthoExtent = 0.5
	cameraParams(&p, scene.Orthographic, types.XYZ(0, 0, 3))

	tg := newTargets(8, 8)
	render(t, sc, p, tg)
	for i := 3; i < len(tg.AccumCurr); i += 4 {
		if tg.AccumCurr[i] < 0.98 {
			t.Fatalf("expected pixel %d to be opaque; got alpha %f", i/4, tg.AccumCurr[i])
		}
	}
}

func TestImageOrderESS(t *testing.T) {
	res := [3]int{2, 2, 2}
	data := []float32{0, 0, 1, 1, 0, 0, 1, 1}
	sc := newTestScene(t, res, data, buildTable(t, binaryStops()), 0)

	p := DefaultFrameParams()
	p.Width, p.Height = 16, 16
	p.Render.Illumination = IllumOff
	p.Render.Background = types.XYZW(0, 0, 0, 1)
	p.Render.ImageESS = true
	cameraParams(&p, scene.Orthographic, types.XYZ(0, 0, -3))

	// Nothing was hit in the previous frame: every tile is skipped.
	tg := newTargets(16, 16)
	render(t, sc, p, tg)
	for i := 0; i < len(tg.AccumCurr); i += 4 {
		var got types.Vec4
		copy(got[:], tg.AccumCurr[i:i+4])
		if got != p.Render.Background {
			t.Fatalf("expected skipped pixel %d to hold the background; got %v", i/4, got)
		}
	}

	p.Render.ShowESS = true
	render(t, sc, p, tg)
	if tg.AccumCurr[0] != 1 || tg.AccumCurr[1] != 0 || tg.AccumCurr[2] != 1 {
		t.Fatalf("expected skipped tiles to be highlighted; got %v", tg.AccumCurr[:4])
	}

	// Every tile was hit in the previous frame.
	p.Render.ShowESS = false
	for i := range tg.HitPrev {
		tg.HitPrev[i] = 1
	}
	render(t, sc, p, tg)

	hitW, _ := HitDims(16, 16)
	expHits := [][]uint8{{1, 1}, {0, 0}}
	for gy, row := range expHits {
		for gx, exp := range row {
			if got := tg.HitCurr[gy*hitW+gx]; got != exp {
				t.Fatalf("expected tile (%d, %d) hit flag %d; got %d", gx, gy, exp, got)
			}
		}
	}
}

func TestProgressiveAccumulationConverges(t *testing.T) {
	res, data := ballVolume()
	sc := newTestScene(t, res, data, buildTable(t, rampStops()), 4)

	p := DefaultFrameParams()
	p.Width, p.Height = 24, 24
	p.Render.Technique = Pathtrace
	p.Pathtrace.MaxExtinction = 20
	cameraParams(&p, scene.Perspective, types.XYZ(0, 0, 2.2))

	tg := newTargets(p.Width, p.Height)
	var deltas []float64
	for iter := uint32(0); iter < 16; iter++ {
		p.Render.Iteration = iter
		render(t, sc, p, tg)

		var delta float64
		for i := range tg.AccumCurr {
			delta += float64(math32.Abs(tg.AccumCurr[i] - tg.AccumPrev[i]))
		}
		deltas = append(deltas, delta)
		tg.AccumPrev, tg.AccumCurr = tg.AccumCurr, tg.AccumPrev
	}

	if !(deltas[2] > 0) {
		t.Fatal("expected path traced iterations to differ")
	}
	if deltas[15] >= deltas[2] {
		t.Fatalf("expected accumulated image to settle; delta at iteration 2 was %f and at iteration 15 was %f", deltas[2], deltas[15])
	}
}

func TestIterationsAreDeterministic(t *testing.T) {
	res, data := ballVolume()
	sc := newTestScene(t, res, data, buildTable(t, rampStops()), 4)

	for _, tech := range []Technique{Raycast, Pathtrace} {
		p := DefaultFrameParams()
		p.Width, p.Height = 16, 16
		p.Render.Technique = tech
		p.Render.Iteration = 0
		p.Raycast.AO = true
		cameraParams(&p, scene.Perspective, types.XYZ(0, 0.3, 2.5))

		a, b := newTargets(16, 16), newTargets(16, 16)
		render(t, sc, p, a)
		render(t, sc, p, b)
		for i := range a.AccumCurr {
			if a.AccumCurr[i] != b.AccumCurr[i] {
				t.Fatalf("[%s] expected identical renders at component %d", tech, i)
			}
		}
	}
}

func TestRawTransferFunctionRoundTrip(t *testing.T) {
	res, data := ballVolume()
	tbl := buildTable(t, rampStops())
	raw, err := tff.FromRaw(tbl.Raw())
	if err != nil {
		t.Fatal(err)
	}

	p := DefaultFrameParams()
	p.Width, p.Height = 16, 16
	p.Raycast.ObjectESS = true
	cameraParams(&p, scene.Perspective, types.XYZ(0, 0, 2.5))

	a, b := newTargets(16, 16), newTargets(16, 16)
	render(t, newTestScene(t, res, data, tbl, 4), p, a)
	render(t, newTestScene(t, res, data, raw, 4), p, b)
	for i := range a.AccumCurr {
		if a.AccumCurr[i] != b.AccumCurr[i] {
			t.Fatalf("expected identical renders at component %d; got %f and %f", i, a.AccumCurr[i], b.AccumCurr[i])
		}
	}
}

func TestClipBoxRemovesVolume(t *testing.T) {
	res := [3]int{2, 2, 2}
	data := []float32{1, 1, 1, 1, 1, 1, 1, 1}
	sc := newTestScene(t, res, data, buildTable(t, binaryStops()), 0)

	p := DefaultFrameParams()
	p.Width, p.Height = 2, 2
	p.Render.Illumination = IllumOff
	p.Render.Background = types.XYZW(0, 0, 0, 0)
	p.Camera.ClipMin = types.XYZ(-1, 0, -1)
	cameraParams(&p, scene.Orthographic, types.XYZ(0, 0, -3))

	tg := newTargets(2, 2)
	render(t, sc, p, tg)
	// Only the top half survives the clip box.
	if tg.AccumCurr[3] < 0.99 || tg.AccumCurr[2*4+3] != 0 {
		t.Fatalf("expected top row opaque and bottom row clipped; got alphas %f and %f", tg.AccumCurr[3], tg.AccumCurr[2*4+3])
	}
}

func TestRejectsInvalidInputs(t *testing.T) {
	res, data := ballVolume()
	sc := newTestScene(t, res, data, buildTable(t, rampStops()), 4)

	p := DefaultFrameParams()
	p.Width, p.Height = 8, 8
	if _, _, err := NewFrameKernel(sc, p, newTargets(4, 4)); !errors.Is(err, ErrTargetSize) {
		t.Fatalf("expected ErrTargetSize; got %v", err)
	}

	p.Raycast.SamplingRate = 0
	if _, _, err := NewFrameKernel(sc, p, newTargets(8, 8)); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams; got %v", err)
	}
}
