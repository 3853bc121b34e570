package native

import (
	"errors"
	"testing"

	"github.com/achilleasa/volren/bricks"
	"github.com/achilleasa/volren/compute"
	"github.com/achilleasa/volren/scene"
	"github.com/achilleasa/volren/tff"
	"github.com/achilleasa/volren/tracer"
	"github.com/achilleasa/volren/tracer/kernel"
	"github.com/achilleasa/volren/types"
	"github.com/achilleasa/volren/volume"
)

func setupTracer(t testing.TB, w, h int) *Tracer {
	t.Helper()
	vol, err := volume.FromFloats([]float32{0, 0, 1, 1, 0, 0, 1, 1}, volume.Metadata{Resolution: [3]int{2, 2, 2}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	grid, err := bricks.Build(vol, 0, bricks.Options{}, compute.NewExecutor(2))
	if err != nil {
		t.Fatal(err)
	}
	tbl, err := tff.Build(tff.Stops{
		{Position: 0, Color: tff.Color{0, 0, 0, 0}},
		{Position: 0.4999, Color: tff.Color{0, 0, 0, 0}},
		{Position: 0.5, Color: tff.Color{255, 0, 0, 255}},
	}, tff.Linear)
	if err != nil {
		t.Fatal(err)
	}

	tr := NewTracer("test", 2)
	if err = tr.UploadVolume(vol, 0); err != nil {
		t.Fatal(err)
	}
	if err = tr.UploadBricks(grid); err != nil {
		t.Fatal(err)
	}
	if err = tr.UploadTransferFunction(tbl); err != nil {
		t.Fatal(err)
	}
	if err = tr.Resize(w, h); err != nil {
		t.Fatal(err)
	}
	return tr
}

func frameParams(w, h int) kernel.FrameParams {
	p := kernel.DefaultFrameParams()
	p.Width, p.Height = w, h
	p.Render.Illumination = kernel.IllumOff
	p.Render.Background = types.XYZW(0, 0, 0, 1)
	p.Raycast.ObjectESS = true

	cam := &scene.Camera{Position: types.XYZ(0, 0, -3), Up: types.XYZ(0, 1, 0)}
	cam.Update()
	p.Camera.CamToWorld = cam.CamToWorld()
	p.Camera.Projection = scene.Orthographic
	return p
}

func TestRenderRequiresUploads(t *testing.T) {
	tr := NewTracer("test", 1)
	defer tr.Close()
	if err := tr.Resize(4, 4); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Render(frameParams(4, 4), tracer.Ring{}, tracer.Ring{}); !errors.Is(err, tracer.ErrNotReady) {
		t.Fatalf("expected ErrNotReady; got %v", err)
	}
}

func TestRenderWritesCurrentSlot(t *testing.T) {
	tr := setupTracer(t, 2, 2)
	defer tr.Close()

	var accum, hits tracer.Ring
	accum.Flip()
	if _, err := tr.Render(frameParams(2, 2), accum, hits); err != nil {
		t.Fatal(err)
	}

	cur := make([]float32, 16)
	prev := make([]float32, 16)
	if err := tr.ReadFrame(accum.Current(), cur); err != nil {
		t.Fatal(err)
	}
	if err := tr.ReadFrame(accum.Previous(), prev); err != nil {
		t.Fatal(err)
	}

	if cur[0] != 1 || cur[1] != 0 || cur[3] != 1 {
		t.Fatalf("expected top-left pixel to be opaque red; got %v", cur[:4])
	}
	if cur[8] != 0 || cur[11] != 1 {
		t.Fatalf("expected bottom-left pixel to be background; got %v", cur[8:12])
	}
	for i, v := range prev {
		if v != 0 {
			t.Fatalf("expected previous slot to be untouched; got %f at %d", v, i)
		}
	}
}

func TestFrameSizeMismatch(t *testing.T) {
	tr := setupTracer(t, 4, 4)
	defer tr.Close()

	if _, err := tr.Render(frameParams(8, 8), tracer.Ring{}, tracer.Ring{}); !errors.Is(err, kernel.ErrTargetSize) {
		t.Fatalf("expected ErrTargetSize; got %v", err)
	}
	if err := tr.ReadFrame(2, make([]float32, 64)); !errors.Is(err, tracer.ErrInvalidSlot) {
		t.Fatalf("expected ErrInvalidSlot; got %v", err)
	}
	if err := tr.ReadFrame(0, make([]float32, 3)); !errors.Is(err, kernel.ErrTargetSize) {
		t.Fatalf("expected ErrTargetSize for a short destination; got %v", err)
	}
}

func TestStrategyHonorsFilters(t *testing.T) {
	type spec struct {
		opts   tracer.InitOptions
		expErr bool
	}
	specs := []spec{
		{tracer.InitOptions{}, false},
		{tracer.InitOptions{Blacklist: []string{"Go"}}, true},
		{tracer.InitOptions{ForceDevice: "GeForce"}, true},
		{tracer.InitOptions{ForceDevice: "executor", Workers: 3}, false},
	}

	st := Strategy()
	for specIndex, s := range specs {
		tr, err := st.Init(s.opts)
		if s.expErr {
			if !errors.Is(err, tracer.ErrNoDevices) {
				t.Fatalf("[spec %d] expected ErrNoDevices; got %v", specIndex, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("[spec %d] unexpected error: %v", specIndex, err)
		}
		if tr.Flags()&tracer.Native == 0 {
			t.Fatalf("[spec %d] expected native flag; got %s", specIndex, tr.Flags())
		}
		tr.Close()
	}
}

func benchmarkRender(b *testing.B, technique kernel.Technique) {
	const w, h = 128, 128
	tr := setupTracer(b, w, h)
	defer tr.Close()

	p := frameParams(w, h)
	p.Render.Technique = technique
	p.Render.Illumination = kernel.IllumCentralDiff

	var accum, hits tracer.Ring
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		accum.Flip()
		hits.Flip()
		p.Render.Iteration = uint32(i)
		if _, err := tr.Render(p, accum, hits); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRaycast(b *testing.B) {
	benchmarkRender(b, kernel.Raycast)
}

func BenchmarkPathtrace(b *testing.B) {
	benchmarkRender(b, kernel.Pathtrace)
}
