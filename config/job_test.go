package config

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/achilleasa/volren/renderer"
	"github.com/achilleasa/volren/scene"
	"github.com/achilleasa/volren/tff"
	"github.com/achilleasa/volren/tracer/kernel"
	"github.com/achilleasa/volren/types"
	"github.com/achilleasa/volren/volume"
)

const testJob = `{
	"volume": {
		"path": "volumes/cube.raw",
		"resolution": [4, 4, 4],
		"format": "USHORT",
		"bigEndian": true
	},
	"transferFunction": {
		"interpolation": "quad",
		"stops": [
			{"pos": 0, "rgba": [0, 0, 0, 0]},
			{"pos": 1, "rgba": [255, 255, 255, 255]}
		]
	},
	"camera": {
		"eye": [0, 0, -4],
		"projection": "ortho"
	},
	"render": {
		"technique": "pathtrace",
		"ao": true,
		"clipMin": [-0.5, -1, -1]
	},
	"output": {
		"width": 64,
		"height": 32
	}
}`

func writeJob(t *testing.T, payload string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "volumes"), 0o755); err != nil {
		t.Fatal(err)
	}
	vol := make([]byte, 4*4*4*2)
	for i := 0; i < len(vol); i += 2 {
		binary.BigEndian.PutUint16(vol[i:], uint16(i*100))
	}
	if err := os.WriteFile(filepath.Join(dir, "volumes", "cube.raw"), vol, 0o644); err != nil {
		t.Fatal(err)
	}
	jobPath := filepath.Join(dir, "job.json")
	if err := os.WriteFile(jobPath, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}
	return jobPath
}

func TestLoadAppliesDefaults(t *testing.T) {
	job, err := Load(context.Background(), writeJob(t, testJob))
	if err != nil {
		t.Fatal(err)
	}

	def := Default()
	if job.Output.Iterations != def.Output.Iterations || job.Output.Path != def.Output.Path {
		t.Fatalf("expected output defaults to be kept; got %+v", job.Output)
	}
	if job.Output.Width != 64 || job.Output.Height != 32 {
		t.Fatalf("expected output size 64x32; got %dx%d", job.Output.Width, job.Output.Height)
	}
	if job.Camera.Up != def.Camera.Up || job.Camera.FOV != def.Camera.FOV {
		t.Fatalf("expected camera defaults to be kept; got %+v", job.Camera)
	}

	meta, err := job.Metadata()
	if err != nil {
		t.Fatal(err)
	}
	if meta.Format != volume.Uint16 || meta.ByteOrder != binary.BigEndian || meta.Timesteps != 1 {
		t.Fatalf("unexpected metadata %+v", meta)
	}

	p, err := job.FrameParams()
	if err != nil {
		t.Fatal(err)
	}
	if p.Render.Technique != kernel.Pathtrace || !p.Raycast.AO || !p.Render.Linear {
		t.Fatalf("unexpected render params %+v", p.Render)
	}
	if p.Camera.Projection != scene.Orthographic || p.Camera.ClipMin != types.XYZ(-0.5, -1, -1) {
		t.Fatalf("unexpected camera params %+v", p.Camera)
	}
	if p.Raycast.SamplingRate != kernel.DefaultFrameParams().Raycast.SamplingRate {
		t.Fatalf("expected default sampling rate; got %f", p.Raycast.SamplingRate)
	}
}

func TestInvalidJobs(t *testing.T) {
	type spec struct {
		payload string
		expErr  error
	}
	specs := []spec{
		{`{"volume": {"path": "a.raw", "resolution": [1, 1, 1]}}`, ErrInvalidJob},
		{`{"volume": {"resolution": [1, 1, 1]}, "transferFunction": {"raw": "t.raw"}}`, ErrInvalidJob},
		{`{"volume": {"path": "a.raw", "resolution": [0, 1, 1]}, "transferFunction": {"raw": "t.raw"}}`, volume.ErrInvalidMetadata},
		{`{"volume": {"path": "a.raw", "resolution": [1, 1, 1]}, "transferFunction": {"raw": "t.raw"}, "output": {"iterations": 0}}`, ErrInvalidJob},
		{`{"volume": {"path": "a.raw", "resolution": [1, 1, 1]}, "transferFunction": {"raw": "t.raw"}, "camera": {"eye": [0, 0, 0]}}`, ErrInvalidJob},
		{`{"volume": {"path": "a.raw", "resolution": [1, 1, 1]}, "transferFunction": {"raw": "t.raw"}, "render": {"samplingRate": -1}}`, ErrInvalidJob},
		{`{"volume": `, ErrInvalidJob},
	}

	for specIndex, s := range specs {
		_, err := Load(context.Background(), writeJob(t, s.payload))
		if !errors.Is(err, s.expErr) {
			t.Fatalf("[spec %d] expected error %v; got %v", specIndex, s.expErr, err)
		}
	}
}

func TestApply(t *testing.T) {
	job, err := Load(context.Background(), writeJob(t, testJob))
	if err != nil {
		t.Fatal(err)
	}

	r, err := renderer.New(renderer.Options{Workers: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if err = job.Apply(context.Background(), r); err != nil {
		t.Fatal(err)
	}

	p := r.Params()
	if p.Render.Technique != kernel.Pathtrace || !p.Raycast.AO || p.Camera.Projection != scene.Orthographic {
		t.Fatalf("expected job settings to be applied; got %+v", p)
	}
	exp, err := tff.Build(job.TransferFunction.Stops, tff.InOutQuad)
	if err != nil {
		t.Fatal(err)
	}
	if string(r.RawTransferFunction()) != string(exp.Raw()) {
		t.Fatal("expected the eased transfer function to be uploaded")
	}
	if _, err = r.RenderFrame(job.Output.Width, job.Output.Height); err != nil {
		t.Fatal(err)
	}
}

func TestApplyRawTable(t *testing.T) {
	jobPath := writeJob(t, `{
		"volume": {"path": "volumes/cube.raw", "resolution": [4, 4, 8]},
		"transferFunction": {"raw": "table.raw"}
	}`)
	raw := make([]byte, 16)
	for i := range raw {
		raw[i] = byte(i * 16)
	}
	if err := os.WriteFile(filepath.Join(filepath.Dir(jobPath), "table.raw"), raw, 0o644); err != nil {
		t.Fatal(err)
	}

	job, err := Load(context.Background(), jobPath)
	if err != nil {
		t.Fatal(err)
	}
	r, err := renderer.New(renderer.Options{Workers: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if err = job.Apply(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	got := r.RawTransferFunction()
	if len(got) != tff.TableSize*4 {
		t.Fatalf("expected a resampled %d entry table; got %d bytes", tff.TableSize, len(got))
	}
	if got[len(got)-1] != raw[len(raw)-1] {
		t.Fatalf("expected last entry to come from the last raw entry; got %d", got[len(got)-1])
	}
}
