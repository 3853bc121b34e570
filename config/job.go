package config

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/achilleasa/volren/asset"
	"github.com/achilleasa/volren/log"
	"github.com/achilleasa/volren/renderer"
	"github.com/achilleasa/volren/scene"
	"github.com/achilleasa/volren/tff"
	"github.com/achilleasa/volren/tracer/kernel"
	"github.com/achilleasa/volren/types"
	"github.com/achilleasa/volren/volume"
)

var ErrInvalidJob = errors.New("config: invalid job")

var logger = log.New("config")

// A Job describes everything needed to render a volume from the command line.
type Job struct {
	Volume           VolumeSettings   `json:"volume"`
	TransferFunction TransferSettings `json:"transferFunction"`
	Camera           CameraSettings   `json:"camera"`
	Render           RenderSettings   `json:"render"`
	Output           OutputSettings   `json:"output"`

	// The job file; volume and table paths are resolved relative to it.
	source *asset.Resource
}

type VolumeSettings struct {
	Path           string     `json:"path"`
	Resolution     [3]int     `json:"resolution"`
	Timesteps      int        `json:"timesteps"`
	Timestep       int        `json:"timestep"`
	Format         string     `json:"format"`
	Layout         string     `json:"layout"`
	SliceThickness [3]float32 `json:"sliceThickness"`
	BigEndian      bool       `json:"bigEndian"`
}

type TransferSettings struct {
	Stops         tff.Stops `json:"stops"`
	Interpolation string    `json:"interpolation"`

	// Optional raw RGBA table; overrides the stops.
	Raw string `json:"raw"`
}

type CameraSettings struct {
	Eye         [3]float32 `json:"eye"`
	Target      [3]float32 `json:"target"`
	Up          [3]float32 `json:"up"`
	Projection  string     `json:"projection"`
	FOV         float32    `json:"fov"`
	OrthoExtent float32    `json:"orthoExtent"`
}

type RenderSettings struct {
	Technique     string     `json:"technique"`
	Illumination  string     `json:"illumination"`
	SamplingRate  float32    `json:"samplingRate"`
	MaxExtinction float32    `json:"maxExtinction"`
	Background    [4]float32 `json:"background"`
	Seed          uint32     `json:"seed"`
	ClipMin       [3]float32 `json:"clipMin"`
	ClipMax       [3]float32 `json:"clipMax"`

	Linear    bool `json:"linear"`
	ImageESS  bool `json:"imageESS"`
	ShowESS   bool `json:"showESS"`
	AO        bool `json:"ao"`
	Contours  bool `json:"contours"`
	Aerial    bool `json:"aerial"`
	ObjectESS bool `json:"objectESS"`
}

type OutputSettings struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Iterations int    `json:"iterations"`
	Path       string `json:"path"`
}

// Default returns a job populated with the renderer defaults.
func Default() Job {
	def := kernel.DefaultFrameParams()
	return Job{
		Volume: VolumeSettings{
			Timesteps:      1,
			Format:         volume.Uint8.String(),
			Layout:         volume.Density.String(),
			SliceThickness: [3]float32{1, 1, 1},
		},
		TransferFunction: TransferSettings{
			Interpolation: tff.Linear.String(),
		},
		Camera: CameraSettings{
			Eye:         [3]float32{0, 0, 3},
			Up:          [3]float32{0, 1, 0},
			Projection:  def.Camera.Projection.String(),
			FOV:         def.Camera.FOV,
			OrthoExtent: def.Camera.OrthoExtent,
		},
		Render: RenderSettings{
			Technique:     def.Render.Technique.String(),
			Illumination:  def.Render.Illumination.String(),
			SamplingRate:  def.Raycast.SamplingRate,
			MaxExtinction: def.Pathtrace.MaxExtinction,
			Background:    def.Render.Background,
			Seed:          def.Render.Seed,
			ClipMin:       def.Camera.ClipMin,
			ClipMax:       def.Camera.ClipMax,
			Linear:        def.Render.Linear,
			ObjectESS:     true,
		},
		Output: OutputSettings{
			Width:      512,
			Height:     512,
			Iterations: 1,
			Path:       "frame.png",
		},
	}
}

// Load a job from a local path or URL. Fields missing from the file keep
// their defaults.
func Load(ctx context.Context, location string) (*Job, error) {
	res, err := asset.Open(ctx, location, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	job := Default()
	if err = json.NewDecoder(res).Decode(&job); err != nil {
		return nil, fmt.Errorf("%w: could not parse %s: %v", ErrInvalidJob, res.Path(), err)
	}
	job.source = res

	if err = job.Validate(); err != nil {
		return nil, err
	}
	logger.Debugf("loaded job %s", res.Path())
	return &job, nil
}

// Validate checks the fields that can be checked without loading the volume.
func (j *Job) Validate() error {
	if j.Volume.Path == "" {
		return fmt.Errorf("%w: missing volume path", ErrInvalidJob)
	}
	if len(j.TransferFunction.Stops) == 0 && j.TransferFunction.Raw == "" {
		return fmt.Errorf("%w: no transfer function stops or raw table", ErrInvalidJob)
	}
	if j.Output.Width < 1 || j.Output.Height < 1 {
		return fmt.Errorf("%w: output size %dx%d", ErrInvalidJob, j.Output.Width, j.Output.Height)
	}
	if j.Output.Iterations < 1 {
		return fmt.Errorf("%w: %d iterations", ErrInvalidJob, j.Output.Iterations)
	}
	if _, err := j.Metadata(); err != nil {
		return err
	}
	if _, err := j.FrameParams(); err != nil {
		return err
	}
	return nil
}

// Metadata of the raw volume.
func (j *Job) Metadata() (volume.Metadata, error) {
	format, err := volume.ParseFormat(j.Volume.Format)
	if err != nil {
		return volume.Metadata{}, err
	}
	layout, err := volume.ParseLayout(j.Volume.Layout)
	if err != nil {
		return volume.Metadata{}, err
	}

	meta := volume.Metadata{
		Resolution:     j.Volume.Resolution,
		Timesteps:      j.Volume.Timesteps,
		Format:         format,
		Layout:         layout,
		SliceThickness: j.Volume.SliceThickness,
		ByteOrder:      binary.LittleEndian,
	}
	if j.Volume.BigEndian {
		meta.ByteOrder = binary.BigEndian
	}
	if err = meta.Validate(); err != nil {
		return volume.Metadata{}, err
	}
	return meta, nil
}

// Camera described by the job.
func (j *Job) SceneCamera() (*scene.Camera, error) {
	proj, err := scene.ParseProjection(j.Camera.Projection)
	if err != nil {
		return nil, err
	}
	cam := &scene.Camera{
		Position:    types.Vec3(j.Camera.Eye),
		LookAt:      types.Vec3(j.Camera.Target),
		Up:          types.Vec3(j.Camera.Up),
		Projection:  proj,
		FOV:         j.Camera.FOV,
		OrthoExtent: j.Camera.OrthoExtent,
	}
	if cam.Position == cam.LookAt {
		return nil, fmt.Errorf("%w: camera eye and target coincide", ErrInvalidJob)
	}
	cam.Update()
	return cam, nil
}

// Frame parameters described by the job. Width, height and iteration are
// left for the renderer to fill in.
func (j *Job) FrameParams() (kernel.FrameParams, error) {
	p := kernel.DefaultFrameParams()

	cam, err := j.SceneCamera()
	if err != nil {
		return p, err
	}
	if p.Render.Technique, err = kernel.ParseTechnique(j.Render.Technique); err != nil {
		return p, err
	}
	if p.Render.Illumination, err = kernel.ParseIllumination(j.Render.Illumination); err != nil {
		return p, err
	}

	p.Camera = kernel.CameraParams{
		CamToWorld:  cam.CamToWorld(),
		Projection:  cam.Projection,
		FOV:         cam.FOV,
		OrthoExtent: cam.OrthoExtent,
		ClipMin:     types.Vec3(j.Render.ClipMin),
		ClipMax:     types.Vec3(j.Render.ClipMax),
	}
	p.Render.Background = types.Vec4(j.Render.Background)
	p.Render.Seed = j.Render.Seed
	p.Render.Linear = j.Render.Linear
	p.Render.ImageESS = j.Render.ImageESS
	p.Render.ShowESS = j.Render.ShowESS
	p.Raycast = kernel.RaycastParams{
		SamplingRate: j.Render.SamplingRate,
		AO:           j.Render.AO,
		Contours:     j.Render.Contours,
		Aerial:       j.Render.Aerial,
		ObjectESS:    j.Render.ObjectESS,
	}
	p.Pathtrace.MaxExtinction = j.Render.MaxExtinction

	// Validation needs a frame size.
	check := p
	check.Width, check.Height = 1, 1
	if err = check.Validate(); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	return p, nil
}

// Open a resource referenced by the job.
func (j *Job) open(ctx context.Context, location string) ([]byte, error) {
	return asset.ReadAll(ctx, location, j.source)
}

// Apply loads the volume and transfer function into r and configures the
// camera and render settings.
func (j *Job) Apply(ctx context.Context, r *renderer.Renderer) error {
	meta, err := j.Metadata()
	if err != nil {
		return err
	}
	buf, err := j.open(ctx, j.Volume.Path)
	if err != nil {
		return err
	}
	if _, err = r.LoadVolume(buf, meta); err != nil {
		return err
	}
	if j.Volume.Timestep != 0 {
		if err = r.SetTimestep(j.Volume.Timestep); err != nil {
			return err
		}
	}

	if err = j.applyTransferFunction(ctx, r); err != nil {
		return err
	}
	return j.ApplySettings(r)
}

func (j *Job) applyTransferFunction(ctx context.Context, r *renderer.Renderer) error {
	if j.TransferFunction.Raw != "" {
		raw, err := j.open(ctx, j.TransferFunction.Raw)
		if err != nil {
			return err
		}
		return r.SetRawTransferFunction(raw)
	}

	kind, err := tff.ParseInterpolation(j.TransferFunction.Interpolation)
	if err != nil {
		return err
	}
	return r.SetTransferFunctionStops(j.TransferFunction.Stops, kind)
}

// ApplySettings pushes the camera and render settings of the job to r.
func (j *Job) ApplySettings(r *renderer.Renderer) error {
	p, err := j.FrameParams()
	if err != nil {
		return err
	}
	cam, err := j.SceneCamera()
	if err != nil {
		return err
	}

	r.SetBackground(p.Render.Background)
	r.SetSeed(p.Render.Seed)
	for _, set := range []func() error{
		func() error { return r.SetCamera(cam) },
		func() error { return r.SetSamplingRate(p.Raycast.SamplingRate) },
		func() error { return r.SetIllumination(p.Render.Illumination) },
		func() error { return r.SetMaxExtinction(p.Pathtrace.MaxExtinction) },
		func() error { return r.SetTechnique(p.Render.Technique) },
		func() error { return r.SetClipBox(p.Camera.ClipMin, p.Camera.ClipMax) },
	} {
		if err = set(); err != nil {
			return err
		}
	}

	toggles := []struct {
		toggle renderer.Toggle
		on     bool
	}{
		{renderer.LinearFiltering, p.Render.Linear},
		{renderer.ImageESS, p.Render.ImageESS},
		{renderer.ShowESS, p.Render.ShowESS},
		{renderer.AmbientOcclusion, p.Raycast.AO},
		{renderer.Contours, p.Raycast.Contours},
		{renderer.AerialPerspective, p.Raycast.Aerial},
		{renderer.ObjectESS, p.Raycast.ObjectESS},
	}
	for _, t := range toggles {
		if err = r.SetToggle(t.toggle, t.on); err != nil {
			return err
		}
	}
	return nil
}
