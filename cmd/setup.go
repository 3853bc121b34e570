package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/urfave/cli"

	"github.com/achilleasa/volren/config"
	"github.com/achilleasa/volren/renderer"
	"github.com/achilleasa/volren/tracer/backend"
)

// Flags shared by every command that creates a renderer.
var DeviceFlags = []cli.Flag{
	cli.StringSliceFlag{
		Name:  "blacklist, b",
		Value: &cli.StringSlice{},
		Usage: "blacklist devices whose names contain this value",
	},
	cli.StringFlag{
		Name:  "force-device",
		Usage: "only use devices whose names contain this value",
	},
	cli.BoolFlag{
		Name:  "cpu",
		Usage: "skip GPU strategies",
	},
	cli.IntFlag{
		Name:  "workers",
		Usage: "native executor worker count (0 = one per CPU)",
	},
	cli.IntFlag{
		Name:  "brick-divisor",
		Usage: "brick edge length is res/divisor rounded to a power of two (0 = default)",
	},
}

// Flags that override the job file.
var JobFlags = []cli.Flag{
	cli.IntFlag{
		Name:  "width",
		Usage: "frame width",
	},
	cli.IntFlag{
		Name:  "height",
		Usage: "frame height",
	},
	cli.IntFlag{
		Name:  "iterations, n",
		Usage: "progressive iterations to accumulate",
	},
	cli.StringFlag{
		Name:  "technique, t",
		Usage: "raycast or pathtrace",
	},
}

// Create a renderer using the device flags of ctx.
func newRenderer(ctx *cli.Context) (*renderer.Renderer, error) {
	opts := renderer.Options{
		BlackListedDevices: ctx.StringSlice("blacklist"),
		ForcePrimaryDevice: ctx.String("force-device"),
		Workers:            ctx.Int("workers"),
		BrickDivisor:       ctx.Int("brick-divisor"),
		Strategies:         backend.DefaultStrategies(false),
	}
	if ctx.Bool("cpu") {
		opts.Strategies = backend.CPUStrategies()
	}

	start := time.Now()
	r, err := renderer.New(opts)
	if err != nil {
		return nil, err
	}
	for _, fb := range r.Fallbacks() {
		logger.Infof("strategy %q unavailable: %v", fb.Strategy, fb.Err)
	}
	logger.Noticef("initialized %s on %q in %d ms", r.Strategy(), r.Device().Name, time.Since(start).Nanoseconds()/1e6)
	return r, nil
}

// Load the job named by the first argument and apply flag overrides.
func loadJob(ctx *cli.Context) (*config.Job, error) {
	if ctx.NArg() != 1 {
		return nil, errors.New("missing job file argument")
	}

	job, err := config.Load(context.Background(), ctx.Args().First())
	if err != nil {
		return nil, err
	}
	if ctx.IsSet("width") {
		job.Output.Width = ctx.Int("width")
	}
	if ctx.IsSet("height") {
		job.Output.Height = ctx.Int("height")
	}
	if ctx.IsSet("iterations") {
		job.Output.Iterations = ctx.Int("iterations")
	}
	if ctx.IsSet("technique") {
		job.Render.Technique = ctx.String("technique")
	}
	if ctx.IsSet("out") {
		job.Output.Path = ctx.String("out")
	}
	return job, job.Validate()
}

// Create a renderer and load the job into it.
func setupRenderer(ctx *cli.Context) (*renderer.Renderer, *config.Job, error) {
	job, err := loadJob(ctx)
	if err != nil {
		return nil, nil, err
	}
	r, err := newRenderer(ctx)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	if err = job.Apply(context.Background(), r); err != nil {
		r.Close()
		return nil, nil, err
	}
	logger.Noticef("loaded volume %s in %d ms", job.Volume.Path, time.Since(start).Nanoseconds()/1e6)
	return r, job, nil
}
