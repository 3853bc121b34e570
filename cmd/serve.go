package cmd

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli"

	"github.com/achilleasa/volren/preview"
)

// Serve a progressive websocket preview of the job.
func Serve(ctx *cli.Context) error {
	setupLogging(ctx)

	r, job, err := setupRenderer(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	cam, err := job.SceneCamera()
	if err != nil {
		return err
	}
	srv, err := preview.New(r, cam, preview.Options{
		Width:         job.Output.Width,
		Height:        job.Output.Height,
		MaxIterations: uint32(job.Output.Iterations),
		Interval:      time.Duration(ctx.Int("interval")) * time.Millisecond,
	})
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return srv.ListenAndServe(runCtx, ctx.String("addr"))
}
