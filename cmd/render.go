package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/achilleasa/volren/renderer"
	"github.com/achilleasa/volren/volume"
)

// Render a still frame accumulating the requested number of iterations.
func RenderFrame(ctx *cli.Context) error {
	setupLogging(ctx)

	r, job, err := setupRenderer(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	var (
		frame   *renderer.Frame
		elapsed time.Duration
	)
	start := time.Now()
	for i := 0; i < job.Output.Iterations; i++ {
		frame, err = r.RenderFrame(job.Output.Width, job.Output.Height)
		if errors.Is(err, renderer.ErrFrameSkipped) {
			logger.Warningf("iteration %d skipped: %v", i, err)
			continue
		} else if err != nil {
			return err
		}
		elapsed += r.LastExecutionTime()
	}
	if frame == nil {
		return errors.New("every iteration was skipped")
	}
	logger.Noticef("rendered %d iteration(s) in %d ms", r.Iteration(), time.Since(start).Nanoseconds()/1e6)

	f, err := os.Create(job.Output.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	start = time.Now()
	if err = png.Encode(f, frame.Image()); err != nil {
		return fmt.Errorf("error encoding png file: %w", err)
	}
	logger.Noticef("wrote frame to %s in %d ms", job.Output.Path, time.Since(start).Nanoseconds()/1e6)

	displayFrameStats(r.Stats(), elapsed)
	return nil
}

func displayFrameStats(stats renderer.FrameStats, total time.Duration) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Strategy", "Device", "Technique", "Size", "Iterations", "Empty bricks", "Last frame", "Readback"})

	emptyPercent := 0.0
	if stats.TotalBricks != 0 {
		emptyPercent = 100 * float64(stats.EmptyBricks) / float64(stats.TotalBricks)
	}
	table.Append([]string{
		stats.Strategy,
		stats.Device,
		stats.Technique.String(),
		fmt.Sprintf("%dx%d", stats.Width, stats.Height),
		fmt.Sprintf("%d", stats.Iteration+1),
		fmt.Sprintf("%d/%d (%02.1f %%)", stats.EmptyBricks, stats.TotalBricks, emptyPercent),
		stats.RenderTime.String(),
		stats.ReadbackTime.String(),
	})
	table.SetFooter([]string{"", "", "", "", "", "", "TOTAL", total.String()})

	table.Render()
	logger.Noticef("frame statistics\n%s", buf.String())
}

// Downsample a timestep of the job's volume and write it as .raw/.dat files.
func DownsampleVolume(ctx *cli.Context) error {
	setupLogging(ctx)

	metric, err := volume.ParseMetric(ctx.String("metric"))
	if err != nil {
		return err
	}

	r, job, err := setupRenderer(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	// Defaults to the volume name in the working directory.
	basePath := ctx.String("out")
	if basePath == "" {
		name := path.Base(job.Volume.Path)
		basePath = strings.TrimSuffix(name, path.Ext(name))
	}

	start := time.Now()
	rawPath, datPath, err := r.DownsampleVolume(ctx.Int("timestep"), ctx.Int("factor"), metric, basePath)
	if err != nil {
		return err
	}
	logger.Noticef("wrote %s and %s in %d ms", rawPath, datPath, time.Since(start).Nanoseconds()/1e6)
	return nil
}
