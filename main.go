package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/achilleasa/volren/cmd"
)

func withFlags(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "volren"
	app.Usage = "render volumes using raycasting and path tracing"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "list-devices",
			Usage:  "list the devices of every initialization strategy",
			Action: cmd.ListDevices,
		},
		{
			Name:  "render",
			Usage: "render a volume job",
			Subcommands: []cli.Command{
				{
					Name:  "frame",
					Usage: "render a progressive frame",
					Description: `
Load the volume and transfer function described by a JSON job file, accumulate
the requested number of progressive iterations and write the result as PNG.`,
					ArgsUsage: "job.json",
					Flags: withFlags(cmd.DeviceFlags, cmd.JobFlags, []cli.Flag{
						cli.StringFlag{
							Name:  "out, o",
							Usage: "image filename for the rendered frame",
						},
					}),
					Action: cmd.RenderFrame,
				},
				{
					Name:        "downsample",
					Usage:       "export a downsampled copy of the volume",
					Description: `Reduce a timestep of the job's volume and write it as .raw/.dat files.`,
					ArgsUsage:   "job.json",
					Flags: withFlags(cmd.DeviceFlags, []cli.Flag{
						cli.IntFlag{
							Name:  "factor, f",
							Value: 2,
							Usage: "reduction factor per axis",
						},
						cli.StringFlag{
							Name:  "metric, m",
							Value: "max",
							Usage: "block reduction: max, min or avg",
						},
						cli.IntFlag{
							Name:  "timestep",
							Usage: "timestep to downsample",
						},
						cli.StringFlag{
							Name:  "out, o",
							Usage: "base path of the output files; the x resolution is appended",
						},
					}),
					Action: cmd.DownsampleVolume,
				},
			},
		},
		{
			Name:  "tff",
			Usage: "transfer function tools",
			Subcommands: []cli.Command{
				{
					Name:      "dump",
					Usage:     "write the raw RGBA table of the job's transfer function",
					ArgsUsage: "job.json",
					Flags: withFlags(cmd.DeviceFlags, []cli.Flag{
						cli.StringFlag{
							Name:  "out, o",
							Value: "tff.raw",
							Usage: "output file",
						},
						cli.StringFlag{
							Name:  "prefix-out",
							Usage: "optional output file for the alpha prefix sum",
						},
					}),
					Action: cmd.DumpTransferFunction,
				},
			},
		},
		{
			Name:  "serve",
			Usage: "stream a progressive preview over websockets",
			Description: `
Render the job progressively and broadcast every iteration as a PNG frame to the
clients connected at /ws. Clients orbit the camera by sending {"yaw":..,"pitch":..}.`,
			ArgsUsage: "job.json",
			Flags: withFlags(cmd.DeviceFlags, cmd.JobFlags, []cli.Flag{
				cli.StringFlag{
					Name:  "addr",
					Value: "localhost:8080",
					Usage: "listen address",
				},
				cli.IntFlag{
					Name:  "interval",
					Value: 50,
					Usage: "delay between frames in milliseconds",
				},
			}),
			Action: cmd.Serve,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
