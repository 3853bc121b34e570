package cmd

import (
	"bytes"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/achilleasa/volren/tracer"
	"github.com/achilleasa/volren/tracer/backend"
)

// List the devices every strategy of the initialization chain can use.
func ListDevices(ctx *cli.Context) error {
	setupLogging(ctx)

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Strategy", "Platform", "Device", "Type", "Compute units", "Clock", "GFlops", "Sharing"})

	var rows int
	for _, strategy := range backend.DefaultStrategies(true) {
		devList, err := strategy.Devices()
		if err != nil {
			logger.Infof("strategy %q cannot enumerate devices: %v", strategy.Name, err)
			continue
		}
		for _, dev := range devList {
			table.Append(deviceRow(strategy.Name, dev))
			rows++
		}
	}

	table.Render()
	logger.Noticef("found %d device(s)\n%s", rows, buf.String())
	return nil
}

func deviceRow(strategy string, dev tracer.DeviceInfo) []string {
	clock := "-"
	if dev.ClockMHz != 0 {
		clock = fmt.Sprintf("%d MHz", dev.ClockMHz)
	}
	return []string{
		strategy,
		dev.Platform,
		dev.Name,
		dev.Type,
		fmt.Sprintf("%d", dev.ComputeUnits),
		clock,
		fmt.Sprintf("%d", dev.Speed),
		fmt.Sprintf("%t", dev.Sharing),
	}
}
