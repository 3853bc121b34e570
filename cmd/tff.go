package cmd

import (
	"os"

	"github.com/urfave/cli"

	"github.com/achilleasa/volren/tff"
)

// Write the raw RGBA table of the job's transfer function.
func DumpTransferFunction(ctx *cli.Context) error {
	setupLogging(ctx)

	r, _, err := setupRenderer(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	table, err := tff.FromRaw(r.RawTransferFunction())
	if err != nil {
		return err
	}

	out := ctx.String("out")
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	if err = tff.WriteRaw(f, table); err != nil {
		return err
	}
	logger.Noticef("wrote %d entry table to %s", tff.TableSize, out)

	if prefixOut := ctx.String("prefix-out"); prefixOut != "" {
		pf, err := os.Create(prefixOut)
		if err != nil {
			return err
		}
		defer pf.Close()
		if err = tff.WritePrefixSum(pf, table); err != nil {
			return err
		}
		logger.Noticef("wrote alpha prefix sum to %s", prefixOut)
	}
	return nil
}
