package cmd

import (
	"github.com/urfave/cli"

	"github.com/achilleasa/volren/log"
)

var logger = log.New("volren")

func setupLogging(ctx *cli.Context) {
	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
}
