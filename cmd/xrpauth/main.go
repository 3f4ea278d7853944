package main

import (
	"os"

	log "github.com/inconshreveable/log15"
	"gopkg.in/urfave/cli.v1"
)

func main() {
	app := cli.NewApp()
	app.Name = "xrpauth"
	app.Usage = "XRPL wallet sign-in server"
	app.Version = "0.1.0"

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config",
			Usage:  "YAML config file",
			EnvVar: "XRPAUTH_CONFIG",
		},
		cli.IntFlag{
			Name:  "verbosity",
			Usage: "Overrides the configured log level (0=crit, 5=debug)",
			Value: -1,
		},
	}
	app.Action = func(ctx *cli.Context) error {
		return run(ctx.String("config"), ctx.Int("verbosity"))
	}

	if err := app.Run(os.Args); err != nil {
		log.Crit("Server stopped", "err", err)
		os.Exit(1)
	}
}
