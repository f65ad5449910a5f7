package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"
)

func newCommand() *cli.Command {
	configFlag := &cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Usage:    "Path to the strategy config (`FILE`, yaml or json)",
		Required: true,
	}

	return &cli.Command{
		Name:  "strategy",
		Usage: "Replay node-graph trading strategies against historical klines",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
				Value: "info",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Replay a strategy to the end of its history and write the results",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "Parquet file or glob with the klines (`PATH`)",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "results",
						Aliases: []string{"o"},
						Usage:   "Directory the stats and the ledger tables are written to",
						Value:   "results",
					},
					&cli.IntFlag{
						Name:  "steps",
						Usage: "Stop after this many play indexes. Zero replays everything.",
						Value: 0,
					},
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "Serve Prometheus metrics on this address while running, e.g. :9090",
					},
				},
				Action: runAction,
			},
			{
				Name:   "validate",
				Usage:  "Check a strategy config without running it",
				Flags:  []cli.Flag{configFlag},
				Action: validateAction,
			},
			{
				Name:  "schema",
				Usage: "Print the JSON schema of strategy configs or of one node type",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the schema to `FILE` instead of stdout",
					},
					&cli.StringFlag{
						Name:  "node",
						Usage: "Print the config schema of one node `TYPE` instead of the whole document",
					},
				},
				Action: schemaAction,
			},
			{
				Name:  "version",
				Usage: "Print the engine version",
				Action: func(_ context.Context, cmd *cli.Command) error {
					return versionAction(cmd)
				},
			},
		},
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
