// Package main runs an AREA worker: the scheduler that consumes activation events, sweeps the
// execution store and dispatches reactions, plus the operator HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/area/pkg/cmd"
	"github.com/dukex/area/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9092

func main() {
	command := &cli.Command{
		Name:                  "area-worker",
		EnableShellCompletion: true,
		Usage:                 "Process queued AREA executions",
		Flags:                 append(cmd.EngineFlags(), workerFlags()...),
		Action:                run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := command.Run(ctx, os.Args)
	if err != nil {
		log.WithModule("area-worker").Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
}

func workerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the worker YAML configuration",
			Sources: cli.EnvVars("AREA_WORKER_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "consumer-name",
			Aliases: []string{"id"},
			Usage:   "Consumer name on the event bus (hostname-based if not provided)",
			Sources: cli.EnvVars("WORKER_ID"),
		},
		&cli.IntFlag{
			Name:    "http-port",
			Aliases: []string{"p"},
			Usage:   "Port of the operator API, 0 disables it",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
	}
}
