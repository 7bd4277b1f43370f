// Package main runs the AREA API: manual activations and operator endpoints without a local worker.
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

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "area-api",
		Usage:                 "Trigger action instances and inspect executions",
		EnableShellCompletion: true,
		Flags: append(cmd.EngineFlags(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.IntFlag{
				Name:    "max-hops",
				Usage:   "Chain depth limit for trigger-only fan-out",
				Sources: cli.EnvVars("CHAIN_MAX_HOPS"),
			},
		),
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := command.Run(ctx, os.Args)
	if err != nil {
		log.WithModule("area-api").Error("API stopped with error", "error", err)
		os.Exit(1)
	}
}
