package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dukex/area/pkg/cmd"
	"github.com/dukex/area/pkg/config"
	"github.com/dukex/area/pkg/log"
	"github.com/dukex/area/pkg/web"
	"github.com/dukex/area/pkg/worker"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	cli "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	cfg, err := config.LoadWorkerConfigOrDefault(command.String("config"))
	if err != nil {
		return err
	}

	if name := command.String("consumer-name"); name != "" {
		cfg.Scheduler.ConsumerName = name
	}

	if cfg.Scheduler.ConsumerName == "" {
		cfg.Scheduler.ConsumerName = worker.ConsumerName()
	}

	logger := log.WithModule("area-worker").With("workerId", cfg.Scheduler.ConsumerName)
	logger.InfoContext(ctx, "Initializing AREA worker")

	engine, err := cmd.NewEngine(ctx, workerEngineConfig(command, cfg), logger)
	if err != nil {
		return err
	}

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := engine.Close(closeCtx); err != nil {
			logger.ErrorContext(ctx, "Failed to close engine", "error", err)
		}
	}()

	scheduler := worker.New(
		cfg.Scheduler,
		engine.Persistence.ExecutionRepository(),
		engine.EventBus,
		engine.Dispatcher,
		engine.Chain,
		logger,
		worker.WithMetrics(engine.Metrics),
		worker.WithTracer(engine.Tracer),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return scheduler.Start(gctx)
	})

	if port := command.Int("http-port"); port > 0 {
		handlers := web.NewAPIHandlers(
			engine.Persistence,
			engine.EventBus,
			engine.Trigger,
			validator.New(validator.WithRequiredStructEnabled()),
			web.WithWorker(scheduler),
		)

		serve(gctx, g, web.NewApp("AREA Worker", handlers), port)
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker %s failed: %w", scheduler.ID(), err)
	}

	logger.InfoContext(ctx, "AREA worker stopped")

	return nil
}

// serve runs app until ctx is done, then shuts it down.
func serve(ctx context.Context, g *errgroup.Group, app *fiber.App, port int) {
	g.Go(func() error {
		return app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		return app.ShutdownWithContext(shutdownCtx)
	})
}

func workerEngineConfig(command *cli.Command, cfg config.WorkerConfig) cmd.EngineConfig {
	engineCfg := cmd.EngineConfigFromCommand(command, "area-worker")
	engineCfg.MaxHops = cfg.MaxHops
	engineCfg.Group = cfg.Scheduler.ConsumerGroup

	return engineCfg
}
