package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/area/pkg/cmd"
	"github.com/dukex/area/pkg/log"
	"github.com/dukex/area/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	cli "github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

type API struct {
	logger   *slog.Logger
	engine   *cmd.Engine
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, engine *cmd.Engine) *API {
	return &API{
		logger:   logger,
		engine:   engine,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		a.engine.Persistence,
		a.engine.EventBus,
		a.engine.Trigger,
		a.validate,
	)

	return web.NewApp("AREA API", handlers)
}

// Start serves until ctx is done.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			a.logger.Error("Failed to shut down API server", "error", err)
		}
	}()

	return app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("area-api")
	logger.InfoContext(ctx, "Initializing AREA API")

	cfg := cmd.EngineConfigFromCommand(command, "area-api")
	cfg.MaxHops = command.Int("max-hops")

	engine, err := cmd.NewEngine(ctx, cfg, logger)
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

	return NewAPI(logger, engine).Start(ctx, command.Int("port"))
}
