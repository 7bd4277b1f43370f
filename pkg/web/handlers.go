package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dukex/area/pkg/eventbus"
	"github.com/dukex/area/pkg/events"
	"github.com/dukex/area/pkg/models"
	"github.com/dukex/area/pkg/persistence"
	"github.com/dukex/area/pkg/trigger"
	"github.com/dukex/area/pkg/worker"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultCancelReason = "Manual cancellation"

// Activator is the trigger path as seen by the API.
type Activator interface {
	Enqueue(ctx context.Context, req trigger.Request) (*models.Execution, error)
}

// WorkerStatus is implemented by a scheduler running in the same process.
type WorkerStatus interface {
	Status(ctx context.Context) worker.Status
}

type APIHandlers struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	activator   Activator
	worker      WorkerStatus
	gatherer    prometheus.Gatherer
	validator   *validator.Validate
}

type Option func(*APIHandlers)

// WithWorker exposes the status of a local scheduler.
func WithWorker(w WorkerStatus) Option {
	return func(h *APIHandlers) { h.worker = w }
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(gatherer prometheus.Gatherer) Option {
	return func(h *APIHandlers) { h.gatherer = gatherer }
}

func NewAPIHandlers(
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	activator Activator,
	validator *validator.Validate,
	opts ...Option,
) *APIHandlers {
	h := &APIHandlers{
		persistence: persistence,
		eventBus:    eventBus,
		activator:   activator,
		gatherer:    prometheus.DefaultGatherer,
		validator:   validator,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Register mounts every route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	api := router.Group("/api")

	w := api.Group("/worker")
	w.Get("/status", h.GetWorkerStatus)
	w.Get("/statistics", h.GetStatistics)
	w.Get("/stream-info", h.GetStreamInfo)
	w.Post("/executions/:id/cancel", h.CancelExecution)
	w.Post("/test-event", h.SendTestEvent)
	w.Post("/initialize-stream", h.InitializeStream)

	api.Get("/executions/:id", h.GetExecution)
	api.Post("/action-instances/:id/trigger", h.TriggerActionInstance)

	router.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) GetWorkerStatus(c fiber.Ctx) error {
	if h.worker == nil {
		return unavailable(c, "no worker runs in this process")
	}

	return c.JSON(h.worker.Status(c.Context()))
}

func (h *APIHandlers) GetStatistics(c fiber.Ctx) error {
	stats, err := worker.CountStatuses(c.Context(), h.persistence.ExecutionRepository())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(stats)
}

func (h *APIHandlers) GetStreamInfo(c fiber.Ctx) error {
	return c.JSON(h.eventBus.StreamInfo(c.Context()))
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	reason := c.Query("reason", defaultCancelReason)

	execution, err := h.persistence.ExecutionRepository().Cancel(c.Context(), id, reason)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(CancelResponse{
		Status:      string(models.ExecutionStatusCanceled),
		ExecutionID: execution.ID,
		Reason:      reason,
	})
}

// SendTestEvent publishes an envelope for a fabricated execution id. Workers log and acknowledge
// it without running anything, which makes it a cheap end-to-end check of the bus.
func (h *APIHandlers) SendTestEvent(c fiber.Ctx) error {
	var req TestEventRequest
	if err := c.Bind().Query(&req); err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	executionID := uuid.NewString()
	envelope := events.FromExecution(executionID, req.ActionInstanceID, req.AreaID, map[string]any{
		"test":      true,
		"timestamp": time.Now().UnixMilli(),
	})
	envelope.Source = events.SourceAPI

	eventID, err := h.eventBus.Publish(c.Context(), envelope)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(TestEventResponse{
		Status:           "sent",
		EventID:          eventID,
		ExecutionID:      executionID,
		ActionInstanceID: req.ActionInstanceID,
		AreaID:           req.AreaID,
	})
}

func (h *APIHandlers) InitializeStream(c fiber.Ctx) error {
	if err := h.eventBus.InitializeStream(c.Context()); err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":  "initialized",
		"message": "Stream and consumer group initialized successfully",
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.persistence.ExecutionRepository().Get(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) TriggerActionInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Action instance ID is required")
	}

	var req TriggerRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	input := req.Input
	if input == nil {
		input = map[string]any{}
	}

	execution, err := h.activator.Enqueue(c.Context(), trigger.Request{
		ActionInstanceID: id,
		Mode:             models.ActivationModeManual,
		Input:            input,
		CorrelationID:    req.CorrelationID,
		DedupKey:         req.DedupKey,
		Provider:         req.Provider,
		Source:           events.SourceManual,
		Priority:         req.Priority,
	})

	switch {
	case errors.Is(err, trigger.ErrDuplicate):
		return c.Status(fiber.StatusOK).JSON(TriggerResponse{Status: TriggerStatusDuplicate, Execution: execution})
	case errors.Is(err, trigger.ErrFannedOut):
		return c.Status(fiber.StatusAccepted).JSON(TriggerResponse{Status: TriggerStatusFannedOut})
	case err != nil && execution != nil:
		// Stored but not published; the queued sweep still runs it.
		return c.Status(fiber.StatusAccepted).JSON(TriggerResponse{
			Status:    TriggerStatusQueued,
			Execution: execution,
			Warning:   err.Error(),
		})
	case err != nil:
		return handleError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(TriggerResponse{Status: TriggerStatusQueued, Execution: execution})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK
	checks := fiber.Map{"persistence": "ok"}

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
		checks["persistence"] = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"checkers":  checks,
		"timestamp": time.Now().UTC(),
	})
}
