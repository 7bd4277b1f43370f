// Package dispatcher runs the reaction of one RUNNING execution and turns every outcome,
// including handler panics, into an ExecutionResult.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/area/pkg/credentials"
	"github.com/dukex/area/pkg/faults"
	"github.com/dukex/area/pkg/metrics"
	"github.com/dukex/area/pkg/models"
	"github.com/dukex/area/pkg/otelhelper"
	"github.com/dukex/area/pkg/persistence"
	"github.com/dukex/area/pkg/protocol"
	"github.com/dukex/area/pkg/retry"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const op = "dispatch"

// Resolver finds the handler of a (service, action) pair. It must always return one.
type Resolver interface {
	Resolve(serviceKey, actionKey string) protocol.Reaction
}

type Dispatcher struct {
	catalog   persistence.CatalogRepository
	reactions Resolver
	tokens    credentials.TokenProvider
	policy    *retry.Policy
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Dispatcher)

func WithTokenProvider(tokens credentials.TokenProvider) Option {
	return func(d *Dispatcher) { d.tokens = tokens }
}

func WithPolicy(policy *retry.Policy) Option {
	return func(d *Dispatcher) { d.policy = policy }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = tracer }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func New(catalog persistence.CatalogRepository, reactions Resolver, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		catalog:   catalog,
		reactions: reactions,
		logger:    logger.With("module", "dispatcher"),
		now:       func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.policy == nil {
		d.policy = retry.NewPolicy(retry.WithClock(d.now))
	}

	if d.metrics == nil {
		d.metrics = metrics.New(nil)
	}

	if d.tracer == nil {
		d.tracer = noop.NewTracerProvider().Tracer("area-dispatcher")
	}

	return d
}

// Execute runs the execution's reaction. It never returns an error and never panics: every
// failure is classified by the retry policy into a RETRY or FAILED result.
func (d *Dispatcher) Execute(ctx context.Context, execution *models.Execution) (result models.ExecutionResult) {
	startedAt := d.now()
	if execution.StartedAt != nil {
		startedAt = *execution.StartedAt
	}

	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatcher.execute", otelhelper.ExecutionAttributes(execution)...)
	clock := time.Now()

	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "reaction panicked", "executionId", execution.ID, "panic", r)
			result = d.failure(ctx, execution, faults.Transient(op, fmt.Sprintf("reaction panicked: %v", r), nil), startedAt)
		}

		d.metrics.ObserveReaction(result.Successful(), time.Since(clock))
		span.SetAttributes(attribute.String(otelhelper.StatusKey, string(result.Status)))
		span.End()
	}()

	output, err := d.run(ctx, execution, span)
	if err != nil {
		otelhelper.SetError(span, err)

		return d.failure(ctx, execution, err, startedAt)
	}

	d.logger.InfoContext(ctx, "reaction succeeded", "executionId", execution.ID, "actionInstanceId", execution.ActionInstanceID)

	return models.Success(execution.ID, output, startedAt)
}

func (d *Dispatcher) run(ctx context.Context, execution *models.Execution, span trace.Span) (map[string]any, error) {
	instance, err := d.catalog.ActionInstance(ctx, execution.ActionInstanceID)
	if err != nil {
		return nil, err
	}

	if !instance.IsExecutable() {
		return nil, faults.NotExecutable(op, fmt.Sprintf("action %s of service %s is not executable",
			instance.ActionKey(), instance.ServiceKey()))
	}

	if err := validateInput(instance.Definition.InputSchema, execution.InputPayload); err != nil {
		return nil, err
	}

	token, err := d.token(ctx, instance)
	if err != nil {
		return nil, err
	}

	serviceKey, actionKey := instance.ServiceKey(), instance.ActionKey()
	span.SetAttributes(attribute.String(otelhelper.ReactionKey, protocol.NewKey(serviceKey, actionKey).String()))

	output, err := d.reactions.Resolve(serviceKey, actionKey).Handle(ctx, protocol.Request{
		Token:     token,
		Input:     execution.InputPayload,
		Params:    instance.Params,
		Execution: execution,
	})
	if err != nil {
		return nil, err
	}

	return decorate(output, serviceKey, actionKey, d.now()), nil
}

func (d *Dispatcher) token(ctx context.Context, instance *models.ActionInstance) (string, error) {
	if !instance.Definition.Service.RequiresToken() {
		return "", nil
	}

	if d.tokens == nil {
		return "", faults.Auth(op, "no token provider for service "+instance.ServiceKey(), faults.ErrServiceNotConnected)
	}

	token, err := d.tokens.Token(ctx, instance.UserID, instance.ServiceKey())
	if err != nil {
		return "", err
	}

	return token, nil
}

// decorate copies output and adds the service, action and executedAt keys the handler did not set.
func decorate(output map[string]any, serviceKey, actionKey string, now time.Time) map[string]any {
	result := make(map[string]any, len(output)+3)
	for k, v := range output {
		result[k] = v
	}

	defaults := map[string]any{
		"service":    serviceKey,
		"action":     actionKey,
		"executedAt": now.Format(time.RFC3339),
	}

	for k, v := range defaults {
		if _, ok := result[k]; !ok {
			result[k] = v
		}
	}

	return result
}

func validateInput(schema, input map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	if input == nil {
		input = map[string]any{}
	}

	res, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(input))
	if err != nil {
		return faults.Validation(op, "invalid input schema", err)
	}

	if res.Valid() {
		return nil
	}

	messages := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		messages = append(messages, e.String())
	}

	return faults.Validation(op, "input does not match schema", errors.New(strings.Join(messages, "; ")))
}

func (d *Dispatcher) failure(ctx context.Context, execution *models.Execution, err error, startedAt time.Time) models.ExecutionResult {
	var nextRetryAt *time.Time

	retryable := d.policy.ShouldRetry(execution.Attempt, err)
	if retryable {
		nextRetryAt = d.policy.NextRetryTime(execution.Attempt)
		retryable = nextRetryAt != nil
	}

	details := map[string]any{
		"exception":      faults.Name(err),
		"message":        err.Error(),
		"executionId":    execution.ID,
		"attemptNumber":  execution.Attempt,
		"actionInstance": execution.ActionInstanceID,
		"timestamp":      d.now().Format(time.RFC3339),
		"retryable":      retryable,
	}

	if cause := errors.Unwrap(err); cause != nil {
		details["cause"] = cause.Error()
	}

	d.logger.WarnContext(ctx, "reaction failed",
		"executionId", execution.ID,
		"attempt", execution.Attempt,
		"retryable", retryable,
		"error", err,
	)

	return models.Failure(execution.ID, details, startedAt, nextRetryAt)
}
