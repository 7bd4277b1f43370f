// Package chain fires the outgoing action links of a finished action instance.
package chain

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/dukex/area/pkg/events"
	"github.com/dukex/area/pkg/mapping"
	"github.com/dukex/area/pkg/models"
	"github.com/dukex/area/pkg/persistence"
	"github.com/dukex/area/pkg/trigger"
)

// DefaultMaxHops bounds chain depth so a cyclic link graph cannot loop forever.
const DefaultMaxHops = 25

type Chain struct {
	links    persistence.CatalogRepository
	enqueuer trigger.Enqueuer
	logger   *slog.Logger
	maxHops  int
}

var _ trigger.FanOut = (*Chain)(nil)

type Option func(*Chain)

func WithMaxHops(maxHops int) Option {
	return func(c *Chain) { c.maxHops = maxHops }
}

func New(links persistence.CatalogRepository, enqueuer trigger.Enqueuer, logger *slog.Logger, opts ...Option) *Chain {
	c := &Chain{
		links:    links,
		enqueuer: enqueuer,
		logger:   logger.With("module", "chain"),
		maxHops:  DefaultMaxHops,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// OnExecutionSucceeded fans out the output of an OK execution.
func (c *Chain) OnExecutionSucceeded(ctx context.Context, execution *models.Execution) {
	c.FanOut(ctx, trigger.Source{
		ActionInstanceID: execution.ActionInstanceID,
		CorrelationID:    execution.CorrelationID,
		ChainDepth:       execution.ChainDepth,
		Output:           execution.OutputPayload,
	})
}

// FanOut enqueues one CHAIN execution per passing link. It never fails: each link is attempted
// and its error logged on its own.
func (c *Chain) FanOut(ctx context.Context, source trigger.Source) {
	logger := c.logger.With("sourceActionInstanceId", source.ActionInstanceID, "correlationId", source.CorrelationID)

	links, err := c.links.LinksFrom(ctx, source.ActionInstanceID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load action links", "error", err)

		return
	}

	if len(links) == 0 {
		return
	}

	depth := source.ChainDepth + 1
	if depth >= c.maxHops {
		logger.WarnContext(ctx, "chain depth limit reached, not fanning out",
			"depth", depth,
			"maxHops", c.maxHops,
			"links", len(links),
		)

		return
	}

	slices.SortStableFunc(links, func(a, b *models.ActionLink) int {
		return cmp.Compare(a.Order, b.Order)
	})

	output := source.Output
	if output == nil {
		output = map[string]any{}
	}

	fired := 0

	for _, link := range links {
		if c.fire(ctx, logger, link, source, output, depth) {
			fired++
		}
	}

	logger.InfoContext(ctx, "chain fan-out finished", "links", len(links), "fired", fired)
}

func (c *Chain) fire(
	ctx context.Context,
	logger *slog.Logger,
	link *models.ActionLink,
	source trigger.Source,
	output map[string]any,
	depth int,
) (fired bool) {
	logger = logger.With("targetActionInstanceId", link.TargetActionInstanceID, "linkType", link.LinkType)

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "panic while firing link", "panic", r)

			fired = false
		}
	}()

	if !mapping.EvaluateCondition(link.Condition, output) {
		logger.DebugContext(ctx, "link condition not met")

		return false
	}

	input := mapping.Apply(link.Mapping, output)

	execution, err := c.enqueuer.Enqueue(ctx, trigger.Request{
		ActionInstanceID: link.TargetActionInstanceID,
		Mode:             models.ActivationModeChain,
		Input:            input,
		CorrelationID:    source.CorrelationID,
		Source:           events.SourceChain,
		ChainDepth:       depth,
	})

	switch {
	case err == nil:
		logger.DebugContext(ctx, "link fired", "executionId", execution.ID, "depth", depth)

		return true
	case errors.Is(err, trigger.ErrFannedOut):
		return true
	case errors.Is(err, trigger.ErrSkipped):
		logger.DebugContext(ctx, "link target skipped")
	default:
		logger.ErrorContext(ctx, "failed to fire link", "error", err)
	}

	return false
}
