// Package testutil provides test data builders and catalog seeding helpers.
package testutil

import (
	"context"
	"testing"

	"github.com/dukex/area/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// CatalogWriter is implemented by the memory and postgresql catalog repositories.
type CatalogWriter interface {
	SaveService(ctx context.Context, service *models.Service) error
	SaveActionDefinition(ctx context.Context, definition *models.ActionDefinition) error
	SaveActionInstance(ctx context.Context, instance *models.ActionInstance) error
	SaveArea(ctx context.Context, area *models.Area) error
	SaveLink(ctx context.Context, link *models.ActionLink) error
}

// Fixture is a seeded area with one service, one trigger definition and one reaction definition.
type Fixture struct {
	Area               *models.Area
	Service            *models.Service
	TriggerDefinition  *models.ActionDefinition
	ReactionDefinition *models.ActionDefinition

	writer CatalogWriter
}

// SeedArea stores an enabled area and its definitions.
func SeedArea(ctx context.Context, t *testing.T, writer CatalogWriter, overrides ...func(*models.Area)) *Fixture {
	t.Helper()

	area := &models.Area{
		ID:      uuid.NewString(),
		UserID:  uuid.NewString(),
		Name:    "Test Area",
		Enabled: true,
	}

	for _, override := range overrides {
		override(area)
	}

	service := &models.Service{
		ID:       uuid.NewString(),
		Key:      "test",
		Name:     "Test Service",
		AuthType: models.AuthTypeNone,
		Enabled:  true,
	}

	trigger := &models.ActionDefinition{
		ID:             uuid.NewString(),
		ServiceID:      service.ID,
		Key:            "on_event",
		Name:           "On Event",
		IsEventCapable: true,
		Version:        1,
	}

	reaction := &models.ActionDefinition{
		ID:           uuid.NewString(),
		ServiceID:    service.ID,
		Key:          "echo",
		Name:         "Echo",
		IsExecutable: true,
		Version:      1,
	}

	require.NoError(t, writer.SaveArea(ctx, area))
	require.NoError(t, writer.SaveService(ctx, service))
	require.NoError(t, writer.SaveActionDefinition(ctx, trigger))
	require.NoError(t, writer.SaveActionDefinition(ctx, reaction))

	return &Fixture{
		Area:               area,
		Service:            service,
		TriggerDefinition:  trigger,
		ReactionDefinition: reaction,
		writer:             writer,
	}
}

// Writer returns the catalog the fixture was seeded into.
func (f *Fixture) Writer() CatalogWriter {
	return f.writer
}

// AddDefinition stores another definition of the fixture's service.
func (f *Fixture) AddDefinition(ctx context.Context, t *testing.T, overrides ...func(*models.ActionDefinition)) *models.ActionDefinition {
	t.Helper()

	definition := &models.ActionDefinition{
		ID:           uuid.NewString(),
		ServiceID:    f.Service.ID,
		Key:          "custom",
		Name:         "Custom",
		IsExecutable: true,
		Version:      1,
	}

	for _, override := range overrides {
		override(definition)
	}

	require.NoError(t, f.writer.SaveActionDefinition(ctx, definition))

	return definition
}

// AddReaction stores an enabled executable instance in the fixture's area.
func (f *Fixture) AddReaction(ctx context.Context, t *testing.T, overrides ...func(*models.ActionInstance)) *models.ActionInstance {
	t.Helper()

	return f.addInstance(ctx, t, f.ReactionDefinition.ID, "Reaction", overrides...)
}

// AddTrigger stores an enabled event-capable, non-executable instance.
func (f *Fixture) AddTrigger(ctx context.Context, t *testing.T, overrides ...func(*models.ActionInstance)) *models.ActionInstance {
	t.Helper()

	return f.addInstance(ctx, t, f.TriggerDefinition.ID, "Trigger", overrides...)
}

func (f *Fixture) addInstance(
	ctx context.Context,
	t *testing.T,
	definitionID, name string,
	overrides ...func(*models.ActionInstance),
) *models.ActionInstance {
	t.Helper()

	instance := &models.ActionInstance{
		ID:                 uuid.NewString(),
		UserID:             f.Area.UserID,
		AreaID:             f.Area.ID,
		ActionDefinitionID: definitionID,
		Name:               name,
		Enabled:            true,
		Params:             map[string]any{},
	}

	for _, override := range overrides {
		override(instance)
	}

	require.NoError(t, f.writer.SaveActionInstance(ctx, instance))

	return instance
}

// Link stores a chain link from source to target.
func (f *Fixture) Link(
	ctx context.Context,
	t *testing.T,
	source, target *models.ActionInstance,
	overrides ...func(*models.ActionLink),
) *models.ActionLink {
	t.Helper()

	link := &models.ActionLink{
		SourceActionInstanceID: source.ID,
		TargetActionInstanceID: target.ID,
		AreaID:                 f.Area.ID,
		LinkType:               models.LinkTypeChain,
	}

	for _, override := range overrides {
		override(link)
	}

	require.NoError(t, f.writer.SaveLink(ctx, link))

	return link
}

// WithParams sets instance parameters.
func WithParams(params map[string]any) func(*models.ActionInstance) {
	return func(ai *models.ActionInstance) {
		ai.Params = params
	}
}

// WithDefinition points the instance at another definition.
func WithDefinition(definition *models.ActionDefinition) func(*models.ActionInstance) {
	return func(ai *models.ActionInstance) {
		ai.ActionDefinitionID = definition.ID
	}
}

// Disabled turns the instance off.
func Disabled() func(*models.ActionInstance) {
	return func(ai *models.ActionInstance) {
		ai.Enabled = false
	}
}

// WithOrder sets the link order.
func WithOrder(order int) func(*models.ActionLink) {
	return func(l *models.ActionLink) {
		l.Order = order
	}
}

// WithMapping sets the link mapping.
func WithMapping(mapping map[string]any) func(*models.ActionLink) {
	return func(l *models.ActionLink) {
		l.Mapping = mapping
	}
}

// WithCondition sets the link condition.
func WithCondition(condition map[string]any) func(*models.ActionLink) {
	return func(l *models.ActionLink) {
		l.Condition = condition
	}
}

// DisableArea turns the fixture's area off.
func (f *Fixture) DisableArea(ctx context.Context, t *testing.T) {
	t.Helper()

	f.Area.Enabled = false
	require.NoError(t, f.writer.SaveArea(ctx, f.Area))
}
