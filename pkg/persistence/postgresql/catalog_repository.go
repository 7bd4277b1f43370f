package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/area/pkg/models"
	"github.com/dukex/area/pkg/persistence"
)

// CatalogRepository handles area, action instance and link reads. The Save methods are used
// for seeding and by the configuration layer.
type CatalogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewCatalogRepository creates a new catalog repository.
func NewCatalogRepository(db *sql.DB, logger *slog.Logger) *CatalogRepository {
	return &CatalogRepository{db: db, logger: logger}
}

func (r *CatalogRepository) SaveService(ctx context.Context, service *models.Service) error {
	query := `
		INSERT INTO services (id, key, name, auth_type, enabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			key = EXCLUDED.key,
			name = EXCLUDED.name,
			auth_type = EXCLUDED.auth_type,
			enabled = EXCLUDED.enabled
	`

	authType := service.AuthType
	if authType == "" {
		authType = models.AuthTypeNone
	}

	_, err := r.db.ExecContext(ctx, query, service.ID, service.Key, service.Name, authType, service.Enabled)
	if err != nil {
		return fmt.Errorf("failed to save service: %w", err)
	}

	return nil
}

func (r *CatalogRepository) SaveActionDefinition(ctx context.Context, definition *models.ActionDefinition) error {
	inputSchemaJSON, err := json.Marshal(definition.InputSchema)
	if err != nil {
		return fmt.Errorf("failed to marshal input schema: %w", err)
	}

	outputSchemaJSON, err := json.Marshal(definition.OutputSchema)
	if err != nil {
		return fmt.Errorf("failed to marshal output schema: %w", err)
	}

	throttleJSON, err := json.Marshal(definition.ThrottlePolicy)
	if err != nil {
		return fmt.Errorf("failed to marshal throttle policy: %w", err)
	}

	query := `
		INSERT INTO action_definitions (
			id, service_id, key, name, description, input_schema, output_schema,
			is_event_capable, is_executable, version, default_poll_interval_seconds, throttle_policy
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			service_id = EXCLUDED.service_id,
			key = EXCLUDED.key,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			input_schema = EXCLUDED.input_schema,
			output_schema = EXCLUDED.output_schema,
			is_event_capable = EXCLUDED.is_event_capable,
			is_executable = EXCLUDED.is_executable,
			version = EXCLUDED.version,
			default_poll_interval_seconds = EXCLUDED.default_poll_interval_seconds,
			throttle_policy = EXCLUDED.throttle_policy
	`

	version := definition.Version
	if version == 0 {
		version = 1
	}

	_, err = r.db.ExecContext(ctx, query,
		definition.ID,
		definition.ServiceID,
		definition.Key,
		definition.Name,
		definition.Description,
		inputSchemaJSON,
		outputSchemaJSON,
		definition.IsEventCapable,
		definition.IsExecutable,
		version,
		definition.DefaultPollIntervalSeconds,
		throttleJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save action definition: %w", err)
	}

	return nil
}

func (r *CatalogRepository) SaveArea(ctx context.Context, area *models.Area) error {
	query := `
		INSERT INTO areas (id, user_id, name, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			name = EXCLUDED.name,
			enabled = EXCLUDED.enabled
	`

	_, err := r.db.ExecContext(ctx, query, area.ID, area.UserID, area.Name, area.Enabled, createdAt(area.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save area: %w", err)
	}

	return nil
}

func (r *CatalogRepository) SaveActionInstance(ctx context.Context, instance *models.ActionInstance) error {
	paramsJSON, err := json.Marshal(instance.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	query := `
		INSERT INTO action_instances (id, user_id, area_id, action_definition_id, name, enabled, params, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			area_id = EXCLUDED.area_id,
			action_definition_id = EXCLUDED.action_definition_id,
			name = EXCLUDED.name,
			enabled = EXCLUDED.enabled,
			params = EXCLUDED.params
	`

	_, err = r.db.ExecContext(ctx, query,
		instance.ID,
		instance.UserID,
		instance.AreaID,
		instance.ActionDefinitionID,
		instance.Name,
		instance.Enabled,
		paramsJSON,
		createdAt(instance.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save action instance: %w", err)
	}

	return nil
}

func (r *CatalogRepository) SaveLink(ctx context.Context, link *models.ActionLink) error {
	mappingJSON, err := json.Marshal(link.Mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	conditionJSON, err := json.Marshal(link.Condition)
	if err != nil {
		return fmt.Errorf("failed to marshal condition: %w", err)
	}

	linkType := link.LinkType
	if linkType == "" {
		linkType = models.LinkTypeChain
	}

	query := `
		INSERT INTO action_links (
			source_action_instance_id, target_action_instance_id, area_id, link_type,
			mapping, link_condition, link_order, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source_action_instance_id, target_action_instance_id) DO UPDATE SET
			area_id = EXCLUDED.area_id,
			link_type = EXCLUDED.link_type,
			mapping = EXCLUDED.mapping,
			link_condition = EXCLUDED.link_condition,
			link_order = EXCLUDED.link_order
	`

	_, err = r.db.ExecContext(ctx, query,
		link.SourceActionInstanceID,
		link.TargetActionInstanceID,
		link.AreaID,
		linkType,
		mappingJSON,
		conditionJSON,
		link.Order,
		createdAt(link.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save action link: %w", err)
	}

	return nil
}

// ActionInstance loads the instance together with its definition and service.
func (r *CatalogRepository) ActionInstance(ctx context.Context, id string) (*models.ActionInstance, error) {
	query := `
		SELECT ai.id, ai.user_id, ai.area_id, ai.action_definition_id, ai.name, ai.enabled, ai.params, ai.created_at,
			   ad.id, ad.service_id, ad.key, ad.name, COALESCE(ad.description, ''), ad.input_schema, ad.output_schema,
			   ad.is_event_capable, ad.is_executable, ad.version, COALESCE(ad.default_poll_interval_seconds, 0),
			   ad.throttle_policy,
			   s.id, s.key, s.name, s.auth_type, s.enabled
		FROM action_instances ai
		JOIN action_definitions ad ON ad.id = ai.action_definition_id
		JOIN services s ON s.id = ad.service_id
		WHERE ai.id = $1
	`

	var (
		instance   models.ActionInstance
		definition models.ActionDefinition
		service    models.Service

		paramsJSON, inputSchemaJSON, outputSchemaJSON, throttleJSON []byte
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&instance.ID,
		&instance.UserID,
		&instance.AreaID,
		&instance.ActionDefinitionID,
		&instance.Name,
		&instance.Enabled,
		&paramsJSON,
		&instance.CreatedAt,
		&definition.ID,
		&definition.ServiceID,
		&definition.Key,
		&definition.Name,
		&definition.Description,
		&inputSchemaJSON,
		&outputSchemaJSON,
		&definition.IsEventCapable,
		&definition.IsExecutable,
		&definition.Version,
		&definition.DefaultPollIntervalSeconds,
		&throttleJSON,
		&service.ID,
		&service.Key,
		&service.Name,
		&service.AuthType,
		&service.Enabled,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewCatalogError("ActionInstance", "action instance", id, persistence.ErrActionInstanceNotFound)
		}

		return nil, fmt.Errorf("failed to scan action instance: %w", err)
	}

	for _, field := range []struct {
		raw  []byte
		dest *map[string]any
		name string
	}{
		{paramsJSON, &instance.Params, "params"},
		{inputSchemaJSON, &definition.InputSchema, "input schema"},
		{outputSchemaJSON, &definition.OutputSchema, "output schema"},
		{throttleJSON, &definition.ThrottlePolicy, "throttle policy"},
	} {
		if err := unmarshalMap(field.raw, field.dest); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", field.name, err)
		}
	}

	definition.Service = &service
	instance.Definition = &definition

	return &instance, nil
}

func (r *CatalogRepository) Area(ctx context.Context, id string) (*models.Area, error) {
	query := `SELECT id, user_id, name, enabled, created_at FROM areas WHERE id = $1`

	var area models.Area

	err := r.db.QueryRowContext(ctx, query, id).Scan(&area.ID, &area.UserID, &area.Name, &area.Enabled, &area.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewCatalogError("Area", "area", id, persistence.ErrAreaNotFound)
		}

		return nil, fmt.Errorf("failed to scan area: %w", err)
	}

	return &area, nil
}

// LinksFrom returns outgoing links by creation time. Callers apply the order tie-break.
func (r *CatalogRepository) LinksFrom(ctx context.Context, sourceActionInstanceID string) ([]*models.ActionLink, error) {
	query := `
		SELECT source_action_instance_id, target_action_instance_id, area_id, link_type,
			   mapping, link_condition, link_order, created_at
		FROM action_links
		WHERE source_action_instance_id = $1
		ORDER BY created_at ASC, target_action_instance_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, sourceActionInstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query action links: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var links []*models.ActionLink

	for rows.Next() {
		var (
			link                       models.ActionLink
			mappingJSON, conditionJSON []byte
		)

		err := rows.Scan(
			&link.SourceActionInstanceID,
			&link.TargetActionInstanceID,
			&link.AreaID,
			&link.LinkType,
			&mappingJSON,
			&conditionJSON,
			&link.Order,
			&link.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action link: %w", err)
		}

		if err := unmarshalMap(mappingJSON, &link.Mapping); err != nil {
			return nil, fmt.Errorf("failed to unmarshal mapping: %w", err)
		}

		if err := unmarshalMap(conditionJSON, &link.Condition); err != nil {
			return nil, fmt.Errorf("failed to unmarshal condition: %w", err)
		}

		links = append(links, &link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating action links: %w", err)
	}

	return links, nil
}

func unmarshalMap(raw []byte, dest *map[string]any) error {
	if raw == nil {
		return nil
	}

	return json.Unmarshal(raw, dest)
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}

	return t
}
