package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"

	"github.com/dukex/area/pkg/models"
	"github.com/dukex/area/pkg/persistence"
)

// CatalogRepository serves areas, instances and links. The Save methods exist for seeding.
type CatalogRepository struct {
	p *Persistence
}

func (r *CatalogRepository) SaveService(_ context.Context, service *models.Service) error {
	c := *service

	return r.insert(tableServices, &c)
}

func (r *CatalogRepository) SaveActionDefinition(_ context.Context, definition *models.ActionDefinition) error {
	c := *definition
	c.Service = nil
	c.InputSchema = maps.Clone(definition.InputSchema)
	c.OutputSchema = maps.Clone(definition.OutputSchema)

	return r.insert(tableDefinitions, &c)
}

func (r *CatalogRepository) SaveActionInstance(_ context.Context, instance *models.ActionInstance) error {
	c := *instance
	c.Definition = nil
	c.Params = maps.Clone(instance.Params)

	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.p.now()
	}

	return r.insert(tableInstances, &c)
}

func (r *CatalogRepository) SaveArea(_ context.Context, area *models.Area) error {
	c := *area
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.p.now()
	}

	return r.insert(tableAreas, &c)
}

func (r *CatalogRepository) SaveLink(_ context.Context, link *models.ActionLink) error {
	c := *link
	c.Mapping = maps.Clone(link.Mapping)
	c.Condition = maps.Clone(link.Condition)

	if c.LinkType == "" {
		c.LinkType = models.LinkTypeChain
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.p.now()
	}

	id := link.SourceActionInstanceID + "->" + link.TargetActionInstanceID
	seq := r.p.linkSeq.Add(1)

	txn := r.p.db.Txn(false)
	existing, err := txn.First(tableLinks, "id", id)
	txn.Abort()

	if err != nil {
		return fmt.Errorf("failed to read link: %w", err)
	}

	if existing != nil {
		seq = existing.(*linkRecord).Seq
	}

	return r.insert(tableLinks, &linkRecord{
		ID:     id,
		Source: link.SourceActionInstanceID,
		Seq:    seq,
		Link:   &c,
	})
}

func (r *CatalogRepository) insert(table string, obj any) error {
	txn := r.p.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(table, obj); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}

	txn.Commit()

	return nil
}

func (r *CatalogRepository) ActionInstance(_ context.Context, id string) (*models.ActionInstance, error) {
	txn := r.p.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tableInstances, "id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to read action instance: %w", err)
	}

	if raw == nil {
		return nil, persistence.NewCatalogError("ActionInstance", "action instance", id, persistence.ErrActionInstanceNotFound)
	}

	instance := *raw.(*models.ActionInstance)
	instance.Params = maps.Clone(instance.Params)

	rawDef, err := txn.First(tableDefinitions, "id", instance.ActionDefinitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read action definition: %w", err)
	}

	if rawDef == nil {
		return nil, persistence.NewCatalogError("ActionInstance", "action definition", instance.ActionDefinitionID,
			persistence.ErrActionDefinitionNotFound)
	}

	definition := *rawDef.(*models.ActionDefinition)

	rawService, err := txn.First(tableServices, "id", definition.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to read service: %w", err)
	}

	if rawService != nil {
		service := *rawService.(*models.Service)
		definition.Service = &service
	}

	instance.Definition = &definition

	return &instance, nil
}

func (r *CatalogRepository) Area(_ context.Context, id string) (*models.Area, error) {
	txn := r.p.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tableAreas, "id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to read area: %w", err)
	}

	if raw == nil {
		return nil, persistence.NewCatalogError("Area", "area", id, persistence.ErrAreaNotFound)
	}

	area := *raw.(*models.Area)

	return &area, nil
}

func (r *CatalogRepository) LinksFrom(_ context.Context, sourceActionInstanceID string) ([]*models.ActionLink, error) {
	txn := r.p.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableLinks, "source", sourceActionInstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to read links: %w", err)
	}

	var records []*linkRecord
	for obj := it.Next(); obj != nil; obj = it.Next() {
		records = append(records, obj.(*linkRecord))
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Seq < records[j].Seq
	})

	links := make([]*models.ActionLink, 0, len(records))
	for _, record := range records {
		link := *record.Link
		links = append(links, &link)
	}

	return links, nil
}
