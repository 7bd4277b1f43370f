// Package memory provides an in-process persistence implementation backed by go-memdb.
// It is used by tests and by single-node development setups.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dukex/area/pkg/models"
	"github.com/dukex/area/pkg/persistence"
	memdb "github.com/hashicorp/go-memdb"
)

const (
	tableExecutions  = "executions"
	tableServices    = "services"
	tableDefinitions = "action_definitions"
	tableInstances   = "action_instances"
	tableAreas       = "areas"
	tableLinks       = "action_links"
)

// Persistence implements persistence.Persistence in memory.
type Persistence struct {
	db      *memdb.MemDB
	logger  *slog.Logger
	now     func() time.Time
	linkSeq atomic.Uint64

	executionRepo *ExecutionRepository
	catalogRepo   *CatalogRepository
}

type Option func(*Persistence)

// WithClock replaces time.Now for every timestamp the store writes.
func WithClock(now func() time.Time) Option {
	return func(p *Persistence) { p.now = now }
}

func NewPersistence(logger *slog.Logger, opts ...Option) (*Persistence, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("failed to create memdb: %w", err)
	}

	p := &Persistence{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(p)
	}

	p.catalogRepo = &CatalogRepository{p: p}
	p.executionRepo = &ExecutionRepository{p: p, catalog: p.catalogRepo}

	return p, nil
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) CatalogRepository() persistence.CatalogRepository {
	return p.catalogRepo
}

// Catalog exposes the concrete catalog repository, including its write methods.
func (p *Persistence) Catalog() *CatalogRepository {
	return p.catalogRepo
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// linkRecord stores a link with its insertion sequence so LinksFrom can keep creation order.
type linkRecord struct {
	ID     string
	Source string
	Seq    uint64
	Link   *models.ActionLink
}

func schema() *memdb.DBSchema {
	idIndex := func(field string) *memdb.IndexSchema {
		return &memdb.IndexSchema{
			Name:    "id",
			Unique:  true,
			Indexer: &memdb.StringFieldIndex{Field: field},
		}
	}

	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableExecutions: {
				Name: tableExecutions,
				Indexes: map[string]*memdb.IndexSchema{
					"id": idIndex("ID"),
					"status": {
						Name:    "status",
						Indexer: &memdb.StringFieldIndex{Field: "Status"},
					},
					"dedup_key": {
						Name:         "dedup_key",
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "DedupKey"},
					},
					"correlation_id": {
						Name:         "correlation_id",
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "CorrelationID"},
					},
				},
			},
			tableServices: {
				Name:    tableServices,
				Indexes: map[string]*memdb.IndexSchema{"id": idIndex("ID")},
			},
			tableDefinitions: {
				Name:    tableDefinitions,
				Indexes: map[string]*memdb.IndexSchema{"id": idIndex("ID")},
			},
			tableInstances: {
				Name:    tableInstances,
				Indexes: map[string]*memdb.IndexSchema{"id": idIndex("ID")},
			},
			tableAreas: {
				Name:    tableAreas,
				Indexes: map[string]*memdb.IndexSchema{"id": idIndex("ID")},
			},
			tableLinks: {
				Name: tableLinks,
				Indexes: map[string]*memdb.IndexSchema{
					"id": idIndex("ID"),
					"source": {
						Name:    "source",
						Indexer: &memdb.StringFieldIndex{Field: "Source"},
					},
				},
			},
		},
	}
}
