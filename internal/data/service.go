package data

import (
	"context"
	"sync"

	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/query"
)

// Service is the facade over all registered repositories. Callers address
// repositories by entity type id; every repository handed out has already
// descended through the decorator pipeline.
type Service struct {
	mu       sync.RWMutex
	registry *meta.Registry
	repos    map[string]Repository
	tx       TransactionRunner
}

// NewService creates a service over the given metadata registry
func NewService(registry *meta.Registry, tx TransactionRunner) *Service {
	return &Service{
		registry: registry,
		repos:    make(map[string]Repository),
		tx:       tx,
	}
}

// Meta returns the metadata registry
func (s *Service) Meta() *meta.Registry {
	return s.registry
}

// RegisterRepository makes a repository addressable by its entity type id
func (s *Service) RegisterRepository(repo Repository) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos[repo.EntityType().ID] = repo
}

// RemoveRepository removes a repository, closing it
func (s *Service) RemoveRepository(entityTypeID string) error {
	s.mu.Lock()
	repo, ok := s.repos[entityTypeID]
	delete(s.repos, entityTypeID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return repo.Close()
}

// Repository returns the repository for an entity type id
func (s *Service) Repository(entityTypeID string) (Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	repo, ok := s.repos[entityTypeID]
	if !ok {
		return nil, NewUnknownEntityType(entityTypeID)
	}
	return repo, nil
}

// EntityType resolves an entity type id through the metadata registry
func (s *Service) EntityType(entityTypeID string) (*meta.EntityType, error) {
	et, ok := s.registry.EntityType(entityTypeID)
	if !ok {
		return nil, NewUnknownEntityType(entityTypeID)
	}
	return et, nil
}

// RunInTransaction runs fn under one storage transaction and, on success,
// fires the after-commit hooks registered during the transaction. A nested
// call joins the enclosing transaction.
func (s *Service) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFrom(ctx) != nil {
		return fn(ctx)
	}
	ctx, tx := WithTx(ctx)
	if s.tx != nil {
		if err := s.tx.RunInTransaction(ctx, fn); err != nil {
			return err
		}
		tx.Commit(ctx)
		return nil
	}
	if err := fn(ctx); err != nil {
		return err
	}
	tx.Commit(ctx)
	return nil
}

// FindOneByID fetches a single entity via the decorated repository
func (s *Service) FindOneByID(ctx context.Context, entityTypeID string, id interface{}, fetch *query.Fetch) (*Entity, error) {
	repo, err := s.Repository(entityTypeID)
	if err != nil {
		return nil, err
	}
	return repo.FindOneByID(ctx, id, fetch)
}

// FindAll queries a repository and drains the result
func (s *Service) FindAll(ctx context.Context, entityTypeID string, q *query.Query) ([]*Entity, error) {
	repo, err := s.Repository(entityTypeID)
	if err != nil {
		return nil, err
	}
	it, err := repo.FindAll(ctx, q)
	if err != nil {
		return nil, err
	}
	return Collect(it)
}

// FindAllByIDs bulk-fetches entities by id, preserving no particular order.
// This is the single round-trip used by reference expansion.
func (s *Service) FindAllByIDs(ctx context.Context, entityTypeID string, ids []interface{}) ([]*Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	et, err := s.EntityType(entityTypeID)
	if err != nil {
		return nil, err
	}
	idAttr := et.IDAttribute()
	if idAttr == nil {
		return nil, NewInvariant("entity type %s has no id attribute", entityTypeID)
	}
	q := query.New().In(idAttr.Name, ids)
	return s.FindAll(ctx, entityTypeID, q)
}

// Count counts matching entities via the decorated repository
func (s *Service) Count(ctx context.Context, entityTypeID string, q *query.Query) (int64, error) {
	repo, err := s.Repository(entityTypeID)
	if err != nil {
		return 0, err
	}
	return repo.Count(ctx, q)
}

// Aggregate runs an aggregate query via the decorated repository
func (s *Service) Aggregate(ctx context.Context, entityTypeID string, aq *query.AggregateQuery) (*query.AggregateResult, error) {
	repo, err := s.Repository(entityTypeID)
	if err != nil {
		return nil, err
	}
	return repo.Aggregate(ctx, aq)
}

// AddAll persists a batch through the decorated repository in one
// transaction.
func (s *Service) AddAll(ctx context.Context, entityTypeID string, entities []*Entity) error {
	repo, err := s.Repository(entityTypeID)
	if err != nil {
		return err
	}
	return s.RunInTransaction(ctx, func(ctx context.Context) error {
		return repo.AddAll(ctx, entities)
	})
}

// UpdateAll persists a batch of updates in one transaction
func (s *Service) UpdateAll(ctx context.Context, entityTypeID string, entities []*Entity) error {
	repo, err := s.Repository(entityTypeID)
	if err != nil {
		return err
	}
	return s.RunInTransaction(ctx, func(ctx context.Context) error {
		return repo.UpdateAll(ctx, entities)
	})
}

// DeleteByID removes one entity in one transaction
func (s *Service) DeleteByID(ctx context.Context, entityTypeID string, id interface{}) error {
	repo, err := s.Repository(entityTypeID)
	if err != nil {
		return err
	}
	return s.RunInTransaction(ctx, func(ctx context.Context) error {
		return repo.DeleteByID(ctx, id)
	})
}
