// Package decorator implements the repository decorator pipeline. Every
// repository handed out by the platform is wrapped in a fixed chain of
// decorators applying permission checks, validation, referential integrity,
// index maintenance, caching and audit logging before the call reaches the
// backend adapter.
package decorator

import (
	"context"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/query"
)

// Base forwards every Repository method to the delegate. Decorators embed
// it and override only the methods they intercept.
type Base struct {
	delegate data.Repository
}

// NewBase wraps a delegate repository
func NewBase(delegate data.Repository) Base {
	return Base{delegate: delegate}
}

// Delegate returns the wrapped repository
func (b *Base) Delegate() data.Repository {
	return b.delegate
}

// EntityType returns the entity type served by this repository
func (b *Base) EntityType() *meta.EntityType {
	return b.delegate.EntityType()
}

// Add persists a new entity
func (b *Base) Add(ctx context.Context, entity *data.Entity) error {
	return b.delegate.Add(ctx, entity)
}

// AddAll persists a batch of new entities
func (b *Base) AddAll(ctx context.Context, entities []*data.Entity) error {
	return b.delegate.AddAll(ctx, entities)
}

// Update persists changes to an existing entity
func (b *Base) Update(ctx context.Context, entity *data.Entity) error {
	return b.delegate.Update(ctx, entity)
}

// UpdateAll persists changes to a batch of entities
func (b *Base) UpdateAll(ctx context.Context, entities []*data.Entity) error {
	return b.delegate.UpdateAll(ctx, entities)
}

// Delete removes an entity
func (b *Base) Delete(ctx context.Context, entity *data.Entity) error {
	return b.delegate.Delete(ctx, entity)
}

// DeleteByID removes the entity with the given id
func (b *Base) DeleteByID(ctx context.Context, id interface{}) error {
	return b.delegate.DeleteByID(ctx, id)
}

// DeleteAll removes every entity
func (b *Base) DeleteAll(ctx context.Context) error {
	return b.delegate.DeleteAll(ctx)
}

// DeleteAllByID removes the entities with the given ids
func (b *Base) DeleteAllByID(ctx context.Context, ids []interface{}) error {
	return b.delegate.DeleteAllByID(ctx, ids)
}

// FindOneByID returns the entity with the given id, or nil when absent
func (b *Base) FindOneByID(ctx context.Context, id interface{}, fetch *query.Fetch) (*data.Entity, error) {
	return b.delegate.FindOneByID(ctx, id, fetch)
}

// FindOne returns the first entity matching the query, or nil
func (b *Base) FindOne(ctx context.Context, q *query.Query) (*data.Entity, error) {
	return b.delegate.FindOne(ctx, q)
}

// FindAll returns a lazy sequence of entities matching the query
func (b *Base) FindAll(ctx context.Context, q *query.Query) (data.Iterator, error) {
	return b.delegate.FindAll(ctx, q)
}

// Count returns the number of entities matching the query
func (b *Base) Count(ctx context.Context, q *query.Query) (int64, error) {
	return b.delegate.Count(ctx, q)
}

// Aggregate computes a matrix of counts for an aggregate query
func (b *Base) Aggregate(ctx context.Context, aq *query.AggregateQuery) (*query.AggregateResult, error) {
	return b.delegate.Aggregate(ctx, aq)
}

// Iterator returns a restartable full-scan sequence
func (b *Base) Iterator(ctx context.Context) (data.Iterator, error) {
	return b.delegate.Iterator(ctx)
}

// Close releases backend resources
func (b *Base) Close() error {
	return b.delegate.Close()
}
