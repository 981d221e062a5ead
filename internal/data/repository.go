package data

import (
	"context"

	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/query"
)

// Repository is the uniform surface every backend adapter and decorator
// implements. Sequence results (FindAll, Iterator) are lazy and consumed at
// most once; decorators forward Close so backends can release cursors.
type Repository interface {
	// EntityType returns the entity type served by this repository
	EntityType() *meta.EntityType

	// Add persists a new entity
	Add(ctx context.Context, entity *Entity) error

	// AddAll persists a batch of new entities, preserving order
	AddAll(ctx context.Context, entities []*Entity) error

	// Update persists changes to an existing entity
	Update(ctx context.Context, entity *Entity) error

	// UpdateAll persists changes to a batch of entities, preserving order
	UpdateAll(ctx context.Context, entities []*Entity) error

	// Delete removes an entity
	Delete(ctx context.Context, entity *Entity) error

	// DeleteByID removes the entity with the given id
	DeleteByID(ctx context.Context, id interface{}) error

	// DeleteAll removes every entity
	DeleteAll(ctx context.Context) error

	// DeleteAllByID removes the entities with the given ids
	DeleteAllByID(ctx context.Context, ids []interface{}) error

	// FindOneByID returns the entity with the given id, or nil when absent.
	// A non-nil fetch restricts the populated attributes.
	FindOneByID(ctx context.Context, id interface{}, fetch *query.Fetch) (*Entity, error)

	// FindOne returns the first entity matching the query, or nil
	FindOne(ctx context.Context, q *query.Query) (*Entity, error)

	// FindAll returns a lazy sequence of entities matching the query,
	// respecting page size, offset and sort.
	FindAll(ctx context.Context, q *query.Query) (Iterator, error)

	// Count returns the number of entities matching the query, ignoring
	// paging.
	Count(ctx context.Context, q *query.Query) (int64, error)

	// Aggregate computes a matrix of counts for an aggregate query
	Aggregate(ctx context.Context, aq *query.AggregateQuery) (*query.AggregateResult, error)

	// Iterator returns a restartable full-scan sequence with no ordering
	// guarantee.
	Iterator(ctx context.Context) (Iterator, error)

	// Close releases backend resources
	Close() error
}

// Iterator is a single-consumption lazy entity sequence
type Iterator interface {
	// Next advances to the next entity, returning false when exhausted
	Next() bool

	// Entity returns the current entity
	Entity() *Entity

	// Err returns the first error encountered during iteration
	Err() error

	// Close releases the underlying cursor
	Close() error
}

// Collect drains an iterator into a slice, closing it afterwards
func Collect(it Iterator) ([]*Entity, error) {
	defer it.Close()
	var entities []*Entity
	for it.Next() {
		entities = append(entities, it.Entity())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return entities, nil
}

// SliceIterator adapts an entity slice to the Iterator contract
type SliceIterator struct {
	entities []*Entity
	pos      int
}

// NewSliceIterator creates an iterator over the given entities
func NewSliceIterator(entities []*Entity) *SliceIterator {
	return &SliceIterator{entities: entities, pos: -1}
}

// Next advances the iterator
func (it *SliceIterator) Next() bool {
	if it.pos+1 >= len(it.entities) {
		return false
	}
	it.pos++
	return true
}

// Entity returns the current entity
func (it *SliceIterator) Entity() *Entity {
	if it.pos < 0 || it.pos >= len(it.entities) {
		return nil
	}
	return it.entities[it.pos]
}

// Err always returns nil for slice iterators
func (it *SliceIterator) Err() error { return nil }

// Close is a no-op for slice iterators
func (it *SliceIterator) Close() error { return nil }
