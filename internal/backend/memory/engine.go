// Package memory provides the in-memory backend adapter. It implements the
// full Repository contract including query evaluation, sorting, paging,
// aggregation and snapshot-based transactions, and serves as the reference
// implementation for the backend contract.
package memory

import (
	"context"
	"sync"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
)

// Backend is the storage engine name used in entity type metadata
const Backend = "memory"

// Engine owns the in-memory stores of all repositories it created and
// provides snapshot transactions across them.
type Engine struct {
	mu    sync.RWMutex
	repos map[string]*Repository
}

// NewEngine creates an empty engine
func NewEngine() *Engine {
	return &Engine{repos: make(map[string]*Repository)}
}

// CreateRepository creates (or returns) the repository for an entity type
func (e *Engine) CreateRepository(entityType *meta.EntityType) *Repository {
	e.mu.Lock()
	defer e.mu.Unlock()
	if repo, ok := e.repos[entityType.ID]; ok {
		return repo
	}
	repo := newRepository(e, entityType)
	e.repos[entityType.ID] = repo
	return repo
}

// DropRepository removes an entity type's store
func (e *Engine) DropRepository(entityTypeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.repos, entityTypeID)
}

type txTokenKey struct{}

func inTransaction(ctx context.Context) bool {
	v, _ := ctx.Value(txTokenKey{}).(bool)
	return v
}

// RunInTransaction implements data.TransactionRunner with engine-wide
// snapshot semantics: all stores are snapshotted up front and restored when
// fn returns an error, giving all-or-nothing batches.
func (e *Engine) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTransaction(ctx) {
		return fn(ctx)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshots := make(map[string]storeSnapshot, len(e.repos))
	for id, repo := range e.repos {
		snapshots[id] = repo.store.snapshot()
	}

	if err := fn(context.WithValue(ctx, txTokenKey{}, true)); err != nil {
		for id, repo := range e.repos {
			if snap, ok := snapshots[id]; ok {
				repo.store.restore(snap)
			}
		}
		return err
	}
	return nil
}

// lockRead acquires the engine read lock unless already inside a transaction
func (e *Engine) lockRead(ctx context.Context) func() {
	if inTransaction(ctx) {
		return func() {}
	}
	e.mu.RLock()
	return e.mu.RUnlock
}

// lockWrite acquires the engine write lock unless already inside a
// transaction
func (e *Engine) lockWrite(ctx context.Context) func() {
	if inTransaction(ctx) {
		return func() {}
	}
	e.mu.Lock()
	return e.mu.Unlock
}

// store is an insertion-ordered entity store keyed by stringified id
type store struct {
	order []string
	byID  map[string]*data.Entity
}

func newStore() *store {
	return &store{byID: make(map[string]*data.Entity)}
}

type storeSnapshot struct {
	order []string
	byID  map[string]*data.Entity
}

func (s *store) snapshot() storeSnapshot {
	snap := storeSnapshot{
		order: append([]string(nil), s.order...),
		byID:  make(map[string]*data.Entity, len(s.byID)),
	}
	for k, v := range s.byID {
		snap.byID[k] = v.Clone()
	}
	return snap
}

func (s *store) restore(snap storeSnapshot) {
	s.order = snap.order
	s.byID = snap.byID
}

func (s *store) put(key string, entity *data.Entity) {
	if _, exists := s.byID[key]; !exists {
		s.order = append(s.order, key)
	}
	s.byID[key] = entity
}

func (s *store) get(key string) (*data.Entity, bool) {
	e, ok := s.byID[key]
	return e, ok
}

func (s *store) remove(key string) bool {
	if _, exists := s.byID[key]; !exists {
		return false
	}
	delete(s.byID, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *store) clear() {
	s.order = nil
	s.byID = make(map[string]*data.Entity)
}

func (s *store) all() []*data.Entity {
	out := make([]*data.Entity, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.byID[key])
	}
	return out
}

func (s *store) size() int {
	return len(s.byID)
}
