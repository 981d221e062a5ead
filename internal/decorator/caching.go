package decorator

import (
	"context"
	"encoding/json"

	"github.com/metagrid-platform/metagrid/internal/cache"
	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/query"
)

// CachingDecorator memoizes id lookups. Cache keys embed the metadata
// generation counter, so a model change makes every previously cached row
// unreachable without an explicit flush. Row writes evict the affected
// keys directly.
type CachingDecorator struct {
	Base
	cache    cache.Cache
	registry *meta.Registry
}

// NewCachingDecorator wraps a repository with an id lookup cache
func NewCachingDecorator(delegate data.Repository, c cache.Cache, registry *meta.Registry) *CachingDecorator {
	return &CachingDecorator{Base: NewBase(delegate), cache: c, registry: registry}
}

func (d *CachingDecorator) key(id interface{}) string {
	return cache.EntityKey(d.EntityType().ID, d.registry.Generation(), id)
}

// FindOneByID serves the row from cache when possible. Only unrestricted
// lookups are cached; a fetch narrows the row and would poison later full
// reads.
func (d *CachingDecorator) FindOneByID(ctx context.Context, id interface{}, fetch *query.Fetch) (*data.Entity, error) {
	if fetch != nil || data.TxFrom(ctx) != nil {
		return d.Base.FindOneByID(ctx, id, fetch)
	}

	key := d.key(id)
	if raw, err := d.cache.Get(ctx, key); err == nil {
		if entity, err := decodeEntity(d.EntityType(), raw); err == nil {
			return entity, nil
		}
		// Undecodable entries are stale, drop and fall through
		_ = d.cache.Delete(ctx, key)
	}

	entity, err := d.Base.FindOneByID(ctx, id, nil)
	if err != nil || entity == nil {
		return entity, err
	}
	if raw, err := encodeEntity(entity); err == nil {
		_ = d.cache.Set(ctx, key, raw, 0)
	}
	return entity, nil
}

// Add persists a new entity and evicts its key
func (d *CachingDecorator) Add(ctx context.Context, entity *data.Entity) error {
	if err := d.Base.Add(ctx, entity); err != nil {
		return err
	}
	d.evictEntities(ctx, []*data.Entity{entity})
	return nil
}

// AddAll persists a batch and evicts its keys
func (d *CachingDecorator) AddAll(ctx context.Context, entities []*data.Entity) error {
	if err := d.Base.AddAll(ctx, entities); err != nil {
		return err
	}
	d.evictEntities(ctx, entities)
	return nil
}

// Update persists changes and evicts the row's key
func (d *CachingDecorator) Update(ctx context.Context, entity *data.Entity) error {
	if err := d.Base.Update(ctx, entity); err != nil {
		return err
	}
	d.evictEntities(ctx, []*data.Entity{entity})
	return nil
}

// UpdateAll persists a batch of changes and evicts their keys
func (d *CachingDecorator) UpdateAll(ctx context.Context, entities []*data.Entity) error {
	if err := d.Base.UpdateAll(ctx, entities); err != nil {
		return err
	}
	d.evictEntities(ctx, entities)
	return nil
}

// Delete removes an entity and evicts its key
func (d *CachingDecorator) Delete(ctx context.Context, entity *data.Entity) error {
	id := entity.ID()
	if err := d.Base.Delete(ctx, entity); err != nil {
		return err
	}
	d.evictIDs(ctx, []interface{}{id})
	return nil
}

// DeleteByID removes a row and evicts its key
func (d *CachingDecorator) DeleteByID(ctx context.Context, id interface{}) error {
	if err := d.Base.DeleteByID(ctx, id); err != nil {
		return err
	}
	d.evictIDs(ctx, []interface{}{id})
	return nil
}

// DeleteAll removes every row and clears the cache
func (d *CachingDecorator) DeleteAll(ctx context.Context) error {
	if err := d.Base.DeleteAll(ctx); err != nil {
		return err
	}
	_ = d.cache.Clear(ctx)
	return nil
}

// DeleteAllByID removes a batch of rows and evicts their keys
func (d *CachingDecorator) DeleteAllByID(ctx context.Context, ids []interface{}) error {
	if err := d.Base.DeleteAllByID(ctx, ids); err != nil {
		return err
	}
	d.evictIDs(ctx, ids)
	return nil
}

func (d *CachingDecorator) evictEntities(ctx context.Context, entities []*data.Entity) {
	ids := make([]interface{}, 0, len(entities))
	for _, entity := range entities {
		ids = append(ids, entity.ID())
	}
	d.evictIDs(ctx, ids)
}

func (d *CachingDecorator) evictIDs(ctx context.Context, ids []interface{}) {
	evict := func(ctx context.Context) {
		for _, id := range ids {
			_ = d.cache.Delete(ctx, d.key(id))
		}
	}
	// Keys written before the transaction must outlive a rollback, so the
	// eviction itself is safe to defer
	if tx := data.TxFrom(ctx); tx != nil {
		tx.OnCommit(evict)
		return
	}
	evict(ctx)
}

func encodeEntity(entity *data.Entity) ([]byte, error) {
	values := make(map[string]interface{}, entity.ValueCount())
	for _, name := range entity.AttributeNames() {
		values[name] = entity.Get(name)
	}
	return json.Marshal(values)
}

func decodeEntity(et *meta.EntityType, raw []byte) (*data.Entity, error) {
	var values map[string]interface{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	entity := data.NewEntity(et)
	for name, value := range values {
		entity.Set(name, value)
	}
	return entity, nil
}
