package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/query"
)

// Repository is the in-memory backend adapter for one entity type
type Repository struct {
	engine     *Engine
	entityType *meta.EntityType
	store      *store
}

func newRepository(engine *Engine, entityType *meta.EntityType) *Repository {
	return &Repository{
		engine:     engine,
		entityType: entityType,
		store:      newStore(),
	}
}

// EntityType returns the entity type served by this repository
func (r *Repository) EntityType() *meta.EntityType {
	return r.entityType
}

func idKey(id interface{}) string {
	return fmt.Sprintf("%v", id)
}

// Add persists a new entity, rejecting duplicate ids
func (r *Repository) Add(ctx context.Context, entity *data.Entity) error {
	return r.AddAll(ctx, []*data.Entity{entity})
}

// AddAll persists a batch of new entities in order
func (r *Repository) AddAll(ctx context.Context, entities []*data.Entity) error {
	unlock := r.engine.lockWrite(ctx)
	defer unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, entity := range entities {
		id := entity.ID()
		if id == nil {
			return data.NewInvariant("entity of type %s has no id value", r.entityType.ID)
		}
		key := idKey(id)
		if _, exists := r.store.get(key); exists {
			return data.NewValidation(fmt.Sprintf("Duplicate id [%v] for entity [%s]", id, r.entityType.ID))
		}
		r.store.put(key, entity.Clone())
	}
	return nil
}

// Update persists changes to an existing entity
func (r *Repository) Update(ctx context.Context, entity *data.Entity) error {
	return r.UpdateAll(ctx, []*data.Entity{entity})
}

// UpdateAll persists changes to a batch of entities in order
func (r *Repository) UpdateAll(ctx context.Context, entities []*data.Entity) error {
	unlock := r.engine.lockWrite(ctx)
	defer unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, entity := range entities {
		id := entity.ID()
		key := idKey(id)
		if _, exists := r.store.get(key); !exists {
			return data.NewUnknownEntity(r.entityType.ID, id)
		}
		r.store.put(key, entity.Clone())
	}
	return nil
}

// Delete removes an entity
func (r *Repository) Delete(ctx context.Context, entity *data.Entity) error {
	return r.DeleteByID(ctx, entity.ID())
}

// DeleteByID removes the entity with the given id
func (r *Repository) DeleteByID(ctx context.Context, id interface{}) error {
	unlock := r.engine.lockWrite(ctx)
	defer unlock()
	if !r.store.remove(idKey(id)) {
		return data.NewUnknownEntity(r.entityType.ID, id)
	}
	return nil
}

// DeleteAll removes every entity
func (r *Repository) DeleteAll(ctx context.Context) error {
	unlock := r.engine.lockWrite(ctx)
	defer unlock()
	r.store.clear()
	return nil
}

// DeleteAllByID removes the entities with the given ids
func (r *Repository) DeleteAllByID(ctx context.Context, ids []interface{}) error {
	unlock := r.engine.lockWrite(ctx)
	defer unlock()
	for _, id := range ids {
		if !r.store.remove(idKey(id)) {
			return data.NewUnknownEntity(r.entityType.ID, id)
		}
	}
	return nil
}

// FindOneByID returns the entity with the given id, or nil when absent
func (r *Repository) FindOneByID(ctx context.Context, id interface{}, fetch *query.Fetch) (*data.Entity, error) {
	unlock := r.engine.lockRead(ctx)
	defer unlock()
	entity, ok := r.store.get(idKey(id))
	if !ok {
		return nil, nil
	}
	return projectEntity(entity, fetch), nil
}

// FindOne returns the first entity matching the query, or nil
func (r *Repository) FindOne(ctx context.Context, q *query.Query) (*data.Entity, error) {
	q = q.Clone()
	q.Offset = 0
	q.PageSize = 1
	it, err := r.FindAll(ctx, q)
	if err != nil {
		return nil, err
	}
	entities, err := data.Collect(it)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, nil
	}
	return entities[0], nil
}

// FindAll evaluates the query against the store, applying filter, sort,
// offset and page size.
func (r *Repository) FindAll(ctx context.Context, q *query.Query) (data.Iterator, error) {
	unlock := r.engine.lockRead(ctx)
	matched, err := r.matchAll(ctx, q)
	unlock()
	if err != nil {
		return nil, err
	}
	if q != nil && q.Sort != nil {
		if err := r.sortEntities(matched, q.Sort); err != nil {
			return nil, err
		}
	}
	matched = page(matched, q)
	if q != nil && q.Fetch != nil {
		for i, e := range matched {
			matched[i] = projectEntity(e, q.Fetch)
		}
	}
	return data.NewSliceIterator(matched), nil
}

// Count returns the number of matching entities, ignoring paging
func (r *Repository) Count(ctx context.Context, q *query.Query) (int64, error) {
	unlock := r.engine.lockRead(ctx)
	defer unlock()
	matched, err := r.matchAll(ctx, q)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

// Iterator returns a full-scan sequence over the current store contents
func (r *Repository) Iterator(ctx context.Context) (data.Iterator, error) {
	unlock := r.engine.lockRead(ctx)
	defer unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return data.NewSliceIterator(cloneAll(r.store.all())), nil
}

// Close releases the store
func (r *Repository) Close() error {
	return nil
}

func (r *Repository) matchAll(ctx context.Context, q *query.Query) ([]*data.Entity, error) {
	var matched []*data.Entity
	for _, entity := range r.store.all() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := r.matches(entity, rulesOf(q))
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, entity.Clone())
		}
	}
	return matched, nil
}

func rulesOf(q *query.Query) []query.Rule {
	if q == nil {
		return nil
	}
	return q.Rules
}

func (r *Repository) matches(entity *data.Entity, rules []query.Rule) (bool, error) {
	for _, rule := range rules {
		ok, err := r.matchRule(entity, rule)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (r *Repository) matchRule(entity *data.Entity, rule query.Rule) (bool, error) {
	switch rule.Op {
	case query.OpAnd:
		return r.matches(entity, rule.Nested)
	case query.OpOr:
		for _, nested := range rule.Nested {
			ok, err := r.matchRule(entity, nested)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case query.OpNot:
		if len(rule.Nested) != 1 {
			return false, data.NewQueryError("NOT requires exactly one nested rule")
		}
		ok, err := r.matchRule(entity, rule.Nested[0])
		return !ok, err
	case query.OpSearch:
		return r.matchSearch(entity, rule.Value), nil
	}

	if r.entityType.Attribute(rule.Attr) == nil {
		return false, data.NewUnknownAttribute(r.entityType.ID, rule.Attr)
	}
	value := entity.Get(rule.Attr)

	switch rule.Op {
	case query.OpEqual:
		return equalValues(value, rule.Value), nil
	case query.OpIn:
		for _, candidate := range rule.Values {
			if equalValues(value, candidate) {
				return true, nil
			}
		}
		// multi-reference attributes match when any referenced id is in
		// the operand list
		if ids, ok := value.([]interface{}); ok {
			for _, id := range ids {
				for _, candidate := range rule.Values {
					if equalValues(id, candidate) {
						return true, nil
					}
				}
			}
		}
		return false, nil
	case query.OpGreater, query.OpGreaterEqual, query.OpLess, query.OpLessEqual:
		cmp, ok := compareValues(value, rule.Value)
		if !ok {
			return false, nil
		}
		switch rule.Op {
		case query.OpGreater:
			return cmp > 0, nil
		case query.OpGreaterEqual:
			return cmp >= 0, nil
		case query.OpLess:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case query.OpLike:
		return matchLike(value, rule.Value), nil
	case query.OpRange:
		if len(rule.Values) != 2 {
			return false, data.NewQueryError("RANGE requires exactly two operands")
		}
		lo, okLo := compareValues(value, rule.Values[0])
		hi, okHi := compareValues(value, rule.Values[1])
		return okLo && okHi && lo >= 0 && hi <= 0, nil
	default:
		return false, data.NewQueryError("unsupported query operator [%s]", rule.Op)
	}
}

func (r *Repository) matchSearch(entity *data.Entity, term interface{}) bool {
	needle := strings.ToLower(fmt.Sprintf("%v", term))
	for _, attr := range r.entityType.AtomicAttributes() {
		v := entity.Get(attr.Name)
		if v == nil {
			continue
		}
		if strings.Contains(strings.ToLower(fmt.Sprintf("%v", v)), needle) {
			return true
		}
	}
	return false
}

func (r *Repository) sortEntities(entities []*data.Entity, s *query.Sort) error {
	for _, order := range s.Orders {
		if r.entityType.Attribute(order.Attr) == nil {
			return data.NewUnknownAttribute(r.entityType.ID, order.Attr)
		}
	}
	sort.SliceStable(entities, func(i, j int) bool {
		for _, order := range s.Orders {
			cmp, ok := compareValues(entities[i].Get(order.Attr), entities[j].Get(order.Attr))
			if !ok || cmp == 0 {
				continue
			}
			if order.Direction == query.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return nil
}

func page(entities []*data.Entity, q *query.Query) []*data.Entity {
	if q == nil {
		return entities
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > len(entities) {
		offset = len(entities)
	}
	entities = entities[offset:]
	if q.PageSize > query.UnlimitedPageSize && q.PageSize < len(entities) {
		entities = entities[:q.PageSize]
	}
	return entities
}

func projectEntity(entity *data.Entity, fetch *query.Fetch) *data.Entity {
	if fetch == nil {
		return entity.Clone()
	}
	projected := data.NewEntity(entity.EntityType())
	idAttr := entity.EntityType().IDAttribute()
	if idAttr != nil {
		projected.Set(idAttr.Name, entity.Get(idAttr.Name))
	}
	for _, attr := range fetch.Attrs() {
		if entity.Has(attr) {
			projected.Set(attr, entity.Get(attr))
		}
	}
	return projected
}

func cloneAll(entities []*data.Entity) []*data.Entity {
	out := make([]*data.Entity, len(entities))
	for i, e := range entities {
		out[i] = e.Clone()
	}
	return out
}
