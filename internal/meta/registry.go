package meta

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Registry is the process-wide metadata cache. It is read-mostly; every
// metadata write through the pipeline bumps the generation counter so
// dependent caches can detect staleness with a single coherence protocol.
type Registry struct {
	mu          sync.RWMutex
	entityTypes map[string]*EntityType
	packages    map[string]*Package
	tags        map[string]*Tag
	validator   *Validator
	generation  atomic.Uint64
}

// NewRegistry creates an empty metadata registry
func NewRegistry() *Registry {
	return &Registry{
		entityTypes: make(map[string]*EntityType),
		packages:    make(map[string]*Package),
		tags:        make(map[string]*Tag),
		validator:   NewValidator(),
	}
}

// Generation returns the current metadata generation. It increases on every
// registry mutation.
func (r *Registry) Generation() uint64 {
	return r.generation.Load()
}

// Register adds or replaces an entity type. The entity type must pass
// metadata validation unless relaxed is set (used during bootstrap for
// self-referencing root schemas).
func (r *Registry) Register(et *EntityType) error {
	return r.register(et, false)
}

// RegisterRelaxed adds an entity type without validating it
func (r *Registry) RegisterRelaxed(et *EntityType) error {
	return r.register(et, true)
}

func (r *Registry) register(et *EntityType, relaxed bool) error {
	if !relaxed {
		if msgs := r.validator.ValidateEntityType(et); len(msgs) > 0 {
			return fmt.Errorf("entity type %s is invalid: %s", et.ID, msgs[0])
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entityTypes[et.ID] = et
	r.generation.Add(1)
	return nil
}

// EntityType retrieves an entity type by id
func (r *Registry) EntityType(id string) (*EntityType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	et, ok := r.entityTypes[id]
	return et, ok
}

// Remove deletes an entity type from the registry
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entityTypes, id)
	r.generation.Add(1)
}

// EntityTypeIDs returns the registered entity type ids, sorted
func (r *Registry) EntityTypeIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entityTypes))
	for id := range r.entityTypes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EntityTypes returns a copy of the registered entity types
func (r *Registry) EntityTypes() map[string]*EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*EntityType, len(r.entityTypes))
	for id, et := range r.entityTypes {
		out[id] = et
	}
	return out
}

// RegisterPackage adds or replaces a package
func (r *Registry) RegisterPackage(p *Package) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packages[p.ID] = p
	r.generation.Add(1)
}

// Package retrieves a package by id
func (r *Registry) Package(id string) (*Package, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.packages[id]
	return p, ok
}

// RegisterTag adds or replaces a tag
func (r *Registry) RegisterTag(t *Tag) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags[t.ID] = t
	r.generation.Add(1)
}

// Tag retrieves a tag by id
func (r *Registry) Tag(id string) (*Tag, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tags[id]
	return t, ok
}

// ReferrersTo returns the (entityType, attribute) pairs whose reference
// attributes point at the given entity type. Used for referential integrity
// checks on delete.
func (r *Registry) ReferrersTo(entityTypeID string) []Referrer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Referrer
	for _, et := range r.entityTypes {
		for _, attr := range et.AtomicAttributes() {
			if attr.Type.IsReference() && attr.RefEntity != nil && attr.RefEntity.ID == entityTypeID {
				out = append(out, Referrer{EntityType: et, Attribute: attr})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityType.ID != out[j].EntityType.ID {
			return out[i].EntityType.ID < out[j].EntityType.ID
		}
		return out[i].Attribute.Name < out[j].Attribute.Name
	})
	return out
}

// Referrer identifies a reference attribute on an entity type
type Referrer struct {
	EntityType *EntityType
	Attribute  *Attribute
}
