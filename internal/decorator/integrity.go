package decorator

import (
	"context"
	"fmt"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/query"
)

// RepositoryResolver looks up the repository of another entity type. The
// data service satisfies it.
type RepositoryResolver interface {
	Repository(entityTypeID string) (data.Repository, error)
}

// IntegrityDecorator enforces referential integrity. On add and update,
// every reference value must resolve to an existing row of the referenced
// type. On delete, the row must not be referenced by surviving rows of any
// referring type.
type IntegrityDecorator struct {
	Base
	registry *meta.Registry
	resolver RepositoryResolver
}

// NewIntegrityDecorator wraps a repository with referential integrity checks
func NewIntegrityDecorator(delegate data.Repository, registry *meta.Registry, resolver RepositoryResolver) *IntegrityDecorator {
	return &IntegrityDecorator{Base: NewBase(delegate), registry: registry, resolver: resolver}
}

// Add persists a new entity after checking its references resolve
func (d *IntegrityDecorator) Add(ctx context.Context, entity *data.Entity) error {
	return d.AddAll(ctx, []*data.Entity{entity})
}

// AddAll persists a batch after checking all references resolve
func (d *IntegrityDecorator) AddAll(ctx context.Context, entities []*data.Entity) error {
	if err := d.checkReferences(ctx, entities); err != nil {
		return err
	}
	return d.Base.AddAll(ctx, entities)
}

// Update persists changes after checking references resolve
func (d *IntegrityDecorator) Update(ctx context.Context, entity *data.Entity) error {
	return d.UpdateAll(ctx, []*data.Entity{entity})
}

// UpdateAll persists a batch of changes after checking references resolve
func (d *IntegrityDecorator) UpdateAll(ctx context.Context, entities []*data.Entity) error {
	if err := d.checkReferences(ctx, entities); err != nil {
		return err
	}
	return d.Base.UpdateAll(ctx, entities)
}

// Delete removes an entity unless other rows still reference it
func (d *IntegrityDecorator) Delete(ctx context.Context, entity *data.Entity) error {
	return d.DeleteByID(ctx, entity.ID())
}

// DeleteByID removes a row unless other rows still reference it
func (d *IntegrityDecorator) DeleteByID(ctx context.Context, id interface{}) error {
	if err := d.checkReferrers(ctx, []interface{}{id}); err != nil {
		return err
	}
	return d.Base.DeleteByID(ctx, id)
}

// DeleteAllByID removes a batch of rows unless other rows still reference
// them
func (d *IntegrityDecorator) DeleteAllByID(ctx context.Context, ids []interface{}) error {
	if err := d.checkReferrers(ctx, ids); err != nil {
		return err
	}
	return d.Base.DeleteAllByID(ctx, ids)
}

// DeleteAll removes every row unless another type still references this one
func (d *IntegrityDecorator) DeleteAll(ctx context.Context) error {
	et := d.EntityType()
	for _, ref := range d.registry.ReferrersTo(et.ID) {
		if ref.EntityType.ID == et.ID {
			continue
		}
		repo, err := d.resolver.Repository(ref.EntityType.ID)
		if err != nil {
			continue
		}
		count, err := repo.Count(ctx, query.New())
		if err != nil {
			return err
		}
		if count > 0 {
			return data.NewValidation(fmt.Sprintf(
				"Data of entity '%s' is still referenced by attribute '%s' of entity '%s'",
				et.ID, ref.Attribute.Name, ref.EntityType.ID))
		}
	}
	return d.Base.DeleteAll(ctx)
}

// checkReferences verifies every reference value of the batch resolves to
// an existing row. Lookups are bulked per referenced type so a batch does
// one query per reference attribute.
func (d *IntegrityDecorator) checkReferences(ctx context.Context, entities []*data.Entity) error {
	et := d.EntityType()
	var messages []string
	for _, attr := range et.AtomicAttributes() {
		if !attr.Type.IsReference() || attr.RefEntity == nil {
			continue
		}
		if attr.MappedBy != "" {
			// The referenced side owns mappedBy values
			continue
		}
		wanted := make(map[string]interface{})
		for _, entity := range entities {
			for _, refID := range entity.GetRefIDs(attr.Name) {
				if refID != nil {
					wanted[fmt.Sprintf("%v", refID)] = refID
				}
			}
		}
		if len(wanted) == 0 {
			continue
		}
		// Self-references may point at rows of the same batch
		if attr.RefEntity.ID == et.ID {
			for _, entity := range entities {
				delete(wanted, fmt.Sprintf("%v", entity.ID()))
			}
			if len(wanted) == 0 {
				continue
			}
		}
		repo, err := d.resolver.Repository(attr.RefEntity.ID)
		if err != nil {
			return err
		}
		ids := make([]interface{}, 0, len(wanted))
		for _, id := range wanted {
			ids = append(ids, id)
		}
		refIDAttr := attr.RefEntity.IDAttributeName
		it, err := repo.FindAll(ctx, query.New().In(refIDAttr, ids))
		if err != nil {
			return err
		}
		found, err := data.Collect(it)
		if err != nil {
			return err
		}
		for _, ref := range found {
			delete(wanted, fmt.Sprintf("%v", ref.ID()))
		}
		for _, missing := range wanted {
			messages = append(messages, fmt.Sprintf(
				"Unknown xref value '%v' for attribute '%s' of entity '%s'.",
				missing, attr.Name, et.ID))
		}
	}
	if len(messages) > 0 {
		return data.NewValidation(messages...)
	}
	return nil
}

// checkReferrers rejects the delete when surviving rows of a referring type
// still point at one of the ids
func (d *IntegrityDecorator) checkReferrers(ctx context.Context, ids []interface{}) error {
	et := d.EntityType()
	deleted := make(map[string]bool, len(ids))
	for _, id := range ids {
		deleted[fmt.Sprintf("%v", id)] = true
	}
	for _, ref := range d.registry.ReferrersTo(et.ID) {
		repo, err := d.resolver.Repository(ref.EntityType.ID)
		if err != nil {
			continue
		}
		it, err := repo.FindAll(ctx, query.New().In(ref.Attribute.Name, ids))
		if err != nil {
			return err
		}
		referrers, err := data.Collect(it)
		if err != nil {
			return err
		}
		for _, referrer := range referrers {
			// Rows deleted in the same batch do not block the delete
			if ref.EntityType.ID == et.ID && deleted[fmt.Sprintf("%v", referrer.ID())] {
				continue
			}
			return data.NewValidation(fmt.Sprintf(
				"Value '%v' for attribute '%s' is referenced by entity '%s'",
				referrer.Get(ref.Attribute.Name), ref.Attribute.Name, ref.EntityType.ID))
		}
	}
	return nil
}
