package decorator

import (
	"context"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/query"
	"github.com/metagrid-platform/metagrid/internal/security"
)

// PermissionDecorator enforces the caller's permissions on the entity type.
// Collection reads degrade silently to empty results when READ is missing,
// so listings never leak which types exist. Lookups by id and all writes
// fail closed. Writes against system metadata types require WRITEMETA
// because they change the model itself; a WRITEMETA grant on the package a
// metadata row belongs to authorizes the write as well, so a subject can be
// given a namespace to define types in without a grant on the metadata
// types themselves.
type PermissionDecorator struct {
	Base
	evaluator security.Evaluator
}

// NewPermissionDecorator wraps a repository with permission checks
func NewPermissionDecorator(delegate data.Repository, evaluator security.Evaluator) *PermissionDecorator {
	return &PermissionDecorator{Base: NewBase(delegate), evaluator: evaluator}
}

func (d *PermissionDecorator) identity() security.ObjectIdentity {
	return security.EntityTypeIdentity(d.EntityType().ID)
}

func (d *PermissionDecorator) has(ctx context.Context, p security.Permission) bool {
	return d.evaluator.HasPermission(ctx, d.identity(), p)
}

func (d *PermissionDecorator) checkWrite(ctx context.Context) error {
	required := security.PermissionWrite
	if meta.IsSystem(d.EntityType().ID) {
		required = security.PermissionWriteMeta
	}
	if !d.has(ctx, required) {
		return data.NewPermissionDenied(required.String(), d.EntityType().ID)
	}
	return nil
}

// checkWriteEntity authorizes a write of one row. For metadata rows a
// WRITEMETA grant on the row's package stands in for the entity-type grant.
func (d *PermissionDecorator) checkWriteEntity(ctx context.Context, entity *data.Entity) error {
	if !meta.IsSystem(d.EntityType().ID) {
		return d.checkWrite(ctx)
	}
	if d.has(ctx, security.PermissionWriteMeta) {
		return nil
	}
	if pkg, ok := entity.Get("package").(string); ok && pkg != "" {
		if d.evaluator.HasPermission(ctx, security.PackageIdentity(pkg), security.PermissionWriteMeta) {
			return nil
		}
	}
	return data.NewPermissionDenied(security.PermissionWriteMeta.String(), d.EntityType().ID)
}

func (d *PermissionDecorator) checkWriteAll(ctx context.Context, entities []*data.Entity) error {
	for _, entity := range entities {
		if err := d.checkWriteEntity(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}

// Add persists a new entity after a write permission check
func (d *PermissionDecorator) Add(ctx context.Context, entity *data.Entity) error {
	if err := d.checkWriteEntity(ctx, entity); err != nil {
		return err
	}
	return d.Base.Add(ctx, entity)
}

// AddAll persists a batch after a write permission check
func (d *PermissionDecorator) AddAll(ctx context.Context, entities []*data.Entity) error {
	if err := d.checkWriteAll(ctx, entities); err != nil {
		return err
	}
	return d.Base.AddAll(ctx, entities)
}

// Update persists changes after a write permission check
func (d *PermissionDecorator) Update(ctx context.Context, entity *data.Entity) error {
	if err := d.checkWriteEntity(ctx, entity); err != nil {
		return err
	}
	return d.Base.Update(ctx, entity)
}

// UpdateAll persists a batch of changes after a write permission check
func (d *PermissionDecorator) UpdateAll(ctx context.Context, entities []*data.Entity) error {
	if err := d.checkWriteAll(ctx, entities); err != nil {
		return err
	}
	return d.Base.UpdateAll(ctx, entities)
}

// Delete removes an entity after a write permission check
func (d *PermissionDecorator) Delete(ctx context.Context, entity *data.Entity) error {
	if err := d.checkWriteEntity(ctx, entity); err != nil {
		return err
	}
	return d.Base.Delete(ctx, entity)
}

// DeleteByID removes an entity after a write permission check
func (d *PermissionDecorator) DeleteByID(ctx context.Context, id interface{}) error {
	if err := d.checkWrite(ctx); err != nil {
		return err
	}
	return d.Base.DeleteByID(ctx, id)
}

// DeleteAll removes every entity after a write permission check
func (d *PermissionDecorator) DeleteAll(ctx context.Context) error {
	if err := d.checkWrite(ctx); err != nil {
		return err
	}
	return d.Base.DeleteAll(ctx)
}

// DeleteAllByID removes a batch after a write permission check
func (d *PermissionDecorator) DeleteAllByID(ctx context.Context, ids []interface{}) error {
	if err := d.checkWrite(ctx); err != nil {
		return err
	}
	return d.Base.DeleteAllByID(ctx, ids)
}

// FindOneByID fails closed without READ permission
func (d *PermissionDecorator) FindOneByID(ctx context.Context, id interface{}, fetch *query.Fetch) (*data.Entity, error) {
	if !d.has(ctx, security.PermissionRead) {
		return nil, data.NewPermissionDenied(security.PermissionRead.String(), d.EntityType().ID)
	}
	return d.Base.FindOneByID(ctx, id, fetch)
}

// FindOne returns nil without READ permission
func (d *PermissionDecorator) FindOne(ctx context.Context, q *query.Query) (*data.Entity, error) {
	if !d.has(ctx, security.PermissionRead) {
		return nil, nil
	}
	return d.Base.FindOne(ctx, q)
}

// FindAll returns an empty sequence without READ permission
func (d *PermissionDecorator) FindAll(ctx context.Context, q *query.Query) (data.Iterator, error) {
	if !d.has(ctx, security.PermissionRead) {
		return data.NewSliceIterator(nil), nil
	}
	return d.Base.FindAll(ctx, q)
}

// Count returns zero without COUNT permission
func (d *PermissionDecorator) Count(ctx context.Context, q *query.Query) (int64, error) {
	if !d.has(ctx, security.PermissionCount) {
		return 0, nil
	}
	return d.Base.Count(ctx, q)
}

// Aggregate fails closed without COUNT permission
func (d *PermissionDecorator) Aggregate(ctx context.Context, aq *query.AggregateQuery) (*query.AggregateResult, error) {
	if !d.has(ctx, security.PermissionCount) {
		return nil, data.NewPermissionDenied(security.PermissionCount.String(), d.EntityType().ID)
	}
	return d.Base.Aggregate(ctx, aq)
}

// Iterator returns an empty sequence without READ permission
func (d *PermissionDecorator) Iterator(ctx context.Context) (data.Iterator, error) {
	if !d.has(ctx, security.PermissionRead) {
		return data.NewSliceIterator(nil), nil
	}
	return d.Base.Iterator(ctx)
}
