package decorator

import (
	"context"

	"go.uber.org/zap"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/query"
	"github.com/metagrid-platform/metagrid/internal/security"
)

// AuditDecorator writes a structured audit record for every mutating
// operation, naming the caller, the operation and the affected rows. Reads
// are not audited.
type AuditDecorator struct {
	Base
	log *zap.Logger
}

// NewAuditDecorator wraps a repository with audit logging
func NewAuditDecorator(delegate data.Repository, log *zap.Logger) *AuditDecorator {
	return &AuditDecorator{Base: NewBase(delegate), log: log}
}

func (d *AuditDecorator) audit(ctx context.Context, operation string, err error, fields ...zap.Field) {
	subject := security.SubjectFrom(ctx)
	fields = append(fields,
		zap.String("operation", operation),
		zap.String("entityType", d.EntityType().ID),
		zap.String("username", subject.Username),
	)
	if err != nil {
		d.log.Warn("audit", append(fields, zap.Error(err))...)
		return
	}
	d.log.Info("audit", fields...)
}

// Add persists a new entity and records the operation
func (d *AuditDecorator) Add(ctx context.Context, entity *data.Entity) error {
	err := d.Base.Add(ctx, entity)
	d.audit(ctx, "ADD", err, zap.Any("entityId", entity.ID()))
	return err
}

// AddAll persists a batch and records the operation
func (d *AuditDecorator) AddAll(ctx context.Context, entities []*data.Entity) error {
	err := d.Base.AddAll(ctx, entities)
	d.audit(ctx, "ADD_ALL", err, zap.Int("count", len(entities)))
	return err
}

// Update persists changes and records the operation
func (d *AuditDecorator) Update(ctx context.Context, entity *data.Entity) error {
	err := d.Base.Update(ctx, entity)
	d.audit(ctx, "UPDATE", err, zap.Any("entityId", entity.ID()))
	return err
}

// UpdateAll persists a batch of changes and records the operation
func (d *AuditDecorator) UpdateAll(ctx context.Context, entities []*data.Entity) error {
	err := d.Base.UpdateAll(ctx, entities)
	d.audit(ctx, "UPDATE_ALL", err, zap.Int("count", len(entities)))
	return err
}

// Delete removes an entity and records the operation
func (d *AuditDecorator) Delete(ctx context.Context, entity *data.Entity) error {
	id := entity.ID()
	err := d.Base.Delete(ctx, entity)
	d.audit(ctx, "DELETE", err, zap.Any("entityId", id))
	return err
}

// DeleteByID removes a row and records the operation
func (d *AuditDecorator) DeleteByID(ctx context.Context, id interface{}) error {
	err := d.Base.DeleteByID(ctx, id)
	d.audit(ctx, "DELETE", err, zap.Any("entityId", id))
	return err
}

// DeleteAll removes every row and records the operation
func (d *AuditDecorator) DeleteAll(ctx context.Context) error {
	err := d.Base.DeleteAll(ctx)
	d.audit(ctx, "DELETE_ALL", err)
	return err
}

// DeleteAllByID removes a batch of rows and records the operation
func (d *AuditDecorator) DeleteAllByID(ctx context.Context, ids []interface{}) error {
	err := d.Base.DeleteAllByID(ctx, ids)
	d.audit(ctx, "DELETE_ALL", err, zap.Int("count", len(ids)))
	return err
}

// Aggregate records aggregate reads, which can expose row counts
func (d *AuditDecorator) Aggregate(ctx context.Context, aq *query.AggregateQuery) (*query.AggregateResult, error) {
	result, err := d.Base.Aggregate(ctx, aq)
	d.audit(ctx, "AGGREGATE", err)
	return result, err
}
