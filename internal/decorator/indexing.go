package decorator

import (
	"context"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/index"
	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/query"
)

// IndexingDecorator keeps the search index in step with writes. Inside a
// transaction the index actions are deferred until commit, so a rolled
// back batch never reaches the index. Outside a transaction they are
// enqueued as soon as the backend write succeeds.
type IndexingDecorator struct {
	Base
	dispatcher *index.Dispatcher
}

// NewIndexingDecorator wraps a repository with index maintenance
func NewIndexingDecorator(delegate data.Repository, dispatcher *index.Dispatcher) *IndexingDecorator {
	return &IndexingDecorator{Base: NewBase(delegate), dispatcher: dispatcher}
}

// Add persists a new entity and indexes it
func (d *IndexingDecorator) Add(ctx context.Context, entity *data.Entity) error {
	if err := d.Base.Add(ctx, entity); err != nil {
		return err
	}
	d.dispatch(ctx, d.upsertActions([]*data.Entity{entity}))
	return nil
}

// AddAll persists a batch and indexes it
func (d *IndexingDecorator) AddAll(ctx context.Context, entities []*data.Entity) error {
	if err := d.Base.AddAll(ctx, entities); err != nil {
		return err
	}
	d.dispatch(ctx, d.upsertActions(entities))
	return nil
}

// Update persists changes and reindexes the row
func (d *IndexingDecorator) Update(ctx context.Context, entity *data.Entity) error {
	if err := d.Base.Update(ctx, entity); err != nil {
		return err
	}
	d.dispatch(ctx, d.upsertActions([]*data.Entity{entity}))
	return nil
}

// UpdateAll persists a batch of changes and reindexes the rows
func (d *IndexingDecorator) UpdateAll(ctx context.Context, entities []*data.Entity) error {
	if err := d.Base.UpdateAll(ctx, entities); err != nil {
		return err
	}
	d.dispatch(ctx, d.upsertActions(entities))
	return nil
}

// Delete removes an entity and its document
func (d *IndexingDecorator) Delete(ctx context.Context, entity *data.Entity) error {
	id := entity.ID()
	if err := d.Base.Delete(ctx, entity); err != nil {
		return err
	}
	d.dispatch(ctx, d.deleteActions([]interface{}{id}))
	return nil
}

// DeleteByID removes a row and its document
func (d *IndexingDecorator) DeleteByID(ctx context.Context, id interface{}) error {
	if err := d.Base.DeleteByID(ctx, id); err != nil {
		return err
	}
	d.dispatch(ctx, d.deleteActions([]interface{}{id}))
	return nil
}

// DeleteAll removes every row and drops the type's index
func (d *IndexingDecorator) DeleteAll(ctx context.Context) error {
	if err := d.Base.DeleteAll(ctx); err != nil {
		return err
	}
	d.dispatch(ctx, []index.Action{{Op: index.OpDeleteAll, EntityTypeID: d.EntityType().ID}})
	return nil
}

// DeleteAllByID removes a batch of rows and their documents
func (d *IndexingDecorator) DeleteAllByID(ctx context.Context, ids []interface{}) error {
	if err := d.Base.DeleteAllByID(ctx, ids); err != nil {
		return err
	}
	d.dispatch(ctx, d.deleteActions(ids))
	return nil
}

func (d *IndexingDecorator) upsertActions(entities []*data.Entity) []index.Action {
	et := d.EntityType()
	actions := make([]index.Action, 0, len(entities))
	for _, entity := range entities {
		actions = append(actions, index.Action{
			Op:           index.OpIndex,
			EntityTypeID: et.ID,
			EntityID:     entity.ID(),
			Document:     indexDocument(et, entity),
		})
	}
	return actions
}

func (d *IndexingDecorator) deleteActions(ids []interface{}) []index.Action {
	et := d.EntityType()
	actions := make([]index.Action, 0, len(ids))
	for _, id := range ids {
		actions = append(actions, index.Action{
			Op:           index.OpDelete,
			EntityTypeID: et.ID,
			EntityID:     id,
		})
	}
	return actions
}

func (d *IndexingDecorator) dispatch(ctx context.Context, actions []index.Action) {
	if tx := data.TxFrom(ctx); tx != nil {
		tx.OnCommit(func(ctx context.Context) {
			for _, action := range actions {
				d.dispatcher.Enqueue(action)
			}
		})
		return
	}
	for _, action := range actions {
		d.dispatcher.Enqueue(action)
	}
}

// indexDocument collects the searchable scalar values of a row
func indexDocument(et *meta.EntityType, entity *data.Entity) map[string]interface{} {
	doc := make(map[string]interface{})
	for _, attr := range et.AtomicAttributes() {
		if attr.Type.IsReference() {
			continue
		}
		if value := entity.Get(attr.Name); value != nil {
			doc[attr.Name] = value
		}
	}
	return doc
}

// Search resolves a free text term to matching ids through the index, for
// use by backends without native search.
func (d *IndexingDecorator) Search(ctx context.Context, indexer index.Indexer, term string) (data.Iterator, error) {
	ids, err := indexer.Search(ctx, d.EntityType().ID, term)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return data.NewSliceIterator(nil), nil
	}
	return d.Base.FindAll(ctx, query.New().In(d.EntityType().IDAttributeName, ids))
}
