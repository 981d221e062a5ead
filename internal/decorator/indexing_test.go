package decorator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metagrid-platform/metagrid/internal/data"
)

func TestIndexing_AddIndexesDocument(t *testing.T) {
	f := newFixture(t)
	f.addBook(t, "b1", "The Go Programming Language", "")
	f.dispatcher.Wait()

	ids, err := f.indexer.Search(context.Background(), "books", "programming")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"b1"}, ids)
}

func TestIndexing_UpdateReindexes(t *testing.T) {
	f := newFixture(t)
	f.addBook(t, "b1", "Old Title", "")

	et, _ := f.registry.EntityType("books")
	update := data.NewEntity(et)
	update.Set("id", "b1")
	update.Set("title", "New Title")
	require.NoError(t, f.repo(t, "books").Update(sysCtx(), update))
	f.dispatcher.Wait()

	ids, err := f.indexer.Search(context.Background(), "books", "new title")
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	ids, err = f.indexer.Search(context.Background(), "books", "old title")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestIndexing_DeleteRemovesDocument(t *testing.T) {
	f := newFixture(t)
	f.addBook(t, "b1", "Go", "")
	require.NoError(t, f.repo(t, "books").DeleteByID(sysCtx(), "b1"))
	f.dispatcher.Wait()

	assert.Zero(t, f.indexer.Size("books"))
}

func TestIndexing_RolledBackTransactionNeverIndexes(t *testing.T) {
	f := newFixture(t)

	err := f.svc.RunInTransaction(sysCtx(), func(ctx context.Context) error {
		if err := f.repo(t, "books").Add(ctx, f.newBook("b1", "Go")); err != nil {
			return err
		}
		return data.NewInvariant("forced rollback")
	})
	require.Error(t, err)
	f.dispatcher.Wait()

	assert.Zero(t, f.indexer.Size("books"))
	assert.Empty(t, findAll(t, sysCtx(), f.repo(t, "books")))
}

func TestIndexing_CommittedTransactionIndexesAfterCommit(t *testing.T) {
	f := newFixture(t)

	err := f.svc.RunInTransaction(sysCtx(), func(ctx context.Context) error {
		return f.repo(t, "books").Add(ctx, f.newBook("b1", "Go"))
	})
	require.NoError(t, err)
	f.dispatcher.Wait()

	ids, searchErr := f.indexer.Search(context.Background(), "books", "go")
	require.NoError(t, searchErr)
	assert.Equal(t, []interface{}{"b1"}, ids)
}
