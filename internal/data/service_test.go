package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/query"
)

// recordingRunner counts transactions and fails when told to
type recordingRunner struct {
	runs int
	fail error
}

func (r *recordingRunner) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	r.runs++
	if err := fn(ctx); err != nil {
		return err
	}
	return r.fail
}

// stubRepository records queries and returns one entity per requested id
type stubRepository struct {
	Repository
	et      *meta.EntityType
	queries []*query.Query
}

func (s *stubRepository) EntityType() *meta.EntityType { return s.et }

func (s *stubRepository) FindAll(ctx context.Context, q *query.Query) (Iterator, error) {
	s.queries = append(s.queries, q)
	var entities []*Entity
	for _, rule := range q.Rules {
		for _, id := range rule.Values {
			e := NewEntity(s.et)
			e.SetID(id)
			entities = append(entities, e)
		}
	}
	return NewSliceIterator(entities), nil
}

func (s *stubRepository) Close() error { return nil }

func TestServiceRepositoryLookup(t *testing.T) {
	svc := NewService(meta.NewRegistry(), nil)

	_, err := svc.Repository("books")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindUnknownEntity))
	assert.Equal(t, "Operation failed. Unknown entity: 'books'", err.Error())
}

func TestServiceRunInTransactionFiresCommitHooks(t *testing.T) {
	runner := &recordingRunner{}
	svc := NewService(meta.NewRegistry(), runner)

	var fired []string
	err := svc.RunInTransaction(context.Background(), func(ctx context.Context) error {
		tx := TxFrom(ctx)
		require.NotNil(t, tx)
		tx.OnCommit(func(context.Context) { fired = append(fired, "first") })
		tx.OnCommit(func(context.Context) { fired = append(fired, "second") })
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, fired)
	assert.Equal(t, 1, runner.runs)
}

func TestServiceRunInTransactionSkipsHooksOnFailure(t *testing.T) {
	svc := NewService(meta.NewRegistry(), &recordingRunner{})

	fired := false
	err := svc.RunInTransaction(context.Background(), func(ctx context.Context) error {
		TxFrom(ctx).OnCommit(func(context.Context) { fired = true })
		return NewInvariant("forced rollback")
	})
	require.Error(t, err)
	assert.False(t, fired)
}

func TestServiceNestedTransactionJoins(t *testing.T) {
	runner := &recordingRunner{}
	svc := NewService(meta.NewRegistry(), runner)

	var outerTx *Tx
	err := svc.RunInTransaction(context.Background(), func(ctx context.Context) error {
		outerTx = TxFrom(ctx)
		return svc.RunInTransaction(ctx, func(ctx context.Context) error {
			assert.Same(t, outerTx, TxFrom(ctx))
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, runner.runs)
}

func TestServiceRunInTransactionWithoutRunner(t *testing.T) {
	svc := NewService(meta.NewRegistry(), nil)

	fired := false
	err := svc.RunInTransaction(context.Background(), func(ctx context.Context) error {
		TxFrom(ctx).OnCommit(func(context.Context) { fired = true })
		return nil
	})
	require.NoError(t, err)
	assert.True(t, fired)
}

func TestServiceFindAllByIDs(t *testing.T) {
	registry := meta.NewRegistry()
	et := samplesType()
	require.NoError(t, registry.Register(et))
	svc := NewService(registry, nil)
	repo := &stubRepository{et: et}
	svc.RegisterRepository(repo)

	entities, err := svc.FindAllByIDs(context.Background(), "samples", []interface{}{"s1", "s2"})
	require.NoError(t, err)
	assert.Len(t, entities, 2)
	require.Len(t, repo.queries, 1)
	assert.Equal(t, "id IN [s1 s2]", repo.queries[0].Rules[0].String())

	entities, err = svc.FindAllByIDs(context.Background(), "samples", nil)
	require.NoError(t, err)
	assert.Nil(t, entities)
}

func TestCollectDrainsIterator(t *testing.T) {
	a := NewEntity(samplesType())
	a.SetID("s1")
	b := NewEntity(samplesType())
	b.SetID("s2")

	entities, err := Collect(NewSliceIterator([]*Entity{a, b}))
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "s1", entities[0].GetString("id"))

	entities, err = Collect(NewSliceIterator(nil))
	require.NoError(t, err)
	assert.Empty(t, entities)
}
