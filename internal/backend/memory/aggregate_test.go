package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/query"
)

func TestAggregate_CountByX(t *testing.T) {
	repo := newCitiesRepo(t)

	result, err := repo.Aggregate(context.Background(), &query.AggregateQuery{AttrX: "country"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"BE", "FR", "NL"}, result.XValues)
	assert.Equal(t, [][]int64{{1}, {1}, {2}}, result.Matrix)
	assert.Empty(t, result.YValues)
}

func TestAggregate_CrossTab(t *testing.T) {
	et := citiesType()
	size := et.Attribute("country")
	require.NotNil(t, size)

	repo := NewEngine().CreateRepository(et)
	rows := []struct{ id, country, size string }{
		{"a", "NL", "large"},
		{"b", "NL", "small"},
		{"c", "BE", "large"},
		{"d", "NL", "large"},
	}
	for _, row := range rows {
		e := data.NewEntity(et)
		e.Set("id", row.id)
		e.Set("country", row.country)
		e.Set("name", row.size)
		require.NoError(t, repo.Add(context.Background(), e))
	}

	result, err := repo.Aggregate(context.Background(), &query.AggregateQuery{AttrX: "country", AttrY: "name"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"BE", "NL"}, result.XValues)
	assert.Equal(t, []interface{}{"large", "small"}, result.YValues)
	assert.Equal(t, [][]int64{{1, 0}, {2, 1}}, result.Matrix)
}

func TestAggregate_YOnlyBecomesX(t *testing.T) {
	repo := newCitiesRepo(t)

	result, err := repo.Aggregate(context.Background(), &query.AggregateQuery{AttrY: "country"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"BE", "FR", "NL"}, result.XValues)
	assert.Equal(t, [][]int64{{1}, {1}, {2}}, result.Matrix)
}

func TestAggregate_Distinct(t *testing.T) {
	et := citiesType()
	repo := NewEngine().CreateRepository(et)
	rows := []struct{ id, country, name string }{
		{"a", "NL", "x"},
		{"b", "NL", "x"},
		{"c", "NL", "y"},
	}
	for _, row := range rows {
		e := data.NewEntity(et)
		e.Set("id", row.id)
		e.Set("country", row.country)
		e.Set("name", row.name)
		require.NoError(t, repo.Add(context.Background(), e))
	}

	result, err := repo.Aggregate(context.Background(), &query.AggregateQuery{AttrX: "country", AttrDistinct: "name"})
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{2}}, result.Matrix)
}

func TestAggregate_Filtered(t *testing.T) {
	repo := newCitiesRepo(t)

	result, err := repo.Aggregate(context.Background(), &query.AggregateQuery{
		AttrX: "country",
		Query: query.New().Gt("population", int64(800000)),
	})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"BE", "FR", "NL"}, result.XValues)
	assert.Equal(t, [][]int64{{1}, {1}, {1}}, result.Matrix)
}

func TestAggregate_MissingAxes(t *testing.T) {
	repo := newCitiesRepo(t)

	_, err := repo.Aggregate(context.Background(), &query.AggregateQuery{})
	require.Error(t, err)
	assert.True(t, data.IsKind(err, data.KindQuery))
}

func TestAggregate_UnknownAttribute(t *testing.T) {
	repo := newCitiesRepo(t)

	_, err := repo.Aggregate(context.Background(), &query.AggregateQuery{AttrX: "mayor"})
	require.Error(t, err)
	assert.True(t, data.IsKind(err, data.KindUnknownAttribute))
}
