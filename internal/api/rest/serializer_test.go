package rest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
)

func TestSerializer_EntityDefaultExpansion(t *testing.T) {
	f := newRestFixture(t)
	s := NewSerializer(f.svc, "/api/v2")

	repo, err := f.svc.Repository("books")
	require.NoError(t, err)
	entity, err := repo.FindOneByID(context.Background(), "b2", nil)
	require.NoError(t, err)
	require.NotNil(t, entity)

	m, err := s.Entity(context.Background(), f.books, entity, nil)
	require.NoError(t, err)

	assert.Equal(t, "/api/v2/books/b2", m["_href"])
	assert.Equal(t, "b2", m["id"])
	assert.Equal(t, "Hyperion", m["title"])
	assert.Equal(t, int64(1989), m["year"])

	// references expand to the id and label attributes by default
	assert.Equal(t, map[string]interface{}{
		"_href": "/api/v2/authors/a2",
		"id":    "a2",
		"name":  "Dan Simmons",
	}, m["author"])
	assert.Equal(t, []interface{}{
		map[string]interface{}{
			"_href": "/api/v2/authors/a1",
			"id":    "a1",
			"name":  "Frank Herbert",
		},
	}, m["contributors"])
}

func TestSerializer_NilReference(t *testing.T) {
	f := newRestFixture(t)
	s := NewSerializer(f.svc, "/api/v2")

	repo, err := f.svc.Repository("books")
	require.NoError(t, err)
	entity, err := repo.FindOneByID(context.Background(), "b1", nil)
	require.NoError(t, err)

	m, err := s.Entity(context.Background(), f.books, entity, nil)
	require.NoError(t, err)
	assert.Contains(t, m, "contributors")
	assert.Nil(t, m["contributors"])
}

func TestSerializer_ExplicitSubFetch(t *testing.T) {
	f := newRestFixture(t)
	s := NewSerializer(f.svc, "/api/v2")

	fetch, err := ParseAttributeFilter(f.books, "title,author(name,email)")
	require.NoError(t, err)

	repo, err := f.svc.Repository("books")
	require.NoError(t, err)
	entity, err := repo.FindOneByID(context.Background(), "b1", nil)
	require.NoError(t, err)

	m, err := s.Entity(context.Background(), f.books, entity, fetch)
	require.NoError(t, err)

	assert.Equal(t, "Dune", m["title"])
	assert.NotContains(t, m, "id")
	assert.NotContains(t, m, "year")

	author, ok := m["author"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "/api/v2/authors/a1", author["_href"])
	assert.Equal(t, "Frank Herbert", author["name"])
	assert.Nil(t, author["email"])
	assert.NotContains(t, author, "id")
}

func TestSerializer_Collection(t *testing.T) {
	f := newRestFixture(t)
	s := NewSerializer(f.svc, "/api/v2")

	repo, err := f.svc.Repository("books")
	require.NoError(t, err)
	it, err := repo.FindAll(context.Background(), nil)
	require.NoError(t, err)
	entities, err := data.Collect(it)
	require.NoError(t, err)
	require.Len(t, entities, 3)

	maps, err := s.Entities(context.Background(), f.books, entities, nil)
	require.NoError(t, err)
	require.Len(t, maps, 3)

	byID := map[interface{}]map[string]interface{}{}
	for _, m := range maps {
		byID[m["id"]] = m
	}
	require.Contains(t, byID, "b1")
	require.Contains(t, byID, "b3")

	dune := byID["b1"]
	author, ok := dune["author"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Frank Herbert", author["name"])

	endymion := byID["b3"]
	author, ok = endymion["author"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Dan Simmons", author["name"])
}

func TestSerializer_ImageUnsupported(t *testing.T) {
	f := newRestFixture(t)
	s := NewSerializer(f.svc, "/api/v2")

	et := meta.NewEntityType("covers")
	id := meta.NewAttribute("id", meta.TypeString)
	id.Nillable = false
	id.Unique = true
	et.AddAttribute(id).AddAttribute(meta.NewAttribute("scan", meta.TypeImage))
	et.IDAttributeName = "id"

	e := data.NewEntity(et)
	e.Set("id", "c1")

	_, err := s.Entity(context.Background(), et, e, nil)
	require.Error(t, err)
	assert.Equal(t, "Operation failed. Attribute type IMAGE is not supported", err.Error())
	assert.True(t, data.IsKind(err, data.KindUnsupported))
}

func TestWireValueDates(t *testing.T) {
	born := meta.NewAttribute("born", meta.TypeDate)
	seen := meta.NewAttribute("seen", meta.TypeDateTime)
	loc := time.FixedZone("CET", 3600)

	v, err := wireValue(born, time.Date(2001, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2001-12-31", v)

	// legacy day-month-year input is normalized to the canonical form
	v, err = wireValue(born, "31-12-2001")
	require.NoError(t, err)
	assert.Equal(t, "2001-12-31", v)

	v, err = wireValue(seen, time.Date(2001, 12, 31, 13, 30, 0, 0, loc))
	require.NoError(t, err)
	assert.Equal(t, "2001-12-31T13:30:00+0100", v)

	_, err = wireValue(born, "not a date")
	require.Error(t, err)
	assert.True(t, data.IsKind(err, data.KindValidation))

	v, err = wireValue(born, nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}
