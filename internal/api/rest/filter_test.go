package rest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
)

func TestParseAttributeFilter_Empty(t *testing.T) {
	fetch, err := ParseAttributeFilter(authorsTestType(), "  ")
	require.NoError(t, err)
	assert.Nil(t, fetch)
}

func TestParseAttributeFilter_Flat(t *testing.T) {
	fetch, err := ParseAttributeFilter(authorsTestType(), "id,name")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, fetch.Attrs())
	assert.False(t, fetch.Includes("email"))
}

func TestParseAttributeFilter_CaseInsensitive(t *testing.T) {
	fetch, err := ParseAttributeFilter(authorsTestType(), "NAME")
	require.NoError(t, err)
	assert.True(t, fetch.Includes("name"))
}

func TestParseAttributeFilter_Star(t *testing.T) {
	fetch, err := ParseAttributeFilter(authorsTestType(), "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "email"}, fetch.Attrs())
}

func TestParseAttributeFilter_SubFilter(t *testing.T) {
	books := booksTestType(authorsTestType())
	fetch, err := ParseAttributeFilter(books, "title,author(name,email)")
	require.NoError(t, err)

	sub := fetch.Get("author")
	require.NotNil(t, sub)
	assert.Equal(t, []string{"name", "email"}, sub.Attrs())
}

func TestParseAttributeFilter_SubFilterOnScalar(t *testing.T) {
	books := booksTestType(authorsTestType())
	_, err := ParseAttributeFilter(books, "title(name)")
	require.Error(t, err)
	assert.Equal(t, "Operation failed. Can't use expanded attributes on attribute 'title' of entity 'books'", err.Error())
}

func TestParseAttributeFilter_UnknownAttribute(t *testing.T) {
	_, err := ParseAttributeFilter(authorsTestType(), "nickname")
	require.Error(t, err)
	assert.True(t, data.IsKind(err, data.KindUnknownAttribute))
}

func TestParseAttributeFilter_UnbalancedParens(t *testing.T) {
	books := booksTestType(authorsTestType())
	_, err := ParseAttributeFilter(books, "author(name")
	require.Error(t, err)
	assert.True(t, data.IsKind(err, data.KindQuery))
}

func TestParseAttributeFilter_CompoundChild(t *testing.T) {
	et := meta.NewEntityType("forms")
	id := meta.NewAttribute("id", meta.TypeString)
	id.Nillable = false
	id.Unique = true
	address := meta.NewAttribute("address", meta.TypeCompound)
	address.Children = []*meta.Attribute{meta.NewAttribute("city", meta.TypeString)}
	et.AddAttribute(id).AddAttribute(address)
	et.IDAttributeName = "id"

	fetch, err := ParseAttributeFilter(et, "city")
	require.NoError(t, err)
	assert.True(t, fetch.Includes("city"))
}

func TestDefaultRefFetch(t *testing.T) {
	fetch := DefaultRefFetch(authorsTestType())
	assert.Equal(t, []string{"id", "name"}, fetch.Attrs())
}

func TestDefaultRefFetch_FileMetaIncludesURL(t *testing.T) {
	var fileMeta *meta.EntityType
	for _, et := range meta.SystemEntityTypes() {
		if et.ID == meta.FileMeta {
			fileMeta = et
		}
	}
	require.NotNil(t, fileMeta)

	fetch := DefaultRefFetch(fileMeta)
	assert.Equal(t, []string{"id", "filename", "url"}, fetch.Attrs())
}
