package rest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/metagrid-platform/metagrid/internal/backend/memory"
	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
)

func authorsTestType() *meta.EntityType {
	et := meta.NewEntityType("authors")
	id := meta.NewAttribute("id", meta.TypeString)
	id.Nillable = false
	id.Unique = true
	name := meta.NewAttribute("name", meta.TypeString)
	email := meta.NewAttribute("email", meta.TypeEmail)
	et.AddAttribute(id).AddAttribute(name).AddAttribute(email)
	et.IDAttributeName = "id"
	et.LabelAttributeName = "name"
	return et
}

func booksTestType(authors *meta.EntityType) *meta.EntityType {
	et := meta.NewEntityType("books")
	id := meta.NewAttribute("id", meta.TypeString)
	id.Nillable = false
	id.Unique = true
	title := meta.NewAttribute("title", meta.TypeString)
	title.Nillable = false
	year := meta.NewAttribute("year", meta.TypeInt)
	author := meta.NewAttribute("author", meta.TypeXref)
	author.RefEntity = authors
	contributors := meta.NewAttribute("contributors", meta.TypeMref)
	contributors.RefEntity = authors
	et.AddAttribute(id).AddAttribute(title).AddAttribute(year).
		AddAttribute(author).AddAttribute(contributors)
	et.IDAttributeName = "id"
	et.LabelAttributeName = "title"
	return et
}

type restFixture struct {
	svc     *data.Service
	authors *meta.EntityType
	books   *meta.EntityType
}

// newRestFixture wires undecorated memory repositories behind the service,
// seeded with two authors and three books
func newRestFixture(t *testing.T) *restFixture {
	t.Helper()
	registry := meta.NewRegistry()
	engine := memory.NewEngine()
	svc := data.NewService(registry, engine)

	authors := authorsTestType()
	books := booksTestType(authors)
	require.NoError(t, registry.Register(authors))
	require.NoError(t, registry.Register(books))
	svc.RegisterRepository(engine.CreateRepository(authors))
	svc.RegisterRepository(engine.CreateRepository(books))

	f := &restFixture{svc: svc, authors: authors, books: books}
	f.addAuthor(t, "a1", "Frank Herbert")
	f.addAuthor(t, "a2", "Dan Simmons")
	f.addBook(t, "b1", "Dune", 1965, "a1")
	f.addBook(t, "b2", "Hyperion", 1989, "a2", "a1")
	f.addBook(t, "b3", "Endymion", 1996, "a2")
	return f
}

func (f *restFixture) addAuthor(t *testing.T, id, name string) {
	t.Helper()
	e := data.NewEntity(f.authors)
	e.Set("id", id)
	e.Set("name", name)
	repo, err := f.svc.Repository("authors")
	require.NoError(t, err)
	require.NoError(t, repo.Add(context.Background(), e))
}

func (f *restFixture) addBook(t *testing.T, id, title string, year int64, authorID string, contributors ...interface{}) {
	t.Helper()
	e := data.NewEntity(f.books)
	e.Set("id", id)
	e.Set("title", title)
	e.Set("year", year)
	e.Set("author", authorID)
	if len(contributors) > 0 {
		e.Set("contributors", contributors)
	}
	repo, err := f.svc.Repository("books")
	require.NoError(t, err)
	require.NoError(t, repo.Add(context.Background(), e))
}
