package decorator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/metagrid-platform/metagrid/internal/backend/memory"
	"github.com/metagrid-platform/metagrid/internal/cache"
	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/index"
	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/query"
	"github.com/metagrid-platform/metagrid/internal/security"
)

// fixture assembles a fully decorated authors/books model on the memory
// backend
type fixture struct {
	registry   *meta.Registry
	engine     *memory.Engine
	grants     *security.GrantStore
	svc        *data.Service
	cache      cache.Cache
	indexer    *index.MemoryIndex
	dispatcher *index.Dispatcher
}

func authorsType() *meta.EntityType {
	et := meta.NewEntityType("authors")
	id := meta.NewAttribute("id", meta.TypeString)
	id.Nillable = false
	id.Unique = true
	id.ReadOnly = true
	name := meta.NewAttribute("name", meta.TypeString)
	name.Unique = true
	email := meta.NewAttribute("email", meta.TypeEmail)
	et.AddAttribute(id).AddAttribute(name).AddAttribute(email)
	et.IDAttributeName = "id"
	et.LabelAttributeName = "name"
	return et
}

func booksType(authors *meta.EntityType) *meta.EntityType {
	et := meta.NewEntityType("books")
	id := meta.NewAttribute("id", meta.TypeString)
	id.Nillable = false
	id.Unique = true
	id.ReadOnly = true
	title := meta.NewAttribute("title", meta.TypeString)
	title.Nillable = false
	author := meta.NewAttribute("author", meta.TypeXref)
	author.RefEntity = authors
	status := meta.NewAttribute("status", meta.TypeEnum)
	status.EnumOptions = []string{"draft", "published"}
	et.AddAttribute(id).AddAttribute(title).AddAttribute(author).AddAttribute(status)
	et.IDAttributeName = "id"
	et.LabelAttributeName = "title"
	return et
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		registry: meta.NewRegistry(),
		engine:   memory.NewEngine(),
		grants:   security.NewGrantStore(),
		cache:    cache.NewMemoryCache(),
		indexer:  index.NewMemoryIndex(),
	}
	f.dispatcher = index.NewDispatcher(f.indexer, zap.NewNop(), 64)
	f.svc = data.NewService(f.registry, f.engine)
	t.Cleanup(f.dispatcher.Close)
	if mc, ok := f.cache.(*cache.MemoryCache); ok {
		t.Cleanup(func() { mc.Close() })
	}

	factory := NewFactory(f.grants, f.registry, f.svc, f.dispatcher, f.cache, zap.NewNop())

	authors := authorsType()
	books := booksType(authors)
	for _, et := range []*meta.EntityType{authors, books} {
		require.NoError(t, f.registry.Register(et))
		f.svc.RegisterRepository(factory.Decorate(f.engine.CreateRepository(et)))
	}
	return f
}

func sysCtx() context.Context {
	return security.WithSubject(context.Background(), security.System())
}

func subjectCtx(username string, roles ...string) context.Context {
	return security.WithSubject(context.Background(), security.Subject{Username: username, Roles: roles})
}

func (f *fixture) repo(t *testing.T, entityTypeID string) data.Repository {
	t.Helper()
	repo, err := f.svc.Repository(entityTypeID)
	require.NoError(t, err)
	return repo
}

func (f *fixture) addAuthor(t *testing.T, id, name string) {
	t.Helper()
	et, _ := f.registry.EntityType("authors")
	author := data.NewEntity(et)
	author.Set("id", id)
	author.Set("name", name)
	require.NoError(t, f.repo(t, "authors").Add(sysCtx(), author))
}

func (f *fixture) addBook(t *testing.T, id, title, authorID string) {
	t.Helper()
	et, _ := f.registry.EntityType("books")
	book := data.NewEntity(et)
	book.Set("id", id)
	book.Set("title", title)
	if authorID != "" {
		book.Set("author", authorID)
	}
	require.NoError(t, f.repo(t, "books").Add(sysCtx(), book))
}

func (f *fixture) newBook(id, title string) *data.Entity {
	et, _ := f.registry.EntityType("books")
	book := data.NewEntity(et)
	if id != "" {
		book.Set("id", id)
	}
	if title != "" {
		book.Set("title", title)
	}
	return book
}

func collectAll(t *testing.T, it data.Iterator) []*data.Entity {
	t.Helper()
	entities, err := data.Collect(it)
	require.NoError(t, err)
	return entities
}

func findAll(t *testing.T, ctx context.Context, repo data.Repository) []*data.Entity {
	t.Helper()
	it, err := repo.FindAll(ctx, query.New())
	require.NoError(t, err)
	return collectAll(t, it)
}
