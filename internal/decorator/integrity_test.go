package decorator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metagrid-platform/metagrid/internal/data"
)

func TestIntegrity_UnknownReference(t *testing.T) {
	f := newFixture(t)

	book := f.newBook("b1", "Go")
	book.Set("author", "nobody")
	err := f.repo(t, "books").Add(sysCtx(), book)
	derr := validationError(t, err)
	assert.Contains(t, derr.Messages,
		"Unknown xref value 'nobody' for attribute 'author' of entity 'books'.")
}

func TestIntegrity_ResolvedReference(t *testing.T) {
	f := newFixture(t)
	f.addAuthor(t, "a1", "Alice")

	book := f.newBook("b1", "Go")
	book.Set("author", "a1")
	require.NoError(t, f.repo(t, "books").Add(sysCtx(), book))
}

func TestIntegrity_DeleteBlockedByReferrer(t *testing.T) {
	f := newFixture(t)
	f.addAuthor(t, "a1", "Alice")
	f.addBook(t, "b1", "Go", "a1")

	err := f.repo(t, "authors").DeleteByID(sysCtx(), "a1")
	derr := validationError(t, err)
	assert.Contains(t, derr.Messages,
		"Value 'a1' for attribute 'author' is referenced by entity 'books'")
}

func TestIntegrity_DeleteAllowedAfterReferrerRemoved(t *testing.T) {
	f := newFixture(t)
	f.addAuthor(t, "a1", "Alice")
	f.addBook(t, "b1", "Go", "a1")

	require.NoError(t, f.repo(t, "books").DeleteByID(sysCtx(), "b1"))
	require.NoError(t, f.repo(t, "authors").DeleteByID(sysCtx(), "a1"))
}

func TestIntegrity_DeleteAllBlockedByReferringType(t *testing.T) {
	f := newFixture(t)
	f.addAuthor(t, "a1", "Alice")
	f.addBook(t, "b1", "Go", "a1")

	err := f.repo(t, "authors").DeleteAll(sysCtx())
	derr := validationError(t, err)
	assert.Contains(t, derr.Messages,
		"Data of entity 'authors' is still referenced by attribute 'author' of entity 'books'")
}

func TestIntegrity_DeleteAllAllowedWhenReferringTypeEmpty(t *testing.T) {
	f := newFixture(t)
	f.addAuthor(t, "a1", "Alice")

	require.NoError(t, f.repo(t, "authors").DeleteAll(sysCtx()))
	assert.Empty(t, findAll(t, sysCtx(), f.repo(t, "authors")))
}

func TestIntegrity_BatchWithInternalReference(t *testing.T) {
	f := newFixture(t)
	f.addAuthor(t, "a1", "Alice")

	// both rows enter in one batch, one referencing the other's author
	b1 := f.newBook("b1", "Go")
	b1.Set("author", "a1")
	b2 := f.newBook("b2", "Advanced Go")
	b2.Set("author", "a1")
	require.NoError(t, f.repo(t, "books").AddAll(sysCtx(), []*data.Entity{b1, b2}))
}

func TestIntegrity_NilReferenceIsAllowed(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.repo(t, "books").Add(sysCtx(), f.newBook("b1", "Go")))
}
