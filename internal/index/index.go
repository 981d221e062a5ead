// Package index maintains the search index behind SEARCH queries. Index
// maintenance is asynchronous: decorated writes enqueue actions on a
// dispatcher, and a worker applies them after the surrounding transaction
// commits.
package index

import "context"

// Op is the kind of an index action
type Op int

const (
	// OpIndex upserts a document
	OpIndex Op = iota
	// OpDelete removes a document
	OpDelete
	// OpDeleteAll removes every document of an entity type
	OpDeleteAll
)

// String returns the op name
func (o Op) String() string {
	switch o {
	case OpIndex:
		return "INDEX"
	case OpDelete:
		return "DELETE"
	case OpDeleteAll:
		return "DELETE_ALL"
	default:
		return "UNKNOWN"
	}
}

// Action is one unit of index maintenance work
type Action struct {
	Op           Op
	EntityTypeID string
	EntityID     interface{}
	// Document holds the searchable attribute values of the row, nil for
	// deletes
	Document map[string]interface{}
}

// Indexer applies index actions and answers search queries
type Indexer interface {
	// Apply executes a single index action
	Apply(ctx context.Context, action Action) error
	// Search returns the ids of documents of the entity type matching the
	// term, in indexing order
	Search(ctx context.Context, entityTypeID, term string) ([]interface{}, error)
	// Drop removes the index of an entity type entirely
	Drop(ctx context.Context, entityTypeID string) error
}
