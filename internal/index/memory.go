package index

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryIndex is an in-memory full text index. Each document is stored as
// the lowercased concatenation of its attribute values, and search is a
// substring match over that text.
type MemoryIndex struct {
	mu  sync.RWMutex
	seq uint64
	// entity type id -> document id key -> indexed document
	docs map[string]map[string]document
}

type document struct {
	id   interface{}
	text string
	seq  uint64
}

// NewMemoryIndex creates an empty index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string]map[string]document)}
}

// Apply executes a single index action
func (mi *MemoryIndex) Apply(ctx context.Context, action Action) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	mi.mu.Lock()
	defer mi.mu.Unlock()

	switch action.Op {
	case OpIndex:
		byID := mi.docs[action.EntityTypeID]
		if byID == nil {
			byID = make(map[string]document)
			mi.docs[action.EntityTypeID] = byID
		}
		key := fmt.Sprintf("%v", action.EntityID)
		seq := mi.seq
		if existing, ok := byID[key]; ok {
			seq = existing.seq
		} else {
			mi.seq++
		}
		byID[key] = document{
			id:   action.EntityID,
			text: renderDocument(action.Document),
			seq:  seq,
		}
	case OpDelete:
		if byID := mi.docs[action.EntityTypeID]; byID != nil {
			delete(byID, fmt.Sprintf("%v", action.EntityID))
		}
	case OpDeleteAll:
		delete(mi.docs, action.EntityTypeID)
	default:
		return fmt.Errorf("unknown index op %d", action.Op)
	}
	return nil
}

// Search returns the ids of matching documents in indexing order
func (mi *MemoryIndex) Search(ctx context.Context, entityTypeID, term string) ([]interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	needle := strings.ToLower(term)

	mi.mu.RLock()
	defer mi.mu.RUnlock()

	var matched []document
	for _, doc := range mi.docs[entityTypeID] {
		if strings.Contains(doc.text, needle) {
			matched = append(matched, doc)
		}
	}
	// Stable result order regardless of map iteration
	for i := 1; i < len(matched); i++ {
		for j := i; j > 0 && matched[j-1].seq > matched[j].seq; j-- {
			matched[j-1], matched[j] = matched[j], matched[j-1]
		}
	}

	ids := make([]interface{}, len(matched))
	for i, doc := range matched {
		ids[i] = doc.id
	}
	return ids, nil
}

// Drop removes the index of an entity type entirely
func (mi *MemoryIndex) Drop(ctx context.Context, entityTypeID string) error {
	return mi.Apply(ctx, Action{Op: OpDeleteAll, EntityTypeID: entityTypeID})
}

// Size returns the number of indexed documents for an entity type
func (mi *MemoryIndex) Size(entityTypeID string) int {
	mi.mu.RLock()
	defer mi.mu.RUnlock()
	return len(mi.docs[entityTypeID])
}

func renderDocument(values map[string]interface{}) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		v := values[k]
		if v == nil {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strings.ToLower(fmt.Sprintf("%v", v)))
	}
	return sb.String()
}
