package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// EntityKey generates the cache key of a single row. The generation counter
// is part of the key, so metadata changes invalidate cached rows without an
// explicit flush.
func EntityKey(entityTypeID string, generation uint64, id interface{}) string {
	return fmt.Sprintf("entity:%s:g%d:%v", entityTypeID, generation, id)
}

// CountKey generates the cache key of a row count for a query. The query is
// hashed because its rendered form can be long.
func CountKey(entityTypeID string, generation uint64, rendered string) string {
	hash := sha256.Sum256([]byte(rendered))
	// Truncate to 16 bytes for shorter cache keys (still 128-bit security)
	return fmt.Sprintf("count:%s:g%d:%s", entityTypeID, generation, hex.EncodeToString(hash[:16]))
}
