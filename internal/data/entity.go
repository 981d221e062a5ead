// Package data defines the uniform entity access surface: the Entity value
// type, the Repository contract implemented by every backend and decorator,
// the error taxonomy, and the Service facade routing operations to decorated
// repositories.
package data

import (
	"fmt"
	"time"

	"github.com/metagrid-platform/metagrid/internal/meta"
)

// Entity is a single record of an entity type. Scalar attributes hold their
// typed value; reference attributes hold the referenced id (or a slice of
// ids for multi-reference kinds). Reference expansion is a concern of the
// caller, not of the entity.
type Entity struct {
	entityType *meta.EntityType
	values     map[string]interface{}
}

// NewEntity creates an empty entity of the given type
func NewEntity(entityType *meta.EntityType) *Entity {
	return &Entity{
		entityType: entityType,
		values:     make(map[string]interface{}),
	}
}

// EntityType returns the entity's type
func (e *Entity) EntityType() *meta.EntityType {
	return e.entityType
}

// ID returns the value of the id attribute
func (e *Entity) ID() interface{} {
	idAttr := e.entityType.IDAttribute()
	if idAttr == nil {
		return nil
	}
	return e.values[idAttr.Name]
}

// SetID sets the value of the id attribute
func (e *Entity) SetID(id interface{}) {
	if idAttr := e.entityType.IDAttribute(); idAttr != nil {
		e.values[idAttr.Name] = id
	}
}

// Get returns the raw value of an attribute
func (e *Entity) Get(attr string) interface{} {
	return e.values[attr]
}

// Has reports whether the attribute has a value set, including an explicit
// nil
func (e *Entity) Has(attr string) bool {
	_, ok := e.values[attr]
	return ok
}

// Set assigns an attribute value
func (e *Entity) Set(attr string, value interface{}) {
	e.values[attr] = value
}

// Unset removes an attribute value
func (e *Entity) Unset(attr string) {
	delete(e.values, attr)
}

// AttributeNames returns the names of the attributes with a value, in the
// entity type's attribute order.
func (e *Entity) AttributeNames() []string {
	var names []string
	for _, a := range e.entityType.AtomicAttributes() {
		if _, ok := e.values[a.Name]; ok {
			names = append(names, a.Name)
		}
	}
	return names
}

// ValueCount returns the number of attributes with a value
func (e *Entity) ValueCount() int {
	return len(e.values)
}

// GetString returns an attribute value as string; nil values yield ""
func (e *Entity) GetString(attr string) string {
	v := e.values[attr]
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// GetBool returns an attribute value as bool
func (e *Entity) GetBool(attr string) (bool, bool) {
	v, ok := e.values[attr].(bool)
	return v, ok
}

// GetInt returns an attribute value as int, converting compatible numeric
// types
func (e *Entity) GetInt(attr string) (int, bool) {
	switch v := e.values[attr].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// GetLong returns an attribute value as int64, converting compatible numeric
// types
func (e *Entity) GetLong(attr string) (int64, bool) {
	switch v := e.values[attr].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// GetFloat returns an attribute value as float64, converting compatible
// numeric types
func (e *Entity) GetFloat(attr string) (float64, bool) {
	switch v := e.values[attr].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// GetTime returns an attribute value as time.Time
func (e *Entity) GetTime(attr string) (time.Time, bool) {
	v, ok := e.values[attr].(time.Time)
	return v, ok
}

// GetRefID returns the referenced id of a single-reference attribute
func (e *Entity) GetRefID(attr string) interface{} {
	return e.values[attr]
}

// GetRefIDs returns the referenced ids of a multi-reference attribute
func (e *Entity) GetRefIDs(attr string) []interface{} {
	switch v := e.values[attr].(type) {
	case []interface{}:
		return v
	case nil:
		return nil
	default:
		return []interface{}{v}
	}
}

// Clone returns a shallow copy of the entity's values under the same type
func (e *Entity) Clone() *Entity {
	clone := NewEntity(e.entityType)
	for k, v := range e.values {
		clone.values[k] = v
	}
	return clone
}

// String renders the entity for diagnostics
func (e *Entity) String() string {
	return fmt.Sprintf("%s[%v]", e.entityType.ID, e.ID())
}
