package data

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure of the entity access core. The REST layer maps
// kinds to HTTP status codes; decorators translate backend failures into
// kinds but never swallow them.
type Kind int

const (
	// KindUnknownEntity marks a missing entity type or record
	KindUnknownEntity Kind = iota
	// KindUnknownAttribute marks a filter, sort or update naming a
	// non-existent attribute
	KindUnknownAttribute
	// KindValidation marks one or more metadata or data constraint
	// violations
	KindValidation
	// KindPermissionDenied marks a sid lacking a required permission
	KindPermissionDenied
	// KindQuery marks an ill-formed query or aggregate
	KindQuery
	// KindDataAccess marks an attempted write to a read-only attribute
	KindDataAccess
	// KindInvariant marks a broken internal invariant
	KindInvariant
	// KindUnsupported marks an intentionally unsupported path
	KindUnsupported
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindUnknownEntity:
		return "unknown_entity"
	case KindUnknownAttribute:
		return "unknown_attribute"
	case KindValidation:
		return "validation"
	case KindPermissionDenied:
		return "permission_denied"
	case KindQuery:
		return "query"
	case KindDataAccess:
		return "data_access"
	case KindInvariant:
		return "invariant"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Error is a classified entity access failure. Validation errors carry the
// full list of violation messages for the offending entity.
type Error struct {
	Kind     Kind
	Message  string
	Messages []string
	cause    error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if len(e.Messages) > 0 {
		return strings.Join(e.Messages, "; ")
	}
	return e.Kind.String()
}

// Unwrap returns the wrapped cause, if any
func (e *Error) Unwrap() error {
	return e.cause
}

// WithCause attaches an underlying error
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

// NewError creates a classified error with a message
func NewError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewUnknownEntityType reports a missing entity type
func NewUnknownEntityType(entityTypeID string) *Error {
	return NewError(KindUnknownEntity, "Operation failed. Unknown entity: '%s'", entityTypeID)
}

// NewUnknownEntity reports a missing record
func NewUnknownEntity(entityTypeID string, id interface{}) *Error {
	return NewError(KindUnknownEntity, "%s [%v] not found", entityTypeID, id)
}

// NewUnknownAttribute reports a reference to a non-existent attribute
func NewUnknownAttribute(entityTypeID, attrName string) *Error {
	return NewError(KindUnknownAttribute, "Operation failed. Unknown attribute: '%s', of entity: '%s'", attrName, entityTypeID)
}

// NewValidation creates a validation failure carrying all violation messages
func NewValidation(messages ...string) *Error {
	e := &Error{Kind: KindValidation, Messages: messages}
	if len(messages) > 0 {
		e.Message = messages[0]
	}
	return e
}

// NewPermissionDenied reports a failed permission check
func NewPermissionDenied(permission string, entityTypeID string) *Error {
	return NewError(KindPermissionDenied, "No '%s' permission on entity type '%s'", permission, entityTypeID)
}

// NewQueryError reports an ill-formed query or aggregate
func NewQueryError(format string, args ...interface{}) *Error {
	return NewError(KindQuery, format, args...)
}

// NewReadOnlyAttribute reports a write to a read-only attribute
func NewReadOnlyAttribute(entityTypeID, attrName string) *Error {
	return NewError(KindDataAccess, "Operation failed. Attribute '%s' of entity '%s' is readonly", attrName, entityTypeID)
}

// NewInvariant reports a broken internal invariant
func NewInvariant(format string, args ...interface{}) *Error {
	return NewError(KindInvariant, format, args...)
}

// NewUnsupported reports an intentionally unsupported path
func NewUnsupported(format string, args ...interface{}) *Error {
	return NewError(KindUnsupported, format, args...)
}

// IsKind reports whether err is an entity access error of the given kind
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of an entity access error, or KindInvariant for
// unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInvariant
}

// AsError extracts the classified error from err's chain
func AsError(err error, target **Error) bool {
	return errors.As(err, target)
}
