// Package meta defines the metadata model that drives all entity access:
// entity types, attributes, packages and tags. The model is self-hosted;
// entity types describing entity types are bootstrapped by this package and
// persisted through the same repository pipeline as user data.
package meta

import (
	"fmt"

	"github.com/metagrid-platform/metagrid/internal/query"
)

// AttributeType represents the data type of an attribute
type AttributeType int

const (
	TypeBool AttributeType = iota
	TypeInt
	TypeLong
	TypeDecimal
	TypeString
	TypeText
	TypeEmail
	TypeHyperlink
	TypeHTML
	TypeScript
	TypeEnum
	TypeDate
	TypeDateTime
	TypeCategorical
	TypeCategoricalMref
	TypeXref
	TypeMref
	TypeOneToMany
	TypeFile
	TypeCompound
	TypeImage
)

// String returns the canonical upper-case name of the type
func (t AttributeType) String() string {
	switch t {
	case TypeBool:
		return "BOOL"
	case TypeInt:
		return "INT"
	case TypeLong:
		return "LONG"
	case TypeDecimal:
		return "DECIMAL"
	case TypeString:
		return "STRING"
	case TypeText:
		return "TEXT"
	case TypeEmail:
		return "EMAIL"
	case TypeHyperlink:
		return "HYPERLINK"
	case TypeHTML:
		return "HTML"
	case TypeScript:
		return "SCRIPT"
	case TypeEnum:
		return "ENUM"
	case TypeDate:
		return "DATE"
	case TypeDateTime:
		return "DATE_TIME"
	case TypeCategorical:
		return "CATEGORICAL"
	case TypeCategoricalMref:
		return "CATEGORICAL_MREF"
	case TypeXref:
		return "XREF"
	case TypeMref:
		return "MREF"
	case TypeOneToMany:
		return "ONE_TO_MANY"
	case TypeFile:
		return "FILE"
	case TypeCompound:
		return "COMPOUND"
	case TypeImage:
		return "IMAGE"
	default:
		return "UNKNOWN"
	}
}

// ParseAttributeType converts a canonical type name to an AttributeType
func ParseAttributeType(s string) (AttributeType, error) {
	for t := TypeBool; t <= TypeImage; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown attribute type: %s", s)
}

// IsReference reports whether values of this type refer to another entity
func (t AttributeType) IsReference() bool {
	switch t {
	case TypeCategorical, TypeCategoricalMref, TypeXref, TypeMref, TypeOneToMany, TypeFile:
		return true
	default:
		return false
	}
}

// IsMultiReference reports whether values of this type refer to multiple
// entities
func (t AttributeType) IsMultiReference() bool {
	switch t {
	case TypeCategoricalMref, TypeMref, TypeOneToMany:
		return true
	default:
		return false
	}
}

// IsText reports whether the type is stored and rendered as a string
func (t AttributeType) IsText() bool {
	switch t {
	case TypeString, TypeText, TypeEmail, TypeHyperlink, TypeHTML, TypeScript, TypeEnum:
		return true
	default:
		return false
	}
}

// Attribute describes a single column of an entity type
type Attribute struct {
	Name         string
	Label        string
	Type         AttributeType
	Nillable     bool
	Unique       bool
	ReadOnly     bool
	Auto         bool
	Visible      bool
	Aggregatable bool

	// DefaultValue is the unparsed default, validated against Type
	DefaultValue *string

	// EnumOptions holds the member values for ENUM attributes
	EnumOptions []string

	// RefEntity is the referenced entity type for reference kinds
	RefEntity *EntityType

	// MappedBy names the owning XREF attribute on RefEntity for inverse
	// one-to-many relations
	MappedBy string

	// OrderBy is applied when materializing referenced entities
	OrderBy *query.Sort

	// Children holds the parts of a COMPOUND attribute
	Children []*Attribute

	// Opaque expressions evaluated by an external collaborator
	Expression           string
	NullableExpression   string
	VisibleExpression    string
	ValidationExpression string
}

// NewAttribute creates a visible, nillable attribute of the given type
func NewAttribute(name string, typ AttributeType) *Attribute {
	return &Attribute{Name: name, Type: typ, Nillable: true, Visible: true}
}

// HasRefEntity reports whether a referenced entity type is set
func (a *Attribute) HasRefEntity() bool {
	return a.RefEntity != nil
}

// HasDefaultValue reports whether a default value is set
func (a *Attribute) HasDefaultValue() bool {
	return a.DefaultValue != nil
}

// EntityType is a named, runtime-declared schema
type EntityType struct {
	ID          string
	Label       string
	Description string
	Package     *Package
	Backend     string
	Abstract    bool

	// Extends is the optional parent entity type whose attributes precede
	// the local ones
	Extends *EntityType

	// OwnAttributes holds the locally declared attributes, in order
	OwnAttributes []*Attribute

	IDAttributeName    string
	LabelAttributeName string
	LookupAttributes   []string
}

// NewEntityType creates an entity type with the given id
func NewEntityType(id string) *EntityType {
	return &EntityType{ID: id, Label: id}
}

// Attributes returns the effective attribute sequence: the parent's
// attributes followed by the locally declared ones.
func (et *EntityType) Attributes() []*Attribute {
	if et.Extends == nil {
		return et.OwnAttributes
	}
	parent := et.Extends.Attributes()
	attrs := make([]*Attribute, 0, len(parent)+len(et.OwnAttributes))
	attrs = append(attrs, parent...)
	attrs = append(attrs, et.OwnAttributes...)
	return attrs
}

// AtomicAttributes returns the effective attributes with COMPOUND parents
// replaced by their children, recursively.
func (et *EntityType) AtomicAttributes() []*Attribute {
	var out []*Attribute
	var flatten func(attrs []*Attribute)
	flatten = func(attrs []*Attribute) {
		for _, a := range attrs {
			if a.Type == TypeCompound {
				flatten(a.Children)
				continue
			}
			out = append(out, a)
		}
	}
	flatten(et.Attributes())
	return out
}

// Attribute looks up an effective attribute by name, descending into
// COMPOUND children. Returns nil when no such attribute exists.
func (et *EntityType) Attribute(name string) *Attribute {
	var find func(attrs []*Attribute) *Attribute
	find = func(attrs []*Attribute) *Attribute {
		for _, a := range attrs {
			if a.Name == name {
				return a
			}
			if a.Type == TypeCompound {
				if sub := find(a.Children); sub != nil {
					return sub
				}
			}
		}
		return nil
	}
	return find(et.Attributes())
}

// IDAttribute returns the attribute designated as primary key
func (et *EntityType) IDAttribute() *Attribute {
	if et.IDAttributeName == "" {
		return nil
	}
	return et.Attribute(et.IDAttributeName)
}

// LabelAttribute returns the attribute designated for display, falling back
// to the id attribute when none is designated.
func (et *EntityType) LabelAttribute() *Attribute {
	if et.LabelAttributeName != "" {
		if a := et.Attribute(et.LabelAttributeName); a != nil {
			return a
		}
	}
	return et.IDAttribute()
}

// AddAttribute appends a locally declared attribute
func (et *EntityType) AddAttribute(a *Attribute) *EntityType {
	et.OwnAttributes = append(et.OwnAttributes, a)
	return et
}

// Package is a hierarchical namespace node for entity types
type Package struct {
	ID     string
	Label  string
	Parent *Package
}

// FullyQualifiedID returns the package id path from the root, separated by
// underscores.
func (p *Package) FullyQualifiedID() string {
	if p.Parent == nil {
		return p.ID
	}
	return p.Parent.FullyQualifiedID() + "_" + p.ID
}

// Tag attaches a semantic annotation to metadata
type Tag struct {
	ID          string
	Label       string
	RelationIRI string
	ObjectIRI   string
}
