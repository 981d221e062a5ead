package meta

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// nameRe is the allowed attribute name character set
var nameRe = regexp.MustCompile(`^[A-Za-z0-9_#]+$`)

// allowedTransitions is the attribute data type update allow-list. A type
// missing from the map, or a target missing from its list, is a forbidden
// transition.
var allowedTransitions = map[AttributeType][]AttributeType{
	TypeBool:            {TypeInt, TypeLong, TypeString, TypeText},
	TypeInt:             {TypeBool, TypeCategorical, TypeDecimal, TypeEnum, TypeLong, TypeString, TypeText},
	TypeLong:            {TypeBool, TypeCategorical, TypeDecimal, TypeEnum, TypeInt, TypeString, TypeText},
	TypeDecimal:         {TypeEnum, TypeInt, TypeLong, TypeString, TypeText},
	TypeString:          {TypeBool, TypeCategorical, TypeCategoricalMref, TypeCompound, TypeDate, TypeDateTime, TypeDecimal, TypeEmail, TypeEnum, TypeHTML, TypeHyperlink, TypeInt, TypeLong, TypeMref, TypeScript, TypeText, TypeXref},
	TypeText:            {TypeBool, TypeCategorical, TypeCategoricalMref, TypeDate, TypeDateTime, TypeDecimal, TypeEmail, TypeEnum, TypeHTML, TypeHyperlink, TypeInt, TypeLong, TypeMref, TypeScript, TypeString, TypeXref},
	TypeEmail:           {TypeString, TypeText},
	TypeHyperlink:       {TypeString, TypeText},
	TypeHTML:            {TypeScript, TypeString, TypeText},
	TypeScript:          {TypeHTML, TypeString, TypeText},
	TypeEnum:            {TypeInt, TypeLong, TypeString, TypeText},
	TypeDate:            {TypeDateTime, TypeString, TypeText},
	TypeDateTime:        {TypeDate, TypeString, TypeText},
	TypeCategorical:     {TypeInt, TypeLong, TypeString, TypeXref},
	TypeCategoricalMref: {TypeMref},
	TypeXref:            {TypeCategorical, TypeInt, TypeLong, TypeString},
	TypeMref:            {TypeCategoricalMref},
	TypeCompound:        {TypeInt, TypeString},
}

// Validator enforces the metadata invariants: attribute name character set,
// the type-transition allow-list, mapped-by and order-by integrity, id and
// label attribute designation, enum option sets and default value
// parseability.
type Validator struct{}

// NewValidator creates a metadata validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateEntityType returns the violation messages for an entity type, or
// nil when it is valid.
func (v *Validator) ValidateEntityType(et *EntityType) []string {
	var msgs []string

	if et.IDAttributeName == "" && !et.Abstract {
		msgs = append(msgs, fmt.Sprintf("Entity [%s] is missing required ID attribute", et.ID))
	}
	if idAttr := et.IDAttribute(); idAttr != nil {
		if idAttr.Nillable {
			msgs = append(msgs, fmt.Sprintf("ID attribute [%s] of entity [%s] must not be nillable", idAttr.Name, et.ID))
		}
		if !idAttr.Unique {
			msgs = append(msgs, fmt.Sprintf("ID attribute [%s] of entity [%s] must be unique", idAttr.Name, et.ID))
		}
	} else if et.IDAttributeName != "" {
		msgs = append(msgs, fmt.Sprintf("ID attribute [%s] is not part of entity [%s]", et.IDAttributeName, et.ID))
	}
	if et.LabelAttributeName != "" && et.Attribute(et.LabelAttributeName) == nil {
		msgs = append(msgs, fmt.Sprintf("Label attribute [%s] is not part of entity [%s]", et.LabelAttributeName, et.ID))
	}

	// extends cycles and attribute name collisions with the parent. A cyclic
	// parent chain makes the effective attribute sequence undefined, so the
	// remaining checks are skipped.
	seen := map[string]bool{et.ID: true}
	for parent := et.Extends; parent != nil; parent = parent.Extends {
		if seen[parent.ID] {
			return append(msgs, fmt.Sprintf("Entity [%s] extends cycle detected via [%s]", et.ID, parent.ID))
		}
		seen[parent.ID] = true
	}
	if et.Extends != nil {
		parentNames := make(map[string]bool)
		for _, a := range et.Extends.Attributes() {
			parentNames[a.Name] = true
		}
		for _, a := range et.OwnAttributes {
			if parentNames[a.Name] {
				msgs = append(msgs, fmt.Sprintf("Attribute [%s] of entity [%s] collides with attribute of parent entity [%s]", a.Name, et.ID, et.Extends.ID))
			}
		}
	}

	for _, attr := range et.Attributes() {
		msgs = append(msgs, v.ValidateAttribute(attr, et)...)
	}
	return msgs
}

// ValidateAttribute returns the violation messages for a single attribute
// declared on owner, or nil when it is valid.
func (v *Validator) ValidateAttribute(attr *Attribute, owner *EntityType) []string {
	var msgs []string

	if !nameRe.MatchString(attr.Name) {
		msgs = append(msgs, fmt.Sprintf("Invalid characters in: [%s] Only letters (a-z, A-Z), digits (0-9), underscores (_) and hashes (#) are allowed.", attr.Name))
	}

	if attr.Type.IsReference() && attr.RefEntity == nil {
		msgs = append(msgs, fmt.Sprintf("Attribute [%s] with data type [%s] is missing a referenced entity", attr.Name, attr.Type))
	}

	if attr.MappedBy != "" {
		msgs = append(msgs, v.validateMappedBy(attr, owner)...)
	} else if attr.Type == TypeOneToMany {
		msgs = append(msgs, fmt.Sprintf("Attribute [%s] with data type [%s] requires a mappedBy attribute", attr.Name, attr.Type))
	}

	if attr.OrderBy != nil && attr.RefEntity != nil {
		for _, order := range attr.OrderBy.Orders {
			if attr.RefEntity.Attribute(order.Attr) == nil {
				ownerID := ""
				if owner != nil {
					ownerID = owner.ID
				}
				msgs = append(msgs, fmt.Sprintf("Unknown entity [%s] attribute [%s] referred to by entity [%s] attribute [%s] sortBy [%s]",
					attr.RefEntity.ID, order.Attr, ownerID, attr.Name, order.String()))
			}
		}
	}

	if attr.Type == TypeEnum && len(attr.EnumOptions) == 0 {
		msgs = append(msgs, fmt.Sprintf("Attribute [%s] with data type [%s] requires a non-empty option set", attr.Name, attr.Type))
	}
	if attr.Type != TypeEnum && len(attr.EnumOptions) > 0 {
		msgs = append(msgs, fmt.Sprintf("Attribute [%s] with data type [%s] must not declare enum options", attr.Name, attr.Type))
	}

	if attr.HasDefaultValue() {
		if err := v.ValidateDefaultValue(attr); err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return msgs
}

func (v *Validator) validateMappedBy(attr *Attribute, owner *EntityType) []string {
	if attr.Type != TypeOneToMany {
		return []string{fmt.Sprintf("Attribute [%s] with data type [%s] must not declare a mappedBy attribute", attr.Name, attr.Type)}
	}
	if attr.RefEntity == nil {
		return nil // missing ref entity is reported separately
	}
	mappedBy := attr.RefEntity.Attribute(attr.MappedBy)
	if mappedBy == nil {
		return []string{fmt.Sprintf("mappedBy attribute [%s] is not part of entity [%s].", attr.MappedBy, attr.RefEntity.ID)}
	}
	if mappedBy.Type != TypeXref {
		return []string{fmt.Sprintf("Invalid mappedBy attribute [%s] data type [%s].", attr.MappedBy, mappedBy.Type)}
	}
	if owner != nil && mappedBy.RefEntity != nil && mappedBy.RefEntity.ID != owner.ID {
		return []string{fmt.Sprintf("mappedBy attribute [%s] of entity [%s] does not refer back to entity [%s].", attr.MappedBy, attr.RefEntity.ID, owner.ID)}
	}
	return nil
}

// ValidateTypeUpdate checks the type-transition allow-list for an attribute
// update. The current type may always stay the same.
func (v *Validator) ValidateTypeUpdate(current, updated AttributeType) error {
	if current == updated {
		return nil
	}
	allowed := allowedTransitions[current]
	for _, t := range allowed {
		if t == updated {
			return nil
		}
	}
	names := make([]string, len(allowed))
	for i, t := range allowed {
		names[i] = t.String()
	}
	return fmt.Errorf("Attribute data type update from [%s] to [%s] not allowed, allowed types are [%s]",
		current, updated, strings.Join(names, ", "))
}

// Wire-level date layouts. Dates render as yyyy-MM-dd and date-times as
// yyyy-MM-dd'T'HH:mm:ssZ with a numeric zone.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02T15:04:05-0700"
)

// legacy default-value layout kept for backwards compatibility
const legacyDateLayout = "02-01-2006"

// ParseDate parses a wire-format date value
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(legacyDateLayout, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("Unparseable date: %q", s)
}

// ParseDateTime parses a wire-format date-time value
func ParseDateTime(s string) (time.Time, error) {
	if t, err := time.Parse(DateTimeLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("Unparseable date: %q", s)
}

// ValidateDefaultValue checks that the attribute's default value parses
// under its declared type and, for enums, is a member of the option set.
func (v *Validator) ValidateDefaultValue(attr *Attribute) error {
	if !attr.HasDefaultValue() {
		return nil
	}
	value := *attr.DefaultValue
	switch attr.Type {
	case TypeBool:
		if value != "true" && value != "false" {
			return fmt.Errorf("Invalid default value [%s] for data type [%s]", value, attr.Type)
		}
	case TypeInt:
		if _, err := strconv.ParseInt(value, 10, 32); err != nil {
			return fmt.Errorf("NumberFormatException For input string: %q", value)
		}
	case TypeLong:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return fmt.Errorf("NumberFormatException For input string: %q", value)
		}
	case TypeDecimal:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("NumberFormatException For input string: %q", value)
		}
	case TypeDate:
		if _, err := ParseDate(value); err != nil {
			return err
		}
	case TypeDateTime:
		if _, err := ParseDateTime(value); err != nil {
			return err
		}
	case TypeEmail:
		if !emailRe.MatchString(value) {
			return fmt.Errorf("Default value [%s] is not a valid email address.", value)
		}
	case TypeHyperlink:
		if !isValidHyperlink(value) {
			return fmt.Errorf("Default value [%s] is not a valid hyperlink.", value)
		}
	case TypeEnum:
		for _, opt := range attr.EnumOptions {
			if value == opt {
				return nil
			}
		}
		name := attr.Name
		if name == "" {
			name = "null"
		}
		return fmt.Errorf("Invalid default value [%s] for enum [%s] value must be one of [%s]",
			value, name, strings.Join(attr.EnumOptions, ", "))
	}
	return nil
}

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// IsValidEmail reports whether s has the shape of an email address
func IsValidEmail(s string) bool {
	return emailRe.MatchString(s)
}

// IsValidHyperlink reports whether s is usable as a hyperlink value
func IsValidHyperlink(s string) bool {
	return isValidHyperlink(s)
}

func isValidHyperlink(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if strings.ContainsAny(s, "^ <>{}|\\\"") {
		return false
	}
	return u.Scheme != "" || u.Host != "" || strings.Contains(s, ".")
}
