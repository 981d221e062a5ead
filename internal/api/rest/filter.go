package rest

import (
	"strings"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/query"
)

// ParseAttributeFilter parses the attrs parameter into a fetch. The grammar
// is a comma separated list of tokens, each a name or name(sub-filter), with
// "*" standing for all attributes. Token matching is case-insensitive.
// An empty filter yields nil, meaning all attributes.
func ParseAttributeFilter(et *meta.EntityType, filter string) (*query.Fetch, error) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return nil, nil
	}
	tokens, err := splitFilter(filter)
	if err != nil {
		return nil, err
	}

	fetch := query.NewFetch()
	for _, token := range tokens {
		name, sub := token, ""
		if open := strings.Index(token, "("); open >= 0 {
			if !strings.HasSuffix(token, ")") {
				return nil, data.NewQueryError("Missing closing parenthesis in attribute filter '%s'", token)
			}
			name = token[:open]
			sub = token[open+1 : len(token)-1]
		}
		name = strings.TrimSpace(name)

		if name == "*" {
			for _, attr := range et.Attributes() {
				if !fetch.Includes(attr.Name) {
					fetch.Field(attr.Name)
				}
			}
			continue
		}

		attr := resolveAttribute(et, name)
		if attr == nil {
			return nil, data.NewUnknownAttribute(et.ID, name)
		}
		if sub == "" {
			fetch.Field(attr.Name)
			continue
		}
		if attr.RefEntity == nil {
			return nil, data.NewQueryError(
				"Operation failed. Can't use expanded attributes on attribute '%s' of entity '%s'", attr.Name, et.ID)
		}
		subFetch, err := ParseAttributeFilter(attr.RefEntity, sub)
		if err != nil {
			return nil, err
		}
		fetch.Sub(attr.Name, subFetch)
	}
	return fetch, nil
}

// splitFilter splits the filter on commas outside parentheses
func splitFilter(filter string) ([]string, error) {
	var tokens []string
	depth := 0
	start := 0
	for i, r := range filter {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, data.NewQueryError("Unbalanced parenthesis in attribute filter '%s'", filter)
			}
		case ',':
			if depth == 0 {
				if token := strings.TrimSpace(filter[start:i]); token != "" {
					tokens = append(tokens, token)
				}
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, data.NewQueryError("Unbalanced parenthesis in attribute filter '%s'", filter)
	}
	if token := strings.TrimSpace(filter[start:]); token != "" {
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// resolveAttribute finds an attribute by case-insensitive name
func resolveAttribute(et *meta.EntityType, name string) *meta.Attribute {
	if attr := et.Attribute(name); attr != nil {
		return attr
	}
	lower := strings.ToLower(name)
	for _, attr := range et.Attributes() {
		if strings.ToLower(attr.Name) == lower {
			return attr
		}
		if attr.Type == meta.TypeCompound {
			if child := resolveChild(attr, lower); child != nil {
				return child
			}
		}
	}
	return nil
}

func resolveChild(parent *meta.Attribute, lowerName string) *meta.Attribute {
	for _, child := range parent.Children {
		if strings.ToLower(child.Name) == lowerName {
			return child
		}
		if child.Type == meta.TypeCompound {
			if found := resolveChild(child, lowerName); found != nil {
				return found
			}
		}
	}
	return nil
}

// DefaultRefFetch is the sub-filter applied to reference attributes included
// without an explicit sub-filter: the id attribute, the label attribute and,
// for file entities, the download URL.
func DefaultRefFetch(refEntity *meta.EntityType) *query.Fetch {
	fetch := query.NewFetch()
	fetch.Field(refEntity.IDAttributeName)
	if label := refEntity.LabelAttribute(); label != nil && label.Name != refEntity.IDAttributeName {
		fetch.Field(label.Name)
	}
	if refEntity.ID == meta.FileMeta {
		fetch.Field(meta.FileMetaURL)
	}
	return fetch
}
