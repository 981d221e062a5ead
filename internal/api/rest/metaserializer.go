package rest

import (
	"fmt"

	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/query"
)

// MetaHref returns the canonical URL of an entity type's metadata
func (s *Serializer) MetaHref(entityTypeID string) string {
	return fmt.Sprintf("%s/%s/meta", s.basePath, entityTypeID)
}

// AttributeHref returns the canonical URL of an attribute's metadata
func (s *Serializer) AttributeHref(entityTypeID, attrName string) string {
	return fmt.Sprintf("%s/%s/meta/%s", s.basePath, entityTypeID, attrName)
}

// EntityTypeMeta serializes entity type metadata, shaping attributes with
// the same filter applied to the data
func (s *Serializer) EntityTypeMeta(et *meta.EntityType, fetch *query.Fetch) map[string]interface{} {
	var attrs []map[string]interface{}
	for _, attr := range et.Attributes() {
		if fetch != nil && !fetch.Includes(attr.Name) && attr.Type != meta.TypeCompound {
			continue
		}
		attrs = append(attrs, s.AttributeMeta(et, attr))
	}

	m := map[string]interface{}{
		"href":           s.MetaHref(et.ID),
		"hrefCollection": s.CollectionHref(et.ID),
		"name":           et.ID,
		"label":          et.Label,
		"attributes":     attrs,
		"isAbstract":     et.Abstract,
	}
	if idAttr := et.IDAttribute(); idAttr != nil {
		m["idAttribute"] = idAttr.Name
	}
	if labelAttr := et.LabelAttribute(); labelAttr != nil {
		m["labelAttribute"] = labelAttr.Name
	}
	if et.Package != nil {
		m["package"] = et.Package.FullyQualifiedID()
	}
	if len(et.LookupAttributes) > 0 {
		m["lookupAttributes"] = et.LookupAttributes
	}
	return m
}

// AttributeMeta serializes attribute metadata
func (s *Serializer) AttributeMeta(et *meta.EntityType, attr *meta.Attribute) map[string]interface{} {
	m := map[string]interface{}{
		"href":         s.AttributeHref(et.ID, attr.Name),
		"fieldType":    attr.Type.String(),
		"name":         attr.Name,
		"label":        attr.Label,
		"nillable":     attr.Nillable,
		"readOnly":     attr.ReadOnly,
		"unique":       attr.Unique,
		"auto":         attr.Auto,
		"visible":      attr.Visible,
		"aggregatable": attr.Aggregatable,
	}
	if len(attr.EnumOptions) > 0 {
		m["enumOptions"] = attr.EnumOptions
	}
	if attr.RefEntity != nil {
		m["refEntity"] = map[string]interface{}{
			"href": s.MetaHref(attr.RefEntity.ID),
			"name": attr.RefEntity.ID,
		}
	}
	if attr.MappedBy != "" {
		m["mappedBy"] = attr.MappedBy
	}
	if attr.DefaultValue != nil {
		m["defaultValue"] = *attr.DefaultValue
	}
	if attr.Expression != "" {
		m["expression"] = attr.Expression
	}
	if attr.Type == meta.TypeCompound {
		var children []map[string]interface{}
		for _, child := range attr.Children {
			children = append(children, s.AttributeMeta(et, child))
		}
		m["attributes"] = children
	}
	return m
}
