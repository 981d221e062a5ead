package platform

import (
	"context"
	"strings"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
)

// attributeRowID builds the id of an attribute row. Compound children get
// their parent's path as a prefix.
func attributeRowID(entityTypeID string, path ...string) string {
	return entityTypeID + "." + strings.Join(path, ".")
}

func (p *Platform) persistPackage(ctx context.Context, pkg *meta.Package) error {
	et, _ := p.Registry.EntityType(meta.PackageMeta)
	row := data.NewEntity(et)
	row.Set("id", pkg.ID)
	row.Set("label", pkg.Label)
	if pkg.Parent != nil {
		row.Set("parent", pkg.Parent.ID)
	}
	return p.Service.AddAll(ctx, meta.PackageMeta, []*data.Entity{row})
}

// persistEntityTypeRow writes the entity type row without its attributes
// mref, which is filled in by persistAttributeRows once the attribute
// rows exist.
func (p *Platform) persistEntityTypeRow(ctx context.Context, et *meta.EntityType) error {
	metaType, _ := p.Registry.EntityType(meta.EntityTypeMeta)
	row := data.NewEntity(metaType)
	row.Set("id", et.ID)
	row.Set("label", et.Label)
	if et.Package != nil {
		row.Set("package", et.Package.ID)
	}
	if et.Backend != "" {
		row.Set("backend", et.Backend)
	}
	row.Set("abstract", et.Abstract)
	if et.Extends != nil {
		row.Set("extends", et.Extends.ID)
	}
	row.Set("idAttribute", et.IDAttributeName)
	if et.LabelAttributeName != "" {
		row.Set("labelAttribute", et.LabelAttributeName)
	}
	return p.Service.AddAll(ctx, meta.EntityTypeMeta, []*data.Entity{row})
}

// persistAttributeRows writes the attribute rows of an entity type and
// links them from the entity type row
func (p *Platform) persistAttributeRows(ctx context.Context, et *meta.EntityType) error {
	metaType, _ := p.Registry.EntityType(meta.AttributeMeta)

	var rows []*data.Entity
	var topIDs []interface{}
	for _, attr := range et.OwnAttributes {
		id := attributeRowID(et.ID, attr.Name)
		topIDs = append(topIDs, id)
		rows = append(rows, p.attributeRows(metaType, et, attr, "", id)...)
	}
	if len(rows) > 0 {
		if err := p.Service.AddAll(ctx, meta.AttributeMeta, rows); err != nil {
			return err
		}
	}

	etRow, err := p.Service.FindOneByID(ctx, meta.EntityTypeMeta, et.ID, nil)
	if err != nil {
		return err
	}
	etRow.Set("attributes", topIDs)
	return p.Service.UpdateAll(ctx, meta.EntityTypeMeta, []*data.Entity{etRow})
}

// attributeRows builds the row for one attribute followed by the rows of
// its compound children
func (p *Platform) attributeRows(metaType *meta.EntityType, et *meta.EntityType, attr *meta.Attribute, parentID, id string) []*data.Entity {
	row := data.NewEntity(metaType)
	row.Set("id", id)
	row.Set("name", attr.Name)
	row.Set("entity", et.ID)
	row.Set("type", attr.Type.String())
	row.Set("nillable", attr.Nillable)
	row.Set("unique", attr.Unique)
	row.Set("readonly", attr.ReadOnly)
	row.Set("auto", attr.Auto)
	row.Set("visible", attr.Visible)
	row.Set("aggregatable", attr.Aggregatable)
	if attr.DefaultValue != nil {
		row.Set("defaultValue", *attr.DefaultValue)
	}
	if len(attr.EnumOptions) > 0 {
		row.Set("enumOptions", strings.Join(attr.EnumOptions, ","))
	}
	if attr.RefEntity != nil {
		row.Set("refEntity", attr.RefEntity.ID)
	}
	if attr.MappedBy != "" {
		row.Set("mappedBy", attr.MappedBy)
	}
	if attr.OrderBy != nil {
		row.Set("orderBy", attr.OrderBy.String())
	}
	if parentID != "" {
		row.Set("parent", parentID)
	}
	if attr.Expression != "" {
		row.Set("expression", attr.Expression)
	}
	if attr.NullableExpression != "" {
		row.Set("nullableExpression", attr.NullableExpression)
	}
	if attr.VisibleExpression != "" {
		row.Set("visibleExpression", attr.VisibleExpression)
	}
	if attr.ValidationExpression != "" {
		row.Set("validationExpression", attr.ValidationExpression)
	}

	rows := []*data.Entity{row}
	for _, child := range attr.Children {
		childID := attributeRowID(et.ID, attr.Name, child.Name)
		rows = append(rows, p.attributeRows(metaType, et, child, id, childID)...)
	}
	return rows
}

// removeEntityTypeRows deletes the metadata rows of an entity type. The
// attributes mref is cleared first so the attribute rows are no longer
// referenced when they go.
func (p *Platform) removeEntityTypeRows(ctx context.Context, et *meta.EntityType) error {
	return p.Service.RunInTransaction(ctx, func(txCtx context.Context) error {
		etRow, err := p.Service.FindOneByID(txCtx, meta.EntityTypeMeta, et.ID, nil)
		if err != nil {
			return err
		}
		if etRow != nil {
			etRow.Set("attributes", []interface{}{})
			if err := p.Service.UpdateAll(txCtx, meta.EntityTypeMeta, []*data.Entity{etRow}); err != nil {
				return err
			}
		}

		attrRepo, err := p.Service.Repository(meta.AttributeMeta)
		if err != nil {
			return err
		}
		var ids []interface{}
		var walk func(attr *meta.Attribute, id string)
		walk = func(attr *meta.Attribute, id string) {
			ids = append(ids, id)
			for _, child := range attr.Children {
				walk(child, id+"."+child.Name)
			}
		}
		for _, attr := range et.OwnAttributes {
			walk(attr, attributeRowID(et.ID, attr.Name))
		}
		if len(ids) > 0 {
			if err := attrRepo.DeleteAllByID(txCtx, ids); err != nil {
				return err
			}
		}

		if etRow != nil {
			return p.Service.DeleteByID(txCtx, meta.EntityTypeMeta, et.ID)
		}
		return nil
	})
}
