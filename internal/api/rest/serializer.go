package rest

import (
	"context"
	"fmt"
	"time"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/query"
)

// Serializer shapes entities into response maps. Reference attributes are
// expanded in two passes: the first pass emits scalar values and collects
// the referenced ids per attribute, the second bulk-fetches every
// referenced repository once and substitutes the expanded objects. A page
// therefore costs at most one extra query per reference attribute.
type Serializer struct {
	svc      *data.Service
	basePath string
}

// NewSerializer creates a serializer rendering hrefs under basePath
func NewSerializer(svc *data.Service, basePath string) *Serializer {
	return &Serializer{svc: svc, basePath: basePath}
}

// Href returns the canonical URL of an entity
func (s *Serializer) Href(entityTypeID string, id interface{}) string {
	return fmt.Sprintf("%s/%s/%v", s.basePath, entityTypeID, id)
}

// CollectionHref returns the canonical URL of a collection
func (s *Serializer) CollectionHref(entityTypeID string) string {
	return fmt.Sprintf("%s/%s", s.basePath, entityTypeID)
}

// refSlot marks a reference value to be filled in by the second pass
type refSlot struct {
	out  map[string]interface{}
	attr string
	// single id or ordered id list
	id    interface{}
	ids   []interface{}
	multi bool
}

// Entities serializes a page of entities with reference expansion
func (s *Serializer) Entities(ctx context.Context, et *meta.EntityType, entities []*data.Entity, fetch *query.Fetch) ([]map[string]interface{}, error) {
	// slots per reference attribute, filled during pass 1
	slots := make(map[string][]*refSlot)
	refAttrs := make(map[string]*meta.Attribute)

	out := make([]map[string]interface{}, 0, len(entities))
	for _, entity := range entities {
		m, err := s.entityPass1(et, entity, fetch, slots, refAttrs)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}

	if err := s.expandReferences(ctx, fetch, slots, refAttrs); err != nil {
		return nil, err
	}
	return out, nil
}

// Entity serializes a single entity with reference expansion
func (s *Serializer) Entity(ctx context.Context, et *meta.EntityType, entity *data.Entity, fetch *query.Fetch) (map[string]interface{}, error) {
	maps, err := s.Entities(ctx, et, []*data.Entity{entity}, fetch)
	if err != nil {
		return nil, err
	}
	return maps[0], nil
}

func (s *Serializer) entityPass1(et *meta.EntityType, entity *data.Entity, fetch *query.Fetch,
	slots map[string][]*refSlot, refAttrs map[string]*meta.Attribute) (map[string]interface{}, error) {

	m := map[string]interface{}{
		"_href": s.Href(et.ID, entity.ID()),
	}
	attrs, err := includedAttrs(et, fetch)
	if err != nil {
		return nil, err
	}
	for _, attr := range attrs {
		value := entity.Get(attr.Name)
		if attr.Type.IsReference() {
			refAttrs[attr.Name] = attr
			if value == nil {
				m[attr.Name] = nil
				continue
			}
			slot := &refSlot{out: m, attr: attr.Name, multi: attr.Type.IsMultiReference()}
			if slot.multi {
				slot.ids = entity.GetRefIDs(attr.Name)
			} else {
				slot.id = entity.GetRefID(attr.Name)
			}
			slots[attr.Name] = append(slots[attr.Name], slot)
			continue
		}
		wire, err := wireValue(attr, value)
		if err != nil {
			return nil, err
		}
		m[attr.Name] = wire
	}
	return m, nil
}

// expandReferences is the second pass: one bulk fetch per reference
// attribute, then substitution into the collected slots
func (s *Serializer) expandReferences(ctx context.Context, fetch *query.Fetch,
	slots map[string][]*refSlot, refAttrs map[string]*meta.Attribute) error {

	for attrName, attrSlots := range slots {
		attr := refAttrs[attrName]
		refEntity := attr.RefEntity

		seen := make(map[string]bool)
		var ids []interface{}
		collect := func(id interface{}) {
			key := fmt.Sprintf("%v", id)
			if id != nil && !seen[key] {
				seen[key] = true
				ids = append(ids, id)
			}
		}
		for _, slot := range attrSlots {
			if slot.multi {
				for _, id := range slot.ids {
					collect(id)
				}
			} else {
				collect(slot.id)
			}
		}
		if len(ids) == 0 {
			continue
		}

		subFetch := fetch.Get(attrName)
		if subFetch == nil {
			subFetch = DefaultRefFetch(refEntity)
		}

		targets, err := s.svc.FindAllByIDs(ctx, refEntity.ID, ids)
		if err != nil {
			return err
		}
		serialized, err := s.Entities(ctx, refEntity, targets, subFetch)
		if err != nil {
			return err
		}
		byID := make(map[string]map[string]interface{}, len(targets))
		for i, target := range targets {
			byID[fmt.Sprintf("%v", target.ID())] = serialized[i]
		}

		for _, slot := range attrSlots {
			if slot.multi {
				expanded := make([]interface{}, 0, len(slot.ids))
				for _, id := range slot.ids {
					if obj, ok := byID[fmt.Sprintf("%v", id)]; ok {
						expanded = append(expanded, obj)
					}
				}
				slot.out[slot.attr] = expanded
			} else {
				if obj, ok := byID[fmt.Sprintf("%v", slot.id)]; ok {
					slot.out[slot.attr] = obj
				} else {
					slot.out[slot.attr] = nil
				}
			}
		}
	}
	return nil
}

// includedAttrs resolves the fetch to the ordered attribute list of the
// response, inlining COMPOUND children at the parent's level
func includedAttrs(et *meta.EntityType, fetch *query.Fetch) ([]*meta.Attribute, error) {
	var out []*meta.Attribute
	var walk func(attrs []*meta.Attribute, parentIncluded bool) error
	walk = func(attrs []*meta.Attribute, parentIncluded bool) error {
		for _, attr := range attrs {
			included := parentIncluded || fetch == nil || fetch.Includes(attr.Name)
			if attr.Type == meta.TypeCompound {
				if err := walk(attr.Children, included); err != nil {
					return err
				}
				continue
			}
			if !included {
				continue
			}
			if attr.Type == meta.TypeImage {
				return data.NewUnsupported("Operation failed. Attribute type IMAGE is not supported")
			}
			out = append(out, attr)
		}
		return nil
	}
	if err := walk(et.Attributes(), false); err != nil {
		return nil, err
	}
	return out, nil
}

// wireValue renders a scalar value in its wire form. Dates and datetimes
// use a single canonical ISO-8601 format.
func wireValue(attr *meta.Attribute, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	switch attr.Type {
	case meta.TypeDate:
		switch v := value.(type) {
		case time.Time:
			return v.Format(meta.DateLayout), nil
		case string:
			t, err := meta.ParseDate(v)
			if err != nil {
				return nil, data.NewValidation(err.Error())
			}
			return t.Format(meta.DateLayout), nil
		}
	case meta.TypeDateTime:
		switch v := value.(type) {
		case time.Time:
			return v.Format(meta.DateTimeLayout), nil
		case string:
			t, err := meta.ParseDateTime(v)
			if err != nil {
				return nil, data.NewValidation(err.Error())
			}
			return t.Format(meta.DateTimeLayout), nil
		}
	}
	return value, nil
}
