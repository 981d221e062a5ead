package decorator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/query"
)

// ValidationDecorator checks entity rows against their entity type before
// writes reach the backend. It populates AUTO ids and default values on
// add, then validates every entity in the batch and collects all violation
// messages into a single validation error, so a failed batch reports every
// problem at once.
type ValidationDecorator struct {
	Base
}

// NewValidationDecorator wraps a repository with row validation
func NewValidationDecorator(delegate data.Repository) *ValidationDecorator {
	return &ValidationDecorator{Base: NewBase(delegate)}
}

// Add validates and persists a new entity
func (d *ValidationDecorator) Add(ctx context.Context, entity *data.Entity) error {
	return d.AddAll(ctx, []*data.Entity{entity})
}

// AddAll validates and persists a batch of new entities
func (d *ValidationDecorator) AddAll(ctx context.Context, entities []*data.Entity) error {
	var messages []string
	for _, entity := range entities {
		d.prepare(entity)
		messages = append(messages, d.validateEntity(ctx, entity, false)...)
	}
	if len(messages) > 0 {
		return data.NewValidation(messages...)
	}
	return d.Base.AddAll(ctx, entities)
}

// Update validates and persists changes to an entity
func (d *ValidationDecorator) Update(ctx context.Context, entity *data.Entity) error {
	return d.UpdateAll(ctx, []*data.Entity{entity})
}

// UpdateAll validates and persists a batch of changes
func (d *ValidationDecorator) UpdateAll(ctx context.Context, entities []*data.Entity) error {
	var messages []string
	for _, entity := range entities {
		msgs, err := d.validateUpdate(ctx, entity)
		if err != nil {
			return err
		}
		messages = append(messages, msgs...)
	}
	if len(messages) > 0 {
		return data.NewValidation(messages...)
	}
	return d.Base.UpdateAll(ctx, entities)
}

// prepare fills AUTO id attributes and missing defaults before validation
func (d *ValidationDecorator) prepare(entity *data.Entity) {
	et := d.EntityType()
	for _, attr := range et.AtomicAttributes() {
		if attr.Auto && !entity.Has(attr.Name) {
			if attr.Type == meta.TypeString {
				entity.Set(attr.Name, uuid.New().String())
			}
			continue
		}
		if attr.DefaultValue != nil && !entity.Has(attr.Name) {
			entity.Set(attr.Name, *attr.DefaultValue)
		}
	}
}

func (d *ValidationDecorator) validateUpdate(ctx context.Context, entity *data.Entity) ([]string, error) {
	et := d.EntityType()
	current, err := d.Base.FindOneByID(ctx, entity.ID(), nil)
	if err != nil {
		return nil, err
	}
	var messages []string
	if current != nil {
		for _, attr := range et.AtomicAttributes() {
			if !attr.ReadOnly || attr.Name == et.IDAttributeName {
				continue
			}
			if entity.Has(attr.Name) && !equalValue(entity.Get(attr.Name), current.Get(attr.Name)) {
				return nil, data.NewReadOnlyAttribute(et.ID, attr.Name)
			}
		}
	}
	messages = append(messages, d.validateEntity(ctx, entity, true)...)
	return messages, nil
}

// validateEntity checks one row and returns its violation messages
func (d *ValidationDecorator) validateEntity(ctx context.Context, entity *data.Entity, update bool) []string {
	et := d.EntityType()
	var messages []string
	for _, attr := range et.AtomicAttributes() {
		value := entity.Get(attr.Name)
		if value == nil {
			if !attr.Nillable && !attr.Auto && attr.Expression == "" {
				messages = append(messages,
					fmt.Sprintf("The attribute '%s' of entity '%s' can not be null.", attr.Name, et.ID))
			}
			continue
		}
		messages = append(messages, d.validateValue(attr, value, et.ID)...)
		if attr.Unique {
			if msg := d.checkUnique(ctx, attr, entity, update); msg != "" {
				messages = append(messages, msg)
			}
		}
	}
	return messages
}

func (d *ValidationDecorator) validateValue(attr *meta.Attribute, value interface{}, entityTypeID string) []string {
	var messages []string
	switch attr.Type {
	case meta.TypeDate:
		if s, ok := value.(string); ok {
			if _, err := meta.ParseDate(s); err != nil {
				messages = append(messages, err.Error())
			}
		}
	case meta.TypeDateTime:
		if s, ok := value.(string); ok {
			if _, err := meta.ParseDateTime(s); err != nil {
				messages = append(messages, err.Error())
			}
		}
	case meta.TypeEnum:
		s := fmt.Sprintf("%v", value)
		found := false
		for _, opt := range attr.EnumOptions {
			if opt == s {
				found = true
				break
			}
		}
		if !found {
			messages = append(messages,
				fmt.Sprintf("Invalid enum value '%v' for attribute '%s' of entity '%s', value must be one of [%s]",
					value, attr.Name, entityTypeID, strings.Join(attr.EnumOptions, ", ")))
		}
	case meta.TypeEmail:
		s := fmt.Sprintf("%v", value)
		if !meta.IsValidEmail(s) {
			messages = append(messages,
				fmt.Sprintf("Invalid email value '%v' for attribute '%s' of entity '%s'", value, attr.Name, entityTypeID))
		}
	case meta.TypeHyperlink:
		s := fmt.Sprintf("%v", value)
		if !meta.IsValidHyperlink(s) {
			messages = append(messages,
				fmt.Sprintf("Invalid hyperlink value '%v' for attribute '%s' of entity '%s'", value, attr.Name, entityTypeID))
		}
	}
	return messages
}

// checkUnique queries the backend for another row carrying the same value
func (d *ValidationDecorator) checkUnique(ctx context.Context, attr *meta.Attribute, entity *data.Entity, update bool) string {
	et := d.EntityType()
	value := entity.Get(attr.Name)
	existing, err := d.Base.FindOne(ctx, query.New().Eq(attr.Name, value))
	if err != nil || existing == nil {
		return ""
	}
	if update && equalValue(existing.ID(), entity.ID()) {
		return ""
	}
	if attr.Name == et.IDAttributeName && !update {
		// The backend reports duplicate ids itself
		return ""
	}
	return fmt.Sprintf("Duplicate value '%v' for unique attribute '%s' from entity '%s'", value, attr.Name, et.ID)
}

func equalValue(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == b
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
