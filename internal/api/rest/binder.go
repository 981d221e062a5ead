package rest

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/query"
)

// Paging bounds of collection requests
const (
	DefaultNum = 100
	MaxNum     = 10000
	// MaxEntities bounds the size of batch create and update requests
	MaxEntities = 1000
)

// requestParams merges URL query parameters with form values, so tunneled
// POST requests behave like their GET counterparts
func requestParams(r *http.Request) url.Values {
	params := url.Values{}
	for key, values := range r.URL.Query() {
		params[key] = values
	}
	if err := r.ParseForm(); err == nil {
		for key, values := range r.PostForm {
			if _, exists := params[key]; !exists {
				params[key] = values
			}
		}
	}
	return params
}

// parsePaging reads start and num, clamping num to [1, MaxNum] and start to
// non-negative
func parsePaging(params url.Values) (start, num int, err error) {
	start, num = 0, DefaultNum
	if raw := params.Get("start"); raw != "" {
		start, err = strconv.Atoi(raw)
		if err != nil || start < 0 {
			return 0, 0, data.NewQueryError("Invalid 'start' value '%s'", raw)
		}
	}
	if raw := params.Get("num"); raw != "" {
		num, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, data.NewQueryError("Invalid 'num' value '%s'", raw)
		}
	}
	if num < 1 {
		num = 1
	}
	if num > MaxNum {
		num = MaxNum
	}
	return start, num, nil
}

// parseSort reads the sort parameter, validating attribute names
func parseSort(et *meta.EntityType, params url.Values) (*query.Sort, error) {
	raw := params.Get("sort")
	if raw == "" {
		return nil, nil
	}
	s, err := query.ParseSort(raw)
	if err != nil {
		return nil, data.NewQueryError("%s", err.Error())
	}
	for i, order := range s.Orders {
		attr := resolveAttribute(et, order.Attr)
		if attr == nil {
			return nil, data.NewUnknownAttribute(et.ID, order.Attr)
		}
		s.Orders[i].Attr = attr.Name
	}
	return s, nil
}

// parseAggregate reads the aggs parameter of form x==attr;y==attr;distinct==attr
func parseAggregate(et *meta.EntityType, raw string, rules []query.Rule) (*query.AggregateQuery, error) {
	aq := &query.AggregateQuery{Query: &query.Query{Rules: rules}}
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "==", 2)
		if len(kv) != 2 {
			return nil, data.NewQueryError("Invalid aggregation expression '%s'", part)
		}
		attr := resolveAttribute(et, kv[1])
		if attr == nil {
			return nil, data.NewUnknownAttribute(et.ID, kv[1])
		}
		switch kv[0] {
		case "x":
			aq.AttrX = attr.Name
		case "y":
			aq.AttrY = attr.Name
		case "distinct":
			aq.AttrDistinct = attr.Name
		default:
			return nil, data.NewQueryError("Unknown aggregation key '%s'", kv[0])
		}
	}
	return aq, nil
}

// batchRequest is the body of batch create and update requests
type batchRequest struct {
	Entities []map[string]interface{} `json:"entities"`
}

// checkBatchBounds enforces the batch size limits with their wire messages
func checkBatchBounds(entities []map[string]interface{}) error {
	if len(entities) == 0 {
		return data.NewQueryError("Operation failed. No entities to update")
	}
	if len(entities) > MaxEntities {
		return data.NewQueryError("Operation failed. Max %d entities are allowed", MaxEntities)
	}
	return nil
}

// BindEntity converts a decoded JSON object into an entity of the given
// type. Reference values accept either bare ids or objects carrying the
// referenced id attribute.
func BindEntity(et *meta.EntityType, values map[string]interface{}) (*data.Entity, error) {
	entity := data.NewEntity(et)
	for key, raw := range values {
		attr := resolveAttribute(et, key)
		if attr == nil {
			return nil, data.NewUnknownAttribute(et.ID, key)
		}
		value, err := bindValue(attr, raw)
		if err != nil {
			return nil, err
		}
		entity.Set(attr.Name, value)
	}
	return entity, nil
}

func bindValue(attr *meta.Attribute, raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	switch {
	case attr.Type.IsMultiReference():
		list, ok := raw.([]interface{})
		if !ok {
			list = []interface{}{raw}
		}
		ids := make([]interface{}, 0, len(list))
		for _, item := range list {
			id, err := bindRefID(attr, item)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	case attr.Type.IsReference():
		return bindRefID(attr, raw)
	}

	switch attr.Type {
	case meta.TypeBool:
		if v, ok := raw.(bool); ok {
			return v, nil
		}
		return nil, data.NewValidation(fmt.Sprintf("Invalid boolean value '%v' for attribute '%s'", raw, attr.Name))
	case meta.TypeInt, meta.TypeLong:
		switch v := raw.(type) {
		case float64:
			if v != math.Trunc(v) {
				return nil, data.NewValidation(fmt.Sprintf("NumberFormatException For input string: %q", formatNumber(v)))
			}
			return int64(v), nil
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, data.NewValidation(fmt.Sprintf("NumberFormatException For input string: %q", v))
			}
			return n, nil
		}
		return nil, data.NewValidation(fmt.Sprintf("Invalid numeric value '%v' for attribute '%s'", raw, attr.Name))
	case meta.TypeDecimal:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, data.NewValidation(fmt.Sprintf("NumberFormatException For input string: %q", v))
			}
			return f, nil
		}
		return nil, data.NewValidation(fmt.Sprintf("Invalid decimal value '%v' for attribute '%s'", raw, attr.Name))
	default:
		if v, ok := raw.(string); ok {
			return v, nil
		}
		return fmt.Sprintf("%v", raw), nil
	}
}

// bindRefID extracts a reference id from a bare value or an object carrying
// the referenced id attribute
func bindRefID(attr *meta.Attribute, raw interface{}) (interface{}, error) {
	if obj, ok := raw.(map[string]interface{}); ok {
		if attr.RefEntity == nil {
			return nil, data.NewInvariant("reference attribute %s has no referenced entity type", attr.Name)
		}
		id, ok := obj[attr.RefEntity.IDAttributeName]
		if !ok {
			return nil, data.NewValidation(fmt.Sprintf(
				"Missing id attribute '%s' in reference value for attribute '%s'",
				attr.RefEntity.IDAttributeName, attr.Name))
		}
		return normalizeID(id), nil
	}
	return normalizeID(raw), nil
}

// normalizeID collapses JSON numbers to int64 so ids compare consistently
func normalizeID(id interface{}) interface{} {
	if v, ok := id.(float64); ok && v == math.Trunc(v) {
		return int64(v)
	}
	return id
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parseIDParam converts a path id to the value space of the id attribute
func parseIDParam(et *meta.EntityType, raw string) interface{} {
	idAttr := et.IDAttribute()
	if idAttr == nil {
		return raw
	}
	switch idAttr.Type {
	case meta.TypeInt, meta.TypeLong:
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return v
		}
	}
	return raw
}
