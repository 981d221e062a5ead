package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/query"
)

// BasePathV2 is the mount point of the v2 collection API
const BasePathV2 = "/api/v2"

// ControllerV2 serves the v2 collection API: list, get, batch create,
// batch update, attribute-wide update, aggregates and attribute metadata.
type ControllerV2 struct {
	svc        *data.Service
	serializer *Serializer
}

// NewControllerV2 creates the v2 controller
func NewControllerV2(svc *data.Service) *ControllerV2 {
	return &ControllerV2{svc: svc, serializer: NewSerializer(svc, BasePathV2)}
}

// Routes mounts the controller on a chi router
func (c *ControllerV2) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/{entityType}", func(r chi.Router) {
		r.Get("/", c.retrieveCollection)
		r.Post("/", c.createOrTunnel)
		r.Put("/", c.updateEntities)
		r.Get("/meta/{attr}", c.retrieveAttributeMeta)
		r.Post("/meta/{attr}", c.tunnelAttributeMeta)
		r.Get("/{id}", c.retrieveEntity)
		r.Post("/{id}", c.tunnelEntity)
		r.Delete("/{id}", c.deleteEntity)
		r.Put("/{attr}", c.updateAttribute)
	})
	return r
}

func (c *ControllerV2) entityType(r *http.Request) (*meta.EntityType, error) {
	return c.svc.EntityType(chi.URLParam(r, "entityType"))
}

// retrieveCollection handles list and aggregate requests
func (c *ControllerV2) retrieveCollection(w http.ResponseWriter, r *http.Request) {
	c.serveCollection(w, r, requestParams(r))
}

func (c *ControllerV2) serveCollection(w http.ResponseWriter, r *http.Request, params url.Values) {
	et, err := c.entityType(r)
	if err != nil {
		RenderError(w, err)
		return
	}
	rules, err := ParseQuery(et, params.Get("q"))
	if err != nil {
		RenderError(w, err)
		return
	}

	if aggs := params.Get("aggs"); aggs != "" {
		c.serveAggregate(w, r, et, aggs, rules)
		return
	}

	fetch, err := ParseAttributeFilter(et, params.Get("attrs"))
	if err != nil {
		RenderError(w, err)
		return
	}
	sort, err := parseSort(et, params)
	if err != nil {
		RenderError(w, err)
		return
	}
	start, num, err := parsePaging(params)
	if err != nil {
		RenderError(w, err)
		return
	}

	ctx := r.Context()
	total, err := c.svc.Count(ctx, et.ID, &query.Query{Rules: rules})
	if err != nil {
		RenderError(w, err)
		return
	}
	q := &query.Query{Rules: rules, Sort: sort, Offset: start, PageSize: num, Fetch: fetch}
	entities, err := c.svc.FindAll(ctx, et.ID, q)
	if err != nil {
		RenderError(w, err)
		return
	}
	items, err := c.serializer.Entities(ctx, et, entities, fetch)
	if err != nil {
		RenderError(w, err)
		return
	}
	if items == nil {
		items = []map[string]interface{}{}
	}

	pager := NewPager(start, num, total)
	path := c.serializer.CollectionHref(et.ID)
	response := map[string]interface{}{
		"href":  path,
		"meta":  c.serializer.EntityTypeMeta(et, fetch),
		"start": start,
		"num":   num,
		"total": total,
		"items": items,
	}
	if next := pager.NextHref(path, params); next != "" {
		response["nextHref"] = next
	}
	if prev := pager.PrevHref(path, params); prev != "" {
		response["prevHref"] = prev
	}
	RenderJSON(w, http.StatusOK, response)
}

func (c *ControllerV2) serveAggregate(w http.ResponseWriter, r *http.Request, et *meta.EntityType, aggs string, rules []query.Rule) {
	aq, err := parseAggregate(et, aggs, rules)
	if err != nil {
		RenderError(w, err)
		return
	}
	result, err := c.svc.Aggregate(r.Context(), et.ID, aq)
	if err != nil {
		RenderError(w, err)
		return
	}
	RenderJSON(w, http.StatusOK, map[string]interface{}{
		"aggs": map[string]interface{}{
			"matrix":  result.Matrix,
			"xLabels": result.XValues,
			"yLabels": result.YValues,
		},
	})
}

// createOrTunnel handles batch create, or serves a tunneled collection GET
// when the request carries _method=GET
func (c *ControllerV2) createOrTunnel(w http.ResponseWriter, r *http.Request) {
	params := requestParams(r)
	if strings.EqualFold(params.Get("_method"), "GET") {
		c.serveCollection(w, r, params)
		return
	}
	c.createEntities(w, r)
}

func (c *ControllerV2) createEntities(w http.ResponseWriter, r *http.Request) {
	et, err := c.entityType(r)
	if err != nil {
		RenderError(w, err)
		return
	}
	entities, err := c.bindBatch(et, r)
	if err != nil {
		// Source-compatible no-content status on batch create failures
		RenderErrorStatus(w, http.StatusNoContent, err)
		return
	}

	ctx := r.Context()
	if err := c.svc.AddAll(ctx, et.ID, entities); err != nil {
		RenderErrorStatus(w, http.StatusNoContent, err)
		return
	}

	ids := make([]string, len(entities))
	resources := make([]map[string]interface{}, len(entities))
	for i, entity := range entities {
		ids[i] = fmt.Sprintf("%q", fmt.Sprintf("%v", entity.ID()))
		resources[i] = map[string]interface{}{"href": c.serializer.Href(et.ID, entity.ID())}
	}
	location := fmt.Sprintf("%s?q=%s=in=(%s)",
		c.serializer.CollectionHref(et.ID), et.IDAttributeName, strings.Join(ids, ","))

	w.Header().Set("Location", location)
	RenderJSON(w, http.StatusCreated, map[string]interface{}{
		"location":  location,
		"resources": resources,
	})
}

// updateEntities handles whole-entity batch update
func (c *ControllerV2) updateEntities(w http.ResponseWriter, r *http.Request) {
	et, err := c.entityType(r)
	if err != nil {
		RenderError(w, err)
		return
	}
	entities, err := c.bindBatch(et, r)
	if err != nil {
		RenderError(w, err)
		return
	}
	if err := c.svc.UpdateAll(r.Context(), et.ID, entities); err != nil {
		RenderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *ControllerV2) bindBatch(et *meta.EntityType, r *http.Request) ([]*data.Entity, error) {
	var request batchRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		return nil, data.NewQueryError("Invalid request body: %s", err.Error())
	}
	if err := checkBatchBounds(request.Entities); err != nil {
		return nil, err
	}
	entities := make([]*data.Entity, len(request.Entities))
	for i, values := range request.Entities {
		entity, err := BindEntity(et, values)
		if err != nil {
			return nil, err
		}
		entities[i] = entity
	}
	return entities, nil
}

// updateAttribute handles batch update of a single attribute. Every element
// must carry exactly the id attribute and the updated attribute.
func (c *ControllerV2) updateAttribute(w http.ResponseWriter, r *http.Request) {
	et, err := c.entityType(r)
	if err != nil {
		RenderError(w, err)
		return
	}
	attrName := chi.URLParam(r, "attr")
	attr := resolveAttribute(et, attrName)
	if attr == nil {
		RenderError(w, data.NewUnknownAttribute(et.ID, attrName))
		return
	}
	if attr.ReadOnly || attr.Name == et.IDAttributeName {
		RenderError(w, data.NewReadOnlyAttribute(et.ID, attr.Name))
		return
	}

	var request batchRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		RenderError(w, data.NewQueryError("Invalid request body: %s", err.Error()))
		return
	}
	if err := checkBatchBounds(request.Entities); err != nil {
		RenderError(w, err)
		return
	}

	ctx := r.Context()
	idAttr := et.IDAttribute()
	updated := make([]*data.Entity, 0, len(request.Entities))
	for i, values := range request.Entities {
		if len(values) != 2 {
			RenderError(w, data.NewQueryError("Operation failed. Entities must provide only an identifier and a value"))
			return
		}
		rawID, ok := bodyValue(values, idAttr.Name)
		if !ok {
			RenderError(w, data.NewQueryError("Operation failed. Unknown identifier on index %d", i))
			return
		}
		rawValue, ok := bodyValue(values, attr.Name)
		if !ok {
			RenderError(w, data.NewQueryError("Operation failed. Entities must provide only an identifier and a value"))
			return
		}

		id := normalizeID(rawID)
		current, err := c.svc.FindOneByID(ctx, et.ID, id, nil)
		if err != nil {
			RenderError(w, err)
			return
		}
		if current == nil {
			RenderError(w, data.NewError(data.KindUnknownEntity, "Operation failed. Unknown identifier on index %d", i))
			return
		}
		value, err := bindValue(attr, rawValue)
		if err != nil {
			RenderError(w, err)
			return
		}
		current.Set(attr.Name, value)
		updated = append(updated, current)
	}

	if err := c.svc.UpdateAll(ctx, et.ID, updated); err != nil {
		RenderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// bodyValue finds a body key for an attribute, tolerating the same case
// differences the attribute filter accepts
func bodyValue(values map[string]interface{}, name string) (interface{}, bool) {
	if v, ok := values[name]; ok {
		return v, true
	}
	for key, v := range values {
		if strings.EqualFold(key, name) {
			return v, true
		}
	}
	return nil, false
}

// retrieveEntity handles get-by-id
func (c *ControllerV2) retrieveEntity(w http.ResponseWriter, r *http.Request) {
	c.serveEntity(w, r, requestParams(r))
}

// tunnelEntity serves a tunneled get-by-id for oversized attrs parameters
func (c *ControllerV2) tunnelEntity(w http.ResponseWriter, r *http.Request) {
	params := requestParams(r)
	if !strings.EqualFold(params.Get("_method"), "GET") {
		RenderError(w, data.NewUnsupported("Operation failed. Unsupported method tunnel"))
		return
	}
	c.serveEntity(w, r, params)
}

func (c *ControllerV2) serveEntity(w http.ResponseWriter, r *http.Request, params url.Values) {
	et, err := c.entityType(r)
	if err != nil {
		RenderError(w, err)
		return
	}
	fetch, err := ParseAttributeFilter(et, params.Get("attrs"))
	if err != nil {
		RenderError(w, err)
		return
	}

	id := parseIDParam(et, chi.URLParam(r, "id"))
	ctx := r.Context()
	entity, err := c.svc.FindOneByID(ctx, et.ID, id, fetch)
	if err != nil {
		RenderError(w, err)
		return
	}
	if entity == nil {
		RenderError(w, data.NewUnknownEntity(et.ID, id))
		return
	}
	body, err := c.serializer.Entity(ctx, et, entity, fetch)
	if err != nil {
		RenderError(w, err)
		return
	}
	body["_meta"] = c.serializer.EntityTypeMeta(et, fetch)
	RenderJSON(w, http.StatusOK, body)
}

// deleteEntity removes one entity
func (c *ControllerV2) deleteEntity(w http.ResponseWriter, r *http.Request) {
	et, err := c.entityType(r)
	if err != nil {
		RenderError(w, err)
		return
	}
	if err := c.svc.DeleteByID(r.Context(), et.ID, parseIDParam(et, chi.URLParam(r, "id"))); err != nil {
		RenderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// retrieveAttributeMeta serves attribute metadata
func (c *ControllerV2) retrieveAttributeMeta(w http.ResponseWriter, r *http.Request) {
	c.serveAttributeMeta(w, r)
}

func (c *ControllerV2) tunnelAttributeMeta(w http.ResponseWriter, r *http.Request) {
	params := requestParams(r)
	if !strings.EqualFold(params.Get("_method"), "GET") {
		RenderError(w, data.NewUnsupported("Operation failed. Unsupported method tunnel"))
		return
	}
	c.serveAttributeMeta(w, r)
}

func (c *ControllerV2) serveAttributeMeta(w http.ResponseWriter, r *http.Request) {
	et, err := c.entityType(r)
	if err != nil {
		RenderError(w, err)
		return
	}
	attrName := chi.URLParam(r, "attr")
	attr := resolveAttribute(et, attrName)
	if attr == nil {
		RenderError(w, data.NewUnknownAttribute(et.ID, attrName))
		return
	}
	RenderJSON(w, http.StatusOK, c.serializer.AttributeMeta(et, attr))
}
