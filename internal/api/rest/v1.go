package rest

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/query"
)

// BasePathV1 is the mount point of the legacy v1 collection API
const BasePathV1 = "/api/v1"

// ControllerV1 serves the legacy collection API. It shares the v2 shape but
// does not support aggregates or nested attribute sub-filters; like v2 it
// defaults to all attributes when no filter is given.
type ControllerV1 struct {
	svc        *data.Service
	serializer *Serializer
}

// NewControllerV1 creates the v1 controller
func NewControllerV1(svc *data.Service) *ControllerV1 {
	return &ControllerV1{svc: svc, serializer: NewSerializer(svc, BasePathV1)}
}

// Routes mounts the controller on a chi router
func (c *ControllerV1) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/{entityType}", func(r chi.Router) {
		r.Get("/", c.retrieveCollection)
		r.Get("/{id}", c.retrieveEntity)
		r.Delete("/{id}", c.deleteEntity)
	})
	return r
}

func (c *ControllerV1) entityType(r *http.Request) (*meta.EntityType, error) {
	return c.svc.EntityType(chi.URLParam(r, "entityType"))
}

// parseFlatFilter parses a v1 attrs parameter: comma separated attribute
// names without sub-filters
func parseFlatFilter(et *meta.EntityType, filter string) (*query.Fetch, error) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return nil, nil
	}
	if strings.ContainsAny(filter, "()") {
		return nil, data.NewQueryError("Nested attribute filters are not supported in the v1 API")
	}
	return ParseAttributeFilter(et, filter)
}

func (c *ControllerV1) retrieveCollection(w http.ResponseWriter, r *http.Request) {
	params := requestParams(r)
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
	fetch, err := parseFlatFilter(et, params.Get("attrs"))
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

func (c *ControllerV1) retrieveEntity(w http.ResponseWriter, r *http.Request) {
	c.serveEntity(w, r, requestParams(r))
}

func (c *ControllerV1) serveEntity(w http.ResponseWriter, r *http.Request, params url.Values) {
	et, err := c.entityType(r)
	if err != nil {
		RenderError(w, err)
		return
	}
	fetch, err := parseFlatFilter(et, params.Get("attrs"))
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
	RenderJSON(w, http.StatusOK, body)
}

func (c *ControllerV1) deleteEntity(w http.ResponseWriter, r *http.Request) {
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
