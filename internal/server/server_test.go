package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/metagrid-platform/metagrid/internal/backend/memory"
	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/security"
)

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	_, err = New(&Config{Address: ":0"})
	require.Error(t, err)

	srv, err := New(DefaultConfig(okHandler()))
	require.NoError(t, err)
	assert.Equal(t, ":8080", srv.Addr())
}

func TestRouterHealth(t *testing.T) {
	svc := data.NewService(meta.NewRegistry(), memory.NewEngine())
	router := Router(svc, security.NewTokenResolver("secret"), zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRouterMountsEntityAPIs(t *testing.T) {
	registry := meta.NewRegistry()
	engine := memory.NewEngine()
	svc := data.NewService(registry, engine)

	et := meta.NewEntityType("things")
	id := meta.NewAttribute("id", meta.TypeString)
	id.Nillable = false
	id.Unique = true
	et.AddAttribute(id)
	et.IDAttributeName = "id"
	require.NoError(t, registry.Register(et))
	svc.RegisterRepository(engine.CreateRepository(et))

	router := Router(svc, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v2/things", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/things", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v2/absent", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
