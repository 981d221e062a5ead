package platform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/metagrid-platform/metagrid/internal/config"
	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/security"
)

func newTestPlatform(t *testing.T) *Platform {
	t.Helper()
	cfg := &config.Config{
		Server:   config.ServerConfig{Host: "localhost", Port: 8080},
		Database: config.DatabaseConfig{Backend: "memory"},
		Cache:    config.CacheConfig{Backend: "none"},
		Index:    config.IndexConfig{QueueSize: 256},
	}
	p, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func userContext() context.Context {
	return security.WithSubject(context.Background(),
		security.Subject{Username: "henk", Roles: []string{security.RoleUser}})
}

func systemContext() context.Context {
	return security.WithSubject(context.Background(), security.System())
}

func petsType() *meta.EntityType {
	et := meta.NewEntityType("pets")
	id := meta.NewAttribute("id", meta.TypeString)
	id.Nillable = false
	id.Unique = true
	name := meta.NewAttribute("name", meta.TypeString)
	et.AddAttribute(id).AddAttribute(name)
	et.IDAttributeName = "id"
	return et
}

func TestBootstrap_SystemTypesRegistered(t *testing.T) {
	p := newTestPlatform(t)

	for _, id := range []string{meta.EntityTypeMeta, meta.AttributeMeta, meta.PackageMeta} {
		_, ok := p.Registry.EntityType(id)
		assert.True(t, ok, "system type %s not registered", id)

		repo, err := p.Service.Repository(id)
		assert.NoError(t, err)
		assert.NotNil(t, repo)
	}
}

func TestBootstrap_MetadataIsSelfHosted(t *testing.T) {
	p := newTestPlatform(t)
	ctx := userContext()

	// the entity type describing entity types is itself a row
	row, err := p.Service.FindOneByID(ctx, meta.EntityTypeMeta, meta.EntityTypeMeta, nil)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "id", row.Get("idAttribute"))
	assert.NotEmpty(t, row.GetRefIDs("attributes"))

	count, err := p.Service.Count(ctx, meta.AttributeMeta, nil)
	require.NoError(t, err)
	assert.Greater(t, count, int64(0))
}

func TestBootstrap_AnonymousCannotReadMetadata(t *testing.T) {
	p := newTestPlatform(t)

	_, err := p.Service.FindOneByID(context.Background(), meta.EntityTypeMeta, meta.EntityTypeMeta, nil)
	require.Error(t, err)
	assert.True(t, data.IsKind(err, data.KindPermissionDenied))
}

func TestCreateEntityType(t *testing.T) {
	p := newTestPlatform(t)
	ctx := systemContext()

	require.NoError(t, p.CreateEntityType(ctx, petsType()))

	_, ok := p.Registry.EntityType("pets")
	assert.True(t, ok)

	row, err := p.Service.FindOneByID(ctx, meta.EntityTypeMeta, "pets", nil)
	require.NoError(t, err)
	require.NotNil(t, row)

	attrRow, err := p.Service.FindOneByID(ctx, meta.AttributeMeta, "pets.id", nil)
	require.NoError(t, err)
	require.NotNil(t, attrRow)
	assert.Equal(t, "STRING", attrRow.Get("type"))

	// the mounted repository is usable immediately
	et, _ := p.Registry.EntityType("pets")
	pet := data.NewEntity(et)
	pet.Set("id", "p1")
	pet.Set("name", "Rex")
	require.NoError(t, p.Service.AddAll(ctx, "pets", []*data.Entity{pet}))

	found, err := p.Service.FindOneByID(ctx, "pets", "p1", nil)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Rex", found.Get("name"))
}

func TestCreateEntityType_InvalidRejected(t *testing.T) {
	p := newTestPlatform(t)

	et := meta.NewEntityType("broken")
	et.AddAttribute(meta.NewAttribute("name", meta.TypeString))

	err := p.CreateEntityType(systemContext(), et)
	require.Error(t, err)

	_, ok := p.Registry.EntityType("broken")
	assert.False(t, ok)
}

func TestDeleteEntityType(t *testing.T) {
	p := newTestPlatform(t)
	ctx := systemContext()

	require.NoError(t, p.CreateEntityType(ctx, petsType()))
	require.NoError(t, p.DeleteEntityType(ctx, "pets"))

	_, ok := p.Registry.EntityType("pets")
	assert.False(t, ok)

	row, err := p.Service.FindOneByID(ctx, meta.EntityTypeMeta, "pets", nil)
	require.NoError(t, err)
	assert.Nil(t, row)

	attrRow, err := p.Service.FindOneByID(ctx, meta.AttributeMeta, "pets.id", nil)
	require.NoError(t, err)
	assert.Nil(t, attrRow)
}

func TestDeleteEntityType_Unknown(t *testing.T) {
	p := newTestPlatform(t)

	err := p.DeleteEntityType(systemContext(), "nope")
	require.Error(t, err)
	assert.True(t, data.IsKind(err, data.KindUnknownEntity))
}

func TestDeleteEntityType_SystemProtected(t *testing.T) {
	p := newTestPlatform(t)

	err := p.DeleteEntityType(systemContext(), meta.EntityTypeMeta)
	require.Error(t, err)
	assert.True(t, data.IsKind(err, data.KindPermissionDenied))
}

func TestDeleteEntityType_Referenced(t *testing.T) {
	p := newTestPlatform(t)
	ctx := systemContext()

	owners := meta.NewEntityType("owners")
	ownerID := meta.NewAttribute("id", meta.TypeString)
	ownerID.Nillable = false
	ownerID.Unique = true
	owners.AddAttribute(ownerID)
	owners.IDAttributeName = "id"
	require.NoError(t, p.CreateEntityType(ctx, owners))

	pets := petsType()
	owner := meta.NewAttribute("owner", meta.TypeXref)
	owner.RefEntity = owners
	pets.AddAttribute(owner)
	require.NoError(t, p.CreateEntityType(ctx, pets))

	err := p.DeleteEntityType(ctx, "owners")
	require.Error(t, err)
	assert.True(t, data.IsKind(err, data.KindValidation))
	assert.Contains(t, err.Error(), "referenced by pets")

	// the referrer goes first, then the target is free
	require.NoError(t, p.DeleteEntityType(ctx, "pets"))
	require.NoError(t, p.DeleteEntityType(ctx, "owners"))
}
