package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userContext(username string, roles ...string) context.Context {
	return WithSubject(context.Background(), Subject{Username: username, Roles: roles})
}

func TestGrantStore_GrantStoresClosure(t *testing.T) {
	gs := NewGrantStore()
	oi := EntityTypeIdentity("books")
	gs.Grant(oi, PrincipalSid("alice"), PermissionWrite)

	ctx := userContext("alice")
	assert.True(t, gs.HasPermission(ctx, oi, PermissionWrite))
	assert.True(t, gs.HasPermission(ctx, oi, PermissionRead))
	assert.True(t, gs.HasPermission(ctx, oi, PermissionCount))
	assert.False(t, gs.HasPermission(ctx, oi, PermissionWriteMeta))
}

func TestGrantStore_RoleGrant(t *testing.T) {
	gs := NewGrantStore()
	oi := EntityTypeIdentity("books")
	gs.Grant(oi, RoleSid("EDITOR"), PermissionRead)

	assert.True(t, gs.HasPermission(userContext("bob", "EDITOR"), oi, PermissionRead))
	assert.False(t, gs.HasPermission(userContext("bob"), oi, PermissionRead))
}

func TestGrantStore_UnionAcrossSids(t *testing.T) {
	gs := NewGrantStore()
	oi := EntityTypeIdentity("books")
	gs.Grant(oi, PrincipalSid("carol"), PermissionCount)
	gs.Grant(oi, RoleSid("EDITOR"), PermissionWrite)

	effective := gs.EffectivePermissions(userContext("carol", "EDITOR"), oi)
	assert.True(t, effective.Has(PermissionWrite))
	assert.True(t, effective.Has(PermissionCount))
}

func TestGrantStore_SystemBypass(t *testing.T) {
	gs := NewGrantStore()
	oi := EntityTypeIdentity("books")

	ctx := WithSubject(context.Background(), System())
	assert.True(t, gs.HasPermission(ctx, oi, PermissionWriteMeta))
}

func TestGrantStore_AnonymousDefault(t *testing.T) {
	gs := NewGrantStore()
	oi := EntityTypeIdentity("books")
	gs.Grant(oi, RoleSid(RoleAnonymous), PermissionRead)

	// a context without a subject evaluates as anonymous
	assert.True(t, gs.HasPermission(context.Background(), oi, PermissionRead))
	assert.False(t, gs.HasPermission(context.Background(), oi, PermissionWrite))
}

func TestGrantStore_Revoke(t *testing.T) {
	gs := NewGrantStore()
	oi := EntityTypeIdentity("books")
	gs.Grant(oi, PrincipalSid("alice"), PermissionRead)
	gs.Revoke(oi, PrincipalSid("alice"))

	assert.False(t, gs.HasPermission(userContext("alice"), oi, PermissionRead))
	assert.Empty(t, gs.Grants())
}

func TestGrantStore_GrantsListsStableOrder(t *testing.T) {
	gs := NewGrantStore()
	gs.Grant(EntityTypeIdentity("books"), PrincipalSid("alice"), PermissionRead)
	gs.Grant(PackageIdentity("upload"), RoleSid(RoleUser), PermissionWrite)

	grants := gs.Grants()
	require.Len(t, grants, 4)
	// entityType identities sort before package identities, closures are
	// decomposed per permission
	assert.Equal(t, EntityTypeIdentity("books"), grants[0].Identity)
	assert.Equal(t, PermissionCount, grants[0].Permission)
	assert.Equal(t, PermissionRead, grants[1].Permission)
	assert.Equal(t, PackageIdentity("upload"), grants[2].Identity)
}

func TestSeedGrants(t *testing.T) {
	gs := NewGrantStore()
	SeedGrants(gs)

	userCtx := userContext("dave", RoleUser)
	assert.True(t, gs.HasPermission(userCtx, EntityTypeIdentity("sys_md_EntityType"), PermissionRead))
	assert.True(t, gs.HasPermission(userCtx, EntityTypeIdentity("sys_md_Attribute"), PermissionCount))
	assert.False(t, gs.HasPermission(userCtx, EntityTypeIdentity("sys_md_EntityType"), PermissionWrite))
	assert.True(t, gs.HasPermission(userCtx, PackageIdentity("upload"), PermissionWriteMeta))
	assert.True(t, gs.HasPermission(userCtx, PluginIdentity("useraccount"), PermissionRead))

	// anonymous holds none of the seeded grants
	anonCtx := context.Background()
	assert.False(t, gs.HasPermission(anonCtx, EntityTypeIdentity("sys_md_EntityType"), PermissionRead))
}

func TestSubject_Sids(t *testing.T) {
	s := Subject{Username: "alice", Roles: []string{RoleUser, "EDITOR"}}
	assert.Equal(t, []Sid{PrincipalSid("alice"), RoleSid(RoleUser), RoleSid("EDITOR")}, s.Sids())
}
