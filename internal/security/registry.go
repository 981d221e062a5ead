package security

import "github.com/metagrid-platform/metagrid/internal/meta"

// SeedGrants installs the default grants every fresh instance starts with:
// all authenticated users can read the metadata model, write into the
// upload package and open their account plugin.
func SeedGrants(gs *GrantStore) {
	user := RoleSid(RoleUser)

	metadataTypes := []string{
		meta.EntityTypeMeta,
		meta.AttributeMeta,
		meta.PackageMeta,
		meta.TagMeta,
		meta.LanguageMeta,
		meta.L10nStringMeta,
		meta.FileMeta,
		meta.DecoratorConfigMeta,
	}
	for _, id := range metadataTypes {
		gs.Grant(EntityTypeIdentity(id), user, PermissionRead)
	}

	gs.Grant(PackageIdentity(meta.UploadPackageID), user, PermissionWriteMeta)
	gs.Grant(PluginIdentity("useraccount"), user, PermissionRead)
}
