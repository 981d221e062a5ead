// Package security implements the permission engine: object identities,
// cumulative permission bitmasks, sid resolution and the evaluator used by
// the permission decorator. Authentication is out of scope; the package only
// resolves an already-authenticated subject to its sids.
package security

import "fmt"

// IdentityType is the class of a securable object
type IdentityType string

const (
	// IdentityEntityType secures an entity type
	IdentityEntityType IdentityType = "entityType"
	// IdentityPackage secures a package
	IdentityPackage IdentityType = "package"
	// IdentityPlugin secures a plugin
	IdentityPlugin IdentityType = "plugin"
)

// ObjectIdentity is the (type, identifier) key of the permission engine
type ObjectIdentity struct {
	Type IdentityType
	ID   string
}

// String renders the identity as "type:id"
func (oi ObjectIdentity) String() string {
	return fmt.Sprintf("%s:%s", oi.Type, oi.ID)
}

// EntityTypeIdentity creates the object identity of an entity type
func EntityTypeIdentity(entityTypeID string) ObjectIdentity {
	return ObjectIdentity{Type: IdentityEntityType, ID: entityTypeID}
}

// PackageIdentity creates the object identity of a package
func PackageIdentity(packageID string) ObjectIdentity {
	return ObjectIdentity{Type: IdentityPackage, ID: packageID}
}

// PluginIdentity creates the object identity of a plugin
func PluginIdentity(pluginID string) ObjectIdentity {
	return ObjectIdentity{Type: IdentityPlugin, ID: pluginID}
}
