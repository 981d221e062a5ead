package security

import (
	"fmt"
	"strings"
)

// Permission is a single access right on a securable object. Granting a
// permission implies the permissions below it for the object's identity
// type; Implied expands a granted permission to its full closure.
type Permission int

const (
	// PermissionCount allows counting and aggregating rows
	PermissionCount Permission = iota
	// PermissionRead allows reading rows and metadata
	PermissionRead
	// PermissionWrite allows creating, updating and deleting rows
	PermissionWrite
	// PermissionWriteMeta allows changing the entity type definition itself
	PermissionWriteMeta
)

// String returns the permission name as used on the wire
func (p Permission) String() string {
	switch p {
	case PermissionCount:
		return "COUNT"
	case PermissionRead:
		return "READ"
	case PermissionWrite:
		return "WRITE"
	case PermissionWriteMeta:
		return "WRITEMETA"
	default:
		return fmt.Sprintf("Permission(%d)", int(p))
	}
}

// ParsePermission converts a wire name to a Permission
func ParsePermission(s string) (Permission, error) {
	switch strings.ToUpper(s) {
	case "COUNT":
		return PermissionCount, nil
	case "READ":
		return PermissionRead, nil
	case "WRITE":
		return PermissionWrite, nil
	case "WRITEMETA":
		return PermissionWriteMeta, nil
	default:
		return 0, fmt.Errorf("unknown permission %q", s)
	}
}

// PermissionSet is a bitmask of permissions
type PermissionSet uint8

// With returns the set with p added
func (ps PermissionSet) With(p Permission) PermissionSet {
	return ps | 1<<uint(p)
}

// Has reports whether p is in the set
func (ps PermissionSet) Has(p Permission) bool {
	return ps&(1<<uint(p)) != 0
}

// Union returns the combination of both sets
func (ps PermissionSet) Union(other PermissionSet) PermissionSet {
	return ps | other
}

// Permissions lists the members of the set in ascending order
func (ps PermissionSet) Permissions() []Permission {
	var out []Permission
	for p := PermissionCount; p <= PermissionWriteMeta; p++ {
		if ps.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// String renders the set as a comma separated list of permission names
func (ps PermissionSet) String() string {
	names := make([]string, 0, 4)
	for _, p := range ps.Permissions() {
		names = append(names, p.String())
	}
	return strings.Join(names, ",")
}

// Implied expands a granted permission into the permissions it implies for
// the given identity type. Entity types cascade WRITEMETA through WRITE and
// READ down to COUNT. Packages have no COUNT level, and plugins only carry
// READ.
func Implied(it IdentityType, p Permission) PermissionSet {
	var ps PermissionSet
	switch it {
	case IdentityEntityType:
		for q := PermissionCount; q <= p; q++ {
			ps = ps.With(q)
		}
	case IdentityPackage:
		for q := PermissionRead; q <= p; q++ {
			ps = ps.With(q)
		}
		if p == PermissionCount {
			ps = ps.With(PermissionCount)
		}
	case IdentityPlugin:
		if p >= PermissionRead {
			ps = ps.With(PermissionRead)
		}
	}
	return ps
}
