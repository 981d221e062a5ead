package security

import (
	"context"
	"sort"
	"sync"
)

// Grant assigns a permission on an object identity to a sid
type Grant struct {
	Identity   ObjectIdentity
	Sid        Sid
	Permission Permission
}

// Evaluator answers permission questions for a subject
type Evaluator interface {
	// HasPermission reports whether the subject on the context holds the
	// permission on the identity, directly or through implication
	HasPermission(ctx context.Context, oi ObjectIdentity, p Permission) bool
	// EffectivePermissions returns the full closure of permissions the
	// subject holds on the identity
	EffectivePermissions(ctx context.Context, oi ObjectIdentity) PermissionSet
}

// GrantStore holds permission grants in memory. It is safe for concurrent
// use and doubles as the Evaluator of the permission decorator.
type GrantStore struct {
	mu     sync.RWMutex
	grants map[ObjectIdentity]map[Sid]PermissionSet
}

// NewGrantStore creates an empty grant store
func NewGrantStore() *GrantStore {
	return &GrantStore{grants: make(map[ObjectIdentity]map[Sid]PermissionSet)}
}

// Grant records a permission for a sid on an identity. The stored set is
// the implied closure of the granted permission, so evaluation is a single
// bitmask test.
func (gs *GrantStore) Grant(oi ObjectIdentity, sid Sid, p Permission) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	bySid := gs.grants[oi]
	if bySid == nil {
		bySid = make(map[Sid]PermissionSet)
		gs.grants[oi] = bySid
	}
	bySid[sid] = bySid[sid].Union(Implied(oi.Type, p))
}

// Revoke removes all permissions of a sid on an identity
func (gs *GrantStore) Revoke(oi ObjectIdentity, sid Sid) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	if bySid := gs.grants[oi]; bySid != nil {
		delete(bySid, sid)
		if len(bySid) == 0 {
			delete(gs.grants, oi)
		}
	}
}

// Grants lists all recorded grants in a stable order, for administration
// endpoints and tests
func (gs *GrantStore) Grants() []Grant {
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	var out []Grant
	for oi, bySid := range gs.grants {
		for sid, ps := range bySid {
			for _, p := range ps.Permissions() {
				out = append(out, Grant{Identity: oi, Sid: sid, Permission: p})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Identity != out[j].Identity {
			if out[i].Identity.Type != out[j].Identity.Type {
				return out[i].Identity.Type < out[j].Identity.Type
			}
			return out[i].Identity.ID < out[j].Identity.ID
		}
		if out[i].Sid != out[j].Sid {
			return out[i].Sid.String() < out[j].Sid.String()
		}
		return out[i].Permission < out[j].Permission
	})
	return out
}

// EffectivePermissions unions the stored closures of every sid the subject
// carries
func (gs *GrantStore) EffectivePermissions(ctx context.Context, oi ObjectIdentity) PermissionSet {
	subject := SubjectFrom(ctx)
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	var effective PermissionSet
	bySid := gs.grants[oi]
	if bySid == nil {
		return effective
	}
	for _, sid := range subject.Sids() {
		effective = effective.Union(bySid[sid])
	}
	return effective
}

// HasPermission reports whether the subject holds the permission. The
// SYSTEM subject holds every permission.
func (gs *GrantStore) HasPermission(ctx context.Context, oi ObjectIdentity, p Permission) bool {
	if SubjectFrom(ctx).IsSystem() {
		return true
	}
	return gs.EffectivePermissions(ctx, oi).Has(p)
}
