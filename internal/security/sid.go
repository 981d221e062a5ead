package security

import (
	"context"
	"fmt"
)

// SidType discriminates principal sids from role sids
type SidType int

const (
	// SidPrincipal identifies a concrete user
	SidPrincipal SidType = iota
	// SidRole identifies a role shared by many users
	SidRole
)

// Sid is a security identity a grant can be assigned to
type Sid struct {
	Type SidType
	Name string
}

// PrincipalSid creates a sid for a named user
func PrincipalSid(username string) Sid {
	return Sid{Type: SidPrincipal, Name: username}
}

// RoleSid creates a sid for a named role
func RoleSid(role string) Sid {
	return Sid{Type: SidRole, Name: role}
}

// String renders the sid as "user:name" or "role:name"
func (s Sid) String() string {
	if s.Type == SidRole {
		return fmt.Sprintf("role:%s", s.Name)
	}
	return fmt.Sprintf("user:%s", s.Name)
}

// Well-known roles
const (
	RoleUser          = "USER"
	RoleSystem        = "SYSTEM"
	RoleAnonymous     = "ANONYMOUS"
	AnonymousUsername = "anonymous"
)

// Subject is the authenticated caller of a request
type Subject struct {
	Username string
	Roles    []string
}

// Anonymous is the subject used when no credentials were presented
func Anonymous() Subject {
	return Subject{Username: AnonymousUsername, Roles: []string{RoleAnonymous}}
}

// System is the internal subject used by bootstrap and background jobs.
// The evaluator bypasses grant checks for it.
func System() Subject {
	return Subject{Username: "SYSTEM", Roles: []string{RoleSystem}}
}

// IsSystem reports whether the subject carries the SYSTEM role
func (s Subject) IsSystem() bool {
	for _, r := range s.Roles {
		if r == RoleSystem {
			return true
		}
	}
	return false
}

// Sids returns the sids a grant lookup must consider for the subject: its
// principal sid followed by one role sid per role.
func (s Subject) Sids() []Sid {
	sids := make([]Sid, 0, 1+len(s.Roles))
	if s.Username != "" {
		sids = append(sids, PrincipalSid(s.Username))
	}
	for _, r := range s.Roles {
		sids = append(sids, RoleSid(r))
	}
	return sids
}

type subjectKey struct{}

// WithSubject stores the subject on the context
func WithSubject(ctx context.Context, s Subject) context.Context {
	return context.WithValue(ctx, subjectKey{}, s)
}

// SubjectFrom returns the subject on the context, or Anonymous when none
// was set
func SubjectFrom(ctx context.Context) Subject {
	if s, ok := ctx.Value(subjectKey{}).(Subject); ok {
		return s
	}
	return Anonymous()
}
