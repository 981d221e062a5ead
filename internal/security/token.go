package security

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TokenResolver turns a bearer token into a Subject
type TokenResolver struct {
	secret []byte
}

// NewTokenResolver creates a resolver validating tokens with the given
// HMAC secret
func NewTokenResolver(secret string) *TokenResolver {
	return &TokenResolver{secret: []byte(secret)}
}

// Resolve parses and validates the token and extracts the subject. The
// username is read from the standard "sub" claim and roles from a "roles"
// string array claim; every authenticated subject implicitly carries the
// USER role.
func (tr *TokenResolver) Resolve(tokenString string) (Subject, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return tr.secret, nil
	})
	if err != nil {
		return Subject{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Subject{}, fmt.Errorf("unexpected claims type %T", token.Claims)
	}
	username, err := claims.GetSubject()
	if err != nil || username == "" {
		return Subject{}, fmt.Errorf("token has no subject")
	}

	roles := []string{RoleUser}
	if raw, ok := claims["roles"].([]interface{}); ok {
		for _, r := range raw {
			if name, ok := r.(string); ok && name != RoleUser {
				roles = append(roles, name)
			}
		}
	}
	return Subject{Username: username, Roles: roles}, nil
}

// Issue creates a signed token for a subject, used by tests and tooling
func (tr *TokenResolver) Issue(s Subject) (string, error) {
	var roles []interface{}
	for _, r := range s.Roles {
		roles = append(roles, r)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   s.Username,
		"roles": roles,
	})
	signed, err := token.SignedString(tr.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
