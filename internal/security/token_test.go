package security

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenResolver_RoundTrip(t *testing.T) {
	tr := NewTokenResolver("test-secret")

	signed, err := tr.Issue(Subject{Username: "alice", Roles: []string{RoleUser, "EDITOR"}})
	require.NoError(t, err)

	subject, err := tr.Resolve(signed)
	require.NoError(t, err)
	assert.Equal(t, "alice", subject.Username)
	assert.Equal(t, []string{RoleUser, "EDITOR"}, subject.Roles)
}

func TestTokenResolver_ImplicitUserRole(t *testing.T) {
	tr := NewTokenResolver("test-secret")

	signed, err := tr.Issue(Subject{Username: "bob"})
	require.NoError(t, err)

	subject, err := tr.Resolve(signed)
	require.NoError(t, err)
	assert.Equal(t, []string{RoleUser}, subject.Roles)
}

func TestTokenResolver_WrongSecret(t *testing.T) {
	signed, err := NewTokenResolver("one").Issue(Subject{Username: "alice"})
	require.NoError(t, err)

	_, err = NewTokenResolver("two").Resolve(signed)
	assert.Error(t, err)
}

func TestTokenResolver_MissingSubject(t *testing.T) {
	tr := NewTokenResolver("test-secret")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"roles": []interface{}{"EDITOR"}})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = tr.Resolve(signed)
	assert.Error(t, err)
}
