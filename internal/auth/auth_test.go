package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchpilot/switchpilot/internal/auth"
)

func newService(t *testing.T) *auth.Service {
	t.Helper()
	svc, err := auth.NewService(auth.Config{SigningKey: "test-signing-key"})
	require.NoError(t, err)
	return svc
}

func TestNewService_RequiresSigningKey(t *testing.T) {
	_, err := auth.NewService(auth.Config{})
	assert.Error(t, err)
}

func TestIssueAndValidate(t *testing.T) {
	svc := newService(t)

	token, err := svc.IssueToken("alice", auth.RoleOperator)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Operator)
	assert.Equal(t, auth.RoleOperator, claims.Role)
	assert.Equal(t, "switchpilot", claims.Issuer)
	assert.WithinDuration(t, time.Now().Add(auth.TokenExpiry), claims.ExpiresAt.Time, time.Minute)
}

func TestIssueToken_Validation(t *testing.T) {
	svc := newService(t)

	_, err := svc.IssueToken("", auth.RoleViewer)
	assert.Error(t, err)

	_, err = svc.IssueToken("alice", auth.Role("root"))
	assert.Error(t, err)
}

func TestValidateToken_WrongKey(t *testing.T) {
	svc := newService(t)
	other, err := auth.NewService(auth.Config{SigningKey: "a-different-key"})
	require.NoError(t, err)

	token, err := other.IssueToken("alice", auth.RoleViewer)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestValidateToken_WrongIssuer(t *testing.T) {
	svc := newService(t)
	other, err := auth.NewService(auth.Config{SigningKey: "test-signing-key", Issuer: "someone-else"})
	require.NoError(t, err)

	token, err := other.IssueToken("alice", auth.RoleViewer)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestValidateToken_Expired(t *testing.T) {
	svc := newService(t)

	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "switchpilot",
			Subject:   "alice",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-13 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		Operator: "alice",
		Role:     auth.RoleViewer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(signed)
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestValidateToken_MissingOperatorClaim(t *testing.T) {
	svc := newService(t)

	claims := jwt.RegisteredClaims{
		Issuer:    "switchpilot",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(signed)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestValidateToken_Garbage(t *testing.T) {
	svc := newService(t)

	_, err := svc.ValidateToken("not.a.jwt")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestValidateToken_RejectsUnsignedAlg(t *testing.T) {
	svc := newService(t)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "switchpilot"},
		Operator:         "alice",
		Role:             auth.RoleOperator,
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.ValidateToken(signed)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
