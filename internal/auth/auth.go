// Package auth issues and validates operator tokens for the control-plane
// API. Tokens are HS256 JWTs signed with a shared server-side key; there
// is no refresh flow, operators mint a fresh token when theirs expires.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry is how long operator tokens are valid. Short enough that a
// leaked token ages out within a shift.
const TokenExpiry = 12 * time.Hour

// Predefined token errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
)

// Role controls what an operator token may do.
type Role string

const (
	// RoleViewer can read status and assessments.
	RoleViewer Role = "viewer"
	// RoleOperator can additionally trigger assessments, switches, and
	// admin operations.
	RoleOperator Role = "operator"
)

// Claims are the claims carried by operator tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Operator is the operator's identity (username or service account).
	Operator string `json:"op"`
	// Role is the operator's role.
	Role Role `json:"role"`
}

// Service issues and validates operator tokens.
type Service struct {
	signingKey []byte
	issuer     string
}

// Config holds configuration for the auth service.
type Config struct {
	// SigningKey is the secret key used to sign tokens.
	SigningKey string
	// Issuer is the iss claim, defaults to "switchpilot".
	Issuer string
}

// NewService creates an auth service.
func NewService(cfg Config) (*Service, error) {
	if cfg.SigningKey == "" {
		return nil, errors.New("signing key is required")
	}
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "switchpilot"
	}
	return &Service{
		signingKey: []byte(cfg.SigningKey),
		issuer:     issuer,
	}, nil
}

// IssueToken mints a signed operator token.
func (s *Service) IssueToken(operator string, role Role) (string, error) {
	if operator == "" {
		return "", errors.New("operator is required")
	}
	if role != RoleViewer && role != RoleOperator {
		return "", fmt.Errorf("unknown role %q", role)
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenExpiry)),
		},
		Operator: operator,
		Role:     role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies a token and returns its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Operator == "" {
		return nil, fmt.Errorf("%w: missing operator claim", ErrInvalidToken)
	}
	return claims, nil
}
