package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/goliatone/go-errors"
)

// Stable error codes surfaced by the credential checks.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
)

var (
	// ErrUnauthorized means the bearer token is missing, expired or unverifiable.
	ErrUnauthorized = apperrors.New("unauthorized", apperrors.CategoryBadInput).
			WithTextCode(CodeUnauthorized)
	// ErrForbidden means the token is valid but the role lacks the operation.
	ErrForbidden = apperrors.New("forbidden", apperrors.CategoryBadInput).
			WithTextCode(CodeForbidden)
)

// Claims is the token payload the identity service signs for floor users.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier checks bearer tokens against the shared HMAC secret. Token
// issuance lives in the identity service; this side only verifies.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for tokens signed with the given secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a bearer token and returns its claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, unauthorized("missing bearer token", nil)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, unauthorized("invalid bearer token", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, unauthorized("invalid bearer token", nil)
	}
	if !ValidRole(claims.Role) {
		return nil, unauthorized(fmt.Sprintf("unknown role %q", claims.Role), nil)
	}
	return claims, nil
}

// Sign mints a token compatible with Verify. The identity service does this
// in production; tests and operational tooling use it directly.
func Sign(claims Claims, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.Username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func unauthorized(message string, source error) error {
	err := ErrUnauthorized.Clone()
	if message != "" {
		err.Message = message
	}
	if source != nil {
		err.Source = source
	}
	return err
}

// Forbidden builds a role rejection for the given operation.
func Forbidden(message string) error {
	err := ErrForbidden.Clone()
	if message != "" {
		err.Message = message
	}
	return err
}
