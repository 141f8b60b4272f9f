package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const ginIdentityKey = "auth.identity"

type contextKey struct{}

var (
	ErrMissingIdentity = errors.New("missing caller identity")
	ErrInvalidToken    = errors.New("invalid token")
)

// Identity is the authenticated caller of an operation. Investors carry a
// UserID, corporate issuers a CorporateID.
type Identity struct {
	Subject     string    `json:"subject"`
	UserID      uuid.UUID `json:"user_id,omitempty"`
	CorporateID uuid.UUID `json:"corporate_id,omitempty"`
	Dev         bool      `json:"dev,omitempty"`
}

func (i Identity) IsUser() bool      { return i.UserID != uuid.Nil }
func (i Identity) IsCorporate() bool { return i.CorporateID != uuid.Nil }

// Claims are the JWT claims understood by the middleware
type Claims struct {
	UserID      string `json:"user_id,omitempty"`
	CorporateID string `json:"corporate_id,omitempty"`
	jwt.RegisteredClaims
}

// WithIdentity returns a copy of ctx carrying id
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext extracts the identity stored by the middleware
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// SetIdentity stores id on both the gin context and the request context
func SetIdentity(c *gin.Context, id Identity) {
	c.Set(ginIdentityKey, id)
	c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
}

// GetIdentity reads the identity set by SetIdentity
func GetIdentity(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(ginIdentityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

// IssueToken signs an HS256 token for the identity
func IssueToken(secret string, id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if id.IsUser() {
		claims.UserID = id.UserID.String()
	}
	if id.IsCorporate() {
		claims.CorporateID = id.CorporateID.String()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates the token and returns the identity it describes
func ParseToken(secret, raw string) (Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id := Identity{Subject: claims.Subject}
	if claims.UserID != "" {
		if id.UserID, err = uuid.Parse(claims.UserID); err != nil {
			return Identity{}, fmt.Errorf("%w: bad user_id", ErrInvalidToken)
		}
	}
	if claims.CorporateID != "" {
		if id.CorporateID, err = uuid.Parse(claims.CorporateID); err != nil {
			return Identity{}, fmt.Errorf("%w: bad corporate_id", ErrInvalidToken)
		}
	}
	if !id.IsUser() && !id.IsCorporate() {
		return Identity{}, fmt.Errorf("%w: no user_id or corporate_id", ErrInvalidToken)
	}
	return id, nil
}
