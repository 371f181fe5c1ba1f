// Package auth holds the identity collaborators the workflows consult. The
// engine never decides roles itself; it asks a Gate.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"

	core "github.com/israeldewcom/Real-wealth/internal/app/core/service"
)

// Roles recognised by the gate.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

type identityKey struct{}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity attached to ctx, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Resolver turns a credential into an identity.
type Resolver interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}

// Gate authorizes administrative actions.
type Gate interface {
	Authorize(ctx context.Context, adminID string) error
}

// ContextGate passes when the identity in ctx is an admin acting as adminID.
type ContextGate struct{}

func (ContextGate) Authorize(ctx context.Context, adminID string) error {
	id, ok := FromContext(ctx)
	if !ok {
		return fmt.Errorf("no identity in context: %w", core.ErrForbidden)
	}
	if !id.IsAdmin() {
		return fmt.Errorf("user %s is not an admin: %w", id.UserID, core.ErrForbidden)
	}
	if adminID != "" && id.UserID != adminID {
		return fmt.Errorf("identity %s cannot act as %s: %w", id.UserID, adminID, core.ErrForbidden)
	}
	return nil
}

// AllowAll authorizes everything. Useful for trusted batch jobs and tests.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, string) error { return nil }

// Claims is the bearer token payload.
type Claims struct {
	Role string `json:"role"`
	jwt.StandardClaims
}

// JWTResolver verifies HS256 bearer tokens.
type JWTResolver struct {
	secret []byte
	issuer string
	now    func() time.Time
}

var errEmptySecret = errors.New("jwt secret is empty")

// NewJWTResolver builds a resolver for tokens signed with secret.
func NewJWTResolver(secret, issuer string) (*JWTResolver, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errEmptySecret
	}
	return &JWTResolver{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Issue signs a token for id valid for ttl.
func (r *JWTResolver) Issue(id Identity, ttl time.Duration) (string, error) {
	now := r.now()
	claims := Claims{
		Role: id.Role,
		StandardClaims: jwt.StandardClaims{
			Subject:   id.UserID,
			Issuer:    r.issuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

func (r *JWTResolver) Resolve(_ context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return Identity{}, fmt.Errorf("missing token: %w", core.ErrForbidden)
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("invalid token: %w", core.ErrForbidden)
	}
	if r.issuer != "" && !claims.VerifyIssuer(r.issuer, true) {
		return Identity{}, fmt.Errorf("unexpected issuer %q: %w", claims.Issuer, core.ErrForbidden)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("token has no subject: %w", core.ErrForbidden)
	}
	role := claims.Role
	if role == "" {
		role = RoleUser
	}
	return Identity{UserID: claims.Subject, Role: role}, nil
}
