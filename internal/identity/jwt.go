package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"community-chat/internal/models"
	"community-chat/internal/repositories"
)

// ErrInvalidToken is returned for any token that cannot be trusted.
var ErrInvalidToken = errors.New("invalid token")

// Authenticator turns a bearer credential into a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Principal, error)
}

// Claims are the access token claims issued by the platform's auth service.
// The subject carries the user id.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthenticator validates HS256 access tokens.
type JWTAuthenticator struct {
	secret []byte
	issuer string
	users  repositories.UserRepository
}

// NewJWTAuthenticator constructs the authenticator. users may be nil; when set,
// it fills the display name for tokens that do not carry one.
func NewJWTAuthenticator(secret, issuer string, users repositories.UserRepository) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret), issuer: issuer, users: users}
}

// Authenticate verifies the token and returns the principal it identifies.
func (a *JWTAuthenticator) Authenticate(ctx context.Context, token string) (models.Principal, error) {
	if token == "" {
		return models.Principal{}, ErrInvalidToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return models.Principal{}, ErrInvalidToken
	}

	principal := models.Principal{UserID: claims.Subject, Name: claims.Name}
	if principal.Name == "" && a.users != nil {
		names, err := a.users.DisplayNames(ctx, []string{principal.UserID})
		if err != nil {
			return models.Principal{}, fmt.Errorf("resolve display name: %w", err)
		}
		principal.Name = names[principal.UserID]
	}
	if principal.Name == "" {
		principal.Name = principal.UserID
	}
	return principal, nil
}

// GenerateToken signs an access token for the principal. It is used by local
// tooling and tests; production tokens come from the auth service.
func GenerateToken(secret, issuer string, principal models.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Name: principal.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.UserID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
