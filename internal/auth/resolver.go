// Package auth resolves bearer credentials to durable user identities. It
// is the single validation path for both the HTTP layer and the websocket
// handshake; credential issuance lives outside the core.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"messenger-service/internal/apperrors"
	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
)

// Claims is the JWT payload carried by client credentials.
type Claims struct {
	UserID int `json:"user_id"`
	jwt.RegisteredClaims
}

// Resolver validates tokens and resolves them to user records.
type Resolver struct {
	secret []byte
	users  repositories.UserRepository
}

// NewResolver constructs a Resolver.
func NewResolver(secret string, users repositories.UserRepository) *Resolver {
	return &Resolver{secret: []byte(secret), users: users}
}

// Resolve validates a bearer token and loads the user it identifies.
func (r *Resolver) Resolve(ctx context.Context, token string) (models.User, error) {
	if token == "" {
		return models.User{}, apperrors.New(apperrors.KindAuthentication, "missing credential")
	}

	claims, err := r.parse(token)
	if err != nil {
		return models.User{}, apperrors.Wrap(apperrors.KindAuthentication, "invalid token", err)
	}

	user, err := r.users.GetUser(ctx, claims.UserID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return models.User{}, apperrors.New(apperrors.KindAuthentication, "user not found")
	}
	if err != nil {
		return models.User{}, apperrors.Wrap(apperrors.KindTransient, "user lookup failed", err)
	}
	return user, nil
}

// Sign issues a token for userID. The core only consumes credentials; this
// exists for tooling and tests.
func (r *Resolver) Sign(userID int, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "messenger-service",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

func (r *Resolver) parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return r.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := parsed.Claims.(*Claims); ok && parsed.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}
