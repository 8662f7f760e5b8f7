package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/linesmerrill/laundry-api/models"
)

// DefaultBearerTTL is how long an issued access token stays valid
const DefaultBearerTTL = 24 * time.Hour

// ErrBearerSecretMissing is returned when no signing secret is configured
var ErrBearerSecretMissing = errors.New("jwt secret is not set")

// JWTIssuer issues and verifies HS256 access tokens
type JWTIssuer struct {
	Secret []byte
	TTL    time.Duration
	Clock  Clock
}

// AccessClaims are the claims carried by an access token
type AccessClaims struct {
	Email string `json:"email"`
	Type  string `json:"typ"`
	jwt.RegisteredClaims
}

func (j JWTIssuer) clock() time.Time {
	if j.Clock != nil {
		return j.Clock()
	}
	return time.Now()
}

// Issue implements BearerIssuer
func (j JWTIssuer) Issue(user *models.User) (string, error) {
	if len(j.Secret) == 0 {
		return "", ErrBearerSecretMissing
	}
	ttl := j.TTL
	if ttl <= 0 {
		ttl = DefaultBearerTTL
	}
	now := j.clock()

	claims := AccessClaims{
		Email: user.Details.Email,
		Type:  "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.Hex(),
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.Secret)
}

// Verify parses an access token and returns its claims
func (j JWTIssuer) Verify(raw string) (*AccessClaims, error) {
	if len(j.Secret) == 0 {
		return nil, ErrBearerSecretMissing
	}
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return j.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.clock),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}
	if claims.Type != "access" || claims.Subject == "" {
		return nil, errors.New("invalid access token: wrong token type")
	}
	return claims, nil
}
