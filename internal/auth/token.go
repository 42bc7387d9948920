// Package auth validates join tokens issued by the external identity
// service. Issuance is not our job; the dispatcher only checks that the
// channel's claimed identity matches the token it presented.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/ride-dispatch/internal/models"
)

type Claims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens against a shared secret. With an empty secret
// verification is disabled and the declared identity is trusted, which keeps
// local runs free of an identity service.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	if secret == "" {
		return &Verifier{}
	}
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Enabled() bool { return len(v.secret) > 0 }

// Verify checks the token and that its subject and kind match the identity
// the channel claims. Any mismatch is an auth error.
func (v *Verifier) Verify(token, entityID string, kind models.EntityKind) error {
	if !v.Enabled() {
		return nil
	}
	if token == "" {
		return fmt.Errorf("missing token: %w", models.ErrAuth)
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return fmt.Errorf("token invalid: %w", models.ErrAuth)
	}
	if claims.Subject != entityID || claims.Kind != string(kind) {
		return fmt.Errorf("token does not match claimed identity: %w", models.ErrAuth)
	}
	return nil
}
