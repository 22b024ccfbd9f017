// Package session issues and verifies the opaque per-browser identity
// used to deduplicate votes. The identity is a random UUID wrapped in a
// signed token so the cookie cannot be forged or tampered with.
package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{secret: []byte(secret), issuer: "pollstream", ttl: ttl}
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue allocates a fresh session identity and returns it together with
// its signed cookie value.
func (m *Manager) Issue() (uuid.UUID, string, error) {
	id := uuid.New()
	token, err := m.Sign(id)
	if err != nil {
		return uuid.Nil, "", err
	}
	return id, token, nil
}

func (m *Manager) Sign(id uuid.UUID) (string, error) {
	c := claims{
		SessionID: id.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    m.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(m.secret)
}

func (m *Manager) Parse(tokenStr string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return m.secret, nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return uuid.Nil, jwt.ErrTokenInvalidClaims
	}
	if c.Issuer != m.issuer {
		return uuid.Nil, jwt.ErrTokenInvalidIssuer
	}
	return uuid.Parse(c.SessionID)
}
