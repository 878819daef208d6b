// Package transport exposes the Session Engine over WebSocket and HTTP:
// JWT authentication, the per-connection read/write pumps, and the
// Control API's HTTP handlers (§4.10, §6).
package transport

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/classroomgames/tugquiz/internal/session"
)

// Claims is the HS256 JWT payload issued by the classroom platform for
// both the HELLO handshake and Control API bearer tokens (§4.10).
type Claims struct {
	jwt.RegisteredClaims
	SessionID string       `json:"sid"`
	TenantID  string       `json:"tid"`
	Role      session.Role `json:"role"`
	UserID    string       `json:"uid"`
}

// Authenticator verifies HS256 tokens against a single signing key.
type Authenticator struct {
	key []byte
}

// NewAuthenticator builds an Authenticator over the given HMAC secret.
func NewAuthenticator(signingKey string) *Authenticator {
	return &Authenticator{key: []byte(signingKey)}
}

// Verify parses and validates a token, returning its claims. It rejects
// anything not signed with HS256, expired tokens, and tokens missing a
// session id, role, or user id (§4.10).
func (a *Authenticator) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithLeeway(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is invalid")
	}
	if claims.SessionID == "" || claims.UserID == "" {
		return nil, fmt.Errorf("token missing session or user id")
	}
	if claims.Role != session.RoleTeacher && claims.Role != session.RoleStudent {
		return nil, fmt.Errorf("token carries unknown role %q", claims.Role)
	}
	return claims, nil
}

// Issue mints a token for tests and local tooling; production tokens are
// issued by the classroom platform itself using the same shared secret.
func (a *Authenticator) Issue(sessionID, tenantID, userID string, role session.Role, ttl time.Duration) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		SessionID: sessionID,
		TenantID:  tenantID,
		Role:      role,
		UserID:    userID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.key)
}
