package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the identity fields the copilot core reads off an
// inbound bearer token. It does not attempt to model the full actor
// record — only what downstream components (redaction gating, audit
// rows) need: who asked, for which tenant, and with what role.
type Claims struct {
	ActorID  string `json:"actor_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Manager decodes bearer tokens issued by the surrounding platform.
// It never issues tokens itself: registration/login is owned by the
// ERP's presentation layer, not this core.
type Manager struct {
	secretKey []byte
}

func NewManager(secretKey string) *Manager {
	return &Manager{secretKey: []byte(secretKey)}
}

var ErrInvalidToken = errors.New("auth: invalid or expired token")

func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secretKey, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueDevToken signs a well-formed token for local development without a
// running identity provider. Nothing in this repository calls it; the `-dev`
// endpoints take the tenant from the X-Tenant-Id header instead.
func (m *Manager) IssueDevToken(actorID, tenantID, role string, ttl time.Duration) (string, error) {
	claims := Claims{
		ActorID:  actorID,
		TenantID: tenantID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}
