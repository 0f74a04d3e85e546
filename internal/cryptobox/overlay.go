package cryptobox

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OverlayClaims is the payload of a signed overlay-URL token: an opaque,
// unforgeable pointer to one tenant's browser-facing overlay, with no
// bearer credential embedded.
type OverlayClaims struct {
	TenantID string `json:"tenantId"`
	jwt.RegisteredClaims
}

// OverlaySigner signs and verifies overlay tokens with SESSION_SECRET,
// mirroring the teacher's AuthService JWT issuance shape.
type OverlaySigner struct {
	secret []byte
}

func NewOverlaySigner(secret string) *OverlaySigner {
	return &OverlaySigner{secret: []byte(secret)}
}

// Sign issues a long-lived (no expiry beyond ttl) overlay token for tenantID.
func (s *OverlaySigner) Sign(tenantID string, ttl time.Duration) (string, error) {
	claims := OverlayClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates an overlay token, returning its tenant ID.
func (s *OverlaySigner) Verify(tokenString string) (string, error) {
	claims := &OverlayClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("cryptobox: unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("cryptobox: parse overlay token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("cryptobox: invalid overlay token")
	}
	return claims.TenantID, nil
}
