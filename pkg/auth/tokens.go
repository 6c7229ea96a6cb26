// Package auth issues and verifies the recipient-facing bearer tokens:
// list-unsubscribe links and general subscription-management tokens. Both are
// HS256 JWTs over the process-wide secret.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token scopes.
const (
	// ScopeListUnsubscribe authorises exactly one (recipient, event)
	// unsubscribe action.
	ScopeListUnsubscribe = "list-unsubscribe"
	// ScopeGeneral authorises subscription management for one recipient.
	ScopeGeneral = "general"
)

// ListUnsubscribeTTL is the validity window of issued unsubscribe links.
const ListUnsubscribeTTL = 30 * 24 * time.Hour

// ErrInvalidToken covers every verification failure: bad signature, expired,
// wrong scope, malformed subject.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the token claims. The recipient id travels as the registered
// subject.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
	Event string `json:"event,omitempty"`
}

// RecipientID parses the subject claim.
func (c *Claims) RecipientID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed subject", ErrInvalidToken)
	}
	return id, nil
}

// Issuer signs and verifies tokens with a shared secret.
type Issuer struct {
	secret []byte
}

// NewIssuer creates an issuer over the process secret.
func NewIssuer(secret []byte) *Issuer {
	return &Issuer{secret: secret}
}

// Issue signs a token for the given scope, event and recipient, expiring
// after ttl.
func (i *Issuer) Issue(scope, event string, recipientID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   recipientID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Scope: scope,
		Event: event,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses the token and checks its signature, expiry and scope.
func (i *Issuer) Verify(token, wantScope string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Scope != wantScope {
		return nil, fmt.Errorf("%w: scope %q, want %q", ErrInvalidToken, claims.Scope, wantScope)
	}
	return claims, nil
}
