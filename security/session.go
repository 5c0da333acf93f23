package security

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	sentinelerrors "github.com/byteness/sentinel-gateway/errors"
	"github.com/byteness/sentinel-gateway/gateway"
)

// sessionClaims is the bearer token handed back for a SecurityContext: just
// enough to look the context back up and to detect a tampered or expired
// token before ever touching the active-context map.
type sessionClaims struct {
	jwt.RegisteredClaims
	ContextID      uuid.UUID                  `json:"context_id"`
	SessionID      uuid.UUID                  `json:"session_id"`
	Classification gateway.ClassificationLevel `json:"classification"`
	TenantID       string                     `json:"tenant_id,omitempty"`
}

// tokenIssuer signs and verifies SecurityContext bearer tokens with a
// shared HMAC key; it holds no other state.
type tokenIssuer struct {
	key []byte
	ttl time.Duration
}

func newTokenIssuer(key []byte, ttl time.Duration) *tokenIssuer {
	return &tokenIssuer{key: key, ttl: ttl}
}

// issue signs a token for ctx, valid for the issuer's configured TTL.
func (t *tokenIssuer) issue(ctx SecurityContext) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ctx.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			Issuer:    "sentinel-gateway/security",
		},
		ContextID:      ctx.ContextID,
		SessionID:      ctx.SessionID,
		Classification: ctx.Label.Level,
		TenantID:       ctx.TenantID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.key)
	if err != nil {
		return "", sentinelerrors.New(sentinelerrors.Internal, sentinelerrors.ErrCodeSecurityContextNotFound, "failed to sign security context token", err)
	}
	return signed, nil
}

// verify parses and validates a token, returning its claims. A malformed
// signature, wrong algorithm, or expired token all fail the same way: the
// caller must re-authenticate.
func (t *tokenIssuer) verify(tokenString string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, sentinelerrors.New(sentinelerrors.Unauthorized, sentinelerrors.ErrCodeSecurityContextExpired, "unexpected signing method", nil)
		}
		return t.key, nil
	})
	if err != nil || !token.Valid {
		return nil, sentinelerrors.New(sentinelerrors.Unauthorized, sentinelerrors.ErrCodeSecurityContextExpired, "security context token is invalid or expired", err)
	}
	return claims, nil
}
