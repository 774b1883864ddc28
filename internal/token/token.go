// Package token implements the bearer-token validators used by the auth middleware.
//
// The PDP accepts either the static API key issued to the sidecar, or - when a
// signing key is configured - an HS256 JWT minted by the control plane.
package token

import (
	"crypto/subtle"
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"pdp/pkg/pdperrors"
)

// APIKeyValidator accepts exactly the configured PDP API key.
type APIKeyValidator struct {
	key []byte
}

// NewAPIKeyValidator constructs a validator for the static sidecar API key.
func NewAPIKeyValidator(key string) *APIKeyValidator {
	return &APIKeyValidator{key: []byte(key)}
}

// ValidateToken compares the presented token against the configured key in
// constant time.
func (v *APIKeyValidator) ValidateToken(token string) error {
	if len(v.key) == 0 {
		return pdperrors.New(pdperrors.CodeUnauthorized, "no API key configured")
	}
	if subtle.ConstantTimeCompare(v.key, []byte(token)) != 1 {
		return pdperrors.New(pdperrors.CodeUnauthorized, "token mismatch")
	}
	return nil
}

// Claims are the JWT claims the control plane places on PDP tokens.
type Claims struct {
	Environment string `json:"environment,omitempty"`
	jwt.RegisteredClaims
}

// JWTValidator validates HS256 tokens signed by the control plane.
type JWTValidator struct {
	signingKey []byte
}

// NewJWTValidator constructs a JWT validator with the given HMAC signing key.
func NewJWTValidator(signingKey string) *JWTValidator {
	return &JWTValidator{signingKey: []byte(signingKey)}
}

// ValidateToken parses and verifies the token signature and expiry.
func (v *JWTValidator) ValidateToken(tokenString string) error {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return pdperrors.New(pdperrors.CodeUnauthorized, "token has expired")
		}
		return pdperrors.New(pdperrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return pdperrors.New(pdperrors.CodeUnauthorized, "invalid token")
	}
	return nil
}
