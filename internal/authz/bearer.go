package authz

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// RoleClaims are the claims expected on an externally issued role token.
// This system never issues these tokens; it only verifies them.
type RoleClaims struct {
	jwt.RegisteredClaims
	Actor string `json:"actor"`
	Role  string `json:"role"`
}

// RoleBinder verifies RS256 role tokens and extracts the actor/role binding
// they carry. Requests presenting a valid token have their caller-declared
// actor and role replaced by the verified claims.
type RoleBinder struct {
	pub    *rsa.PublicKey
	issuer string
}

// NewRoleBinder parses a PKIX PEM public key and returns a binder that
// accepts tokens from the given issuer.
func NewRoleBinder(pubPEM []byte, issuer string) (*RoleBinder, error) {
	block, _ := pem.Decode(pubPEM)
	if block == nil {
		return nil, errors.New("no PEM block in public key")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want *rsa.PublicKey", key)
	}
	return &RoleBinder{pub: rsaKey, issuer: issuer}, nil
}

// Verify parses and validates a role token, returning its claims on success.
func (b *RoleBinder) Verify(tokenStr string) (*RoleClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&RoleClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return b.pub, nil
		},
		jwt.WithIssuer(b.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify role token: %w", err)
	}

	claims, ok := token.Claims.(*RoleClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid role token claims")
	}
	if claims.Role == "" {
		return nil, errors.New("role token carries no role claim")
	}
	return claims, nil
}
