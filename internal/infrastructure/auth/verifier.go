package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bidwire/auction-exchange-backend/internal/domain/errors"
)

// Identity is the authenticated principal extracted from a verified token.
type Identity struct {
	UserID   uuid.UUID
	Username string
}

// Claims is the token payload the core platform issues. user_id is
// mandatory; username may be empty for legacy tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Verifier validates RS256 bearer tokens against the core platform's
// public key. The gateway never signs tokens; issuance lives in the
// account platform and only the verification half is carried here.
type Verifier struct {
	key      *rsa.PublicKey
	audience string
	issuer   string
}

// NewVerifier loads a PEM encoded PKIX public key from disk.
func NewVerifier(publicKeyPath, audience, issuer string) (*Verifier, error) {
	data, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key %s: %w", publicKeyPath, err)
	}
	key, err := ParsePublicKey(data)
	if err != nil {
		return nil, err
	}
	return NewVerifierWithKey(key, audience, issuer), nil
}

// NewVerifierWithKey builds a verifier around an already-parsed key.
func NewVerifierWithKey(key *rsa.PublicKey, audience, issuer string) *Verifier {
	return &Verifier{key: key, audience: audience, issuer: issuer}
}

// Verify checks signature, expiry, audience and issuer, then extracts the
// identity. Any token not signed with RS256 is rejected before the
// signature is checked.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return v.key, nil
		},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.audience),
		jwt.WithIssuer(v.issuer),
	)
	if err != nil {
		return nil, errors.NewUnauthorizedError("invalid authentication token").WithCause(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.NewUnauthorizedError("invalid authentication token")
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, errors.NewUnauthorizedError("token missing user identity").WithCause(err)
	}

	return &Identity{UserID: userID, Username: claims.Username}, nil
}

// ParsePublicKey decodes a PEM encoded PKIX RSA public key.
func ParsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to parse public key PEM")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return key, nil
}
