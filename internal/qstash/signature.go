package qstash

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// signatureIssuer is the iss claim the scheduler stamps on callback tokens.
const signatureIssuer = "Upstash"

// SignatureVerifier checks the signed JWT the scheduler attaches to callback
// requests. A run is only accepted when the token is authentic and its body
// claim matches the delivered payload.
type SignatureVerifier struct {
	signingKey []byte
}

// NewSignatureVerifier builds a verifier for the given signing key.
func NewSignatureVerifier(signingKey string) (*SignatureVerifier, error) {
	if signingKey == "" {
		return nil, fmt.Errorf("qstash: signing key is required")
	}
	return &SignatureVerifier{signingKey: []byte(signingKey)}, nil
}

type signatureClaims struct {
	Body string `json:"body"`
	jwt.RegisteredClaims
}

// Verify validates the signature token against the request body. It checks
// the HS256 signature, expiry, issuer, and the SHA-256 body digest claim.
func (v *SignatureVerifier) Verify(token string, body []byte) error {
	if token == "" {
		return fmt.Errorf("qstash: missing signature")
	}

	claims := &signatureClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithIssuer(signatureIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("qstash: invalid signature: %w", err)
	}
	if !parsed.Valid {
		return fmt.Errorf("qstash: invalid signature")
	}

	sum := sha256.Sum256(body)
	expected := base64.URLEncoding.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(expected), []byte(claims.Body)) != 1 {
		return fmt.Errorf("qstash: body hash mismatch")
	}
	return nil
}

// Sign produces a callback token for the given body. Used by tests and by
// the local development scheduler stub.
func (v *SignatureVerifier) Sign(body []byte, claims jwt.RegisteredClaims) (string, error) {
	sum := sha256.Sum256(body)
	claims.Issuer = signatureIssuer
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, signatureClaims{
		Body:             base64.URLEncoding.EncodeToString(sum[:]),
		RegisteredClaims: claims,
	})
	return token.SignedString(v.signingKey)
}
