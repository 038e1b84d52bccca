// Package linktoken issues and verifies the short-lived signed tokens used to
// authorize linking an OAuth identity or guest checkout to an existing account.
//
// Tokens are a base64url JSON payload joined with a truncated HMAC-SHA256
// signature. They are bearer credentials: treat them like passwords in
// transit and keep the TTL short.
package linktoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Payload is the linking claim carried inside a token.
type Payload struct {
	UserID    uuid.UUID `json:"uid"`
	Email     string    `json:"email"`
	Provider  string    `json:"provider"`
	ExpiresAt int64     `json:"exp"`
}

// Issuer signs and verifies linking tokens with a shared secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer. TTL of zero falls back to 15 minutes.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue creates a signed token binding the user, email and provider.
func (i *Issuer) Issue(userID uuid.UUID, email, provider string) (string, error) {
	payload := Payload{
		UserID:    userID,
		Email:     email,
		Provider:  provider,
		ExpiresAt: i.now().Add(i.ttl).Unix(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	h := hmac.New(sha256.New, i.secret)
	h.Write(data)
	sig := h.Sum(nil)[:8]

	return base64.RawURLEncoding.EncodeToString(data) + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Verify checks the token signature and expiry and returns the payload.
func (i *Issuer) Verify(token string) (Payload, error) {
	var payload Payload

	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return payload, ErrInvalidToken
	}

	data, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return payload, ErrInvalidToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return payload, ErrInvalidToken
	}

	h := hmac.New(sha256.New, i.secret)
	h.Write(data)
	expected := h.Sum(nil)[:8]

	if subtle.ConstantTimeCompare(sig, expected) != 1 {
		return payload, ErrSignatureInvalid
	}

	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, ErrInvalidToken
	}

	if i.now().Unix() > payload.ExpiresAt {
		return Payload{}, ErrTokenExpired
	}

	return payload, nil
}
