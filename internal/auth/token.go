// Package auth issues and verifies the service tokens billing presents on
// status callbacks to the registry.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// RegistryAudience is the audience of tokens accepted by the registry.
const RegistryAudience = "registry-service"

var ErrInvalidToken = errors.New("invalid service token")

type Issuer struct {
	secret  []byte
	subject string
	ttl     time.Duration
	now     func() time.Time
}

func NewIssuer(secret, subject string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Issuer{secret: []byte(secret), subject: subject, ttl: ttl, now: time.Now}
}

// Token signs a short-lived HS256 token for the registry audience.
func (i *Issuer) Token() (string, error) {
	now := i.now()
	claims := jwt.RegisteredClaims{
		Issuer:    i.subject,
		Subject:   i.subject,
		Audience:  jwt.ClaimStrings{RegistryAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign service token: %w", err)
	}
	return signed, nil
}

type Verifier struct {
	secret   []byte
	audience string
}

func NewVerifier(secret, audience string) *Verifier {
	return &Verifier{secret: []byte(secret), audience: audience}
}

// Verify checks signature, expiry and audience and returns the caller subject.
func (v *Verifier) Verify(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !claims.VerifyAudience(v.audience, true) {
		return "", fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}
	return claims.Subject, nil
}
