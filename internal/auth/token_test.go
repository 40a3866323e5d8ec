package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuerVerifierRoundTrip(t *testing.T) {
	t.Parallel()

	token, err := NewIssuer("s3cret", "billing-service", time.Minute).Token()
	require.NoError(t, err)

	sub, err := NewVerifier("s3cret", RegistryAudience).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "billing-service", sub)
}

func TestVerifierRejects(t *testing.T) {
	t.Parallel()

	good, err := NewIssuer("s3cret", "billing-service", time.Minute).Token()
	require.NoError(t, err)

	expiredIssuer := NewIssuer("s3cret", "billing-service", time.Minute)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := expiredIssuer.Token()
	require.NoError(t, err)

	tests := []struct {
		name     string
		token    string
		verifier *Verifier
	}{
		{name: "wrong secret", token: good, verifier: NewVerifier("other", RegistryAudience)},
		{name: "wrong audience", token: good, verifier: NewVerifier("s3cret", "inventory-service")},
		{name: "expired", token: expired, verifier: NewVerifier("s3cret", RegistryAudience)},
		{name: "garbage", token: "not-a-jwt", verifier: NewVerifier("s3cret", RegistryAudience)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := tt.verifier.Verify(tt.token)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
