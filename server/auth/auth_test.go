package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	a, err := NewAuthenticator("instance-secret")
	require.NoError(t, err)

	now := time.Now()
	token, err := a.GenerateAccessToken("obsidian", now, time.Time{})
	require.NoError(t, err)

	claims, err := a.Authenticate("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "obsidian", claims.Name)
	assert.Equal(t, Issuer, claims.Issuer)
	assert.Nil(t, claims.ExpiresAt)
}

func TestAuthenticate_Rejects(t *testing.T) {
	a, err := NewAuthenticator("instance-secret")
	require.NoError(t, err)
	other, err := NewAuthenticator("another-secret")
	require.NoError(t, err)

	now := time.Now()
	valid, err := a.GenerateAccessToken("obsidian", now, time.Time{})
	require.NoError(t, err)
	foreign, err := other.GenerateAccessToken("obsidian", now, time.Time{})
	require.NoError(t, err)
	expired, err := a.GenerateAccessToken("obsidian", now.Add(-2*time.Hour), now.Add(-time.Hour))
	require.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"iss": Issuer,
		"aud": AccessTokenAudienceName,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"empty", ""},
		{"no scheme", valid},
		{"basic scheme", "Basic " + valid},
		{"other secret", "Bearer " + foreign},
		{"expired", "Bearer " + expired},
		{"alg none", "Bearer " + unsigned},
		{"garbage", "Bearer not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Authenticate(tt.header)
			assert.Error(t, err)
		})
	}
}

func TestNewAuthenticator_EmptySecret(t *testing.T) {
	_, err := NewAuthenticator("")
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestExtractBearerToken(t *testing.T) {
	assert.Equal(t, "abc", ExtractBearerToken("Bearer abc"))
	assert.Equal(t, "abc", ExtractBearerToken("bearer  abc "))
	assert.Equal(t, "", ExtractBearerToken("Bearer"))
	assert.Equal(t, "", ExtractBearerToken("Token abc"))
}
