package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("asha@corp", "Asha", true, "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "asha@corp", claims.UserID)
	assert.Equal(t, "Asha", claims.Name)
	assert.True(t, claims.Admin)
}

func TestParseTokenRejects(t *testing.T) {
	good, err := GenerateToken("asha@corp", "Asha", false, "secret", time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken("asha@corp", "Asha", false, "secret", -time.Minute)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "asha@corp"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: "asha@corp",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	foreignSigned, err := foreign.SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, tc := range map[string]struct{ token, secret string }{
		"wrong secret": {good, "other"},
		"expired":      {expired, "secret"},
		"alg none":     {unsigned, "secret"},
		"other issuer": {foreignSigned, "secret"},
		"garbage":      {"not.a.token", "secret"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(tc.token, tc.secret)
			assert.Error(t, err)
		})
	}
}
