package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_enricher/internal/config"
)

func getTestConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:   []byte("test-secret-key-for-testing"),
			Issuer:   "listing-enricher",
			TokenTTL: time.Hour,
		},
	}
}

func TestGenerateAndValidateUserToken(t *testing.T) {
	cfg := getTestConfig()

	token, exp, err := GenerateUserToken("alice", cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Greater(t, exp, time.Now().Unix())

	claims, err := ValidateUserToken(token, cfg)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "listing-enricher", claims.Issuer)
	assert.NotEmpty(t, claims.ID)

	userID, err := UserID(token, cfg)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)
}

func TestGenerateUserToken_EmptyUser(t *testing.T) {
	_, _, err := GenerateUserToken("", getTestConfig())
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestValidateUserToken_Rejects(t *testing.T) {
	cfg := getTestConfig()

	sign := func(claims jwt.Claims, method jwt.SigningMethod, key interface{}) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := func() UserClaims {
		return UserClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			Issuer:    "listing-enricher",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
	}

	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	otherIssuer := valid()
	otherIssuer.Issuer = "someone-else"

	noSubject := valid()
	noSubject.Subject = ""

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not-a-token", ErrInvalidToken},
		{"wrong secret", sign(valid(), jwt.SigningMethodHS256, []byte("other-secret")), ErrInvalidToken},
		{"expired", sign(expired, jwt.SigningMethodHS256, cfg.JWT.Secret), ErrInvalidToken},
		{"other issuer", sign(otherIssuer, jwt.SigningMethodHS256, cfg.JWT.Secret), ErrInvalidToken},
		{"no subject", sign(noSubject, jwt.SigningMethodHS256, cfg.JWT.Secret), ErrMissingSubject},
		{"none algorithm", sign(valid(), jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType), ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateUserToken(tt.token, cfg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
