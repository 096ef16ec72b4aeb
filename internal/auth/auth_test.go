package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345"

func TestGenerateAndValidate(t *testing.T) {
	token, err := GenerateAccessToken(42, RoleUser, testSecret, time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := ValidateToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.AccountID)
	assert.Equal(t, RoleUser, claims.Role)
	assert.Equal(t, "access", claims.TokenType)
	assert.Equal(t, jwtIssuer, claims.Issuer)
}

func TestGenerateAccessToken_EmptySecret(t *testing.T) {
	_, err := GenerateAccessToken(1, RoleUser, "", time.Minute)
	assert.ErrorIs(t, err, ErrEmptyJWTSecret)
}

func TestGenerateAccessToken_DefaultTTL(t *testing.T) {
	token, err := GenerateAccessToken(1, RoleUser, testSecret, 0)
	require.NoError(t, err)

	claims, err := ValidateToken(token, testSecret)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(AccessTokenTTL), claims.ExpiresAt.Time, 5*time.Second)
}

func TestValidateToken(t *testing.T) {
	t.Run("wrong secret", func(t *testing.T) {
		token, _ := GenerateAccessToken(1, RoleUser, testSecret, time.Minute)
		_, err := ValidateToken(token, "other-secret")
		assert.Error(t, err)
	})

	t.Run("empty secret", func(t *testing.T) {
		_, err := ValidateToken("anything", "")
		assert.ErrorIs(t, err, ErrEmptyJWTSecret)
	})

	t.Run("expired", func(t *testing.T) {
		claims := &JWTClaims{
			AccountID: 1,
			Role:      RoleUser,
			TokenType: "access",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    jwtIssuer,
				Audience:  []string{jwtAudience},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
				IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = ValidateToken(token, testSecret)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("wrong audience", func(t *testing.T) {
		claims := &JWTClaims{
			AccountID: 1,
			TokenType: "access",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    jwtIssuer,
				Audience:  []string{"someone-else"},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
		}
		token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))

		_, err := ValidateToken(token, testSecret)
		assert.Error(t, err)
	})

	t.Run("missing account", func(t *testing.T) {
		token, _ := GenerateAccessToken(0, RoleUser, testSecret, time.Minute)
		_, err := ValidateToken(token, testSecret)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("refresh token on access path", func(t *testing.T) {
		claims := &JWTClaims{
			AccountID: 1,
			Role:      RoleUser,
			TokenType: "refresh",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    jwtIssuer,
				Audience:  []string{jwtAudience},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = ValidateToken(token, testSecret)
		assert.ErrorIs(t, err, ErrInvalidTokenType)
	})

	t.Run("none algorithm", func(t *testing.T) {
		claims := &JWTClaims{
			AccountID: 1,
			TokenType: "access",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    jwtIssuer,
				Audience:  []string{jwtAudience},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
		}
		token, _ := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)

		_, err := ValidateToken(token, testSecret)
		assert.Error(t, err)
	})
}
