package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"marketplace-gateway/internal/common/errors"
)

const testSecret = "test-secret-key-that-is-long-enough-for-hs256"

func TestGenerateJWT(t *testing.T) {
	a := New(testSecret)

	token, err := a.GenerateJWT("u-1", "farmer@example.com", "farmer")
	require.NoError(t, err)

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	assert.True(t, parsed.Valid)

	claims, ok := parsed.Claims.(*Claims)
	require.True(t, ok)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "farmer@example.com", claims.Email)
	assert.Equal(t, "farmer", claims.Role)
	assert.Equal(t, Issuer, claims.Issuer)
	assert.WithinDuration(t, time.Now().Add(DefaultTokenTTL), claims.ExpiresAt.Time, time.Minute)
}

func TestValidateJWT(t *testing.T) {
	a := New(testSecret)
	valid, err := a.GenerateJWT("u-1", "buyer@example.com", "buyer")
	require.NoError(t, err)

	wrongSecret, err := New("a-completely-different-secret-value").GenerateJWT("u-1", "", "admin")
	require.NoError(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: "u-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	expiredToken, err := expired.SignedString([]byte(testSecret))
	require.NoError(t, err)

	noneAlg := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "u-1", Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer}})
	noneToken, err := noneAlg.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name      string
		token     string
		wantError bool
	}{
		{"valid token", valid, false},
		{"wrong secret", wrongSecret, true},
		{"expired", expiredToken, true},
		{"none algorithm", noneToken, true},
		{"garbage", "not.a.token", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := a.ValidateJWT(tt.token)
			if tt.wantError {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrTypeAuth))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "u-1", claims.UserID)
			assert.Equal(t, "buyer", claims.Role)
		})
	}
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", token)

	token, ok = BearerToken("bearer   xyz ")
	assert.True(t, ok)
	assert.Equal(t, "xyz", token)

	for _, header := range []string{"", "Basic abc", "Bearer", "Bearer   "} {
		_, ok := BearerToken(header)
		assert.False(t, ok, header)
	}
}

func TestMiddleware(t *testing.T) {
	a := New(testSecret)
	adminToken, err := a.GenerateJWT("u-9", "admin@example.com", "Admin")
	require.NoError(t, err)

	var seen Identity
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFromContext(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		want   Identity
	}{
		{"no header", "", Identity{Role: GuestRole}},
		{"valid token", "Bearer " + adminToken, Identity{UserID: "u-9", Email: "admin@example.com", Role: "admin", Authenticated: true}},
		{"invalid token", "Bearer nope", Identity{Role: GuestRole}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, seen)
		})
	}
}

func TestIdentityFromContext_DefaultsToGuest(t *testing.T) {
	assert.Equal(t, Identity{Role: GuestRole}, IdentityFromContext(context.Background()))
}

func TestStaticCredentials(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)

	creds := NewStaticCredentials(User{ID: "admin", Email: "Admin@Example.com", Role: "ADMIN", PasswordHash: string(hash)})
	ctx := context.Background()

	u, err := creds.Check(ctx, " admin@example.com ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "admin", u.ID)
	assert.Equal(t, "admin", u.Role)

	_, err = creds.Check(ctx, "admin@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = creds.Check(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
}
