// Package auth derives the caller identity from bearer tokens and checks
// login credentials. Tokens are HS256 JWTs carrying the user id and role used
// by the role-tiered admission filter.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"marketplace-gateway/internal/common/errors"
)

const (
	// Issuer is written to and required on every token.
	Issuer = "marketplace-gateway"
	// DefaultTokenTTL is the lifetime of tokens issued at login.
	DefaultTokenTTL = 24 * time.Hour
)

// Claims is the JWT payload.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type Auth struct {
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

func New(secret string) *Auth {
	return &Auth{
		secret:   []byte(secret),
		tokenTTL: DefaultTokenTTL,
		now:      time.Now,
	}
}

// GenerateJWT issues a signed token for the user.
func (a *Auth) GenerateJWT(userID, email, role string) (string, error) {
	now := a.now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", errors.InternalError("failed to sign token", err)
	}
	return signed, nil
}

// ValidateJWT parses and verifies a token string.
func (a *Auth) ValidateJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, errors.AuthError(fmt.Sprintf("invalid token: %v", err))
	}
	if claims.UserID == "" {
		return nil, errors.AuthError("invalid token: missing user id")
	}
	return claims, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
