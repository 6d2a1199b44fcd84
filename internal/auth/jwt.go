package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chronozoom/pkg/models"
)

// TokenService signs and verifies bearer tokens carrying an external
// identity. Tokens are normally issued by the identity provider; Sign
// exists for development and tests.
type TokenService struct {
	Secret   []byte
	Issuer   string
	Duration time.Duration
}

type Claims struct {
	NameIdentifier   string `json:"nameid"`
	IdentityProvider string `json:"idp"`
	Name             string `json:"name,omitempty"`
	Email            string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// User returns the identity the claims describe. The internal id is left
// zero; callers resolve it against the store.
func (c *Claims) User() *models.User {
	return &models.User{
		DisplayName:      c.Name,
		Email:            c.Email,
		NameIdentifier:   c.NameIdentifier,
		IdentityProvider: c.IdentityProvider,
	}
}

func (ts TokenService) Sign(u *models.User) (string, time.Time, error) {
	exp := time.Now().Add(ts.Duration)

	claims := Claims{
		NameIdentifier:   u.NameIdentifier,
		IdentityProvider: u.IdentityProvider,
		Name:             u.DisplayName,
		Email:            u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.Issuer,
			Subject:   u.NameIdentifier,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(ts.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return s, exp, nil
}

func (ts TokenService) Parse(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if ts.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(ts.Issuer))
	}
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return ts.Secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.NameIdentifier == "" || claims.IdentityProvider == "" {
		return nil, fmt.Errorf("token carries no identity")
	}
	return claims, nil
}
