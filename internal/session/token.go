package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var ErrBadToken = errors.New("session: bad token")

// jwtSigner is the built-in TokenSigner: the record ID travels as the
// subject claim of an HS256-signed JWT. Expiry stays with the stored record,
// so tokens carry no exp claim of their own.
type jwtSigner struct {
	key []byte
}

func newJWTSigner(secret string) *jwtSigner {
	return &jwtSigner{key: []byte(secret)}
}

func (s *jwtSigner) Sign(id string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:  id,
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

func (s *jwtSigner) Unsign(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	if claims.Subject == "" {
		return "", ErrBadToken
	}
	return claims.Subject, nil
}
