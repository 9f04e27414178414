package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID     string `json:"user_id"`
	BusinessID string `json:"business_id"`
	jwt.RegisteredClaims
}

// GenerateToken issues a signed token for a user acting on behalf of a
// business. The surrounding platform normally issues these; this helper
// exists for tooling and tests.
func GenerateToken(secret, userID, businessID string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID:     userID,
		BusinessID: businessID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(secret, raw string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.UserID == "" || claims.BusinessID == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
