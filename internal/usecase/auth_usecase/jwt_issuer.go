package auth

import (
	"time"

	"storefront/internal/domain/model"

	"github.com/golang-jwt/jwt/v4"
)

// accesstokenの有効期限
const AccessTokenTTL = 15 * time.Minute

// HS256で署名するJWT発行
type HS256Issuer struct {
	secret []byte
	ttl    time.Duration
}

func NewHS256Issuer(secret string, ttl time.Duration) *HS256Issuer {
	if ttl <= 0 {
		ttl = AccessTokenTTL
	}
	return &HS256Issuer{secret: []byte(secret), ttl: ttl}
}

// jwt発行
func (i *HS256Issuer) Issue(userID int64, role model.Role, now time.Time) (string, time.Time, error) {
	exp := now.Add(i.ttl)

	claims := jwt.MapClaims{
		"sub":  userID,
		"role": string(role),
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := t.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}
