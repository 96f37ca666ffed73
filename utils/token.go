package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// IdentityClaim is the subset of the identity provider's access token we rely on.
// The account id travels in the standard "sub" claim.
type IdentityClaim struct {
	Email string `json:"email"`
	jwt.StandardClaims
}

func (c *IdentityClaim) AccountId() string {
	return c.Subject
}

// JwtGenerate signs a token the same way the identity provider does. Used by seed tooling and tests.
func JwtGenerate(secret string, accountId string, email string, lifespan time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("identity secret is not configured")
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &IdentityClaim{
		Email: email,
		StandardClaims: jwt.StandardClaims{
			Subject:   accountId,
			ExpiresAt: time.Now().Add(lifespan).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	})
	return t.SignedString([]byte(secret))
}

func JwtValidate(secret string, token string) (*IdentityClaim, error) {
	if secret == "" {
		return nil, errors.New("identity secret is not configured")
	}
	parsed, err := jwt.ParseWithClaims(token, &IdentityClaim{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claim, ok := parsed.Claims.(*IdentityClaim)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if claim.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claim, nil
}
