package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName is the cookie carrying the access token.
const CookieName = "auth_token"

type Claims struct {
	Sub  string `json:"sub"`
	Name string `json:"name"`
	JTI  string `json:"jti"`
	Exp  int64  `json:"exp"`
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

func IssueToken(secret []byte, claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  claims.Sub,
		"name": claims.Name,
		"jti":  claims.JTI,
		"exp":  claims.Exp,
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func ParseToken(secret []byte, token string) (Claims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, ErrInvalidToken
	}

	mapped, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	claims := Claims{}
	claims.Sub, _ = mapped["sub"].(string)
	claims.Name, _ = mapped["name"].(string)
	claims.JTI, _ = mapped["jti"].(string)
	if exp, err := mapped.GetExpirationTime(); err == nil && exp != nil {
		claims.Exp = exp.Unix()
	}
	if claims.Sub == "" || claims.JTI == "" || claims.Exp == 0 {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// HashToken returns the hex SHA-256 of an opaque token. Refresh and
// verification tokens are stored hashed, never in the clear.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}

// ExpiryFromNow converts a TTL into a unix expiry for Claims.Exp.
func ExpiryFromNow(ttl time.Duration) int64 {
	return time.Now().Add(ttl).Unix()
}
