// Package auth signs and verifies the HS256 tokens used between the web app and the API,
// and the cookie that pins a visitor to their tab.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"billed/internal/core"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims identify the user an API call is made for.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

// TabClaims carry the tab id in the subject.
type TabClaims struct {
	jwt.RegisteredClaims
}

func GenerateToken(s core.Session, secretKey []byte, validity time.Duration) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		Email: s.Email,
		Role:  s.Role.String(),
	})
	signed, err := token.SignedString(secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// SessionFromToken verifies the token and returns the identity it carries.
func SessionFromToken(tokenString string, secretKey []byte) (core.Session, error) {
	claims := &Claims{}
	if err := parse(tokenString, claims, secretKey); err != nil {
		return core.Session{}, err
	}
	role, err := core.ParseRole(claims.Role)
	if err != nil {
		return core.Session{}, ErrInvalidToken
	}
	s := core.Session{Role: role, Email: claims.Email}
	if s.Validate() != nil {
		return core.Session{}, ErrInvalidToken
	}
	return s, nil
}

func GenerateTabToken(tabID string, secretKey []byte, validity time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, TabClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tabID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
	})
	signed, err := token.SignedString(secretKey)
	if err != nil {
		return "", fmt.Errorf("sign tab token: %w", err)
	}
	return signed, nil
}

func TabIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &TabClaims{}
	if err := parse(tokenString, claims, secretKey); err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func parse(tokenString string, claims jwt.Claims, secretKey []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
