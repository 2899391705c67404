package auth

import (
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

type TokenType string

const (
	TokenTypeUndefined TokenType = ""
	TokenTypeUser      TokenType = "user"
	TokenTypeAdmin     TokenType = "admin"
)

var TokenSecretKey = os.Getenv("TOKEN_AUTH_SECRET")

// TokenClaims carries the player identity; the user id lives in Subject.
type TokenClaims struct {
	Type     TokenType `json:"type"`
	Username string    `json:"username"`
	jwt.RegisteredClaims
}

func GenerateToken(userID, username string, tokenType TokenType, dur time.Duration) (string, error) {
	claims := TokenClaims{
		Type:     tokenType,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(dur)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(TokenSecretKey))
}

func VerifyToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			alg, _ := token.Header["alg"].(string)
			return nil, errors.Wrap(ErrInvalidSigningMethod, alg)
		}
		return []byte(TokenSecretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		if claims.Subject == "" {
			return nil, ErrMissingSubject
		}
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// ParseSession verifies the token and turns its claims into a Session.
func ParseSession(tokenString string) (*Session, error) {
	claims, err := VerifyToken(tokenString)
	if err != nil {
		return nil, err
	}
	s := &Session{
		UserID:   claims.Subject,
		Username: claims.Username,
		Type:     claims.Type,
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}
