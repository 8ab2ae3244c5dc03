package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Context keys set by the auth middleware.
const (
	UserIDKey   = "user_id"
	UsernameKey = "username"
)

var errMissingToken = errors.New("missing bearer token")

// AuthMiddleware rejects requests without a valid HS256 bearer token and
// stores the caller's id under UserIDKey.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, username, err := authenticate(c, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "message": err.Error()})
			return
		}
		c.Set(UserIDKey, userID)
		c.Set(UsernameKey, username)
		c.Next()
	}
}

// OptionalAuth identifies the caller when a valid token is present and
// otherwise lets the request through anonymously.
func OptionalAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, username, err := authenticate(c, secret); err == nil {
			c.Set(UserIDKey, userID)
			c.Set(UsernameKey, username)
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, secret []byte) (int, string, error) {
	header := c.GetHeader("Authorization")
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(tokenString) == "" {
		return 0, "", errMissingToken
	}

	token, err := jwt.Parse(strings.TrimSpace(tokenString), func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return 0, "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", errors.New("invalid token claims")
	}
	raw, ok := claims["user_id"].(float64)
	if !ok || raw <= 0 {
		return 0, "", errors.New("token has no user_id")
	}
	username, _ := claims["username"].(string)
	return int(raw), username, nil
}

// CurrentUserID returns the id stored by AuthMiddleware or OptionalAuth.
func CurrentUserID(c *gin.Context) (int, bool) {
	v, exists := c.Get(UserIDKey)
	if !exists {
		return 0, false
	}
	switch id := v.(type) {
	case int:
		return id, true
	case uint:
		return int(id), true
	case float64:
		return int(id), true
	default:
		return 0, false
	}
}
