package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"motion-transfer-backend/internal/models"
)

const UserIDKey = "user_id"

// AuthMiddleware requires an HS256 bearer token signed with secret and stores its "sub"
// claim under UserIDKey. The router only installs it when a secret is configured.
func AuthMiddleware(secret string) gin.HandlerFunc {
	key := []byte(secret)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			abortUnauthorized(c, "empty token")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return key, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			switch {
			case errors.Is(err, jwt.ErrTokenExpired):
				abortUnauthorized(c, "token has expired")
			case errors.Is(err, jwt.ErrTokenSignatureInvalid):
				abortUnauthorized(c, "token signature is invalid")
			default:
				abortUnauthorized(c, "invalid token")
			}
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			abortUnauthorized(c, "invalid token claims")
			return
		}

		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			abortUnauthorized(c, "missing subject in token")
			return
		}

		c.Set(UserIDKey, sub)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Message: msg})
}
