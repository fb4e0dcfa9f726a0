package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"clubhub-backend/internal/domain"
)

const actorKey = "actor"

// AuthMiddleware resolves the bearer token to an account and stores its
// current role and club as the request actor. Role changes take effect on
// the next request without reissuing tokens.
func (a *App) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			jsonError(c, http.StatusUnauthorized, "Missing Authorization header")
			c.Abort()
			return
		}

		// Expect: "Bearer token"
		if !strings.HasPrefix(authHeader, "Bearer ") {
			jsonError(c, http.StatusUnauthorized, "Invalid token format")
			c.Abort()
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		var claims Claims
		_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
			return a.jwtSecret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
		if err != nil || claims.UserID == "" {
			jsonError(c, http.StatusUnauthorized, "Invalid token")
			c.Abort()
			return
		}

		rec, err := a.Users.GetUser(c.Request.Context(), claims.UserID)
		if err != nil {
			jsonError(c, http.StatusUnauthorized, "Unknown account")
			c.Abort()
			return
		}

		c.Set(actorKey, rec.Value.Actor())
		c.Next()
	}
}

// actorFromContext returns the actor set by AuthMiddleware, or the zero
// actor when the request is unauthenticated.
func actorFromContext(c *gin.Context) domain.Actor {
	v, ok := c.Get(actorKey)
	if !ok {
		return domain.Actor{}
	}
	actor, _ := v.(domain.Actor)
	return actor
}
