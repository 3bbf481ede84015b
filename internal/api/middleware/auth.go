package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/iAmShivaySharma/bedspace-sub002/internal/auth"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/models"
)

const (
	// ContextKeyUserID holds the key for user ID in Gin context.
	ContextKeyUserID = "userID"
	// ContextKeyRole holds the key for the user's role in Gin context.
	ContextKeyRole = "role"
)

// AuthMiddleware creates a Gin middleware for JWT authentication.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		tokenString := parts[1]
		claims, err := auth.ValidateJWT(tokenString, jwtSecret)
		if err != nil {
			errMsg := fmt.Sprintf("Invalid or expired token: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errMsg})
			return
		}

		// Set user info in context for handlers to use
		c.Set(ContextKeyUserID, claims.UserID) // Store as string (Hex representation)
		c.Set(ContextKeyRole, string(claims.Role))

		c.Next()
	}
}

// ActorFromContext rebuilds the verified Actor the auth middleware stored.
// Returns false when the context carries no valid identity.
func ActorFromContext(c *gin.Context) (models.Actor, bool) {
	userIDHex := c.GetString(ContextKeyUserID)
	role := models.Role(c.GetString(ContextKeyRole))

	userID, err := primitive.ObjectIDFromHex(userIDHex)
	if err != nil {
		return models.Actor{}, false
	}
	switch role {
	case models.RoleSeeker, models.RoleProvider, models.RoleAdmin:
	default:
		return models.Actor{}, false
	}
	return models.Actor{ID: userID, Role: role}, true
}
