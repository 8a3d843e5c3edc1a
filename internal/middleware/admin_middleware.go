package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/storefront-api/internal/models"
	"github.com/01moynul/storefront-api/internal/repo"
)

//
// --- Role-Based Middleware ---
//
// AdminMiddleware runs AFTER AuthMiddleware. The token carries a role, but
// it is re-read from the users table so a demoted admin loses access before
// their token expires.
//

func AdminMiddleware(users repo.UserRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. Get userID from AuthMiddleware
		userID := UserID(c)
		if userID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User ID not found in context (AuthMiddleware must run first)"})
			return
		}

		// 2. Query DB for user's role
		user, err := users.FindByID(c.Request.Context(), userID)
		if errors.Is(err, repo.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid user"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Database error checking role"})
			return
		}

		// 3. Check permission
		if user.Role != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied: Admin role required"})
			return
		}

		// 4. Success! Refresh role in context and proceed.
		c.Set(ContextRole, user.Role)
		c.Next()
	}
}
