package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/school-system/portal/internal/auth"
	"github.com/school-system/portal/internal/services"
)

const ImpersonateHeader = "X-Impersonate-User"

func AuthMiddleware(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := authService.VerifyToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		ac, err := authService.AuthContext(claims)
		if err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "Unknown role"})
			c.Abort()
			return
		}

		if target := c.GetHeader(ImpersonateHeader); target != "" {
			targetID, err := uuid.Parse(target)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid impersonation target"})
				c.Abort()
				return
			}
			if ac, err = ac.Impersonate(targetID); err != nil {
				c.JSON(http.StatusForbidden, gin.H{"error": "Only super admins may impersonate"})
				c.Abort()
				return
			}
			exists, err := authService.UserExists(c.Request.Context(), targetID)
			if err != nil || !exists {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Impersonation target not found"})
				c.Abort()
				return
			}
		}

		auth.Set(c, ac)
		c.Set("user_id", ac.UserID)
		c.Set("role", string(ac.Role))
		c.Next()
	}
}

// RequirePermission aborts with 403 unless the caller's role holds perm.
func RequirePermission(perm auth.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		ac, ok := auth.From(c)
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "Role not found in context"})
			c.Abort()
			return
		}
		if !ac.Can(perm) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func RequireRole(roles ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		ac, ok := auth.From(c)
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "Role not found in context"})
			c.Abort()
			return
		}

		for _, r := range roles {
			if ac.Role == r {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
		c.Abort()
	}
}

func RequireSuperAdmin() gin.HandlerFunc {
	return RequireRole(auth.RoleSuperAdmin)
}
