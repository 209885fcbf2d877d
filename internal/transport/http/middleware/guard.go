package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RoleChecker answers authorization questions against the current store
// state. Satisfied by usecase.Authorizer.
type RoleChecker interface {
	HasPermission(ctx context.Context, principalID, path string) (bool, error)
	HasRole(ctx context.Context, principalID, roleName string) (bool, error)
}

// RequirePermission denies the request unless one of the caller's active
// roles grants the permission path. Roles are resolved from the store on
// every request; an empty role set or an unknown path fails closed.
func RequirePermission(checker RoleChecker, path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principalID, ok := GetPrincipalID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		allowed, err := checker.HasPermission(c.Request.Context(), principalID, path)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				newErrorResponse(c, "authorization check failed"))
			return
		}

		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "insufficient permissions"))
			return
		}

		c.Next()
	}
}

// RequireRole denies the request unless the caller holds an active
// assignment of one of the named roles.
func RequireRole(checker RoleChecker, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principalID, ok := GetPrincipalID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		for _, role := range roles {
			held, err := checker.HasRole(c.Request.Context(), principalID, role)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					newErrorResponse(c, "authorization check failed"))
				return
			}
			if held {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden,
			newErrorResponse(c, "insufficient permissions"))
	}
}
