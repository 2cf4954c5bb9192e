package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hostel-api/internal/models"
	appErrors "github.com/noah-isme/hostel-api/pkg/errors"
	"github.com/noah-isme/hostel-api/pkg/response"
)

// RequireRoles allows the request only when the caller holds one of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := roleSet(roles)
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			response.Abort(c, appErrors.ErrUnauthorized)
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Abort(c, appErrors.Clone(appErrors.ErrForbidden, "insufficient role for this action"))
			return
		}
		c.Next()
	}
}

// RequireSelfOrRoles allows callers holding one of roles, or anyone whose id equals the
// path parameter param.
func RequireSelfOrRoles(param string, roles ...models.UserRole) gin.HandlerFunc {
	allowed := roleSet(roles)
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			response.Abort(c, appErrors.ErrUnauthorized)
			return
		}
		if _, ok := allowed[claims.Role]; ok {
			c.Next()
			return
		}
		if target := c.Param(param); target != "" && target == claims.UserID {
			c.Next()
			return
		}
		response.Abort(c, appErrors.Clone(appErrors.ErrForbidden, "you can only access your own records"))
	}
}

func roleSet(roles []models.UserRole) map[models.UserRole]struct{} {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return allowed
}
