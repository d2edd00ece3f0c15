package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dbos-admissions-api/internal/models"
	appErrors "github.com/noah-isme/dbos-admissions-api/pkg/errors"
	"github.com/noah-isme/dbos-admissions-api/pkg/response"
)

type adminChecker interface {
	IsAdmin(email string) bool
}

// RequireAdmin lets through admin roles whose email is still on the allow-list.
// Tokens issued before an address was removed from the list stop working here.
func RequireAdmin(gate adminChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		switch claims.Role {
		case models.RoleSuperAdmin, models.RoleAdmin:
		default:
			response.Error(c, appErrors.Clone(appErrors.ErrNotAdmin, ""))
			c.Abort()
			return
		}

		if gate != nil && !gate.IsAdmin(claims.Email) {
			response.Error(c, appErrors.Clone(appErrors.ErrNotAdmin, ""))
			c.Abort()
			return
		}
		c.Next()
	}
}
