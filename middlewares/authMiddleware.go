package middlewares

import (
	"context"
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/menu_backend/identity"
	"bitbucket.org/mmdatafocus/menu_backend/utils"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates an optional identity-provider bearer token. Requests without one
// continue anonymously; a bad token is rejected.
func AuthMiddleware(secret string, superAdminId string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")

		if auth == "" {
			c.Next()
			return
		}

		bearer := "Bearer "
		if len(auth) <= len(bearer) || !strings.EqualFold(auth[:len(bearer)], bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		token := strings.TrimSpace(auth[len(bearer):])

		claim, err := utils.JwtValidate(secret, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetAccountIdInContext(ctx, claim.AccountId())
		ctx = utils.SetEmailInContext(ctx, claim.Email)
		ctx = utils.SetIsSuperAdminInContext(ctx, superAdminId != "" && claim.AccountId() == superAdminId)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireIdentity rejects requests that AuthMiddleware left anonymous.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CtxIdentity(c.Request.Context()) == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func CtxIdentity(ctx context.Context) *identity.Identity {
	accountId, ok := utils.GetAccountIdFromContext(ctx)
	if !ok || accountId == "" {
		return nil
	}
	email, _ := utils.GetEmailFromContext(ctx)
	return &identity.Identity{AccountId: accountId, Email: email}
}

func CtxIsSuperAdmin(ctx context.Context) bool {
	v, ok := utils.GetIsSuperAdminFromContext(ctx)
	return ok && v
}
