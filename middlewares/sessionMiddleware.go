package middlewares

import (
	"context"
	"net/http"

	"bitbucket.org/quartzbooks/ledger_backend/appctx"
	"bitbucket.org/quartzbooks/ledger_backend/config"
	"github.com/gin-gonic/gin"
)

func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}
		username, exists, err := config.GetRedisValue("Token:" + token)
		if err != nil || !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := context.WithValue(c.Request.Context(), appctx.ContextKeyToken, token)
		ctx = context.WithValue(ctx, appctx.ContextKeyUsername, username)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
