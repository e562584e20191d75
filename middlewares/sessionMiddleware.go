package middlewares

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/quillpost/newsletter_backend/config"
	"github.com/quillpost/newsletter_backend/models"
	"github.com/quillpost/newsletter_backend/utils"
)

const sessionKeyPrefix = "Session:"

// SessionMiddleware resolves the `token` header to an admin user id and puts
// both on the request context. Requests without a token pass through;
// RequireSession gates the routes that need one.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}
		val, exists, err := config.GetRedisValue(sessionKeyPrefix + token)
		if err != nil || !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		userID, err := strconv.Atoi(val)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		// The session may outlive the account: a deactivated admin keeps a
		// valid redis token until it expires, so check the row too.
		user, err := models.GetUserByID(c.Request.Context(), userID)
		if err != nil || (user.IsActive != nil && !*user.IsActive) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetUserIdInContext(ctx, userID)
		ctx = utils.SetUsernameInContext(ctx, user.Username)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireSession rejects requests that did not carry a valid session token.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}
