package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// UserIDKey is the context key for the authenticated user ID
	UserIDKey = "user_id"
	// UserEmailKey is the context key for the authenticated user email
	UserEmailKey = "user_email"
)

// bearerRejection describes why a request carried no usable bearer token
type bearerRejection struct {
	message string
	code    string
}

var (
	rejectMissingHeader = bearerRejection{"Authorization header required", "AUTH_REQUIRED"}
	rejectScheme        = bearerRejection{"Invalid authorization scheme. Use Bearer token.", "INVALID_AUTH_SCHEME"}
	rejectEmptyToken    = bearerRejection{"Token required", "TOKEN_REQUIRED"}
	rejectInvalidToken  = bearerRejection{"Invalid or expired token", "INVALID_TOKEN"}
)

// BearerAuth requires a valid access token in the Authorization header and
// puts its subject and email in the context. Anything else answers 401.
func BearerAuth(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, rejection := bearerToken(c.GetHeader("Authorization"))
		if rejection != nil {
			abortUnauthorized(c, *rejection)
			return
		}

		claims, err := tokens.Verify(token)
		if err != nil {
			abortUnauthorized(c, rejectInvalidToken)
			return
		}

		c.Set(UserIDKey, claims.Subject)
		c.Set(UserEmailKey, claims.Email)
		c.Next()
	}
}

func bearerToken(header string) (string, *bearerRejection) {
	if header == "" {
		return "", &rejectMissingHeader
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", &rejectScheme
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", &rejectEmptyToken
	}
	return token, nil
}

func abortUnauthorized(c *gin.Context, r bearerRejection) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": r.message,
		"code":  r.code,
	})
}

// GetUserID returns the user ID set by BearerAuth
func GetUserID(c *gin.Context) (string, bool) {
	id := c.GetString(UserIDKey)
	return id, id != ""
}
