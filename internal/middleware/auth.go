package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/fitos/notify/internal/auth"
	"github.com/fitos/notify/pkg/errors"
	"github.com/fitos/notify/pkg/response"
)

const (
	CtxPrincipalKey = "authPrincipal"
	CtxUserIDKey    = "userID"
)

// Auth resolves the caller from the Authorization bearer credential, falling
// back to the apikey header. Either a user access token or the service-role
// key is accepted.
func Auth(authenticator *iauth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := bearerCredential(c.GetHeader("Authorization"))
		if credential == "" {
			credential = strings.TrimSpace(c.GetHeader("apikey"))
		}
		if credential == "" {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		principal, err := authenticator.Authenticate(credential)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxPrincipalKey, principal)
		if principal.UserID != "" {
			c.Set(CtxUserIDKey, principal.UserID)
		}

		c.Next()
	}
}

// RequireService rejects callers that are not the service role.
func RequireService() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !principal.Service {
			response.Error(c, errors.ErrForbidden.WithMessage("service role required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireUser rejects callers without a user identity.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if principal.UserID == "" {
			response.Error(c, errors.ErrForbidden.WithMessage("user token required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// PrincipalFromContext returns the principal stored by Auth.
func PrincipalFromContext(c *gin.Context) (*iauth.Principal, bool) {
	value, ok := c.Get(CtxPrincipalKey)
	if !ok {
		return nil, false
	}
	principal, ok := value.(*iauth.Principal)
	return principal, ok && principal != nil
}

func bearerCredential(header string) string {
	if len(header) < 8 || !strings.EqualFold(header[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
