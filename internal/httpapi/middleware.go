package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	sessionCookie = "accessToken"
	ctxUserID     = "userID"
	ctxUsername   = "username"
)

// requireAuth rejects requests without a valid session cookie.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie(sessionCookie)
		if err != nil || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		id, name, err := s.authmgr.Verify(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(ctxUserID, id)
		c.Set(ctxUsername, name)
		c.Next()
	}
}

// optionalAuth attaches the caller identity when a valid cookie is present and
// lets the request through either way.
func (s *Server) optionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie(sessionCookie)
		if err == nil && raw != "" {
			if id, name, err := s.authmgr.Verify(raw); err == nil {
				c.Set(ctxUserID, id)
				c.Set(ctxUsername, name)
			}
		}
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func (s *Server) setSessionCookie(c *gin.Context, token string) {
	maxAge := int(s.authmgr.TokenTTL().Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	if s.opts.SecureCookies {
		c.SetSameSite(http.SameSiteNoneMode)
	}
	c.SetCookie(sessionCookie, token, maxAge, "/", "", s.opts.SecureCookies, true)
}

func (s *Server) clearSessionCookie(c *gin.Context) {
	c.SetCookie(sessionCookie, "", -1, "/", "", s.opts.SecureCookies, true)
}
