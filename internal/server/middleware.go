package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/ordercast/internal/tenantctx"
)

// AuthRequired resolves HTTP Basic credentials to a tenant and binds the
// tenant id into the request context. Every failure mode is a 403: callers
// learn nothing about which part of the credentials was wrong.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, password, ok := c.Request.BasicAuth()
		if !ok {
			AbortWithError(c, ErrForbidden)
			return
		}

		tenant, err := s.authsvc.Authenticate(c.Request.Context(), username, password)
		if err != nil {
			AbortWithError(c, ErrForbidden)
			return
		}

		ctx := tenantctx.WithTenantID(c.Request.Context(), tenant.ID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
