package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stackbill/stackbill/internal/orgcontext"
)

const HeaderOrg = "X-Org-ID"

// OrgContext resolves the acting organization from the X-Org-ID header,
// falling back to the configured default for single-tenant installs.
func (s *Server) OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderOrg))

		orgID := s.cfg.DefaultOrgID
		if raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || parsed <= 0 {
				AbortWithError(c, newValidationError("org_id", "invalid_org_id", "invalid organization id"))
				return
			}
			orgID = parsed
		}
		if orgID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := orgcontext.WithOrgID(c.Request.Context(), orgID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
