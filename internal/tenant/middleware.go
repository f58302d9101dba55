// Package tenant scopes API requests to an organization.
package tenant

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderOrganizationID carries the caller's organization.
const HeaderOrganizationID = "X-Organization-ID"

const contextKey = "organization_id"

// RequireOrganization rejects requests without an organization header and
// stores the organization ID in the gin context for downstream handlers.
func RequireOrganization() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := strings.TrimSpace(c.GetHeader(HeaderOrganizationID))
		if orgID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + HeaderOrganizationID + " header"})
			return
		}
		c.Set(contextKey, orgID)
		c.Next()
	}
}

// OrganizationID returns the organization set by RequireOrganization.
func OrganizationID(c *gin.Context) string {
	return c.GetString(contextKey)
}
