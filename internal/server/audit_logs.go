package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/tabledesk/internal/audit/domain"
)

// ListAuditLogs serves the restaurant's audit trail, newest first.
func (s *Server) ListAuditLogs(c *gin.Context) {
	if s.auditSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	_, restaurantID := restaurantFromContext(c)
	req := auditdomain.ListRequest{
		RestaurantID: restaurantID,
		Action:       c.Query("action"),
		TargetType:   c.Query("target_type"),
		TargetID:     c.Query("target_id"),
	}
	if limit != nil {
		req.Limit = *limit
	}
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError("since", "invalid_since", "since must be RFC3339"))
			return
		}
		req.Since = &since
	}

	logs, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": logs})
}
