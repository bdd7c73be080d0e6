package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	salesreportdomain "github.com/smallbiznis/tabledesk/internal/salesreport/domain"
)

func (s *Server) GetSalesReport(c *gin.Context) {
	rangeDays, err := parseOptionalInt(c.Query("range_days"))
	if err != nil {
		AbortWithError(c, salesreportdomain.ErrInvalidRange)
		return
	}

	_, restaurantID := restaurantFromContext(c)
	req := salesreportdomain.ReportRequest{RestaurantID: restaurantID}
	if rangeDays != nil {
		req.RangeDays = *rangeDays
	}

	if strings.EqualFold(strings.TrimSpace(c.Query("format")), "csv") {
		var buf bytes.Buffer
		if err := s.salesSvc.ExportPayments(c.Request.Context(), req, &buf); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="payments-%s.csv"`, c.Param("slug")))
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
		return
	}

	report, err := s.salesSvc.Report(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}
