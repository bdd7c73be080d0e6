package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tabledesk/internal/auditcontext"
	paymentdomain "github.com/smallbiznis/tabledesk/internal/payment/domain"
	"github.com/smallbiznis/tabledesk/internal/providers/pdf"
	sessiondomain "github.com/smallbiznis/tabledesk/internal/tablesession/domain"
	"go.uber.org/zap"
)

func (s *Server) ListSessions(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	_, restaurantID := restaurantFromContext(c)
	req := sessiondomain.ListRequest{
		RestaurantID: restaurantID,
		Status:       c.Query("status"),
		Search:       c.Query("search"),
	}
	if limit != nil {
		req.Limit = *limit
	}

	sessions, err := s.sessionSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sessions})
}

func (s *Server) GetTableSession(c *gin.Context) {
	_, restaurantID := restaurantFromContext(c)
	agg, err := s.sessionSvc.FindOpenByTable(c.Request.Context(), restaurantID, c.Param("table"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": agg})
}

func (s *Server) GetSession(c *gin.Context) {
	_, restaurantID := restaurantFromContext(c)
	agg, err := s.sessionSvc.Aggregate(c.Request.Context(), restaurantID, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": agg})
}

// SplitSession suggests amounts; it never records anything.
func (s *Server) SplitSession(c *gin.Context) {
	parts, err := parseOptionalInt(c.Query("parts"))
	if err != nil {
		AbortWithError(c, paymentdomain.ErrInvalidSplit)
		return
	}

	_, restaurantID := restaurantFromContext(c)
	req := paymentdomain.SplitRequest{
		RestaurantID: restaurantID,
		SessionID:    c.Param("id"),
		LineIDs:      parseIDList(c.Query("lines")),
	}
	if parts != nil {
		req.Parts = *parts
	}

	result, err := s.paymentSvc.Split(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

type recordPaymentRequest struct {
	Method string          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) RecordPayment(c *gin.Context) {
	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	_, restaurantID := restaurantFromContext(c)
	result, err := s.paymentSvc.Record(ctx, paymentdomain.RecordRequest{
		RestaurantID: restaurantID,
		SessionID:    c.Param("id"),
		Method:       req.Method,
		Amount:       req.Amount,
		CreatedBy:    auditcontext.ActorFromContext(ctx).ID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := gin.H{
		"closed":  result.Closed,
		"payment": result.Payment,
		"session": result.Aggregate,
	}
	if result.SyncWarning != nil {
		// Settled and closed; the paid flags are repaired in the background.
		resp["warning"] = paymentdomain.ErrPostSettlementSync.Error()
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) SessionTicket(c *gin.Context) {
	ctx := c.Request.Context()
	restaurant, restaurantID := restaurantFromContext(c)
	agg, err := s.sessionSvc.Aggregate(ctx, restaurantID, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data := pdf.NewBillData(restaurant.Name, agg, s.clock.Now())
	doc, err := s.pdf.GenerateBill(ctx, data)
	if err != nil {
		s.log.Error("bill ticket render failed",
			zap.String("session_id", agg.Session.ID.String()),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="ticket-%s.pdf"`, agg.Session.ID.String()))
	c.Data(http.StatusOK, "application/pdf", doc)
}
