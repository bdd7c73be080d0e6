package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/tabledesk/internal/catalog/domain"
	orderdomain "github.com/smallbiznis/tabledesk/internal/order/domain"
)

func (s *Server) ListProducts(c *gin.Context) {
	includeInactive, err := parseOptionalBool(c.Query("include_inactive"))
	if err != nil {
		AbortWithError(c, newValidationError("include_inactive", "invalid_include_inactive", "invalid include_inactive"))
		return
	}

	req := catalogdomain.ListProductsRequest{RestaurantSlug: c.Param("slug")}
	if includeInactive != nil {
		req.IncludeInactive = *includeInactive
	}
	products, err := s.catalogSvc.ListProducts(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": products})
}

func (s *Server) SubmitOrder(c *gin.Context) {
	var req orderdomain.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	c.Set(contextTableKey, strings.TrimSpace(req.Table))

	result, err := s.orderSvc.Submit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	order := result.Order
	resp := gin.H{
		"orderId":   order.ID.String(),
		"sessionId": order.SessionID.String(),
		"total":     order.Total.StringFixed(2),
	}
	status := http.StatusCreated
	if result.Warning != nil {
		// The order exists; only its modifiers are missing.
		status = http.StatusPartialContent
		resp["warning"] = result.Warning.Error()
	}
	c.JSON(status, resp)
}

func (s *Server) GetOrder(c *gin.Context) {
	_, restaurantID := restaurantFromContext(c)
	order, err := s.orderSvc.Get(c.Request.Context(), restaurantID, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) UpdateOrderStatus(c *gin.Context) {
	var req updateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	_, restaurantID := restaurantFromContext(c)
	order, err := s.orderSvc.UpdateStatus(c.Request.Context(), orderdomain.UpdateStatusRequest{
		RestaurantID: restaurantID,
		OrderID:      c.Param("id"),
		Status:       req.Status,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}
