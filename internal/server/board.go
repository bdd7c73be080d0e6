package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/tabledesk/internal/order/domain"
	"github.com/smallbiznis/tabledesk/internal/realtime/replica"
	sessiondomain "github.com/smallbiznis/tabledesk/internal/tablesession/domain"
)

// GetBoard serves the working set a display resets its replica from. With
// session_id it narrows to one table visit.
func (s *Server) GetBoard(c *gin.Context) {
	ctx := c.Request.Context()
	_, restaurantID := restaurantFromContext(c)
	syncCfg := s.syncConfig.Get()

	snapshot := replica.Snapshot{
		RestaurantID:   restaurantID.String(),
		PollIntervalMS: syncCfg.PollInterval.Milliseconds(),
	}

	if sessionID := strings.TrimSpace(c.Query("session_id")); sessionID != "" {
		agg, err := s.sessionSvc.Aggregate(ctx, restaurantID, sessionID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		snapshot.Orders = agg.Orders
		snapshot.Sessions = []sessiondomain.Session{agg.Session}
		snapshot.Payments = agg.Payments
		c.JSON(http.StatusOK, snapshot)
		return
	}

	orders, err := s.orderSvc.ListWorkingSet(ctx, restaurantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	sessions, payments, err := s.sessionSvc.OpenSessions(ctx, restaurantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	snapshot.Orders = boardOrders(orders, syncCfg.BoardStatuses)
	snapshot.Sessions = sessions
	snapshot.Payments = payments
	c.JSON(http.StatusOK, snapshot)
}

// boardOrders keeps unpaid orders and paid ones whose status is still worked on.
func boardOrders(orders []orderdomain.Order, statuses []string) []orderdomain.Order {
	keep := make(map[orderdomain.Status]struct{}, len(statuses))
	for _, status := range statuses {
		keep[orderdomain.Status(strings.ToLower(strings.TrimSpace(status)))] = struct{}{}
	}

	out := make([]orderdomain.Order, 0, len(orders))
	for _, o := range orders {
		if o.IsPaid {
			if _, ok := keep[o.Status]; !ok {
				continue
			}
		}
		out = append(out, o)
	}
	return out
}
