package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tabledesk/internal/realtime"
)

const realtimeEventName = "realtime"

// StreamEvents pushes row changes of one restaurant as server-sent events.
// Clients resume with Last-Event-ID; a cursor older than the backlog replays
// the whole backlog and the next poll fills any gap.
func (s *Server) StreamEvents(c *gin.Context) {
	if s.hub == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	_, restaurantID := restaurantFromContext(c)
	lastEventID := strings.TrimSpace(c.GetHeader("Last-Event-ID"))
	if lastEventID == "" {
		lastEventID = strings.TrimSpace(c.Query("last_event_id"))
	}
	sessionFilter := strings.TrimSpace(c.Query("session_id"))

	subscription, backlog, err := s.hub.Subscribe(restaurantID.String(), lastEventID)
	if err != nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	defer subscription.Close()
	defer s.httpMetrics.StreamOpened()()

	writer := c.Writer
	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	syncCfg := s.syncConfig.Get()
	if _, err := fmt.Fprintf(writer, "retry: %d\n\n", syncCfg.RetryHint.Milliseconds()); err != nil {
		return
	}

	for _, event := range backlog {
		if !matchesSession(event, sessionFilter) {
			continue
		}
		if err := writeRealtimeEvent(writer, event); err != nil {
			return
		}
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(syncCfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-subscription.Events():
			if !matchesSession(event, sessionFilter) {
				continue
			}
			if err := writeRealtimeEvent(writer, event); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func matchesSession(event realtime.Event, sessionID string) bool {
	return sessionID == "" || event.SessionID == sessionID
}

func writeRealtimeEvent(w io.Writer, event realtime.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, realtimeEventName, data)
	return err
}
