package replica

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/tabledesk/internal/realtime"
)

// HTTPSource reads the board snapshot and the SSE feed of one restaurant.
type HTTPSource struct {
	BaseURL string
	Slug    string
	// SessionID, when set, scopes the board and the event feed to one visit.
	SessionID string
	Client    *http.Client
	// StreamClient carries the long-lived SSE request; it must not time out.
	StreamClient *http.Client
}

func NewHTTPSource(baseURL, slug string) *HTTPSource {
	return &HTTPSource{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Slug:         slug,
		Client:       &http.Client{Timeout: 10 * time.Second},
		StreamClient: &http.Client{},
	}
}

// endpoint carries the session filter on every request so the server trims
// both the board and the feed.
func (s *HTTPSource) endpoint(suffix string) string {
	target := fmt.Sprintf("%s/v1/restaurants/%s/%s", s.BaseURL, url.PathEscape(s.Slug), suffix)
	if s.SessionID != "" {
		target += "?" + url.Values{"session_id": {s.SessionID}}.Encode()
	}
	return target
}

func (s *HTTPSource) Snapshot(ctx context.Context) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint("board"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("board: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var snapshot Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("board: decode: %w", err)
	}
	return &snapshot, nil
}

func (s *HTTPSource) Stream(ctx context.Context, lastEventID string, fn func(realtime.Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint("events"), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}

	resp, err := s.StreamClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("events: status %d", resp.StatusCode)
	}
	return readEvents(resp.Body, fn)
}

// readEvents parses a text/event-stream body. Only "realtime" events carry
// records; heartbeats and comments are skipped.
func readEvents(body io.Reader, fn func(realtime.Event)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var name string
	var data strings.Builder
	dispatch := func() error {
		defer func() {
			name = ""
			data.Reset()
		}()
		if data.Len() == 0 || (name != "" && name != "realtime") {
			return nil
		}
		var event realtime.Event
		if err := json.Unmarshal([]byte(data.String()), &event); err != nil {
			return fmt.Errorf("events: decode: %w", err)
		}
		fn(event)
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := dispatch(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}
