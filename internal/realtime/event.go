package realtime

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

type Entity string

const (
	EntityOrder             Entity = "order"
	EntityOrderLine         Entity = "order_line"
	EntityOrderLineModifier Entity = "order_line_modifier"
	EntityTableSession      Entity = "table_session"
	EntityPayment           Entity = "payment"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event is one row-level change notification. Record carries the full row
// after the change; deletes carry only RecordID.
type Event struct {
	ID           string          `json:"id"`
	Entity       Entity          `json:"entity"`
	Op           Op              `json:"op"`
	RestaurantID string          `json:"restaurant_id"`
	SessionID    string          `json:"session_id,omitempty"`
	RecordID     string          `json:"record_id"`
	Record       json.RawMessage `json:"record,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// NewEvent stamps a change with a time-ordered id.
func NewEvent(entity Entity, op Op, restaurantID, sessionID, recordID string, record any, at time.Time) (Event, error) {
	ev := Event{
		ID:           ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String(),
		Entity:       entity,
		Op:           op,
		RestaurantID: strings.TrimSpace(restaurantID),
		SessionID:    strings.TrimSpace(sessionID),
		RecordID:     strings.TrimSpace(recordID),
		OccurredAt:   at.UTC(),
	}
	if record != nil && op != OpDelete {
		raw, err := json.Marshal(record)
		if err != nil {
			return Event{}, err
		}
		ev.Record = raw
	}
	return ev, nil
}
