// Package replica keeps a display's local copy of the restaurant working set
// in step with the server through pushed events and periodic snapshots.
package replica

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/tabledesk/internal/order/domain"
	"github.com/smallbiznis/tabledesk/internal/realtime"
	sessiondomain "github.com/smallbiznis/tabledesk/internal/tablesession/domain"
)

var (
	ErrUnknownRecord = errors.New("replica_unknown_record")
	ErrNotStaged     = errors.New("replica_not_staged")
)

// Scope selects which records a replica holds.
type Scope struct {
	RestaurantID string
	// SessionID narrows the replica to one table session (diner view).
	SessionID string
	// OpenOnly evicts paid-and-delivered or cancelled orders and closed sessions.
	OpenOnly bool
}

// Snapshot is a full working set as served by the board endpoint.
type Snapshot struct {
	RestaurantID   string                       `json:"restaurant_id"`
	Orders         []orderdomain.Order          `json:"orders"`
	Sessions       []sessiondomain.Session      `json:"sessions"`
	Payments       []sessiondomain.PaymentEntry `json:"payments"`
	PollIntervalMS int64                        `json:"poll_interval_ms"`
}

// Replica is the display-side cache. Records are stored normalized so partial
// order and line events can keep the children they do not carry.
type Replica struct {
	mu    sync.RWMutex
	scope Scope

	orders    map[snowflake.ID]orderdomain.Order
	lines     map[snowflake.ID]orderdomain.Line
	modifiers map[snowflake.ID]orderdomain.Modifier
	sessions  map[snowflake.ID]sessiondomain.Session
	payments  map[snowflake.ID]sessiondomain.PaymentEntry

	undo        map[snowflake.ID]orderdomain.Order
	lastEventID string
	changed     chan struct{}
}

func New(scope Scope) *Replica {
	r := &Replica{
		scope:   scope,
		undo:    map[snowflake.ID]orderdomain.Order{},
		changed: make(chan struct{}, 1),
	}
	r.clear()
	return r
}

func (r *Replica) clear() {
	r.orders = map[snowflake.ID]orderdomain.Order{}
	r.lines = map[snowflake.ID]orderdomain.Line{}
	r.modifiers = map[snowflake.ID]orderdomain.Modifier{}
	r.sessions = map[snowflake.ID]sessiondomain.Session{}
	r.payments = map[snowflake.ID]sessiondomain.PaymentEntry{}
}

func (r *Replica) Scope() Scope {
	return r.scope
}

// Changed signals after every mutation; signals coalesce.
func (r *Replica) Changed() <-chan struct{} {
	return r.changed
}

// LastEventID is the id of the newest applied event, used to resume a stream.
func (r *Replica) LastEventID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastEventID
}

func (r *Replica) notify() {
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

// Apply folds one event into the cache. Applying an event again leaves the
// cache unchanged. It reports whether the event was in scope.
func (r *Replica) Apply(event realtime.Event) (bool, error) {
	if event.RestaurantID != r.scope.RestaurantID {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ID != "" {
		r.lastEventID = event.ID
	}
	recordID, err := snowflake.ParseString(event.RecordID)
	if err != nil {
		return false, fmt.Errorf("record id %q: %w", event.RecordID, err)
	}

	inSession := r.scope.SessionID == "" || event.SessionID == r.scope.SessionID
	if !inSession {
		// Only an eviction can matter for records outside the session.
		if r.evict(event.Entity, recordID) {
			r.notify()
		}
		return false, nil
	}

	if event.Op == realtime.OpDelete {
		if r.evict(event.Entity, recordID) {
			r.notify()
		}
		return true, nil
	}

	switch event.Entity {
	case realtime.EntityOrder:
		var o orderdomain.Order
		if err := json.Unmarshal(event.Record, &o); err != nil {
			return false, fmt.Errorf("decode order: %w", err)
		}
		r.putOrder(o)
	case realtime.EntityOrderLine:
		var line orderdomain.Line
		if err := json.Unmarshal(event.Record, &line); err != nil {
			return false, fmt.Errorf("decode order line: %w", err)
		}
		if _, ok := r.orders[line.OrderID]; ok {
			r.putLine(line)
		}
	case realtime.EntityOrderLineModifier:
		var m orderdomain.Modifier
		if err := json.Unmarshal(event.Record, &m); err != nil {
			return false, fmt.Errorf("decode modifier: %w", err)
		}
		if _, ok := r.lines[m.OrderLineID]; ok {
			r.modifiers[m.ID] = m
		}
	case realtime.EntityTableSession:
		var s sessiondomain.Session
		if err := json.Unmarshal(event.Record, &s); err != nil {
			return false, fmt.Errorf("decode session: %w", err)
		}
		r.putSession(s)
	case realtime.EntityPayment:
		var p sessiondomain.PaymentEntry
		if err := json.Unmarshal(event.Record, &p); err != nil {
			return false, fmt.Errorf("decode payment: %w", err)
		}
		r.putPayment(p)
	default:
		return false, nil
	}
	r.notify()
	return true, nil
}

// Reset replaces the working set with a polled snapshot. Staged snapshots
// survive so a pending Rollback still restores.
func (r *Replica) Reset(snapshot Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clear()
	for _, o := range snapshot.Orders {
		if r.inScope(o.RestaurantID, o.SessionID) {
			r.putOrder(o)
		}
	}
	for _, s := range snapshot.Sessions {
		if r.inScope(s.RestaurantID, s.ID) {
			r.putSession(s)
		}
	}
	for _, p := range snapshot.Payments {
		r.putPayment(p)
	}
	r.notify()
}

// putOrder replaces the order. Lines are replaced only when the record carries them.
func (r *Replica) putOrder(o orderdomain.Order) {
	if r.scope.OpenOnly && !o.Open() {
		r.evictOrder(o.ID)
		return
	}
	if held, ok := r.orders[o.ID]; ok && o.UpdatedAt.Before(held.UpdatedAt) {
		return
	}
	lines := o.Lines
	o.Lines = nil
	r.orders[o.ID] = o
	if lines == nil {
		return
	}
	for id, line := range r.lines {
		if line.OrderID == o.ID {
			r.dropLine(id)
		}
	}
	for _, line := range lines {
		line.OrderID = o.ID
		r.putLine(line)
	}
}

// putLine replaces the line. Modifiers are replaced only when the record carries them.
func (r *Replica) putLine(line orderdomain.Line) {
	modifiers := line.Modifiers
	line.Modifiers = nil
	r.lines[line.ID] = line
	if modifiers == nil {
		return
	}
	for id, m := range r.modifiers {
		if m.OrderLineID == line.ID {
			delete(r.modifiers, id)
		}
	}
	for _, m := range modifiers {
		m.OrderLineID = line.ID
		r.modifiers[m.ID] = m
	}
}

func (r *Replica) inScope(restaurantID, sessionID snowflake.ID) bool {
	if restaurantID.String() != r.scope.RestaurantID {
		return false
	}
	return r.scope.SessionID == "" || sessionID.String() == r.scope.SessionID
}

// Payments are only kept for held sessions.
func (r *Replica) putPayment(p sessiondomain.PaymentEntry) {
	if _, ok := r.sessions[p.SessionID]; ok {
		r.payments[p.ID] = p
	}
}

func (r *Replica) putSession(s sessiondomain.Session) {
	if r.scope.OpenOnly && s.Status != sessiondomain.StatusOpen {
		r.evictSession(s.ID)
		return
	}
	r.sessions[s.ID] = s
}

func (r *Replica) evict(entity realtime.Entity, id snowflake.ID) bool {
	switch entity {
	case realtime.EntityOrder:
		return r.evictOrder(id)
	case realtime.EntityOrderLine:
		_, ok := r.lines[id]
		r.dropLine(id)
		return ok
	case realtime.EntityOrderLineModifier:
		_, ok := r.modifiers[id]
		delete(r.modifiers, id)
		return ok
	case realtime.EntityTableSession:
		return r.evictSession(id)
	case realtime.EntityPayment:
		_, ok := r.payments[id]
		delete(r.payments, id)
		return ok
	}
	return false
}

func (r *Replica) evictOrder(id snowflake.ID) bool {
	_, ok := r.orders[id]
	delete(r.orders, id)
	for lineID, line := range r.lines {
		if line.OrderID == id {
			r.dropLine(lineID)
		}
	}
	return ok
}

func (r *Replica) evictSession(id snowflake.ID) bool {
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	for paymentID, p := range r.payments {
		if p.SessionID == id {
			delete(r.payments, paymentID)
		}
	}
	return ok
}

func (r *Replica) dropLine(id snowflake.ID) {
	delete(r.lines, id)
	for modID, m := range r.modifiers {
		if m.OrderLineID == id {
			delete(r.modifiers, modID)
		}
	}
}

// Stage applies mutate to a held order ahead of the server's answer and keeps
// the prior record for Rollback. Repeated stages keep the earliest snapshot.
func (r *Replica) Stage(id snowflake.ID, mutate func(*orderdomain.Order)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[id]; !ok {
		return ErrUnknownRecord
	}
	current := r.assemble(id)
	if _, staged := r.undo[id]; !staged {
		r.undo[id] = current
	}
	next := cloneOrder(current)
	mutate(&next)
	next.ID = id
	r.orders[id] = withoutLines(next)
	r.notify()
	return nil
}

// Confirm replaces a staged order with the server's record.
func (r *Replica) Confirm(id snowflake.ID, record orderdomain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.undo[id]; !ok {
		return ErrNotStaged
	}
	delete(r.undo, id)
	record.ID = id
	// The server record is authoritative even if the staged copy looks newer.
	delete(r.orders, id)
	r.putOrder(record)
	r.notify()
	return nil
}

// Rollback restores the record held before the first Stage.
func (r *Replica) Rollback(id snowflake.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prior, ok := r.undo[id]
	if !ok {
		return ErrNotStaged
	}
	delete(r.undo, id)
	r.evictOrder(id)
	r.putOrder(prior)
	r.notify()
	return nil
}

func (r *Replica) Pending() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.undo)
}

func (r *Replica) Order(id snowflake.ID) (orderdomain.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.orders[id]; !ok {
		return orderdomain.Order{}, false
	}
	return r.assemble(id), true
}

// Orders returns held orders with their lines, oldest first.
func (r *Replica) Orders() []orderdomain.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]orderdomain.Order, 0, len(r.orders))
	for id := range r.orders {
		out = append(out, r.assemble(id))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *Replica) Sessions() []sessiondomain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]sessiondomain.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Aggregate totals one held session from held orders and payments.
func (r *Replica) Aggregate(sessionID snowflake.ID) (sessiondomain.Aggregate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return sessiondomain.Aggregate{}, false
	}
	var orders []orderdomain.Order
	for id, o := range r.orders {
		if o.SessionID == sessionID {
			orders = append(orders, r.assemble(id))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	var payments []sessiondomain.PaymentEntry
	for _, p := range r.payments {
		if p.SessionID == sessionID {
			payments = append(payments, p)
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].ID < payments[j].ID })
	return sessiondomain.BuildAggregate(session, orders, payments), true
}

func (r *Replica) assemble(id snowflake.ID) orderdomain.Order {
	o := r.orders[id]
	o.Lines = nil
	for _, line := range r.lines {
		if line.OrderID != id {
			continue
		}
		line.Modifiers = nil
		for _, m := range r.modifiers {
			if m.OrderLineID == line.ID {
				line.Modifiers = append(line.Modifiers, m)
			}
		}
		sort.Slice(line.Modifiers, func(i, j int) bool { return line.Modifiers[i].ID < line.Modifiers[j].ID })
		o.Lines = append(o.Lines, line)
	}
	sort.Slice(o.Lines, func(i, j int) bool {
		if o.Lines[i].Position != o.Lines[j].Position {
			return o.Lines[i].Position < o.Lines[j].Position
		}
		return o.Lines[i].ID < o.Lines[j].ID
	})
	return o
}

func withoutLines(o orderdomain.Order) orderdomain.Order {
	o.Lines = nil
	return o
}

func cloneOrder(o orderdomain.Order) orderdomain.Order {
	if o.Lines == nil {
		return o
	}
	lines := make([]orderdomain.Line, len(o.Lines))
	for i, line := range o.Lines {
		if line.Modifiers != nil {
			line.Modifiers = append([]orderdomain.Modifier(nil), line.Modifiers...)
		}
		lines[i] = line
	}
	o.Lines = lines
	return o
}
