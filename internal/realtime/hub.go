package realtime

import (
	"errors"
	"strings"
	"sync"
)

const (
	DefaultBacklogSize      = 100
	DefaultSubscriberBuffer = 32
)

var (
	ErrHubUnavailable      = errors.New("hub_unavailable")
	ErrInvalidRestaurantID = errors.New("invalid_restaurant_id")
)

// Hub fans events out to the displays of one restaurant. Each restaurant
// keeps a bounded backlog that new subscribers receive first.
type Hub struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	backlogSize      int
	subscriberBuffer int
}

type stream struct {
	mu      sync.Mutex
	backlog []Event
	subs    map[uint64]chan Event
	nextID  uint64
}

type Subscription struct {
	hub          *Hub
	restaurantID string
	id           uint64
	ch           chan Event
	once         sync.Once
}

func NewHub(backlogSize int) *Hub {
	if backlogSize <= 0 {
		backlogSize = DefaultBacklogSize
	}
	return &Hub{
		streams:          make(map[string]*stream),
		backlogSize:      backlogSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Publish appends to the restaurant backlog and offers the event to every
// subscriber. A subscriber whose buffer is full misses the event.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	key := strings.TrimSpace(event.RestaurantID)
	if key == "" {
		return
	}

	s := h.ensureStream(key)
	s.mu.Lock()
	s.backlog = append(s.backlog, event)
	if len(s.backlog) > h.backlogSize {
		s.backlog = s.backlog[len(s.backlog)-h.backlogSize:]
	}
	subs := make([]chan Event, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a listener. The returned backlog holds events newer
// than afterID, or the whole backlog when afterID is empty or unknown.
func (h *Hub) Subscribe(restaurantID, afterID string) (*Subscription, []Event, error) {
	if h == nil {
		return nil, nil, ErrHubUnavailable
	}
	key := strings.TrimSpace(restaurantID)
	if key == "" {
		return nil, nil, ErrInvalidRestaurantID
	}

	s := h.ensureStream(key)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	ch := make(chan Event, h.subscriberBuffer)
	s.subs[id] = ch
	backlog := since(s.backlog, strings.TrimSpace(afterID))
	s.mu.Unlock()

	return &Subscription{
		hub:          h,
		restaurantID: key,
		id:           id,
		ch:           ch,
	}, backlog, nil
}

// Subscribers returns the number of live subscriptions for a restaurant.
func (h *Hub) Subscribers(restaurantID string) int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	s := h.streams[strings.TrimSpace(restaurantID)]
	h.mu.RUnlock()
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func since(backlog []Event, afterID string) []Event {
	if afterID != "" {
		for i, ev := range backlog {
			if ev.ID == afterID {
				return append([]Event(nil), backlog[i+1:]...)
			}
		}
	}
	return append([]Event(nil), backlog...)
}

func (h *Hub) ensureStream(key string) *stream {
	h.mu.RLock()
	current := h.streams[key]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[key]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan Event)}
		h.streams[key] = current
	}
	return current
}

// The stream itself stays so its backlog survives reconnects.
func (h *Hub) unsubscribe(key string, id uint64) {
	h.mu.RLock()
	s := h.streams[key]
	h.mu.RUnlock()
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.restaurantID, s.id)
	})
}
