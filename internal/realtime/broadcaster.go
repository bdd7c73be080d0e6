package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tabledesk/internal/config"
	"github.com/smallbiznis/tabledesk/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Publisher is what mutating services depend on.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type BroadcasterParams struct {
	fx.In

	Config  config.Config
	Hub     *Hub
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
	Redis   *redis.Client    `optional:"true"`
}

// Broadcaster delivers events to every process. With Redis configured the
// event travels through a per-restaurant channel and the bridge feeds it back
// into each local hub; otherwise it goes straight to the local hub.
type Broadcaster struct {
	hub     *Hub
	client  *redis.Client
	prefix  string
	log     *zap.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

func NewBroadcaster(p BroadcasterParams) *Broadcaster {
	prefix := strings.TrimSpace(p.Config.Realtime.ChannelPrefix)
	if prefix == "" {
		prefix = "tabledesk:events"
	}
	return &Broadcaster{
		hub:     p.Hub,
		client:  p.Redis,
		prefix:  prefix,
		log:     p.Log.Named("realtime.broadcaster"),
		metrics: p.Metrics,
	}
}

func (b *Broadcaster) Publish(ctx context.Context, event Event) {
	if b == nil {
		return
	}
	b.metrics.RecordRealtimeEvent(ctx, string(event.Entity), string(event.Op))

	if b.client == nil {
		b.hub.Publish(event)
		return
	}

	payload, err := json.Marshal(event)
	if err == nil {
		err = b.client.Publish(ctx, b.channel(event.RestaurantID), payload).Err()
	}
	if err != nil {
		// Local displays still get the change; remote ones heal on their next poll.
		b.log.Warn("redis publish failed, delivering locally",
			zap.String("event_id", event.ID),
			zap.String("entity", string(event.Entity)),
			zap.Error(err),
		)
		b.hub.Publish(event)
	}
}

func (b *Broadcaster) channel(restaurantID string) string {
	return b.prefix + ":" + strings.TrimSpace(restaurantID)
}

// Start subscribes the bridge to every restaurant channel.
func (b *Broadcaster) Start(ctx context.Context) error {
	if b == nil || b.client == nil {
		return nil
	}
	pubsub := b.client.PSubscribe(ctx, b.prefix+":*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	done := make(chan struct{})
	b.mu.Lock()
	b.pubsub = pubsub
	b.done = done
	b.mu.Unlock()

	go b.relay(pubsub.Channel(), done)
	b.log.Info("realtime redis bridge started", zap.String("pattern", b.prefix+":*"))
	return nil
}

func (b *Broadcaster) relay(messages <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range messages {
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			b.log.Warn("dropping malformed realtime message",
				zap.String("channel", msg.Channel),
				zap.Error(err),
			)
			continue
		}
		b.hub.Publish(event)
	}
}

func (b *Broadcaster) Stop(ctx context.Context) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	pubsub, done := b.pubsub, b.done
	b.pubsub, b.done = nil, nil
	b.mu.Unlock()
	if pubsub == nil {
		return nil
	}

	err := pubsub.Close()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}
