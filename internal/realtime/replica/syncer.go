package replica

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/tabledesk/internal/realtime"
	"go.uber.org/zap"
)

const DefaultPollInterval = 7 * time.Second

// Source feeds a Syncer. Stream blocks until the feed ends or ctx is done,
// handing each event to fn.
type Source interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
	Stream(ctx context.Context, lastEventID string, fn func(realtime.Event)) error
}

type SyncerOption func(*Syncer)

func WithPollInterval(d time.Duration) SyncerOption {
	return func(s *Syncer) {
		if d > 0 {
			s.interval.Store(int64(d))
		}
	}
}

// WithBackOff replaces the reconnect policy for the push stream.
func WithBackOff(newBackOff func() backoff.BackOff) SyncerOption {
	return func(s *Syncer) { s.newBackOff = newBackOff }
}

// Syncer runs the push stream and the periodic poll into one replica.
type Syncer struct {
	replica *Replica
	source  Source
	log     *zap.Logger

	interval   atomic.Int64
	visible    atomic.Bool
	wake       chan struct{}
	newBackOff func() backoff.BackOff

	mu       sync.Mutex
	lastPoll time.Time
	lastErr  error
}

func NewSyncer(replica *Replica, source Source, log *zap.Logger, opts ...SyncerOption) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Syncer{
		replica: replica,
		source:  source,
		log:     log.Named("replica.syncer"),
		wake:    make(chan struct{}, 1),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
	s.interval.Store(int64(DefaultPollInterval))
	s.visible.Store(true)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Syncer) PollInterval() time.Duration {
	return time.Duration(s.interval.Load())
}

// SetVisible pauses polling while the display is hidden. Becoming visible
// refreshes at once.
func (s *Syncer) SetVisible(visible bool) {
	was := s.visible.Swap(visible)
	if visible && !was {
		s.Refresh()
	}
}

// Refresh asks for an immediate poll.
func (s *Syncer) Refresh() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Syncer) LastPoll() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPoll, s.lastErr
}

// Run polls once, then keeps both producers running until ctx is done.
func (s *Syncer) Run(ctx context.Context) error {
	if err := s.Poll(ctx); err != nil {
		s.log.Warn("initial snapshot failed", zap.Error(err))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runStream(ctx)
	}()

	s.runPoll(ctx)
	wg.Wait()
	return ctx.Err()
}

// Poll replaces the replica with a fresh snapshot.
func (s *Syncer) Poll(ctx context.Context) error {
	snapshot, err := s.source.Snapshot(ctx)

	s.mu.Lock()
	s.lastPoll = time.Now()
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if snapshot.PollIntervalMS > 0 {
		s.interval.Store(int64(time.Duration(snapshot.PollIntervalMS) * time.Millisecond))
	}
	s.replica.Reset(*snapshot)
	return nil
}

func (s *Syncer) runPoll(ctx context.Context) {
	timer := time.NewTimer(s.PollInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-s.wake:
		}
		if s.visible.Load() {
			if err := s.Poll(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("snapshot poll failed", zap.Error(err))
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.PollInterval())
	}
}

func (s *Syncer) runStream(ctx context.Context) {
	policy := s.newBackOff()
	for {
		received := false
		err := s.source.Stream(ctx, s.replica.LastEventID(), func(event realtime.Event) {
			received = true
			if _, err := s.replica.Apply(event); err != nil {
				s.log.Warn("dropping malformed event", zap.String("event_id", event.ID), zap.Error(err))
			}
		})
		if ctx.Err() != nil {
			return
		}
		if received {
			policy.Reset()
		}
		// Anything missed while disconnected comes back with the next poll.
		s.Refresh()

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			s.log.Error("event stream retries exhausted", zap.Error(err))
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("event stream disconnected", zap.Duration("retry_in", wait), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
