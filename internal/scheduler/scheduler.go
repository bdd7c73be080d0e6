package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditcontext "github.com/smallbiznis/tabledesk/internal/auditcontext"
	"github.com/smallbiznis/tabledesk/internal/clock"
	obsmetrics "github.com/smallbiznis/tabledesk/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/tabledesk/internal/payment/domain"
	"github.com/smallbiznis/tabledesk/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobSyncPaidFlags = "sync_paid_flags"

	lockKeyPrefix = "scheduler:"
)

var ErrInvalidConfig = errors.New("invalid scheduler config")

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Payments paymentdomain.Service
	Config   Config                       `optional:"true"`
	Locker   *ratelimit.Locker            `optional:"true"`
	Metrics  *obsmetrics.SchedulerMetrics `optional:"true"`
}

// Scheduler runs the background repair jobs on a fixed interval.
type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	payments paymentdomain.Service
	locker   *ratelimit.Locker
	metrics  *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Payments == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		payments: p.Payments,
		locker:   p.Locker,
		metrics:  p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	release, acquired, err := s.acquire(ctx, name)
	if err != nil {
		s.log.Warn("scheduler lock unavailable; running unguarded", zap.String("job", name), zap.Error(err))
	} else if !acquired {
		s.metrics.IncJobSkipped(name)
		return nil
	}
	defer release()

	ctx = auditcontext.WithActor(ctx, auditcontext.Actor{Type: auditcontext.ActorTypeSystem, ID: "scheduler"})
	ctx, run, owner := s.startRun(ctx, name, batchSize)
	s.metrics.IncJobRun(name)

	err = fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.failures == 0 {
			run.failures++
		}
		run.finish(s.clock.Now())
	}
	if err == nil {
		return nil
	}

	// A deadline is a soft timeout; the next tick picks up the rest.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		run.log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// acquire takes the per-job lease when a locker is configured. Without one every replica runs the job,
// which is safe because the repair is idempotent.
func (s *Scheduler) acquire(ctx context.Context, job string) (func(), bool, error) {
	noop := func() {}
	if s.locker == nil {
		return noop, true, nil
	}
	lease, err := s.locker.Acquire(ctx, lockKeyPrefix+job, s.cfg.LockTTL)
	if err != nil {
		return noop, false, err
	}
	if lease == nil {
		return noop, false, nil
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			s.log.Warn("scheduler lock release failed", zap.String("job", job), zap.Error(err))
		}
	}, true, nil
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobSyncPaidFlags, s.SyncPaidFlagsJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.BatchSize, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if lag := time.Since(nextRun); lag > 0 {
			s.metrics.ObserveRunLoopLag(lag)
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// SyncPaidFlagsJob re-applies paid flags to orders of sessions that closed while the flag update failed.
func (s *Scheduler) SyncPaidFlagsJob(ctx context.Context) error {
	ctx, run, owner := s.startRun(ctx, JobSyncPaidFlags, s.cfg.BatchSize)
	if owner {
		defer func() { run.finish(s.clock.Now()) }()
	}

	repaired, err := s.payments.ReconcilePaidFlags(ctx, s.cfg.BatchSize)
	run.addProcessed(repaired)
	s.metrics.AddBatchProcessed(JobSyncPaidFlags, "orders", repaired)
	if err != nil {
		run.fail("paid flag sweep failed", err)
		return err
	}
	return nil
}
