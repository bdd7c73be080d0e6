package scheduler

import (
	"context"
	"time"

	auditcontext "github.com/smallbiznis/tabledesk/internal/auditcontext"
	obscontext "github.com/smallbiznis/tabledesk/internal/observability/context"
	obslogger "github.com/smallbiznis/tabledesk/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tabledesk/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun tracks one execution of a job. It rides on the context so a job
// called from runJob reuses the outer run instead of logging twice.
type jobRun struct {
	job       string
	startedAt time.Time
	processed int
	failures  int
	log       *zap.Logger
}

type jobRunKey struct{}

// startRun returns the run already on ctx, or opens a new one. owner is true
// for the caller that opened it and must call finish.
func (s *Scheduler) startRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun, bool) {
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok {
		return ctx, run, false
	}

	ctx = obscontext.WithActor(ctx, auditcontext.ActorTypeSystem, "scheduler")
	run := &jobRun{
		job:       job,
		startedAt: s.clock.Now(),
		log: obslogger.WithContext(ctx, s.log).With(
			zap.String("job", job),
			zap.String("run_id", s.genID.Generate().String()),
		),
	}
	run.log.Debug("scheduler.job.start", zap.Int("batch_size", batchSize))
	return context.WithValue(ctx, jobRunKey{}, run), run, true
}

func (r *jobRun) addProcessed(n int) {
	if n > 0 {
		r.processed += n
	}
}

func (r *jobRun) fail(msg string, err error) {
	if err == nil {
		return
	}
	r.failures++
	r.log.Error(msg,
		zap.String("error_type", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Error(err),
	)
}

func (r *jobRun) finish(now time.Time) {
	fields := []zap.Field{
		zap.Int64("duration_ms", now.Sub(r.startedAt).Milliseconds()),
		zap.Int("processed_count", r.processed),
		zap.Int("error_count", r.failures),
	}
	switch {
	case r.failures > 0:
		r.log.Warn("scheduler.job.finish", fields...)
	case r.processed > 0:
		r.log.Info("scheduler.job.finish", fields...)
	default:
		// Idle sweeps run every interval.
		r.log.Debug("scheduler.job.finish", fields...)
	}
}
