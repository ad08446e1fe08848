package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"reading-leveler/internal/analytics"
	"reading-leveler/internal/logger"
	"reading-leveler/internal/storage"
	"reading-leveler/internal/usage"
)

// Scheduler runs periodic maintenance jobs.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddJob registers f under a standard five-field cron spec.
func (s *Scheduler) AddJob(name, spec string, f func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := f(s.ctx); err != nil {
			logger.LogEvent(logrus.ErrorLevel, "scheduled job failed", logrus.Fields{"job": name, "error": err.Error()})
			return
		}
		logger.LogEvent(logrus.DebugLevel, "scheduled job finished", logrus.Fields{"job": name, "duration_ms": time.Since(start).Milliseconds()})
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// PruneJob deletes usage counters older than keep.
func PruneJob(store storage.Store, keep usage.Retention, now func() time.Time) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		removed, err := usage.Prune(ctx, store, now(), keep)
		if err != nil {
			return err
		}
		logger.LogEvent(logrus.InfoLevel, "usage counters pruned", logrus.Fields{"removed": removed})
		return nil
	}
}

// ReportJob logs yesterday's usage totals across all clients.
func ReportJob(store storage.Store, now func() time.Time) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		stats, err := analytics.AnalyzeUsage(ctx, store, now().AddDate(0, 0, -1))
		if err != nil {
			return err
		}
		logger.LogEvent(logrus.InfoLevel, "daily usage report", logrus.Fields{
			"date":           stats.Date,
			"total_day":      stats.TotalDay,
			"total_month":    stats.TotalMonth,
			"active_clients": stats.ActiveClients,
		})
		return nil
	}
}

// Evicter drops cached state that has not been used for idle.
type Evicter interface {
	Evict(idle time.Duration) int
}

// EvictJob releases client workspaces idle for longer than idle.
func EvictJob(e Evicter, idle time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if n := e.Evict(idle); n > 0 {
			logger.LogEvent(logrus.DebugLevel, "idle workspaces evicted", logrus.Fields{"removed": n})
		}
		return nil
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.LogEvent(logrus.InfoLevel, "scheduler started", logrus.Fields{"jobs": len(s.cron.Entries())})
}

// Stop waits for running jobs and cancels their context.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	logger.Logger.Info("scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
