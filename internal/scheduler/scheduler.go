// Package scheduler drives forecast recomputes in the background: a
// change-threshold sweep every few hours and an unconditional refresh once
// per week after the weekly boundary closes.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/ordercast/internal/auth/domain"
	"github.com/smallbiznis/ordercast/internal/clock"
	"github.com/smallbiznis/ordercast/internal/config"
	forecastdomain "github.com/smallbiznis/ordercast/internal/forecast/domain"
	"github.com/smallbiznis/ordercast/internal/lock"
	obsmetrics "github.com/smallbiznis/ordercast/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/ordercast/internal/order/domain"
	"github.com/smallbiznis/ordercast/internal/week"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	jobChangeThreshold = "change_threshold"
	jobWeeklyRefresh   = "weekly_refresh"
)

var ErrInvalidConfig = errors.New("scheduler dependencies are incomplete")

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	OrderSvc    orderdomain.Service
	ForecastSvc forecastdomain.Service
	AuthSvc     authdomain.Service
	Tuning      *config.ForecastConfigHolder
	Locker      *lock.Locker `optional:"true"`
	Config      Config       `optional:"true"`
}

type Scheduler struct {
	log         *zap.Logger
	cfg         Config
	clock       clock.Clock
	orderSvc    orderdomain.Service
	forecastSvc forecastdomain.Service
	authSvc     authdomain.Service
	tuning      *config.ForecastConfigHolder
	locker      *lock.Locker

	changeRunning atomic.Bool
	weeklyRunning atomic.Bool
	nextChangeRun time.Time
	lastWeeklyFor time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.OrderSvc == nil || p.ForecastSvc == nil || p.AuthSvc == nil || p.Tuning == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         p.Config.withDefaults(),
		clock:       p.Clock,
		orderSvc:    p.OrderSvc,
		forecastSvc: p.ForecastSvc,
		authSvc:     p.AuthSvc,
		tuning:      p.Tuning,
		locker:      p.Locker,
	}, nil
}

// RunOnce executes every due, enabled job. Cadence bookkeeping lives here so
// a single ticking loop can host jobs with different intervals.
func (s *Scheduler) RunOnce(parent context.Context) error {
	now := s.clock.Now()
	var err error

	if s.isJobEnabled(jobChangeThreshold) && !now.Before(s.nextChangeRun) {
		err = errors.Join(err, s.runJob(parent, jobChangeThreshold, &s.changeRunning, s.ChangeThresholdJob))
		s.nextChangeRun = now.Add(s.cfg.ChangeInterval)
	}

	if s.isJobEnabled(jobWeeklyRefresh) && s.weeklyDue(now) {
		err = errors.Join(err, s.runJob(parent, jobWeeklyRefresh, &s.weeklyRunning, s.WeeklyRefreshJob))
		s.lastWeeklyFor = week.Start(now)
	}

	return err
}

// weeklyDue reports whether the weekly refresh should fire: once per week,
// after WeeklyGrace past the Monday-midnight boundary.
func (s *Scheduler) weeklyDue(now time.Time) bool {
	weekStart := week.Start(now)
	if !s.lastWeeklyFor.Before(weekStart) {
		return false
	}
	return now.Sub(weekStart) >= s.cfg.WeeklyGrace
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
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

func (s *Scheduler) runJob(parent context.Context, name string, running *atomic.Bool, fn func(ctx context.Context) error) error {
	schedMetrics := obsmetrics.Scheduler()
	if !running.CompareAndSwap(false, true) {
		// Previous run still in flight: skip this tick, never queue.
		schedMetrics.IncJobSkip(name)
		s.log.Warn("job still running, tick skipped", zap.String("job", name))
		return nil
	}
	defer running.Store(false)

	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	schedMetrics.IncJobRun(name)
	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}

	schedMetrics.IncJobErrorReason(name, classifyReason(err))
	return fmt.Errorf("%s: %w", name, err)
}

// ChangeThresholdJob recomputes forecasts for tenants whose last completed
// week accumulated enough status changes to cross the configured threshold.
func (s *Scheduler) ChangeThresholdJob(ctx context.Context) error {
	threshold := int64(s.tuning.Get().ChangeThreshold)
	return s.forEachTenant(ctx, jobChangeThreshold, func(ctx context.Context, tenantID snowflake.ID) (bool, error) {
		count, err := s.orderSvc.CountRecentChanges(ctx, tenantID)
		if err != nil {
			return false, err
		}
		if count < threshold {
			return false, nil
		}
		s.log.Info("change threshold crossed",
			zap.String("tenant_id", tenantID.String()),
			zap.Int64("changes", count),
			zap.Int64("threshold", threshold),
		)
		return true, nil
	})
}

// WeeklyRefreshJob unconditionally recomputes every tenant's forecast once
// the new week has opened. Re-running is safe: a recompute just re-upserts.
func (s *Scheduler) WeeklyRefreshJob(ctx context.Context) error {
	return s.forEachTenant(ctx, jobWeeklyRefresh, func(context.Context, snowflake.ID) (bool, error) {
		return true, nil
	})
}

// forEachTenant sweeps all tenants, refreshing those the filter selects.
// Failures are caught per tenant so one bad tenant never stalls the sweep.
func (s *Scheduler) forEachTenant(ctx context.Context, job string, filter func(context.Context, snowflake.ID) (bool, error)) error {
	tenants, err := s.authSvc.ListTenantIDs(ctx)
	if err != nil {
		return err
	}

	schedMetrics := obsmetrics.Scheduler()
	var jobErr error
	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		due, err := filter(ctx, tenantID)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			schedMetrics.IncTenantFailure(job)
			s.log.Warn("tenant filter failed",
				zap.String("job", job),
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
			continue
		}
		if !due {
			continue
		}

		if err := s.refreshTenant(ctx, job, tenantID); err != nil {
			jobErr = errors.Join(jobErr, err)
			schedMetrics.IncTenantFailure(job)
			s.log.Warn("tenant refresh failed",
				zap.String("job", job),
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
			continue
		}
	}
	return jobErr
}

func (s *Scheduler) refreshTenant(ctx context.Context, job string, tenantID snowflake.ID) error {
	// The redis lock dedupes the sweep across replicas; a held lock means
	// another replica is already recomputing this tenant.
	key := "ordercast:scheduler:refresh:" + tenantID.String()
	token, acquired, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		s.log.Warn("run lock unavailable, proceeding without it",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
	} else if !acquired {
		s.log.Debug("tenant refresh already claimed elsewhere",
			zap.String("tenant_id", tenantID.String()),
		)
		return nil
	} else {
		defer func() { _ = s.locker.Release(ctx, key, token) }()
	}

	_, err = s.forecastSvc.Run(ctx, tenantID, s.clock.Now())
	if err != nil {
		if isExpectedBusinessFailure(err) {
			s.log.Debug("tenant not forecastable yet",
				zap.String("job", job),
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
			return nil
		}
		return err
	}

	obsmetrics.Scheduler().IncTenantRefresh(job)
	return nil
}

// Sparse tenants legitimately lack enough history; that is not a scheduler
// failure.
func isExpectedBusinessFailure(err error) bool {
	return errors.Is(err, forecastdomain.ErrNoData) ||
		errors.Is(err, forecastdomain.ErrNoCompleteWeeks) ||
		errors.Is(err, forecastdomain.ErrInsufficientHistory)
}

func classifyReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return obsmetrics.SchedulerJobReasonDeadlineExceeded
	case errors.Is(err, forecastdomain.ErrEngineFailure):
		return obsmetrics.SchedulerJobReasonEngine
	default:
		return obsmetrics.SchedulerJobReasonUnknown
	}
}
