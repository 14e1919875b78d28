package scheduler

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls scheduler cadence and per-job limits.
type Config struct {
	// RunInterval is how often the run loop wakes up to check for due jobs.
	RunInterval time.Duration
	// ChangeInterval is the cadence of the change-threshold sweep.
	ChangeInterval time.Duration
	// WeeklyGrace delays the weekly refresh past the Monday-midnight
	// boundary so late Sunday orders are ingested first.
	WeeklyGrace time.Duration
	// JobTimeout bounds one full job sweep across all tenants.
	JobTimeout time.Duration
	// LockTTL bounds the per-tenant redis run lock.
	LockTTL time.Duration
	// EnabledJobs restricts which jobs run; empty means all.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:    time.Minute,
		ChangeInterval: 6 * time.Hour,
		WeeklyGrace:    time.Hour,
		JobTimeout:     5 * time.Minute,
		LockTTL:        2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.ChangeInterval <= 0 {
		c.ChangeInterval = defaults.ChangeInterval
	}
	if c.WeeklyGrace <= 0 {
		c.WeeklyGrace = defaults.WeeklyGrace
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}

// ProvideConfig reads scheduler overrides from the environment.
func ProvideConfig() Config {
	cfg := DefaultConfig()
	cfg.RunInterval = envDuration("SCHEDULER_RUN_INTERVAL", cfg.RunInterval)
	cfg.ChangeInterval = envDuration("SCHEDULER_CHANGE_INTERVAL", cfg.ChangeInterval)
	cfg.WeeklyGrace = envDuration("SCHEDULER_WEEKLY_GRACE", cfg.WeeklyGrace)
	cfg.JobTimeout = envDuration("SCHEDULER_JOB_TIMEOUT", cfg.JobTimeout)
	cfg.LockTTL = envDuration("SCHEDULER_LOCK_TTL", cfg.LockTTL)
	if jobs := strings.TrimSpace(os.Getenv("SCHEDULER_ENABLED_JOBS")); jobs != "" {
		for _, job := range strings.Split(jobs, ",") {
			if job = strings.TrimSpace(job); job != "" {
				cfg.EnabledJobs = append(cfg.EnabledJobs, job)
			}
		}
	}
	return cfg
}

func envDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return def
}
