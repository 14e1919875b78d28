package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ForecastConfig tunes the forecasting pipeline. It is loaded from
// forecast.yml and can be changed without redeploying.
type ForecastConfig struct {
	// HorizonWeeks is the number of future weekly periods kept from each run.
	HorizonWeeks int `mapstructure:"horizonWeeks"`
	// MinBuckets is the minimum number of complete weekly buckets required
	// before a forecast is attempted.
	MinBuckets int `mapstructure:"minBuckets"`
	// ChangeThreshold is the number of status changes inside the last
	// completed week that triggers a recompute.
	ChangeThreshold int `mapstructure:"changeThreshold"`
	// CutoffGrace is how far past midnight a week-ending day must be before
	// that week counts as closed. Ingestion of last-minute events owns the
	// first moments of the day.
	CutoffGrace time.Duration `mapstructure:"cutoffGrace"`
	// CancellationStatuses lists status labels treated as cancellations and
	// excluded from aggregation.
	CancellationStatuses []string `mapstructure:"cancellationStatuses"`
}

func DefaultForecastConfig() ForecastConfig {
	return ForecastConfig{
		HorizonWeeks:    4,
		MinBuckets:      2,
		ChangeThreshold: 5,
		CutoffGrace:     time.Hour,
		CancellationStatuses: []string{
			"Отказана",
			"Терминирана",
			"Cancelled",
			"Canceled",
			"cancelled",
			"canceled",
		},
	}
}

// ForecastConfigHolder exposes the current ForecastConfig and hot-reloads it
// when forecast.yml changes on disk.
type ForecastConfigHolder struct {
	current atomic.Value // holds ForecastConfig
}

func NewForecastConfigHolder() (*ForecastConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("forecast")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/ordercast/config")
	v.AddConfigPath("/etc/ordercast")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ORDERCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultForecastConfig()
	v.SetDefault("forecast.horizonWeeks", defaults.HorizonWeeks)
	v.SetDefault("forecast.minBuckets", defaults.MinBuckets)
	v.SetDefault("forecast.changeThreshold", defaults.ChangeThreshold)
	v.SetDefault("forecast.cutoffGrace", defaults.CutoffGrace)
	v.SetDefault("forecast.cancellationStatuses", defaults.CancellationStatuses)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg ForecastConfig
	if err := v.UnmarshalKey("forecast", &cfg); err != nil {
		return nil, err
	}
	if err := validateForecastConfig(cfg); err != nil {
		return nil, err
	}

	holder := &ForecastConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ForecastConfig
		if err := v.UnmarshalKey("forecast", &updated); err != nil {
			log.Printf("[forecast-config] reload failed: %v", err)
			return
		}
		if err := validateForecastConfig(updated); err != nil {
			log.Printf("[forecast-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[forecast-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *ForecastConfigHolder) Get() ForecastConfig {
	return h.current.Load().(ForecastConfig)
}

// NewStaticForecastConfigHolder returns a holder pinned to cfg. Used by tests
// and the user management CLI.
func NewStaticForecastConfigHolder(cfg ForecastConfig) *ForecastConfigHolder {
	holder := &ForecastConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func validateForecastConfig(cfg ForecastConfig) error {
	if cfg.HorizonWeeks <= 0 {
		return errors.New("forecast.horizonWeeks must be positive")
	}
	if cfg.MinBuckets < 2 {
		return errors.New("forecast.minBuckets must be at least 2")
	}
	if cfg.ChangeThreshold <= 0 {
		return errors.New("forecast.changeThreshold must be positive")
	}
	if cfg.CutoffGrace < 0 {
		return errors.New("forecast.cutoffGrace cannot be negative")
	}
	if len(cfg.CancellationStatuses) == 0 {
		return errors.New("forecast.cancellationStatuses cannot be empty")
	}
	return nil
}
