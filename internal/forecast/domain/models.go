package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// WeeklyBucket is one aggregated observation: the number of non-cancelled
// orders in a Monday-to-Sunday week. Derived, never persisted.
type WeeklyBucket struct {
	WeekStart  time.Time
	WeekEnd    time.Time
	OrderCount int64
}

// ForecastPoint is one row of the forecast payload served to tenants and
// stored in the cache and the performance ledger.
type ForecastPoint struct {
	WeekStart      string  `json:"week_start"`
	WeekEnd        string  `json:"week_end"`
	PredictedSales float64 `json:"predicted_sales"`
	LowerBound     float64 `json:"lower_bound"`
	UpperBound     float64 `json:"upper_bound"`
}

// EnginePoint is a single prediction from the forecasting engine, either an
// in-sample fitted value or a future period.
type EnginePoint struct {
	WeekStart time.Time
	Predicted float64
	Lower     float64
	Upper     float64
}

// EngineResult carries the engine's full output. Fitted is aligned to the
// submitted history and feeds accuracy metrics; Future holds the projected
// periods.
type EngineResult struct {
	Fitted []EnginePoint
	Future []EnginePoint
}

// Engine is the external forecasting collaborator: a stateless function
// from a historical series to fitted values plus future periods.
type Engine interface {
	Forecast(ctx context.Context, history []WeeklyBucket, periods int) (*EngineResult, error)
}

// CacheEntry is the single current forecast snapshot per tenant. Each
// successful recompute overwrites it in place.
type CacheEntry struct {
	TenantID        snowflake.ID `json:"tenant_id" gorm:"column:tenant_id;primaryKey"`
	ForecastDate    time.Time    `json:"forecast_date" gorm:"column:forecast_date;type:date;not null"`
	ForecastPayload string       `json:"forecast_payload" gorm:"column:forecast_payload;not null"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CacheEntry) TableName() string { return "forecast_cache" }

// PerformanceRecord is one row of the append-only forecast quality ledger,
// keyed by (tenant_id, run_at). Metrics are nullable: a run whose metric
// computation fails is still recorded.
type PerformanceRecord struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID        snowflake.ID `json:"tenant_id" gorm:"column:tenant_id;not null;uniqueIndex:ux_performance_tenant_run"`
	RunAt           time.Time    `json:"run_at" gorm:"column:run_at;not null;uniqueIndex:ux_performance_tenant_run"`
	ForecastPayload string       `json:"forecast_payload" gorm:"column:forecast_payload;not null"`
	R2              *float64     `json:"r2" gorm:"column:r2"`
	MAE             *float64     `json:"mae" gorm:"column:mae"`
	MAPE            *float64     `json:"mape" gorm:"column:mape"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PerformanceRecord) TableName() string { return "forecast_performance" }

// Snapshot is the result of a forecast run as returned to callers.
type Snapshot struct {
	TenantID     snowflake.ID    `json:"tenant_id"`
	ForecastDate time.Time       `json:"forecast_date"`
	Points       []ForecastPoint `json:"forecast"`
	R2           *float64        `json:"r2"`
	MAE          *float64        `json:"mae"`
	MAPE         *float64        `json:"mape"`
	RunAt        time.Time       `json:"run_at"`
}

// Chart is the latest stored forecast reshaped for plotting: week labels
// plus one series per bound.
type Chart struct {
	Labels    []string  `json:"labels"`
	Predicted []float64 `json:"predicted"`
	Lower     []float64 `json:"lower_bound"`
	Upper     []float64 `json:"upper_bound"`
}

type Repository interface {
	UpsertCache(ctx context.Context, db *gorm.DB, entry *CacheEntry) error
	GetCache(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*CacheEntry, error)
	UpsertPerformance(ctx context.Context, db *gorm.DB, record *PerformanceRecord) error
	LatestPerformance(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*PerformanceRecord, error)
}

type Service interface {
	// Run recomputes the tenant's forecast as of ref and persists the
	// snapshot. Persistence failures are logged, not returned: a computed
	// forecast is always served.
	Run(ctx context.Context, tenantID snowflake.ID, ref time.Time) (*Snapshot, error)
	// Get returns the cached forecast, computing it first on a miss. A
	// cache hit is returned as-is; staleness is the trigger subsystem's
	// concern, not the read path's.
	Get(ctx context.Context, tenantID snowflake.ID) (*Snapshot, error)
	// Chart reshapes the latest performance record into a plotting series.
	Chart(ctx context.Context, tenantID snowflake.ID) (*Chart, error)
}

var (
	ErrNoData              = errors.New("no_order_data")
	ErrNoCompleteWeeks     = errors.New("no_complete_weeks")
	ErrInsufficientHistory = errors.New("insufficient_history")
	ErrEngineFailure       = errors.New("forecast_engine_failure")
	ErrForecastNotFound    = errors.New("forecast_not_found")
)
