package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	forecastdomain "github.com/smallbiznis/ordercast/internal/forecast/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() forecastdomain.Repository {
	return &repo{}
}

// UpsertCache keeps exactly one cache row per tenant: every recompute
// overwrites the previous snapshot in place.
func (r *repo) UpsertCache(ctx context.Context, db *gorm.DB, entry *forecastdomain.CacheEntry) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"forecast_date", "forecast_payload", "updated_at",
			}),
		}).
		Create(entry).Error
}

func (r *repo) GetCache(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*forecastdomain.CacheEntry, error) {
	var entry forecastdomain.CacheEntry
	err := db.WithContext(ctx).Raw(
		`SELECT tenant_id, forecast_date, forecast_payload, created_at, updated_at
		 FROM forecast_cache WHERE tenant_id = ?`,
		tenantID,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.TenantID == 0 {
		return nil, nil
	}
	return &entry, nil
}

// UpsertPerformance appends to the quality ledger, keyed by
// (tenant_id, run_at) so a re-run at the same instant overwrites rather
// than duplicates.
func (r *repo) UpsertPerformance(ctx context.Context, db *gorm.DB, record *forecastdomain.PerformanceRecord) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "run_at"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"forecast_payload", "r2", "mae", "mape",
			}),
		}).
		Create(record).Error
}

func (r *repo) LatestPerformance(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*forecastdomain.PerformanceRecord, error) {
	var record forecastdomain.PerformanceRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, run_at, forecast_payload, r2, mae, mape, created_at
		 FROM forecast_performance
		 WHERE tenant_id = ?
		 ORDER BY run_at DESC
		 LIMIT 1`,
		tenantID,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}
