package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/ordercast/internal/order/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() orderdomain.Repository {
	return &repo{}
}

// InsertIgnoreDuplicates inserts the batch and silently skips rows whose
// order_id already exists. Returns the number of rows actually written; the
// conflict clause keeps the insert idempotent across dialects.
func (r *repo) InsertIgnoreDuplicates(ctx context.Context, db *gorm.DB, orders []orderdomain.Order) (int64, error) {
	if len(orders) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoNothing: true,
		}).
		Create(&orders)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orderID int64) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT order_id, tenant_id, status, order_date, previous_status, status_changed_at, created_at
		 FROM orders WHERE order_id = ?`,
		orderID,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.OrderID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, order *orderdomain.Order, newStatus string, changedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, previous_status = ?, status_changed_at = ?
		 WHERE order_id = ?`,
		newStatus,
		order.Status,
		changedAt,
		order.OrderID,
	).Error
}

func (r *repo) ListByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]orderdomain.Order, error) {
	var orders []orderdomain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT order_id, tenant_id, status, order_date, previous_status, status_changed_at, created_at
		 FROM orders WHERE tenant_id = ? ORDER BY order_date ASC, order_id ASC`,
		tenantID,
	).Scan(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// CountStatusChanges counts mutations whose status_changed_at falls in
// [from, to]. Bounds are inclusive; callers pass a whole-day range.
func (r *repo) CountStatusChanges(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, from, to time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM orders
		 WHERE tenant_id = ?
		   AND status_changed_at IS NOT NULL
		   AND status_changed_at >= ?
		   AND status_changed_at < ?`,
		tenantID,
		from,
		to.AddDate(0, 0, 1),
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
