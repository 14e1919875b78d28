package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Order is a single sales order. Orders are created once via idempotent
// insert; only the status fields mutate afterwards, and only through the
// closed-week guard in the service.
type Order struct {
	OrderID         int64        `json:"order_id" gorm:"column:order_id;primaryKey"`
	TenantID        snowflake.ID `json:"tenant_id" gorm:"column:tenant_id;not null;index:ix_orders_tenant_date"`
	Status          string       `json:"order_status" gorm:"column:status;type:varchar(255);not null"`
	OrderDate       time.Time    `json:"order_date" gorm:"column:order_date;type:date;not null;index:ix_orders_tenant_date"`
	PreviousStatus  *string      `json:"previous_status,omitempty" gorm:"column:previous_status;type:varchar(255)"`
	StatusChangedAt *time.Time   `json:"status_changed_at,omitempty" gorm:"column:status_changed_at"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// OrderInput is one order as submitted by a tenant. OrderDate stays raw so
// validation can report the exact offending row.
type OrderInput struct {
	ID        int64  `json:"id"`
	OrderDate string `json:"order_date"`
	Status    string `json:"order_status"`
}

// IngestResult reports how an insert batch landed. Duplicate order IDs are
// silently skipped, never errors.
type IngestResult struct {
	Inserted int64 `json:"inserted"`
	Skipped  int64 `json:"skipped"`
}

// UpdateOutcome is the result of a status update attempt.
type UpdateOutcome string

const (
	// OutcomeUpdated means the new status was applied and the previous one
	// recorded.
	OutcomeUpdated UpdateOutcome = "updated"
	// OutcomeUnchanged means the order already carried the requested status.
	OutcomeUnchanged UpdateOutcome = "unchanged"
	// OutcomeIncompleteWeek means the order's week has not closed yet. This
	// is a soft rejection: in-flight orders are expected to change status
	// several times before their week closes, so callers get a
	// success-shaped response rather than an error.
	OutcomeIncompleteWeek UpdateOutcome = "incomplete_week"
)

type Repository interface {
	InsertIgnoreDuplicates(ctx context.Context, db *gorm.DB, orders []Order) (int64, error)
	FindByID(ctx context.Context, db *gorm.DB, orderID int64) (*Order, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, order *Order, newStatus string, changedAt time.Time) error
	ListByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]Order, error)
	CountStatusChanges(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, from, to time.Time) (int64, error)
}

type Service interface {
	// Ingest validates and stores a batch of orders for the tenant.
	// Duplicate order IDs are skipped silently.
	Ingest(ctx context.Context, tenantID snowflake.ID, orders []OrderInput) (*IngestResult, error)
	// UpdateStatus applies a status change subject to the closed-week guard.
	UpdateStatus(ctx context.Context, tenantID snowflake.ID, orderID int64, newStatus string) (UpdateOutcome, error)
	// ListOrders returns every order for the tenant, oldest first.
	ListOrders(ctx context.Context, tenantID snowflake.ID) ([]Order, error)
	// CountRecentChanges counts status mutations recorded during the most
	// recently completed week, the change tracker's recompute signal.
	CountRecentChanges(ctx context.Context, tenantID snowflake.ID) (int64, error)
}

var (
	ErrEmptyBatch       = errors.New("empty_order_batch")
	ErrMissingOrderID   = errors.New("missing_order_id")
	ErrMissingOrderDate = errors.New("missing_order_date")
	ErrInvalidOrderDate = errors.New("invalid_order_date")
	ErrFutureOrderDate  = errors.New("future_order_date")
	ErrMissingStatus    = errors.New("missing_order_status")
	ErrOrderNotFound    = errors.New("order_not_found")
	ErrOrderForbidden   = errors.New("order_forbidden")
)

// FieldError pins a validation failure to the offending row and field so
// callers can fix their payload.
type FieldError struct {
	Index int
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error { return e.Err }
