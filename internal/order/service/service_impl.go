package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ordercast/internal/clock"
	orderdomain "github.com/smallbiznis/ordercast/internal/order/domain"
	"github.com/smallbiznis/ordercast/internal/week"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Accepted order_date layouts. Upstream systems export dates in several
// formats, so parsing tries each in order.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  orderdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  orderdomain.Repository
}

func New(p Params) orderdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("order.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Ingest(ctx context.Context, tenantID snowflake.ID, inputs []orderdomain.OrderInput) (*orderdomain.IngestResult, error) {
	if len(inputs) == 0 {
		return nil, orderdomain.ErrEmptyBatch
	}

	now := s.clock.Now()
	orders := make([]orderdomain.Order, 0, len(inputs))
	for i, in := range inputs {
		if in.ID == 0 {
			return nil, &orderdomain.FieldError{Index: i, Field: "id", Err: orderdomain.ErrMissingOrderID}
		}
		if strings.TrimSpace(in.Status) == "" {
			return nil, &orderdomain.FieldError{Index: i, Field: "order_status", Err: orderdomain.ErrMissingStatus}
		}
		orderDate, err := parseOrderDate(in.OrderDate)
		if err != nil {
			return nil, &orderdomain.FieldError{Index: i, Field: "order_date", Err: err}
		}
		if orderDate.After(now) {
			return nil, &orderdomain.FieldError{Index: i, Field: "order_date", Err: orderdomain.ErrFutureOrderDate}
		}

		orders = append(orders, orderdomain.Order{
			OrderID:   in.ID,
			TenantID:  tenantID,
			Status:    in.Status,
			OrderDate: week.Truncate(orderDate),
			CreatedAt: now,
		})
	}

	inserted, err := s.repo.InsertIgnoreDuplicates(ctx, s.db, orders)
	if err != nil {
		return nil, err
	}

	skipped := int64(len(orders)) - inserted
	if skipped > 0 {
		s.log.Info("duplicate orders ignored",
			zap.String("tenant_id", tenantID.String()),
			zap.Int64("skipped", skipped),
		)
	}
	return &orderdomain.IngestResult{Inserted: inserted, Skipped: skipped}, nil
}

func (s *Service) UpdateStatus(ctx context.Context, tenantID snowflake.ID, orderID int64, newStatus string) (orderdomain.UpdateOutcome, error) {
	newStatus = strings.TrimSpace(newStatus)
	if newStatus == "" {
		return "", &orderdomain.FieldError{Field: "order_status", Err: orderdomain.ErrMissingStatus}
	}

	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return "", err
	}
	if order == nil {
		return "", orderdomain.ErrOrderNotFound
	}
	if order.TenantID != tenantID {
		// Do not leak existence of other tenants' orders beyond the 403.
		return "", orderdomain.ErrOrderForbidden
	}
	if order.Status == newStatus {
		return orderdomain.OutcomeUnchanged, nil
	}

	now := s.clock.Now()
	if !week.Closed(order.OrderDate, now) {
		// The order's week is still accumulating. Soft rejection: callers
		// retry after the week closes.
		return orderdomain.OutcomeIncompleteWeek, nil
	}

	if err := s.repo.UpdateStatus(ctx, s.db, order, newStatus, now); err != nil {
		return "", err
	}

	s.log.Info("order status updated",
		zap.String("tenant_id", tenantID.String()),
		zap.Int64("order_id", orderID),
		zap.String("from", order.Status),
		zap.String("to", newStatus),
	)
	return orderdomain.OutcomeUpdated, nil
}

func (s *Service) ListOrders(ctx context.Context, tenantID snowflake.ID) ([]orderdomain.Order, error) {
	return s.repo.ListByTenant(ctx, s.db, tenantID)
}

func (s *Service) CountRecentChanges(ctx context.Context, tenantID snowflake.ID) (int64, error) {
	start, end := week.LastCompleted(s.clock.Now())
	return s.repo.CountStatusChanges(ctx, s.db, tenantID, start, end)
}

func parseOrderDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, orderdomain.ErrMissingOrderDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, orderdomain.ErrInvalidOrderDate
}
