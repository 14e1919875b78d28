package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ordercast/internal/clock"
	"github.com/smallbiznis/ordercast/internal/config"
	"github.com/smallbiznis/ordercast/internal/forecast/cache"
	forecastdomain "github.com/smallbiznis/ordercast/internal/forecast/domain"
	orderdomain "github.com/smallbiznis/ordercast/internal/order/domain"
	"github.com/smallbiznis/ordercast/internal/order/status"
	"github.com/smallbiznis/ordercast/internal/week"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	GenID  *snowflake.Node
	Repo   forecastdomain.Repository
	Orders orderdomain.Service
	Engine forecastdomain.Engine
	Tuning *config.ForecastConfigHolder
	Hot    *cache.HotCache `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	clock  clock.Clock
	genID  *snowflake.Node
	repo   forecastdomain.Repository
	orders orderdomain.Service
	engine forecastdomain.Engine
	tuning *config.ForecastConfigHolder
	hot    *cache.HotCache

	// The aggregate-forecast-persist sequence for one tenant must not run
	// concurrently with itself; a keyed mutex serializes it per tenant.
	mu       sync.Mutex
	tenantMu map[snowflake.ID]*sync.Mutex
}

func New(p Params) forecastdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("forecast.service"),
		clock:    p.Clock,
		genID:    p.GenID,
		repo:     p.Repo,
		orders:   p.Orders,
		engine:   p.Engine,
		tuning:   p.Tuning,
		hot:      p.Hot,
		tenantMu: make(map[snowflake.ID]*sync.Mutex),
	}
}

func (s *Service) lockTenant(tenantID snowflake.ID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.tenantMu[tenantID]
	if !ok {
		mu = &sync.Mutex{}
		s.tenantMu[tenantID] = mu
	}
	return mu
}

func (s *Service) Run(ctx context.Context, tenantID snowflake.ID, ref time.Time) (*forecastdomain.Snapshot, error) {
	mu := s.lockTenant(tenantID)
	mu.Lock()
	defer mu.Unlock()

	snapshot, err := s.compute(ctx, tenantID, ref)
	if err != nil {
		return nil, err
	}
	s.persist(ctx, snapshot)
	return snapshot, nil
}

func (s *Service) compute(ctx context.Context, tenantID snowflake.ID, ref time.Time) (*forecastdomain.Snapshot, error) {
	orders, err := s.orders.ListOrders(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, forecastdomain.ErrNoData
	}

	cfg := s.tuning.Get()
	classifier := status.NewClassifier(cfg.CancellationStatuses)
	buckets := aggregateWeekly(orders, classifier)
	if len(buckets) == 0 {
		return nil, forecastdomain.ErrNoData
	}

	cutoff := week.Cutoff(ref, cfg.CutoffGrace)
	usable := truncateAtCutoff(buckets, cutoff)
	if len(usable) == 0 {
		return nil, forecastdomain.ErrNoCompleteWeeks
	}
	if len(usable) < cfg.MinBuckets {
		return nil, fmt.Errorf("%w: %d complete weeks, need %d",
			forecastdomain.ErrInsufficientHistory, len(usable), cfg.MinBuckets)
	}

	result, err := s.engine.Forecast(ctx, usable, cfg.HorizonWeeks)
	if err != nil {
		if !errors.Is(err, forecastdomain.ErrEngineFailure) {
			err = fmt.Errorf("%w: %v", forecastdomain.ErrEngineFailure, err)
		}
		return nil, err
	}

	points := futurePoints(result.Future, cutoff, cfg.HorizonWeeks)
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no future periods returned", forecastdomain.ErrEngineFailure)
	}

	r2, mae, mape := accuracyMetrics(usable, result.Fitted)

	return &forecastdomain.Snapshot{
		TenantID:     tenantID,
		ForecastDate: usable[len(usable)-1].WeekEnd,
		Points:       points,
		R2:           r2,
		MAE:          mae,
		MAPE:         mape,
		RunAt:        ref,
	}, nil
}

// futurePoints keeps only periods strictly beyond the cutoff, caps them at
// the configured horizon and clips every estimate at zero: a negative order
// count is never served.
func futurePoints(future []forecastdomain.EnginePoint, cutoff time.Time, horizon int) []forecastdomain.ForecastPoint {
	points := make([]forecastdomain.ForecastPoint, 0, horizon)
	for _, p := range future {
		if !p.WeekStart.After(cutoff) {
			continue
		}
		points = append(points, forecastdomain.ForecastPoint{
			WeekStart:      p.WeekStart.Format(dateLayout),
			WeekEnd:        p.WeekStart.AddDate(0, 0, 6).Format(dateLayout),
			PredictedSales: clipZero(p.Predicted),
			LowerBound:     clipZero(p.Lower),
			UpperBound:     clipZero(p.Upper),
		})
		if len(points) == horizon {
			break
		}
	}
	return points
}

func clipZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// persist writes the ledger record and the cache row. Both are best-effort:
// a computed forecast is served even when persistence fails, and a ledger
// failure never blocks the cache write.
func (s *Service) persist(ctx context.Context, snapshot *forecastdomain.Snapshot) {
	payload, err := json.Marshal(snapshot.Points)
	if err != nil {
		s.log.Error("forecast payload marshal failed",
			zap.String("tenant_id", snapshot.TenantID.String()),
			zap.Error(err),
		)
		return
	}
	now := s.clock.Now()

	record := &forecastdomain.PerformanceRecord{
		ID:              s.genID.Generate(),
		TenantID:        snapshot.TenantID,
		RunAt:           snapshot.RunAt,
		ForecastPayload: string(payload),
		R2:              snapshot.R2,
		MAE:             snapshot.MAE,
		MAPE:            snapshot.MAPE,
		CreatedAt:       now,
	}
	if err := s.repo.UpsertPerformance(ctx, s.db, record); err != nil {
		s.log.Warn("performance ledger write failed",
			zap.String("tenant_id", snapshot.TenantID.String()),
			zap.Error(err),
		)
	}

	entry := &forecastdomain.CacheEntry{
		TenantID:        snapshot.TenantID,
		ForecastDate:    snapshot.ForecastDate,
		ForecastPayload: string(payload),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.UpsertCache(ctx, s.db, entry); err != nil {
		s.log.Warn("forecast cache write failed",
			zap.String("tenant_id", snapshot.TenantID.String()),
			zap.Error(err),
		)
		return
	}
	s.hot.Set(ctx, snapshot)
}

func (s *Service) Get(ctx context.Context, tenantID snowflake.ID) (*forecastdomain.Snapshot, error) {
	if snapshot := s.hot.Get(ctx, tenantID); snapshot != nil {
		return snapshot, nil
	}

	entry, err := s.repo.GetCache(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		snapshot, err := snapshotFromEntry(entry)
		if err == nil {
			s.hot.Set(ctx, snapshot)
			return snapshot, nil
		}
		s.log.Warn("corrupt cache row, recomputing",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
	}

	return s.Run(ctx, tenantID, s.clock.Now())
}

func snapshotFromEntry(entry *forecastdomain.CacheEntry) (*forecastdomain.Snapshot, error) {
	var points []forecastdomain.ForecastPoint
	if err := json.Unmarshal([]byte(entry.ForecastPayload), &points); err != nil {
		return nil, err
	}
	return &forecastdomain.Snapshot{
		TenantID:     entry.TenantID,
		ForecastDate: entry.ForecastDate,
		Points:       points,
		RunAt:        entry.UpdatedAt,
	}, nil
}

func (s *Service) Chart(ctx context.Context, tenantID snowflake.ID) (*forecastdomain.Chart, error) {
	record, err := s.repo.LatestPerformance(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, forecastdomain.ErrForecastNotFound
	}

	var points []forecastdomain.ForecastPoint
	if err := json.Unmarshal([]byte(record.ForecastPayload), &points); err != nil {
		return nil, fmt.Errorf("corrupt ledger payload: %w", err)
	}

	chart := &forecastdomain.Chart{
		Labels:    make([]string, 0, len(points)),
		Predicted: make([]float64, 0, len(points)),
		Lower:     make([]float64, 0, len(points)),
		Upper:     make([]float64, 0, len(points)),
	}
	for _, p := range points {
		chart.Labels = append(chart.Labels, p.WeekStart)
		chart.Predicted = append(chart.Predicted, p.PredictedSales)
		chart.Lower = append(chart.Lower, p.LowerBound)
		chart.Upper = append(chart.Upper, p.UpperBound)
	}
	return chart, nil
}
