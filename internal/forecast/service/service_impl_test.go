package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/ordercast/internal/clock"
	"github.com/smallbiznis/ordercast/internal/config"
	forecastdomain "github.com/smallbiznis/ordercast/internal/forecast/domain"
	forecastrepo "github.com/smallbiznis/ordercast/internal/forecast/repository"
	orderdomain "github.com/smallbiznis/ordercast/internal/order/domain"
	orderrepo "github.com/smallbiznis/ordercast/internal/order/repository"
	ordersvc "github.com/smallbiznis/ordercast/internal/order/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeEngine answers with a perfect in-sample fit and a ramp of future
// periods continuing from the last observed week.
type fakeEngine struct {
	calls int
	fail  bool
}

func (e *fakeEngine) Forecast(_ context.Context, history []forecastdomain.WeeklyBucket, periods int) (*forecastdomain.EngineResult, error) {
	e.calls++
	if e.fail {
		return nil, fmt.Errorf("%w: engine down", forecastdomain.ErrEngineFailure)
	}

	result := &forecastdomain.EngineResult{}
	for _, bucket := range history {
		result.Fitted = append(result.Fitted, forecastdomain.EnginePoint{
			WeekStart: bucket.WeekStart,
			Predicted: float64(bucket.OrderCount),
			Lower:     float64(bucket.OrderCount) - 10,
			Upper:     float64(bucket.OrderCount) + 10,
		})
	}
	last := history[len(history)-1]
	for i := 1; i <= periods; i++ {
		predicted := float64(last.OrderCount) + float64(i)
		result.Future = append(result.Future, forecastdomain.EnginePoint{
			WeekStart: last.WeekStart.AddDate(0, 0, 7*i),
			Predicted: predicted,
			Lower:     predicted - 200, // clipped to zero downstream
			Upper:     predicted + 20,
		})
	}
	return result, nil
}

type fixture struct {
	svc      forecastdomain.Service
	orders   orderdomain.Service
	repo     forecastdomain.Repository
	db       *gorm.DB
	engine   *fakeEngine
	fc       *clock.FakeClock
	tenantID snowflake.ID
}

// Wednesday 2026-03-04 12:00 UTC; cutoff is Sunday 2026-03-01.
var testNow = time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&orderdomain.Order{},
		&forecastdomain.CacheEntry{},
		&forecastdomain.PerformanceRecord{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fc := clock.NewFakeClock(testNow)
	log := zap.NewNop()

	orders := ordersvc.New(ordersvc.Params{
		DB:    db,
		Log:   log,
		Clock: fc,
		Repo:  orderrepo.Provide(),
	})

	eng := &fakeEngine{}
	repo := forecastrepo.Provide()
	svc := New(Params{
		DB:     db,
		Log:    log,
		Clock:  fc,
		GenID:  node,
		Repo:   repo,
		Orders: orders,
		Engine: eng,
		Tuning: config.NewStaticForecastConfigHolder(config.DefaultForecastConfig()),
	})

	return &fixture{
		svc:      svc,
		orders:   orders,
		repo:     repo,
		db:       db,
		engine:   eng,
		fc:       fc,
		tenantID: node.Generate(),
	}
}

// seedTwoWeeks inserts 8 orders in the week of Feb 16-22 and 9 in the week
// of Feb 23 - Mar 1, both fully closed at testNow.
func seedTwoWeeks(t *testing.T, f *fixture) {
	t.Helper()
	var inputs []orderdomain.OrderInput
	id := int64(1)
	for i := 0; i < 8; i++ {
		inputs = append(inputs, orderdomain.OrderInput{
			ID: id, OrderDate: "2026-02-" + fmt.Sprintf("%02d", 16+(i%7)), Status: "Изпратена",
		})
		id++
	}
	for i := 0; i < 9; i++ {
		date := time.Date(2026, time.February, 23+(i%7), 0, 0, 0, 0, time.UTC).Format("2006-01-02")
		inputs = append(inputs, orderdomain.OrderInput{ID: id, OrderDate: date, Status: "Delivered"})
		id++
	}
	_, err := f.orders.Ingest(context.Background(), f.tenantID, inputs)
	require.NoError(t, err)
}

func TestRun_TwoCompleteWeeks(t *testing.T) {
	f := newFixture(t)
	seedTwoWeeks(t, f)
	ctx := context.Background()

	snapshot, err := f.svc.Run(ctx, f.tenantID, testNow)
	require.NoError(t, err)

	// forecast_date is the end of the last complete week.
	assert.Equal(t, "2026-03-01", snapshot.ForecastDate.Format("2006-01-02"))
	require.Len(t, snapshot.Points, 4)
	for _, p := range snapshot.Points {
		assert.GreaterOrEqual(t, p.PredictedSales, 0.0)
		assert.GreaterOrEqual(t, p.LowerBound, 0.0, "bounds are clipped at zero")
		assert.GreaterOrEqual(t, p.UpperBound, 0.0)
	}
	assert.Equal(t, "2026-03-02", snapshot.Points[0].WeekStart, "first future week starts after cutoff")
	assert.Equal(t, "2026-03-08", snapshot.Points[0].WeekEnd)

	// Perfect in-sample fit from the fake engine.
	require.NotNil(t, snapshot.MAE)
	assert.InDelta(t, 0.0, *snapshot.MAE, 1e-9)
	require.NotNil(t, snapshot.R2)
	assert.InDelta(t, 1.0, *snapshot.R2, 1e-9)

	entry, err := f.repo.GetCache(ctx, f.db, f.tenantID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "2026-03-01", entry.ForecastDate.UTC().Format("2006-01-02"))

	record, err := f.repo.LatestPerformance(ctx, f.db, f.tenantID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.NotNil(t, record.MAE)
}

func TestRun_NoOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Run(ctx, f.tenantID, testNow)
	assert.ErrorIs(t, err, forecastdomain.ErrNoData)

	// No cache row is created for a failed run.
	entry, err := f.repo.GetCache(ctx, f.db, f.tenantID)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestRun_OnlyOpenWeek(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Orders only in the current, still-open week.
	_, err := f.orders.Ingest(ctx, f.tenantID, []orderdomain.OrderInput{
		{ID: 1, OrderDate: "2026-03-02", Status: "Shipped"},
		{ID: 2, OrderDate: "2026-03-03", Status: "Shipped"},
	})
	require.NoError(t, err)

	_, err = f.svc.Run(ctx, f.tenantID, testNow)
	assert.ErrorIs(t, err, forecastdomain.ErrNoCompleteWeeks)
}

func TestRun_InsufficientHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A single complete week is below the two-bucket minimum.
	_, err := f.orders.Ingest(ctx, f.tenantID, []orderdomain.OrderInput{
		{ID: 1, OrderDate: "2026-02-24", Status: "Shipped"},
		{ID: 2, OrderDate: "2026-02-25", Status: "Shipped"},
	})
	require.NoError(t, err)

	_, err = f.svc.Run(ctx, f.tenantID, testNow)
	assert.ErrorIs(t, err, forecastdomain.ErrInsufficientHistory)
}

func TestRun_AllCancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orders.Ingest(ctx, f.tenantID, []orderdomain.OrderInput{
		{ID: 1, OrderDate: "2026-02-17", Status: "Отказана"},
		{ID: 2, OrderDate: "2026-02-24", Status: "Cancelled"},
	})
	require.NoError(t, err)

	_, err = f.svc.Run(ctx, f.tenantID, testNow)
	assert.ErrorIs(t, err, forecastdomain.ErrNoData)
}

func TestRun_EngineFailureLeavesCacheUntouched(t *testing.T) {
	f := newFixture(t)
	seedTwoWeeks(t, f)
	ctx := context.Background()

	first, err := f.svc.Run(ctx, f.tenantID, testNow)
	require.NoError(t, err)

	f.engine.fail = true
	_, err = f.svc.Run(ctx, f.tenantID, testNow.Add(time.Hour))
	assert.ErrorIs(t, err, forecastdomain.ErrEngineFailure)

	entry, err := f.repo.GetCache(ctx, f.db, f.tenantID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, first.ForecastDate.Format("2006-01-02"), entry.ForecastDate.UTC().Format("2006-01-02"))
}

func TestRun_AtMostOneCacheRow(t *testing.T) {
	f := newFixture(t)
	seedTwoWeeks(t, f)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Run(ctx, f.tenantID, testNow.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, f.db.Raw(
		`SELECT COUNT(*) FROM forecast_cache WHERE tenant_id = ?`, f.tenantID,
	).Scan(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRun_RecomputeAfterStatusEdit(t *testing.T) {
	f := newFixture(t)
	seedTwoWeeks(t, f)
	ctx := context.Background()

	first, err := f.svc.Run(ctx, f.tenantID, testNow)
	require.NoError(t, err)
	firstWeek := float64(9) // week of Feb 23 had 9 orders
	assert.InDelta(t, firstWeek+1, first.Points[0].PredictedSales, 1e-9)

	// Cancel one closed-week order, then force a recompute.
	outcome, err := f.orders.UpdateStatus(ctx, f.tenantID, 17, "Отказана")
	require.NoError(t, err)
	require.Equal(t, orderdomain.OutcomeUpdated, outcome)

	second, err := f.svc.Run(ctx, f.tenantID, testNow.Add(time.Minute))
	require.NoError(t, err)
	assert.InDelta(t, firstWeek, second.Points[0].PredictedSales, 1e-9,
		"cancelled order must leave the week's count")
}

func TestGet_ReadThrough(t *testing.T) {
	f := newFixture(t)
	seedTwoWeeks(t, f)
	ctx := context.Background()

	// Miss triggers a full run.
	snapshot, err := f.svc.Get(ctx, f.tenantID)
	require.NoError(t, err)
	require.Len(t, snapshot.Points, 4)
	assert.Equal(t, 1, f.engine.calls)

	// Hit is served from the cache without recomputation.
	again, err := f.svc.Get(ctx, f.tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.engine.calls, "cache hit must not call the engine")
	assert.Equal(t, snapshot.Points, again.Points)
}

func TestGet_EmptyTenant(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Get(context.Background(), f.tenantID)
	assert.ErrorIs(t, err, forecastdomain.ErrNoData)
}

func TestChart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Chart(ctx, f.tenantID)
	assert.ErrorIs(t, err, forecastdomain.ErrForecastNotFound)

	seedTwoWeeks(t, f)
	_, err = f.svc.Run(ctx, f.tenantID, testNow)
	require.NoError(t, err)

	chart, err := f.svc.Chart(ctx, f.tenantID)
	require.NoError(t, err)
	require.Len(t, chart.Labels, 4)
	assert.Equal(t, "2026-03-02", chart.Labels[0])
	assert.Len(t, chart.Predicted, 4)
	assert.Len(t, chart.Lower, 4)
	assert.Len(t, chart.Upper, 4)
}
