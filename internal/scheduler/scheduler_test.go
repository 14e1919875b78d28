package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/ordercast/internal/auth/domain"
	"github.com/smallbiznis/ordercast/internal/clock"
	"github.com/smallbiznis/ordercast/internal/config"
	forecastdomain "github.com/smallbiznis/ordercast/internal/forecast/domain"
	orderdomain "github.com/smallbiznis/ordercast/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAuth struct {
	tenants []snowflake.ID
}

func (f *fakeAuth) Authenticate(context.Context, string, string) (*authdomain.Tenant, error) {
	return nil, authdomain.ErrInvalidCredentials
}
func (f *fakeAuth) CreateTenant(context.Context, string, string) (*authdomain.Tenant, error) {
	return nil, nil
}
func (f *fakeAuth) ChangePassword(context.Context, string, string) error { return nil }
func (f *fakeAuth) DeleteTenant(context.Context, string) error           { return nil }
func (f *fakeAuth) ListTenantIDs(context.Context) ([]snowflake.ID, error) {
	return f.tenants, nil
}

type fakeOrders struct {
	changes map[snowflake.ID]int64
}

func (f *fakeOrders) Ingest(context.Context, snowflake.ID, []orderdomain.OrderInput) (*orderdomain.IngestResult, error) {
	return nil, nil
}
func (f *fakeOrders) UpdateStatus(context.Context, snowflake.ID, int64, string) (orderdomain.UpdateOutcome, error) {
	return orderdomain.OutcomeUnchanged, nil
}
func (f *fakeOrders) ListOrders(context.Context, snowflake.ID) ([]orderdomain.Order, error) {
	return nil, nil
}
func (f *fakeOrders) CountRecentChanges(_ context.Context, tenantID snowflake.ID) (int64, error) {
	return f.changes[tenantID], nil
}

type fakeForecasts struct {
	runs map[snowflake.ID]int
	errs map[snowflake.ID]error
}

func (f *fakeForecasts) Run(_ context.Context, tenantID snowflake.ID, _ time.Time) (*forecastdomain.Snapshot, error) {
	if f.runs == nil {
		f.runs = make(map[snowflake.ID]int)
	}
	f.runs[tenantID]++
	if err := f.errs[tenantID]; err != nil {
		return nil, err
	}
	return &forecastdomain.Snapshot{TenantID: tenantID}, nil
}
func (f *fakeForecasts) Get(context.Context, snowflake.ID) (*forecastdomain.Snapshot, error) {
	return nil, forecastdomain.ErrForecastNotFound
}
func (f *fakeForecasts) Chart(context.Context, snowflake.ID) (*forecastdomain.Chart, error) {
	return nil, forecastdomain.ErrForecastNotFound
}

// Wednesday 2026-03-04 12:00 UTC.
var testNow = time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)

func ids(n int) []snowflake.ID {
	node, _ := snowflake.NewNode(1)
	out := make([]snowflake.ID, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, node.Generate())
	}
	return out
}

func newScheduler(t *testing.T, auth *fakeAuth, orders *fakeOrders, forecasts *fakeForecasts, fc *clock.FakeClock) *Scheduler {
	t.Helper()
	sched, err := New(Params{
		Log:         zap.NewNop(),
		Clock:       fc,
		OrderSvc:    orders,
		ForecastSvc: forecasts,
		AuthSvc:     auth,
		Tuning:      config.NewStaticForecastConfigHolder(config.DefaultForecastConfig()),
	})
	require.NoError(t, err)
	return sched
}

func TestChangeThresholdJob(t *testing.T) {
	tenants := ids(3)
	auth := &fakeAuth{tenants: tenants}
	orders := &fakeOrders{changes: map[snowflake.ID]int64{
		tenants[0]: 7, // crossed (threshold 5)
		tenants[1]: 4, // below
		tenants[2]: 5, // exactly at threshold
	}}
	forecasts := &fakeForecasts{}
	sched := newScheduler(t, auth, orders, forecasts, clock.NewFakeClock(testNow))

	require.NoError(t, sched.ChangeThresholdJob(context.Background()))

	assert.Equal(t, 1, forecasts.runs[tenants[0]])
	assert.Zero(t, forecasts.runs[tenants[1]])
	assert.Equal(t, 1, forecasts.runs[tenants[2]])
}

func TestWeeklyRefreshJob(t *testing.T) {
	tenants := ids(2)
	auth := &fakeAuth{tenants: tenants}
	forecasts := &fakeForecasts{
		errs: map[snowflake.ID]error{
			// Sparse tenants are skipped quietly, not treated as failures.
			tenants[1]: forecastdomain.ErrInsufficientHistory,
		},
	}
	sched := newScheduler(t, auth, &fakeOrders{}, forecasts, clock.NewFakeClock(testNow))

	require.NoError(t, sched.WeeklyRefreshJob(context.Background()))
	assert.Equal(t, 1, forecasts.runs[tenants[0]])
	assert.Equal(t, 1, forecasts.runs[tenants[1]])
}

func TestWeeklyRefreshJob_EngineFailureReported(t *testing.T) {
	tenants := ids(2)
	auth := &fakeAuth{tenants: tenants}
	forecasts := &fakeForecasts{
		errs: map[snowflake.ID]error{
			tenants[0]: fmt.Errorf("%w: boom", forecastdomain.ErrEngineFailure),
		},
	}
	sched := newScheduler(t, auth, &fakeOrders{}, forecasts, clock.NewFakeClock(testNow))

	err := sched.WeeklyRefreshJob(context.Background())
	assert.ErrorIs(t, err, forecastdomain.ErrEngineFailure)
	// One bad tenant never stalls the sweep.
	assert.Equal(t, 1, forecasts.runs[tenants[1]])
}

func TestRunOnce_Cadence(t *testing.T) {
	tenants := ids(1)
	auth := &fakeAuth{tenants: tenants}
	orders := &fakeOrders{changes: map[snowflake.ID]int64{tenants[0]: 10}}
	forecasts := &fakeForecasts{}
	fc := clock.NewFakeClock(testNow)
	sched := newScheduler(t, auth, orders, forecasts, fc)

	// First tick: both jobs are due (change sweep immediately, weekly
	// because the Monday boundary plus grace has long passed).
	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, 2, forecasts.runs[tenants[0]])

	// Next tick a minute later: nothing is due.
	fc.Advance(time.Minute)
	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, 2, forecasts.runs[tenants[0]])

	// Six hours on, the change sweep is due again; the weekly is not.
	fc.Advance(6 * time.Hour)
	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, 3, forecasts.runs[tenants[0]])

	// The following Monday just after midnight: inside the grace window,
	// the weekly refresh holds off.
	fc.Set(time.Date(2026, time.March, 9, 0, 30, 0, 0, time.UTC))
	sched.nextChangeRun = fc.Now().Add(24 * time.Hour) // isolate the weekly job
	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, 3, forecasts.runs[tenants[0]])

	// Past the grace window the weekly refresh fires once.
	fc.Set(time.Date(2026, time.March, 9, 1, 30, 0, 0, time.UTC))
	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, 4, forecasts.runs[tenants[0]])

	fc.Advance(time.Minute)
	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, 4, forecasts.runs[tenants[0]], "weekly refresh runs once per week")
}

func TestRunOnce_OverlapSkipped(t *testing.T) {
	tenants := ids(1)
	auth := &fakeAuth{tenants: tenants}
	orders := &fakeOrders{changes: map[snowflake.ID]int64{tenants[0]: 10}}
	forecasts := &fakeForecasts{}
	sched := newScheduler(t, auth, orders, forecasts, clock.NewFakeClock(testNow))

	// Simulate an in-flight change sweep: the tick must skip, not queue.
	sched.changeRunning.Store(true)
	sched.weeklyRunning.Store(true)
	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Zero(t, forecasts.runs[tenants[0]])
}

func TestRunOnce_DisabledJobs(t *testing.T) {
	tenants := ids(1)
	auth := &fakeAuth{tenants: tenants}
	orders := &fakeOrders{changes: map[snowflake.ID]int64{tenants[0]: 10}}
	forecasts := &fakeForecasts{}
	fc := clock.NewFakeClock(testNow)

	sched, err := New(Params{
		Log:         zap.NewNop(),
		Clock:       fc,
		OrderSvc:    orders,
		ForecastSvc: forecasts,
		AuthSvc:     auth,
		Tuning:      config.NewStaticForecastConfigHolder(config.DefaultForecastConfig()),
		Config:      Config{EnabledJobs: []string{jobWeeklyRefresh}},
	})
	require.NoError(t, err)

	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, 1, forecasts.runs[tenants[0]], "only the weekly job may run")
}
