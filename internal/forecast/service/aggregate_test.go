package service

import (
	"testing"
	"time"

	"github.com/smallbiznis/ordercast/internal/config"
	forecastdomain "github.com/smallbiznis/ordercast/internal/forecast/domain"
	orderdomain "github.com/smallbiznis/ordercast/internal/order/domain"
	"github.com/smallbiznis/ordercast/internal/order/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func makeOrders(dates []time.Time, st string) []orderdomain.Order {
	orders := make([]orderdomain.Order, 0, len(dates))
	for i, d := range dates {
		orders = append(orders, orderdomain.Order{
			OrderID:   int64(i + 1),
			Status:    st,
			OrderDate: d,
		})
	}
	return orders
}

func defaultClassifier() *status.Classifier {
	return status.NewClassifier(config.DefaultForecastConfig().CancellationStatuses)
}

func TestAggregateWeekly(t *testing.T) {
	// Week of Feb 9-15 and week of Feb 16-22.
	orders := makeOrders([]time.Time{
		day(2026, time.February, 9),
		day(2026, time.February, 11),
		day(2026, time.February, 15),
		day(2026, time.February, 16),
	}, "Изпратена")

	buckets := aggregateWeekly(orders, defaultClassifier())
	require.Len(t, buckets, 2)
	assert.Equal(t, day(2026, time.February, 9), buckets[0].WeekStart)
	assert.Equal(t, day(2026, time.February, 15), buckets[0].WeekEnd)
	assert.Equal(t, int64(3), buckets[0].OrderCount)
	assert.Equal(t, day(2026, time.February, 16), buckets[1].WeekStart)
	assert.Equal(t, int64(1), buckets[1].OrderCount)
}

func TestAggregateWeekly_ExcludesCancellations(t *testing.T) {
	orders := makeOrders([]time.Time{
		day(2026, time.February, 9),
		day(2026, time.February, 10),
	}, "Изпратена")
	orders = append(orders, orderdomain.Order{OrderID: 90, Status: "Отказана", OrderDate: day(2026, time.February, 11)})
	orders = append(orders, orderdomain.Order{OrderID: 91, Status: "cancelled", OrderDate: day(2026, time.February, 12)})

	buckets := aggregateWeekly(orders, defaultClassifier())
	require.Len(t, buckets, 1)
	assert.Equal(t, int64(2), buckets[0].OrderCount)
}

func TestAggregateWeekly_AllCancelled(t *testing.T) {
	orders := makeOrders([]time.Time{day(2026, time.February, 9)}, "Отказана")
	assert.Empty(t, aggregateWeekly(orders, defaultClassifier()))
}

func TestTruncateAtCutoff(t *testing.T) {
	buckets := []forecastdomain.WeeklyBucket{
		{WeekStart: day(2026, time.February, 9), WeekEnd: day(2026, time.February, 15), OrderCount: 3},
		{WeekStart: day(2026, time.February, 16), WeekEnd: day(2026, time.February, 22), OrderCount: 5},
		{WeekStart: day(2026, time.February, 23), WeekEnd: day(2026, time.March, 1), OrderCount: 4},
	}

	usable := truncateAtCutoff(buckets, day(2026, time.February, 22))
	require.Len(t, usable, 2)
	assert.Equal(t, day(2026, time.February, 22), usable[1].WeekEnd)

	assert.Empty(t, truncateAtCutoff(buckets, day(2026, time.February, 8)))
}

func TestAccuracyMetrics(t *testing.T) {
	actual := []forecastdomain.WeeklyBucket{
		{WeekStart: day(2026, time.February, 9), OrderCount: 80},
		{WeekStart: day(2026, time.February, 16), OrderCount: 90},
		{WeekStart: day(2026, time.February, 23), OrderCount: 100},
	}
	fitted := []forecastdomain.EnginePoint{
		{WeekStart: day(2026, time.February, 9), Predicted: 82},
		{WeekStart: day(2026, time.February, 16), Predicted: 88},
		{WeekStart: day(2026, time.February, 23), Predicted: 101},
	}

	r2, mae, mape := accuracyMetrics(actual, fitted)
	require.NotNil(t, mae)
	assert.InDelta(t, (2.0+2.0+1.0)/3.0, *mae, 1e-9)
	require.NotNil(t, r2)
	assert.Greater(t, *r2, 0.9)
	require.NotNil(t, mape)
	assert.Greater(t, *mape, 0.0)
}

func TestAccuracyMetrics_NoOverlap(t *testing.T) {
	actual := []forecastdomain.WeeklyBucket{
		{WeekStart: day(2026, time.February, 9), OrderCount: 80},
	}
	fitted := []forecastdomain.EnginePoint{
		{WeekStart: day(2026, time.March, 9), Predicted: 82},
	}

	r2, mae, mape := accuracyMetrics(actual, fitted)
	assert.Nil(t, r2)
	assert.Nil(t, mae)
	assert.Nil(t, mape)
}

func TestAccuracyMetrics_ZeroVariance(t *testing.T) {
	actual := []forecastdomain.WeeklyBucket{
		{WeekStart: day(2026, time.February, 9), OrderCount: 50},
		{WeekStart: day(2026, time.February, 16), OrderCount: 50},
	}
	fitted := []forecastdomain.EnginePoint{
		{WeekStart: day(2026, time.February, 9), Predicted: 49},
		{WeekStart: day(2026, time.February, 16), Predicted: 51},
	}

	r2, mae, _ := accuracyMetrics(actual, fitted)
	assert.Nil(t, r2, "constant series has no explainable variance")
	require.NotNil(t, mae)
	assert.InDelta(t, 1.0, *mae, 1e-9)
}
