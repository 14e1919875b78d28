package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/ordercast/internal/config"
	forecastdomain "github.com/smallbiznis/ordercast/internal/forecast/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newClient(t *testing.T, url string, timeout time.Duration) forecastdomain.Engine {
	t.Helper()
	return New(config.Config{EngineURL: url, EngineTimeout: timeout}, zap.NewNop())
}

func history() []forecastdomain.WeeklyBucket {
	return []forecastdomain.WeeklyBucket{
		{WeekStart: time.Date(2026, time.February, 16, 0, 0, 0, 0, time.UTC), OrderCount: 80},
		{WeekStart: time.Date(2026, time.February, 23, 0, 0, 0, 0, time.UTC), OrderCount: 90},
	}
}

func TestForecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/forecast", r.URL.Path)

		var req forecastRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 4, req.Periods)
		assert.Equal(t, "W", req.Freq)
		require.Len(t, req.Series, 2)
		assert.Equal(t, "2026-02-16", req.Series[0].Week)
		assert.Equal(t, 80.0, req.Series[0].Count)

		json.NewEncoder(w).Encode(forecastResponse{
			Fitted: []responsePoint{
				{Week: "2026-02-16", Yhat: 81, Lower: 70, Upper: 92},
				{Week: "2026-02-23", Yhat: 89, Lower: 78, Upper: 100},
			},
			Future: []responsePoint{
				{Week: "2026-03-02", Yhat: 95, Lower: 84, Upper: 106},
			},
		})
	}))
	defer srv.Close()

	result, err := newClient(t, srv.URL, 5*time.Second).Forecast(context.Background(), history(), 4)
	require.NoError(t, err)
	require.Len(t, result.Fitted, 2)
	require.Len(t, result.Future, 1)
	assert.Equal(t, time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC), result.Future[0].WeekStart)
	assert.Equal(t, 95.0, result.Future[0].Predicted)
	assert.Equal(t, 84.0, result.Future[0].Lower)
}

func TestForecast_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "model fit failed"})
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL, 5*time.Second).Forecast(context.Background(), history(), 4)
	assert.ErrorIs(t, err, forecastdomain.ErrEngineFailure)
}

func TestForecast_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL, 20*time.Millisecond).Forecast(context.Background(), history(), 4)
	assert.ErrorIs(t, err, forecastdomain.ErrEngineFailure)
}

func TestForecast_EmptyFuture(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(forecastResponse{})
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL, 5*time.Second).Forecast(context.Background(), history(), 4)
	assert.ErrorIs(t, err, forecastdomain.ErrEngineFailure)
}
