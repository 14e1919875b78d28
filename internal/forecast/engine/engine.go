// Package engine talks to the external forecasting service. The engine is
// stateless: it receives a weekly series and answers with fitted values and
// future periods.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/smallbiznis/ordercast/internal/config"
	forecastdomain "github.com/smallbiznis/ordercast/internal/forecast/domain"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

type seriesPoint struct {
	Week  string  `json:"ds"`
	Count float64 `json:"y"`
}

type forecastRequest struct {
	Series  []seriesPoint `json:"series"`
	Periods int           `json:"periods"`
	Freq    string        `json:"freq"`
}

type responsePoint struct {
	Week  string  `json:"ds"`
	Yhat  float64 `json:"yhat"`
	Lower float64 `json:"yhat_lower"`
	Upper float64 `json:"yhat_upper"`
}

type forecastResponse struct {
	Fitted []responsePoint `json:"fitted"`
	Future []responsePoint `json:"future"`
	Error  string          `json:"error"`
}

// Client is the production Engine implementation.
type Client struct {
	http *resty.Client
	log  *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) forecastdomain.Engine {
	http := resty.New().
		SetBaseURL(cfg.EngineURL).
		SetTimeout(cfg.EngineTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		http: http,
		log:  log.Named("forecast.engine"),
	}
}

func (c *Client) Forecast(ctx context.Context, history []forecastdomain.WeeklyBucket, periods int) (*forecastdomain.EngineResult, error) {
	req := forecastRequest{
		Series:  make([]seriesPoint, 0, len(history)),
		Periods: periods,
		Freq:    "W",
	}
	for _, bucket := range history {
		req.Series = append(req.Series, seriesPoint{
			Week:  bucket.WeekStart.Format(dateLayout),
			Count: float64(bucket.OrderCount),
		})
	}

	started := time.Now()
	var body forecastResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&body).
		Post("/forecast")
	if err != nil {
		c.log.Warn("engine call failed",
			zap.Duration("elapsed", time.Since(started)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", forecastdomain.ErrEngineFailure, err)
	}
	if resp.IsError() {
		c.log.Warn("engine returned error status",
			zap.Int("status", resp.StatusCode()),
			zap.String("error", body.Error),
		)
		return nil, fmt.Errorf("%w: status %d", forecastdomain.ErrEngineFailure, resp.StatusCode())
	}
	if len(body.Future) == 0 {
		return nil, fmt.Errorf("%w: empty response", forecastdomain.ErrEngineFailure)
	}

	result := &forecastdomain.EngineResult{
		Fitted: make([]forecastdomain.EnginePoint, 0, len(body.Fitted)),
		Future: make([]forecastdomain.EnginePoint, 0, len(body.Future)),
	}
	for _, p := range body.Fitted {
		point, err := convertPoint(p)
		if err != nil {
			return nil, err
		}
		result.Fitted = append(result.Fitted, point)
	}
	for _, p := range body.Future {
		point, err := convertPoint(p)
		if err != nil {
			return nil, err
		}
		result.Future = append(result.Future, point)
	}
	return result, nil
}

func convertPoint(p responsePoint) (forecastdomain.EnginePoint, error) {
	week, err := time.ParseInLocation(dateLayout, p.Week, time.UTC)
	if err != nil {
		return forecastdomain.EnginePoint{}, fmt.Errorf("%w: bad week %q", forecastdomain.ErrEngineFailure, p.Week)
	}
	return forecastdomain.EnginePoint{
		WeekStart: week,
		Predicted: p.Yhat,
		Lower:     p.Lower,
		Upper:     p.Upper,
	}, nil
}
