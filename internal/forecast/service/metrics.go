package service

import (
	"math"
	"time"

	forecastdomain "github.com/smallbiznis/ordercast/internal/forecast/domain"
)

// accuracyMetrics compares the engine's in-sample fitted values against the
// actual weekly counts, aligned by week start. Any metric that cannot be
// computed (no overlap, zero variance, all-zero actuals) comes back nil;
// a failed metric never fails the run.
func accuracyMetrics(actual []forecastdomain.WeeklyBucket, fitted []forecastdomain.EnginePoint) (r2, mae, mape *float64) {
	fittedByWeek := make(map[time.Time]float64, len(fitted))
	for _, point := range fitted {
		fittedByWeek[point.WeekStart] = point.Predicted
	}

	var (
		pairs    int
		absErr   float64
		pctErr   float64
		pctPairs int
		sumY     float64
		ys       []float64
		yhats    []float64
	)
	for _, bucket := range actual {
		yhat, ok := fittedByWeek[bucket.WeekStart]
		if !ok {
			continue
		}
		y := float64(bucket.OrderCount)
		pairs++
		absErr += math.Abs(y - yhat)
		sumY += y
		ys = append(ys, y)
		yhats = append(yhats, yhat)
		if y != 0 {
			pctErr += math.Abs((y - yhat) / y)
			pctPairs++
		}
	}
	if pairs == 0 {
		return nil, nil, nil
	}

	maeVal := absErr / float64(pairs)
	mae = &maeVal

	if pctPairs > 0 {
		mapeVal := pctErr / float64(pctPairs) * 100
		mape = &mapeVal
	}

	mean := sumY / float64(pairs)
	var ssRes, ssTot float64
	for i := range ys {
		ssRes += (ys[i] - yhats[i]) * (ys[i] - yhats[i])
		ssTot += (ys[i] - mean) * (ys[i] - mean)
	}
	if ssTot > 0 {
		r2Val := 1 - ssRes/ssTot
		r2 = &r2Val
	}
	return r2, mae, mape
}
