package service

import (
	"sort"
	"time"

	forecastdomain "github.com/smallbiznis/ordercast/internal/forecast/domain"
	orderdomain "github.com/smallbiznis/ordercast/internal/order/domain"
	"github.com/smallbiznis/ordercast/internal/order/status"
	"github.com/smallbiznis/ordercast/internal/week"
)

// aggregateWeekly groups non-cancelled orders into Monday-to-Sunday buckets
// ordered by week start. Cancelled orders never contribute to a count.
func aggregateWeekly(orders []orderdomain.Order, classifier *status.Classifier) []forecastdomain.WeeklyBucket {
	counts := make(map[time.Time]int64)
	for _, order := range orders {
		if classifier.IsCancellation(order.Status) {
			continue
		}
		counts[week.Start(order.OrderDate)]++
	}
	if len(counts) == 0 {
		return nil
	}

	buckets := make([]forecastdomain.WeeklyBucket, 0, len(counts))
	for start, count := range counts {
		buckets = append(buckets, forecastdomain.WeeklyBucket{
			WeekStart:  start,
			WeekEnd:    start.AddDate(0, 0, 6),
			OrderCount: count,
		})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].WeekStart.Before(buckets[j].WeekStart)
	})
	return buckets
}

// truncateAtCutoff drops buckets whose week had not fully elapsed at the
// cutoff date. Data from an open week must never enter a forecast.
func truncateAtCutoff(buckets []forecastdomain.WeeklyBucket, cutoff time.Time) []forecastdomain.WeeklyBucket {
	usable := make([]forecastdomain.WeeklyBucket, 0, len(buckets))
	for _, bucket := range buckets {
		if !bucket.WeekEnd.After(cutoff) {
			usable = append(usable, bucket)
		}
	}
	return usable
}
