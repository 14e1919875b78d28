// Package status classifies order status labels. Upstream systems report
// statuses in mixed languages and casings, so classification is driven by a
// configurable synonym set rather than a fixed enum.
package status

import "strings"

type Category string

const (
	CategoryActive    Category = "active"
	CategoryCancelled Category = "cancelled"
)

// Classifier buckets raw status labels into categories. Matching ignores
// case and surrounding whitespace.
type Classifier struct {
	cancelled map[string]struct{}
}

// NewClassifier builds a classifier from the configured cancellation
// synonyms.
func NewClassifier(cancellations []string) *Classifier {
	c := &Classifier{cancelled: make(map[string]struct{}, len(cancellations))}
	for _, label := range cancellations {
		c.cancelled[normalize(label)] = struct{}{}
	}
	return c
}

// IsCancellation reports whether the label marks an order as cancelled.
// Cancelled orders are excluded from weekly sales aggregation.
func (c *Classifier) IsCancellation(label string) bool {
	_, ok := c.cancelled[normalize(label)]
	return ok
}

// Classify maps a raw label to its aggregation category. Anything not in
// the cancellation set counts toward sales.
func (c *Classifier) Classify(label string) Category {
	if c.IsCancellation(label) {
		return CategoryCancelled
	}
	return CategoryActive
}

func normalize(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
