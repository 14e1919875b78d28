package status

import (
	"testing"

	"github.com/smallbiznis/ordercast/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestClassifierDefaults(t *testing.T) {
	c := NewClassifier(config.DefaultForecastConfig().CancellationStatuses)

	assert.True(t, c.IsCancellation("Отказана"))
	assert.True(t, c.IsCancellation("Терминирана"))
	assert.True(t, c.IsCancellation("Cancelled"))
	assert.True(t, c.IsCancellation("canceled"))
	assert.True(t, c.IsCancellation("  CANCELLED  "), "case and whitespace insensitive")

	assert.False(t, c.IsCancellation("Изпратена"))
	assert.False(t, c.IsCancellation("Delivered"))
	assert.False(t, c.IsCancellation(""))
}

func TestClassify(t *testing.T) {
	c := NewClassifier([]string{"void"})

	assert.Equal(t, CategoryCancelled, c.Classify("Void"))
	assert.Equal(t, CategoryActive, c.Classify("shipped"))
	assert.Equal(t, CategoryActive, c.Classify("unknown status"))
}
