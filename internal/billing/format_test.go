package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "$0.00", FormatUSD(0))
	assert.Equal(t, "$0.0004", FormatUSD(0.0004))
	assert.Equal(t, "$0.0075", FormatUSD(0.0075))
	assert.Equal(t, "$0.01", FormatUSD(0.01))
	assert.Equal(t, "$1.50", FormatUSD(1.5))
	assert.Equal(t, "$50.00", FormatUSD(50))
}

func TestCostOf(t *testing.T) {
	assert.InDelta(t, 0.4, CostOf(CategoryEmail, 1000), 1e-9)
	assert.InDelta(t, 0.0075, CostOf(CategorySMS, 1), 1e-9)
	assert.Zero(t, CostOf(Category("unknown"), 100))
}
