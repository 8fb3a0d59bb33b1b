package conversions

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpRandDelay(t *testing.T) {
	mean := time.Hour

	assert.Equal(t, time.Duration(0), expRandDelay(0, mean))

	// At r = 1-1/e the exponential quantile equals the mean.
	got := expRandDelay(1-1/math.E, mean)
	assert.InDelta(t, float64(mean), float64(got), float64(time.Second))

	// r at or above 1 must stay finite.
	capped := expRandDelay(1, mean)
	assert.Greater(t, capped, time.Duration(0))
	assert.Less(t, capped, 100*time.Hour)

	assert.Equal(t, time.Duration(0), expRandDelay(-0.5, mean))
}

func TestShortRandDelay(t *testing.T) {
	max := time.Minute

	assert.Equal(t, time.Duration(0), shortRandDelay(0, max))
	assert.Equal(t, 30*time.Second, shortRandDelay(0.5, max))
	assert.Less(t, shortRandDelay(1, max), max+time.Second)
	assert.Equal(t, time.Duration(0), shortRandDelay(-1, max))
}
