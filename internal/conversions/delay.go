package conversions

import (
	"math"
	"math/rand"
	"time"
)

// defaultRand is the production randomness source; the queue swaps it for a
// deterministic func in tests.
func defaultRand() float64 { return rand.Float64() }

// expRandDelay draws from an exponential distribution with the given mean.
// Randomizing the confirmation delay breaks the timing correlation between a
// user's browsing action and the network confirmation that follows it.
func expRandDelay(r float64, mean time.Duration) time.Duration {
	if r < 0 {
		r = 0
	}
	if r >= 1 {
		// ln(0) is -inf; cap the draw just under 1
		r = math.Nextafter(1, 0)
	}
	return time.Duration(-math.Log(1-r) * float64(mean))
}

// shortRandDelay draws uniformly from [0, max). Used to respread items found
// overdue at load so a long browser-off period doesn't burst confirmations.
func shortRandDelay(r float64, max time.Duration) time.Duration {
	if r < 0 {
		r = 0
	}
	if r >= 1 {
		r = math.Nextafter(1, 0)
	}
	return time.Duration(r * float64(max))
}
