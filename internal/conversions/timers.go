package conversions

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TimerID identifies an armed timer. The queue compares the id a firing
// callback carries against the one it armed; anything else is stale.
type TimerID string

// TimerFactory is the host timer capability. Set arms a one-shot timer that
// invokes fn with its own id after delay; Kill cancels a pending timer.
type TimerFactory interface {
	Set(delay time.Duration, fn func(TimerID)) TimerID
	Kill(id TimerID)
}

// WallTimers implements TimerFactory on time.AfterFunc.
type WallTimers struct {
	mu     sync.Mutex
	timers map[TimerID]*time.Timer
}

// NewWallTimers constructs a WallTimers.
func NewWallTimers() *WallTimers {
	return &WallTimers{timers: make(map[TimerID]*time.Timer)}
}

func (w *WallTimers) Set(delay time.Duration, fn func(TimerID)) TimerID {
	id := TimerID(uuid.NewString())
	w.mu.Lock()
	w.timers[id] = time.AfterFunc(delay, func() {
		w.mu.Lock()
		delete(w.timers, id)
		w.mu.Unlock()
		fn(id)
	})
	w.mu.Unlock()
	return id
}

func (w *WallTimers) Kill(id TimerID) {
	w.mu.Lock()
	if t, ok := w.timers[id]; ok {
		t.Stop()
		delete(w.timers, id)
	}
	w.mu.Unlock()
}
