// Package conversions implements the durable conversion-confirmation queue.
//
// A conversion observed during browsing is not confirmed immediately: each
// queued item is assigned a randomized confirm-at time and the queue arms a
// single timer for whichever item is due soonest. When the timer fires the
// queue dispatches exactly one confirmation through the injected Confirmer,
// removes the item, and re-arms for the new head. The queue state is
// persisted on every mutation so pending conversions survive restarts.
//
// Item lifecycle: Pending (inserted) -> Scheduled (head, timer armed) ->
// Fired (timer elapsed) -> Delivered or Failed, both terminal and both
// removing the item. Failures are not retried; the creative context needed
// to retry has already been consumed.
package conversions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/openadtrack/internal/kvstore"
	"github.com/patrickwarner/openadtrack/internal/models"
	"github.com/patrickwarner/openadtrack/internal/observability"
)

// Confirmer is the host capability that reports a confirmed action to the ad
// network. The queue decides when to call it; it never speaks HTTP itself.
type Confirmer interface {
	ConfirmAction(ctx context.Context, placementID, creativeSetID string, confirmationType models.ConfirmationType) error
}

// Queue is the pending-conversion queue. All exported methods are safe for
// concurrent use; internally a single mutex serializes every mutation, which
// satisfies the single-writer contract the persistence format assumes.
type Queue struct {
	mu    sync.Mutex
	items []models.ConversionQueueItem

	store     kvstore.Store
	timers    TimerFactory
	confirmer Confirmer
	metrics   observability.MetricsRegistry
	logger    *zap.Logger

	delayMean  time.Duration
	overdueMax time.Duration

	// armed is the id of the single outstanding timer; armedKey identifies
	// the head item it was armed for so a head change re-arms.
	armed    TimerID
	armedKey string

	nowFn  func() time.Time
	randFn func() float64
}

// DefaultDelayMean is the mean of the exponential confirmation delay.
const DefaultDelayMean = time.Hour

// DefaultOverdueMax bounds the uniform respread delay applied to items found
// overdue at load.
const DefaultOverdueMax = time.Minute

// NewQueue constructs a Queue. Callers must invoke Load before Add so
// persisted state is restored first.
func NewQueue(store kvstore.Store, timers TimerFactory, confirmer Confirmer,
	metrics observability.MetricsRegistry, logger *zap.Logger,
	delayMean, overdueMax time.Duration) *Queue {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if logger == nil {
		logger = zap.L()
	}
	if delayMean <= 0 {
		delayMean = DefaultDelayMean
	}
	if overdueMax <= 0 {
		overdueMax = DefaultOverdueMax
	}
	return &Queue{
		store:      store,
		timers:     timers,
		confirmer:  confirmer,
		metrics:    metrics,
		logger:     logger,
		delayMean:  delayMean,
		overdueMax: overdueMax,
		nowFn:      time.Now,
		randFn:     defaultRand,
	}
}

// Load restores persisted queue state. A missing blob is an empty queue;
// malformed state is a hard failure surfaced to the caller, never silently
// replaced with an empty queue. Items already overdue are rescheduled with a
// fresh short random delay instead of firing immediately.
func (q *Queue) Load(ctx context.Context) error {
	data, err := q.store.Load(ctx, StateName)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load conversion queue state: %w", err)
	}

	items, err := unmarshalQueue(data)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.nowFn()
	rescheduled := 0
	for i := range items {
		if items[i].ConfirmAt.After(now) {
			continue
		}
		items[i].ConfirmAt = now.Add(shortRandDelay(q.randFn(), q.overdueMax)).Truncate(time.Second)
		rescheduled++
	}

	q.items = items
	q.sortLocked()

	if rescheduled > 0 {
		q.logger.Info("rescheduled overdue conversions", zap.Int("count", rescheduled))
		if err := q.persistLocked(ctx); err != nil {
			return err
		}
	}

	q.processLocked()
	return nil
}

// Add schedules a conversion confirmation. The confirm-at time is now plus an
// exponential random delay; the item's ConfirmAt field is overwritten. No
// dedup is applied: multiple pending conversions for the same creative
// instance are allowed.
func (q *Queue) Add(ctx context.Context, item models.ConversionQueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item.ConfirmAt = q.nowFn().Add(expRandDelay(q.randFn(), q.delayMean)).Truncate(time.Second)
	q.items = append(q.items, item)
	q.sortLocked()

	if err := q.persistLocked(ctx); err != nil {
		return err
	}

	q.metrics.IncrementConversion("queued")
	q.logger.Debug("conversion queued",
		zap.String("placement_id", item.PlacementID),
		zap.String("creative_set_id", item.CreativeSetID),
		zap.Time("confirm_at", item.ConfirmAt))

	q.processLocked()
	return nil
}

// Remove cancels the earliest pending item for the placement. The bool
// reports whether anything was removed; a miss is not an error.
func (q *Queue) Remove(ctx context.Context, placementID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := -1
	for i, item := range q.items {
		if item.PlacementID == placementID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}

	q.items = append(q.items[:idx], q.items[idx+1:]...)
	if err := q.persistLocked(ctx); err != nil {
		return false, err
	}

	q.processLocked()
	return true, nil
}

// OnTimer handles a timer firing. Ids that do not match the currently armed
// timer are stale (a cancelled-and-replaced timer caught mid-flight) and are
// ignored; the return value reports whether the event was processed.
func (q *Queue) OnTimer(id TimerID) bool {
	q.mu.Lock()
	if id == "" || id != q.armed {
		q.mu.Unlock()
		return false
	}
	q.armed = ""
	q.armedKey = ""

	if len(q.items) == 0 {
		q.mu.Unlock()
		return false
	}

	item := q.items[0]
	q.items = q.items[1:]
	if err := q.persistLocked(context.Background()); err != nil {
		q.logger.Error("persist after dequeue", zap.Error(err))
	}
	q.mu.Unlock()

	// Fired: dispatch exactly one confirmation. Delivery and terminal
	// failure both end with the item gone from the queue.
	if err := q.confirmer.ConfirmAction(context.Background(),
		item.PlacementID, item.CreativeSetID, models.ConfirmationTypeConversion); err != nil {
		q.metrics.IncrementConversion("failed")
		q.logger.Error("conversion confirmation failed",
			zap.Error(err),
			zap.String("placement_id", item.PlacementID),
			zap.String("creative_set_id", item.CreativeSetID))
	} else {
		q.metrics.IncrementConversion("confirmed")
		q.logger.Info("conversion confirmed",
			zap.String("placement_id", item.PlacementID),
			zap.String("creative_set_id", item.CreativeSetID))
	}

	q.mu.Lock()
	q.processLocked()
	q.mu.Unlock()
	return true
}

// Snapshot returns a copy of the pending items in confirm-at order.
func (q *Queue) Snapshot() []models.ConversionQueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.ConversionQueueItem, len(q.items))
	copy(out, q.items)
	return out
}

// sortLocked keeps the queue ordered ascending by confirm-at. The stable sort
// preserves insertion order among equal times.
func (q *Queue) sortLocked() {
	sort.SliceStable(q.items, func(i, j int) bool {
		return q.items[i].ConfirmAt.Before(q.items[j].ConfirmAt)
	})
}

func (q *Queue) persistLocked(ctx context.Context) error {
	data, err := marshalQueue(q.items)
	if err != nil {
		return err
	}
	if err := q.store.Save(ctx, StateName, data); err != nil {
		return fmt.Errorf("save conversion queue state: %w", err)
	}
	return nil
}

// processLocked arms the timer for the head item if it is not already armed
// for it. Only one timer is ever outstanding.
func (q *Queue) processLocked() {
	q.metrics.SetConversionQueueDepth(len(q.items))

	if len(q.items) == 0 {
		if q.armed != "" {
			q.timers.Kill(q.armed)
			q.armed = ""
			q.armedKey = ""
		}
		return
	}

	head := q.items[0]
	key := head.PlacementID + "|" + head.ConfirmAt.UTC().Format(time.RFC3339)
	if q.armed != "" {
		if q.armedKey == key {
			return
		}
		q.timers.Kill(q.armed)
	}

	delay := head.ConfirmAt.Sub(q.nowFn())
	if delay < 0 {
		delay = 0
	}
	q.armed = q.timers.Set(delay, func(id TimerID) { q.OnTimer(id) })
	q.armedKey = key
}
