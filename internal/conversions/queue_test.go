package conversions

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/openadtrack/internal/kvstore"
	"github.com/patrickwarner/openadtrack/internal/models"
)

// fakeTimers records Set/Kill calls and fires timers only when the test asks.
type fakeTimers struct {
	mu      sync.Mutex
	next    int
	pending map[TimerID]fakeTimer
	killed  []TimerID
}

type fakeTimer struct {
	delay time.Duration
	fn    func(TimerID)
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{pending: make(map[TimerID]fakeTimer)}
}

func (f *fakeTimers) Set(delay time.Duration, fn func(TimerID)) TimerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := TimerID(fmt.Sprintf("timer-%d", f.next))
	f.pending[id] = fakeTimer{delay: delay, fn: fn}
	return id
}

func (f *fakeTimers) Kill(id TimerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pending[id]; ok {
		delete(f.pending, id)
		f.killed = append(f.killed, id)
	}
}

// fire invokes the pending timer's callback, as time.AfterFunc would.
func (f *fakeTimers) fire(id TimerID) {
	f.mu.Lock()
	ft, ok := f.pending[id]
	delete(f.pending, id)
	f.mu.Unlock()
	if ok {
		ft.fn(id)
	}
}

// armed returns the single pending timer. Fails the test if there is not
// exactly one.
func (f *fakeTimers) armed(t *testing.T) (TimerID, time.Duration) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.pending, 1, "expected exactly one armed timer")
	for id, ft := range f.pending {
		return id, ft.delay
	}
	return "", 0
}

func (f *fakeTimers) armedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

type recordConfirmer struct {
	mu    sync.Mutex
	calls []string
	types []models.ConfirmationType
	err   error
}

func (r *recordConfirmer) ConfirmAction(_ context.Context, placementID, creativeSetID string, ct models.ConfirmationType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, placementID+"/"+creativeSetID)
	r.types = append(r.types, ct)
	return r.err
}

// seqRand returns successive values from vals, cycling at the end.
func seqRand(vals ...float64) func() float64 {
	i := 0
	return func() float64 {
		v := vals[i%len(vals)]
		i++
		return v
	}
}

func newFileStore(t *testing.T, dir string) *kvstore.FileStore {
	t.Helper()
	store, err := kvstore.NewFileStore(dir)
	require.NoError(t, err)
	return store
}

func newTestQueue(t *testing.T, store kvstore.Store, timers TimerFactory, confirmer Confirmer) *Queue {
	t.Helper()
	q := NewQueue(store, timers, confirmer, nil, nil, time.Hour, time.Minute)
	q.nowFn = func() time.Time { return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC) }
	q.randFn = seqRand(0.5)
	return q
}

func queueItem(placementID string) models.ConversionQueueItem {
	return models.ConversionQueueItem{
		PlacementID:        placementID,
		CampaignID:         "campaign-1",
		CreativeSetID:      "set-" + placementID,
		CreativeInstanceID: "instance-" + placementID,
		AdvertiserID:       "advertiser-1",
		ConversionID:       "conv-" + placementID,
	}
}

func TestQueueAddOrdersByConfirmAt(t *testing.T) {
	store := newFileStore(t, t.TempDir())
	timers := newFakeTimers()
	q := newTestQueue(t, store, timers, &recordConfirmer{})

	// Larger r means a longer exponential delay, so "late" lands after
	// "early" even though it is added first.
	q.randFn = seqRand(0.9, 0.1, 0.5)
	require.NoError(t, q.Add(context.Background(), queueItem("late")))
	require.NoError(t, q.Add(context.Background(), queueItem("early")))
	require.NoError(t, q.Add(context.Background(), queueItem("middle")))

	items := q.Snapshot()
	require.Len(t, items, 3)
	assert.Equal(t, "early", items[0].PlacementID)
	assert.Equal(t, "middle", items[1].PlacementID)
	assert.Equal(t, "late", items[2].PlacementID)
	for i := 1; i < len(items); i++ {
		assert.False(t, items[i].ConfirmAt.Before(items[i-1].ConfirmAt))
	}

	// Adding an earlier item replaced the original head timer.
	assert.Equal(t, 1, timers.armedCount())
	assert.NotEmpty(t, timers.killed)
}

func TestQueuePersistedStateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := newFileStore(t, dir)
	q := newTestQueue(t, store, newFakeTimers(), &recordConfirmer{})
	q.randFn = seqRand(0.2, 0.6, 0.4)

	want := []models.ConversionQueueItem{queueItem("a"), queueItem("b"), queueItem("c")}
	for _, item := range want {
		require.NoError(t, q.Add(context.Background(), item))
	}
	before := q.Snapshot()

	// A fresh queue over the same store sees the identical pending set.
	restored := newTestQueue(t, newFileStore(t, dir), newFakeTimers(), &recordConfirmer{})
	require.NoError(t, restored.Load(context.Background()))
	after := restored.Snapshot()

	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].PlacementID, after[i].PlacementID)
		assert.Equal(t, before[i].CampaignID, after[i].CampaignID)
		assert.Equal(t, before[i].CreativeSetID, after[i].CreativeSetID)
		assert.Equal(t, before[i].CreativeInstanceID, after[i].CreativeInstanceID)
		assert.Equal(t, before[i].ConversionID, after[i].ConversionID)
		assert.True(t, before[i].ConfirmAt.Equal(after[i].ConfirmAt))
	}
}

func TestQueueOnTimerDispatchesHead(t *testing.T) {
	store := newFileStore(t, t.TempDir())
	timers := newFakeTimers()
	confirmer := &recordConfirmer{}
	q := newTestQueue(t, store, timers, confirmer)
	q.randFn = seqRand(0.1, 0.9)

	require.NoError(t, q.Add(context.Background(), queueItem("first")))
	require.NoError(t, q.Add(context.Background(), queueItem("second")))

	id, _ := timers.armed(t)
	timers.fire(id)

	require.Len(t, confirmer.calls, 1)
	assert.Equal(t, "first/set-first", confirmer.calls[0])
	assert.Equal(t, models.ConfirmationTypeConversion, confirmer.types[0])

	items := q.Snapshot()
	require.Len(t, items, 1)
	assert.Equal(t, "second", items[0].PlacementID)
	assert.Equal(t, 1, timers.armedCount())
}

func TestQueueStaleTimerIgnored(t *testing.T) {
	store := newFileStore(t, t.TempDir())
	timers := newFakeTimers()
	confirmer := &recordConfirmer{}
	q := newTestQueue(t, store, timers, confirmer)

	require.NoError(t, q.Add(context.Background(), queueItem("only")))

	assert.False(t, q.OnTimer("timer-from-a-previous-life"))
	assert.False(t, q.OnTimer(""))
	assert.Empty(t, confirmer.calls)
	assert.Len(t, q.Snapshot(), 1)
}

func TestQueueConfirmFailureStillRemovesItem(t *testing.T) {
	store := newFileStore(t, t.TempDir())
	timers := newFakeTimers()
	confirmer := &recordConfirmer{err: fmt.Errorf("network down")}
	q := newTestQueue(t, store, timers, confirmer)

	require.NoError(t, q.Add(context.Background(), queueItem("doomed")))
	id, _ := timers.armed(t)

	assert.True(t, q.OnTimer(id))
	assert.Len(t, confirmer.calls, 1)
	assert.Empty(t, q.Snapshot())
	assert.Equal(t, 0, timers.armedCount())
}

func TestQueueRemove(t *testing.T) {
	store := newFileStore(t, t.TempDir())
	timers := newFakeTimers()
	q := newTestQueue(t, store, timers, &recordConfirmer{})
	q.randFn = seqRand(0.1, 0.9)

	require.NoError(t, q.Add(context.Background(), queueItem("head")))
	require.NoError(t, q.Add(context.Background(), queueItem("tail")))

	removed, err := q.Remove(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = q.Remove(context.Background(), "head")
	require.NoError(t, err)
	assert.True(t, removed)

	items := q.Snapshot()
	require.Len(t, items, 1)
	assert.Equal(t, "tail", items[0].PlacementID)

	// The head changed, so the old timer was killed and a new one armed.
	assert.NotEmpty(t, timers.killed)
	assert.Equal(t, 1, timers.armedCount())
}

func TestQueueAllowsDuplicatePlacements(t *testing.T) {
	store := newFileStore(t, t.TempDir())
	q := newTestQueue(t, store, newFakeTimers(), &recordConfirmer{})

	require.NoError(t, q.Add(context.Background(), queueItem("repeat")))
	require.NoError(t, q.Add(context.Background(), queueItem("repeat")))
	assert.Len(t, q.Snapshot(), 2)

	removed, err := q.Remove(context.Background(), "repeat")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Len(t, q.Snapshot(), 1)
}

func TestQueueLoadReschedulesOverdueItems(t *testing.T) {
	dir := t.TempDir()
	store := newFileStore(t, dir)
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	stale := []models.ConversionQueueItem{queueItem("old-a"), queueItem("old-b")}
	stale[0].ConfirmAt = now.Add(-48 * time.Hour)
	stale[1].ConfirmAt = now.Add(-time.Minute)
	data, err := marshalQueue(stale)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), StateName, data))

	timers := newFakeTimers()
	q := newTestQueue(t, store, timers, &recordConfirmer{})
	require.NoError(t, q.Load(context.Background()))

	for _, item := range q.Snapshot() {
		assert.True(t, item.ConfirmAt.After(now.Add(-time.Second)),
			"overdue item %s not rescheduled", item.PlacementID)
		assert.False(t, item.ConfirmAt.After(now.Add(q.overdueMax)))
	}
	assert.Equal(t, 1, timers.armedCount())
}

func TestQueueLoadMalformedStateIsHardFailure(t *testing.T) {
	tests := []struct {
		name string
		blob string
	}{
		{name: "not json", blob: "{{{"},
		{name: "missing ad_conversions key", blob: `{"something_else": []}`},
		{name: "non-numeric timestamp", blob: `{"ad_conversions": [{"timestamp_in_seconds": "soon", "uuid": "p1"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFileStore(t, t.TempDir())
			require.NoError(t, store.Save(context.Background(), StateName, []byte(tt.blob)))

			q := newTestQueue(t, store, newFakeTimers(), &recordConfirmer{})
			err := q.Load(context.Background())
			require.Error(t, err)
			assert.Empty(t, q.Snapshot())
		})
	}
}

func TestQueueLoadMissingStateIsEmptyQueue(t *testing.T) {
	q := newTestQueue(t, newFileStore(t, t.TempDir()), newFakeTimers(), &recordConfirmer{})
	require.NoError(t, q.Load(context.Background()))
	assert.Empty(t, q.Snapshot())
}
