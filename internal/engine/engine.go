// Package engine ties the ad-event subsystem together: it fires events into
// the cache, the durable log, and the analytics mirror; enforces daily
// permission caps; runs the eligibility pipeline for a slot; and turns page
// visits into queued conversions.
package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/openadtrack/internal/adevents"
	"github.com/patrickwarner/openadtrack/internal/eligibility"
	"github.com/patrickwarner/openadtrack/internal/models"
	"github.com/patrickwarner/openadtrack/internal/observability"
)

// ErrDailyCapReached is returned by ServeAd when the ad type has already been
// served its daily allowance.
var ErrDailyCapReached = errors.New("daily ad cap reached")

// EventLog is the durable ad event store the engine writes to and consults.
// Implemented by adevents.Table.
type EventLog interface {
	LogEvent(ctx context.Context, event models.AdEvent) error
	GetIf(ctx context.Context, conds ...adevents.Condition) ([]models.AdEvent, error)
}

// CatalogReader serves the creative catalog. Implemented by
// creatives.Catalog.
type CatalogReader interface {
	GetForDimensions(ctx context.Context, dimensions string) ([]models.CreativeAd, error)
	GetAllConversions(ctx context.Context) ([]models.CreativeSetConversion, error)
}

// ConversionEnqueuer schedules and cancels conversion confirmations.
// Implemented by conversions.Queue.
type ConversionEnqueuer interface {
	Add(ctx context.Context, item models.ConversionQueueItem) error
	Remove(ctx context.Context, placementID string) (bool, error)
	Snapshot() []models.ConversionQueueItem
}

// EventMirror forwards events to the analytics store. Implemented by
// analytics.Analytics; nil disables mirroring.
type EventMirror interface {
	RecordAdEvent(ctx context.Context, event models.AdEvent, deviceType, country string) error
}

// Engine coordinates the subsystem components.
type Engine struct {
	Cache    *adevents.Cache
	Events   EventLog
	Catalog  CatalogReader
	Queue    ConversionEnqueuer
	Mirror   EventMirror
	Pipeline *eligibility.Pipeline

	Metrics observability.MetricsRegistry
	Logger  *zap.Logger

	// DailyServeCap bounds how many ads of one type may be served per day.
	// Zero disables the cap.
	DailyServeCap int

	nowFn func() time.Time
}

// New constructs an Engine.
func New(cache *adevents.Cache, events EventLog, catalog CatalogReader,
	queue ConversionEnqueuer, mirror EventMirror, pipeline *eligibility.Pipeline,
	metrics observability.MetricsRegistry, logger *zap.Logger, dailyServeCap int) *Engine {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Engine{
		Cache:         cache,
		Events:        events,
		Catalog:       catalog,
		Queue:         queue,
		Mirror:        mirror,
		Pipeline:      pipeline,
		Metrics:       metrics,
		Logger:        logger,
		DailyServeCap: dailyServeCap,
		nowFn:         time.Now,
	}
}

// FireAdEvent records one ad event everywhere it needs to land: the bounded
// cache for permission checks, the durable table, and the analytics mirror.
// The mirror is best effort; a mirror failure is logged and does not fail the
// event.
func (e *Engine) FireAdEvent(ctx context.Context, event models.AdEvent, deviceType, country string) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = e.nowFn()
	}

	// The placement id is the per-session instance identity; one creative
	// can be placed many times.
	if err := e.Cache.AddEntryForInstanceID(event.PlacementID,
		event.Type, event.ConfirmationType, event.CreatedAt); err != nil {
		return err
	}
	if err := e.Events.LogEvent(ctx, event); err != nil {
		return err
	}

	if e.Mirror != nil {
		if err := e.Mirror.RecordAdEvent(ctx, event, deviceType, country); err != nil {
			e.Logger.Warn("analytics mirror write failed", zap.Error(err))
		}
	}
	return nil
}

// ExceedsDailyCap reports whether the ad type has reached its served-per-day
// allowance, answered entirely from the in-memory cache.
func (e *Engine) ExceedsDailyCap(adType models.AdType) bool {
	if e.DailyServeCap <= 0 {
		return false
	}
	return len(e.Cache.Get(adType, models.ConfirmationTypeServed)) >= e.DailyServeCap
}

// ServeAd returns the eligible candidate set for a slot. The daily cap is a
// hard gate checked before the pipeline runs; pacing inside the pipeline is
// the soft limiter on top of it.
func (e *Engine) ServeAd(ctx context.Context, adType models.AdType, dimensions string, model models.UserModel) (eligibility.Result, error) {
	if e.ExceedsDailyCap(adType) {
		e.Metrics.IncrementEligibilityOutcome("capped")
		return eligibility.Result{}, ErrDailyCapReached
	}

	ads, err := e.Catalog.GetForDimensions(ctx, dimensions)
	if err != nil {
		return eligibility.Result{}, err
	}

	seen, err := e.seenCreatives(ctx, adType)
	if err != nil {
		return eligibility.Result{}, err
	}

	return e.Pipeline.GetForUserModel(ads, eligibility.Request{
		Dimensions: dimensions,
		UserModel:  model,
		Seen:       seen,
	}), nil
}

// seenCreatives collects the creative instances already viewed for the ad
// type from the durable log.
func (e *Engine) seenCreatives(ctx context.Context, adType models.AdType) (map[string]bool, error) {
	events, err := e.Events.GetIf(ctx,
		adevents.Condition{Column: "ad_type", Op: adevents.OpEq, Value: adType.String()},
		adevents.Condition{Column: "confirmation_type", Op: adevents.OpEq, Value: models.ConfirmationTypeViewed.String()})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		seen[ev.CreativeInstanceID] = true
	}
	return seen, nil
}

// MaybeConvert matches the visited redirect chain against the catalog's
// conversion patterns. For each matching pattern with a prior viewed or
// clicked event inside its observation window, one conversion is queued,
// attributed to the most recent such event. Returns how many conversions were
// queued.
func (e *Engine) MaybeConvert(ctx context.Context, redirectChain []string) (int, error) {
	if len(redirectChain) == 0 {
		return 0, nil
	}

	patterns, err := e.Catalog.GetAllConversions(ctx)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, pattern := range patterns {
		if !matchesAny(pattern.URLPattern, redirectChain) {
			continue
		}

		event, ok, err := e.attributableEvent(ctx, pattern)
		if err != nil {
			return queued, err
		}
		if !ok {
			continue
		}

		item := models.ConversionQueueItem{
			PlacementID:         event.PlacementID,
			CampaignID:          event.CampaignID,
			CreativeSetID:       event.CreativeSetID,
			CreativeInstanceID:  event.CreativeInstanceID,
			AdvertiserID:        event.AdvertiserID,
			AdvertiserPublicKey: pattern.AdvertiserPublicKey,
		}
		if err := e.Queue.Add(ctx, item); err != nil {
			return queued, err
		}
		queued++

		e.Logger.Info("conversion matched",
			zap.String("creative_set_id", pattern.CreativeSetID),
			zap.String("placement_id", event.PlacementID))
	}
	return queued, nil
}

// RetireCreativeSets cancels pending conversions whose creative set is absent
// from the live set and clears the cancelled placements from the cache. It
// runs after a catalog replacement has committed, when the underlying ads may
// have been purged. Returns how many conversions were cancelled.
func (e *Engine) RetireCreativeSets(ctx context.Context, live map[string]bool) (int, error) {
	cancelled := 0
	for _, item := range e.Queue.Snapshot() {
		if live[item.CreativeSetID] {
			continue
		}
		removed, err := e.Queue.Remove(ctx, item.PlacementID)
		if err != nil {
			return cancelled, err
		}
		if !removed {
			continue
		}
		e.Cache.ResetForInstanceID(item.PlacementID)
		cancelled++
		e.Logger.Info("cancelled conversion for retired creative set",
			zap.String("creative_set_id", item.CreativeSetID),
			zap.String("placement_id", item.PlacementID))
	}
	return cancelled, nil
}

func matchesAny(pattern string, urls []string) bool {
	for _, url := range urls {
		if MatchURLPattern(pattern, url) {
			return true
		}
	}
	return false
}

// attributableEvent returns the most recent viewed or clicked event for the
// pattern's creative set inside its observation window.
func (e *Engine) attributableEvent(ctx context.Context, pattern models.CreativeSetConversion) (models.AdEvent, bool, error) {
	events, err := e.Events.GetIf(ctx,
		adevents.Condition{Column: "creative_set_id", Op: adevents.OpEq, Value: pattern.CreativeSetID})
	if err != nil {
		return models.AdEvent{}, false, err
	}

	cutoff := e.nowFn().Add(-pattern.ObservationWindow)
	for _, ev := range events {
		if ev.ConfirmationType != models.ConfirmationTypeViewed &&
			ev.ConfirmationType != models.ConfirmationTypeClicked {
			continue
		}
		if ev.CreatedAt.Before(cutoff) {
			continue
		}
		// Events arrive newest first; the first hit is the attribution.
		return ev, true, nil
	}
	return models.AdEvent{}, false, nil
}
