// Package eligibility reduces the creative catalog to the candidate set that
// may serve into a given ad slot. Filtering is a pure function of its inputs
// and the injected randomness source, so a fixed random value makes the whole
// pipeline deterministic.
package eligibility

import (
	"math/rand"

	"go.uber.org/zap"

	"github.com/patrickwarner/openadtrack/internal/models"
	"github.com/patrickwarner/openadtrack/internal/observability"
)

// Request carries the serving context a slot provides.
type Request struct {
	// Dimensions is the slot size, e.g. "200x100".
	Dimensions string
	UserModel  models.UserModel
	// Seen holds creative instance ids already shown to this profile.
	Seen map[string]bool
}

// Result is the pipeline outcome. HadOpportunity is true when at least one
// creative matched the user's segments, even if later stages filtered every
// candidate out; it separates "nothing matched" from "matched but suppressed"
// for telemetry.
type Result struct {
	HadOpportunity bool
	Creatives      []models.CreativeAd
}

// Pipeline applies the eligibility stages in order: dimensions, segment
// match, already-seen, pacing, priority selection.
type Pipeline struct {
	metrics observability.MetricsRegistry
	logger  *zap.Logger
	randFn  func() float64
}

// NewPipeline constructs a Pipeline. A nil metrics registry falls back to the
// no-op implementation.
func NewPipeline(metrics observability.MetricsRegistry, logger *zap.Logger) *Pipeline {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Pipeline{
		metrics: metrics,
		logger:  logger,
		randFn:  rand.Float64,
	}
}

// GetForUserModel filters ads down to the servable candidate set for the
// request. The input slice is never mutated.
func (p *Pipeline) GetForUserModel(ads []models.CreativeAd, req Request) Result {
	sized := filterDimensions(ads, req.Dimensions)
	matched := filterSegments(sized, req.UserModel)

	result := Result{HadOpportunity: len(matched) > 0}

	unseen := filterSeen(matched, req.Seen)
	paced := p.filterPacing(unseen)
	result.Creatives = selectLowestPriority(paced)

	switch {
	case !result.HadOpportunity:
		p.metrics.IncrementEligibilityOutcome("no_match")
	case len(result.Creatives) == 0:
		p.metrics.IncrementEligibilityOutcome("suppressed")
	default:
		p.metrics.IncrementEligibilityOutcome("candidates")
	}

	p.logger.Debug("eligibility pipeline",
		zap.String("dimensions", req.Dimensions),
		zap.Int("catalog", len(ads)),
		zap.Int("segment_matched", len(matched)),
		zap.Int("candidates", len(result.Creatives)),
		zap.Bool("had_opportunity", result.HadOpportunity))

	return result
}

func filterDimensions(ads []models.CreativeAd, dimensions string) []models.CreativeAd {
	out := make([]models.CreativeAd, 0, len(ads))
	for _, ad := range ads {
		if ad.Dimensions == dimensions {
			out = append(out, ad)
		}
	}
	return out
}

func filterSegments(ads []models.CreativeAd, model models.UserModel) []models.CreativeAd {
	out := make([]models.CreativeAd, 0, len(ads))
	for _, ad := range ads {
		if MatchesSegment(ad.Segment, model) {
			out = append(out, ad)
		}
	}
	return out
}

func filterSeen(ads []models.CreativeAd, seen map[string]bool) []models.CreativeAd {
	if len(seen) == 0 {
		return ads
	}
	out := make([]models.CreativeAd, 0, len(ads))
	for _, ad := range ads {
		if !seen[ad.CreativeInstanceID] {
			out = append(out, ad)
		}
	}
	return out
}

// filterPacing drops a creative when the drawn value exceeds its probability
// to render. A draw equal to the ptr survives.
func (p *Pipeline) filterPacing(ads []models.CreativeAd) []models.CreativeAd {
	out := make([]models.CreativeAd, 0, len(ads))
	for _, ad := range ads {
		if p.randFn() <= ad.Ptr {
			out = append(out, ad)
		}
	}
	return out
}

// selectLowestPriority keeps only the creatives sharing the lowest priority
// value present. Lower number means higher priority.
func selectLowestPriority(ads []models.CreativeAd) []models.CreativeAd {
	if len(ads) == 0 {
		return nil
	}
	lowest := ads[0].Priority
	for _, ad := range ads[1:] {
		if ad.Priority < lowest {
			lowest = ad.Priority
		}
	}
	out := make([]models.CreativeAd, 0, len(ads))
	for _, ad := range ads {
		if ad.Priority == lowest {
			out = append(out, ad)
		}
	}
	return out
}
