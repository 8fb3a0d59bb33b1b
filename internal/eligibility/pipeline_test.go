package eligibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/openadtrack/internal/models"
)

func newTestPipeline(randValue float64) *Pipeline {
	p := NewPipeline(nil, nil)
	p.randFn = func() float64 { return randValue }
	return p
}

func creative(instanceID, segment string, opts ...func(*models.CreativeAd)) models.CreativeAd {
	ad := models.CreativeAd{
		CreativeInstanceID: instanceID,
		CreativeSetID:      "set-" + instanceID,
		CampaignID:         "campaign-1",
		AdvertiserID:       "advertiser-1",
		Segment:            segment,
		Dimensions:         "200x100",
		Ptr:                1.0,
		Priority:           1,
	}
	for _, opt := range opts {
		opt(&ad)
	}
	return ad
}

func withDimensions(d string) func(*models.CreativeAd) {
	return func(ad *models.CreativeAd) { ad.Dimensions = d }
}

func withPtr(ptr float64) func(*models.CreativeAd) {
	return func(ad *models.CreativeAd) { ad.Ptr = ptr }
}

func withPriority(p int) func(*models.CreativeAd) {
	return func(ad *models.CreativeAd) { ad.Priority = p }
}

func instanceIDs(ads []models.CreativeAd) []string {
	out := make([]string, 0, len(ads))
	for _, ad := range ads {
		out = append(out, ad.CreativeInstanceID)
	}
	return out
}

func TestPipelineDimensionFilter(t *testing.T) {
	p := newTestPipeline(0)
	ads := []models.CreativeAd{
		creative("fits", "food & drink"),
		creative("too-big", "food & drink", withDimensions("728x90")),
	}
	req := Request{
		Dimensions: "200x100",
		UserModel:  models.UserModel{InterestSegments: []string{"food & drink"}},
	}

	result := p.GetForUserModel(ads, req)
	assert.True(t, result.HadOpportunity)
	assert.Equal(t, []string{"fits"}, instanceIDs(result.Creatives))
}

func TestPipelineSegmentHierarchy(t *testing.T) {
	p := newTestPipeline(0)
	ads := []models.CreativeAd{
		creative("parent", "technology & computing"),
		creative("child", "technology & computing-software"),
		creative("other", "automotive"),
	}
	req := Request{
		Dimensions: "200x100",
		UserModel:  models.UserModel{InterestSegments: []string{"technology & computing-software"}},
	}

	result := p.GetForUserModel(ads, req)
	assert.True(t, result.HadOpportunity)
	assert.ElementsMatch(t, []string{"parent", "child"}, instanceIDs(result.Creatives))
}

func TestPipelineEmptyModelServesUntargetedOnly(t *testing.T) {
	p := newTestPipeline(0)
	ads := []models.CreativeAd{
		creative("targeted", "automotive"),
		creative("generic", models.SegmentUntargeted),
	}

	result := p.GetForUserModel(ads, Request{Dimensions: "200x100"})
	assert.True(t, result.HadOpportunity)
	assert.Equal(t, []string{"generic"}, instanceIDs(result.Creatives))
}

func TestPipelineSeenFilter(t *testing.T) {
	p := newTestPipeline(0)
	ads := []models.CreativeAd{
		creative("fresh", "automotive"),
		creative("already-shown", "automotive"),
	}
	req := Request{
		Dimensions: "200x100",
		UserModel:  models.UserModel{InterestSegments: []string{"automotive"}},
		Seen:       map[string]bool{"already-shown": true},
	}

	result := p.GetForUserModel(ads, req)
	assert.True(t, result.HadOpportunity)
	assert.Equal(t, []string{"fresh"}, instanceIDs(result.Creatives))
}

func TestPipelinePacing(t *testing.T) {
	// With the draw fixed at 0.3, ptr=0.5 survives and ptr=0.1 is paced out.
	p := newTestPipeline(0.3)
	ads := []models.CreativeAd{
		creative("low-ptr", "automotive", withPtr(0.1)),
		creative("high-ptr", "automotive", withPtr(0.5)),
	}
	req := Request{
		Dimensions: "200x100",
		UserModel:  models.UserModel{InterestSegments: []string{"automotive"}},
	}

	result := p.GetForUserModel(ads, req)
	assert.True(t, result.HadOpportunity)
	assert.Equal(t, []string{"high-ptr"}, instanceIDs(result.Creatives))
}

func TestPipelinePacingBoundaryDrawSurvives(t *testing.T) {
	p := newTestPipeline(0.5)
	ads := []models.CreativeAd{creative("edge", "automotive", withPtr(0.5))}
	req := Request{
		Dimensions: "200x100",
		UserModel:  models.UserModel{InterestSegments: []string{"automotive"}},
	}

	result := p.GetForUserModel(ads, req)
	assert.Equal(t, []string{"edge"}, instanceIDs(result.Creatives))
}

func TestPipelinePrioritySelection(t *testing.T) {
	p := newTestPipeline(0)
	ads := []models.CreativeAd{
		creative("urgent-a", "automotive", withPriority(1)),
		creative("urgent-b", "automotive", withPriority(1)),
		creative("backfill", "automotive", withPriority(3)),
	}
	req := Request{
		Dimensions: "200x100",
		UserModel:  models.UserModel{InterestSegments: []string{"automotive"}},
	}

	result := p.GetForUserModel(ads, req)
	assert.ElementsMatch(t, []string{"urgent-a", "urgent-b"}, instanceIDs(result.Creatives))
}

func TestPipelineHadOpportunityDistinction(t *testing.T) {
	req := Request{
		Dimensions: "200x100",
		UserModel:  models.UserModel{InterestSegments: []string{"automotive"}},
	}

	// Nothing matches the model at all.
	p := newTestPipeline(0)
	result := p.GetForUserModel([]models.CreativeAd{creative("x", "food & drink")}, req)
	assert.False(t, result.HadOpportunity)
	assert.Empty(t, result.Creatives)

	// A creative matched but pacing suppressed it.
	p = newTestPipeline(0.99)
	result = p.GetForUserModel([]models.CreativeAd{creative("y", "automotive", withPtr(0.1))}, req)
	assert.True(t, result.HadOpportunity)
	assert.Empty(t, result.Creatives)
}

func TestPipelineDeterminism(t *testing.T) {
	ads := []models.CreativeAd{
		creative("a", "automotive", withPtr(0.4)),
		creative("b", "automotive", withPtr(0.6), withPriority(2)),
		creative("c", models.SegmentUntargeted, withPtr(0.8)),
	}
	req := Request{
		Dimensions: "200x100",
		UserModel:  models.UserModel{InterestSegments: []string{"automotive"}},
	}

	first := newTestPipeline(0.5).GetForUserModel(ads, req)
	for i := 0; i < 10; i++ {
		again := newTestPipeline(0.5).GetForUserModel(ads, req)
		require.Equal(t, first, again)
	}
}
