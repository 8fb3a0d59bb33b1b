package eligibility

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/patrickwarner/openadtrack/internal/models"
)

func TestParentSegment(t *testing.T) {
	assert.Equal(t, "technology & computing", ParentSegment("technology & computing-software"))
	assert.Equal(t, "food & drink", ParentSegment("food & drink"))
	assert.Equal(t, "a", ParentSegment("a-b-c"))
}

func TestMatchesSegment(t *testing.T) {
	model := models.UserModel{InterestSegments: []string{"technology & computing-software"}}
	parentModel := models.UserModel{InterestSegments: []string{"technology & computing"}}
	empty := models.UserModel{}

	tests := []struct {
		name    string
		segment string
		model   models.UserModel
		want    bool
	}{
		{name: "exact match", segment: "technology & computing-software", model: model, want: true},
		{name: "parent matches targeted child", segment: "technology & computing", model: model, want: true},
		{name: "child does not match targeted parent", segment: "technology & computing-software", model: parentModel, want: false},
		{name: "unrelated segment", segment: "food & drink", model: model, want: false},
		{name: "untargeted matches any model", segment: models.SegmentUntargeted, model: model, want: true},
		{name: "untargeted matches empty model", segment: models.SegmentUntargeted, model: empty, want: true},
		{name: "targeted segment rejected by empty model", segment: "technology & computing", model: empty, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesSegment(tt.segment, tt.model))
		})
	}
}
