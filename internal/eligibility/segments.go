package eligibility

import (
	"strings"

	"github.com/patrickwarner/openadtrack/internal/models"
)

// segmentSeparator splits a segment string into its parent-child hierarchy,
// e.g. "technology & computing-software".
const segmentSeparator = "-"

// ParentSegment returns the top-level portion of a segment. A segment with no
// separator is its own parent.
func ParentSegment(segment string) string {
	if idx := strings.Index(segment, segmentSeparator); idx >= 0 {
		return segment[:idx]
	}
	return segment
}

// MatchesSegment reports whether a creative's segment is eligible for the
// user model. A creative matches when its segment equals a targeted segment,
// when it is the parent of a targeted segment, or when it is the untargeted
// sentinel. A child-segment creative does not match a model that only targets
// the parent. An empty model matches untargeted creatives only.
func MatchesSegment(creativeSegment string, model models.UserModel) bool {
	if creativeSegment == models.SegmentUntargeted {
		return true
	}
	for _, targeted := range model.InterestSegments {
		if creativeSegment == targeted {
			return true
		}
		if creativeSegment == ParentSegment(targeted) {
			return true
		}
	}
	return false
}
