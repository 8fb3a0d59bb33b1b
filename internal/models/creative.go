package models

import "time"

// SegmentUntargeted is the sentinel segment that matches regardless of the
// user's interest model.
const SegmentUntargeted = "untargeted"

// CreativeAd is one servable creative loaded from the catalog. Read-only from
// the eligibility pipeline's point of view; filtering derives candidate lists
// without mutating the stored records.
type CreativeAd struct {
	CreativeInstanceID string
	CreativeSetID      string
	CampaignID         string
	AdvertiserID       string
	Segment            string
	// Dimensions is the declared creative size, e.g. "200x100".
	Dimensions string
	// Ptr is the probability-to-render in [0,1] used for pacing.
	Ptr float64
	// Priority orders selection; a lower value wins.
	Priority int
}

// CreativeSetConversion declares a convertible URL pattern for a creative set.
type CreativeSetConversion struct {
	CreativeSetID string
	// URLPattern may contain "*" wildcards, e.g. "https://foo.com/*".
	URLPattern string
	// ObservationWindow bounds how far back a prior ad event may be for a
	// visit to still attribute a conversion.
	ObservationWindow time.Duration
	// AdvertiserPublicKey is set for verifiable conversions only.
	AdvertiserPublicKey string
}
