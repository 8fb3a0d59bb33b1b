package models

import "time"

// ConversionQueueItem is one pending conversion confirmation, scheduled to be
// dispatched at ConfirmAt. Items are ordered ascending by ConfirmAt and removed
// once dispatched or cancelled.
type ConversionQueueItem struct {
	// PlacementID is the ad placement the conversion is attributed to; the
	// legacy on-disk format calls this "uuid".
	PlacementID         string
	CampaignID          string
	CreativeSetID       string
	CreativeInstanceID  string
	AdvertiserID        string
	ConversionID        string
	AdvertiserPublicKey string
	ConfirmAt           time.Time
}
