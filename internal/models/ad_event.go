package models

import "time"

// AdEvent is one timestamped occurrence of an ad lifecycle action. Events are
// immutable once logged; they are only ever removed by the expiry and orphan
// purges on the durable table.
type AdEvent struct {
	PlacementID        string
	Type               AdType
	ConfirmationType   ConfirmationType
	CampaignID         string
	CreativeSetID      string
	CreativeInstanceID string
	AdvertiserID       string
	CreatedAt          time.Time
}
