package models

// AdType identifies the surface an ad was delivered through.
type AdType string

const (
	AdTypeUndefined       AdType = ""
	AdTypeNotification    AdType = "ad_notification"
	AdTypeInlineContent   AdType = "inline_content_ad"
	AdTypeNewTabPage      AdType = "new_tab_page_ad"
	AdTypePromotedContent AdType = "promoted_content_ad"
)

// IsDefined reports whether t is one of the known ad types.
func (t AdType) IsDefined() bool {
	switch t {
	case AdTypeNotification, AdTypeInlineContent, AdTypeNewTabPage, AdTypePromotedContent:
		return true
	}
	return false
}

func (t AdType) String() string { return string(t) }

// ConfirmationType is the kind of ad event reported for billing/measurement.
type ConfirmationType string

const (
	ConfirmationTypeUndefined  ConfirmationType = ""
	ConfirmationTypeServed     ConfirmationType = "served"
	ConfirmationTypeViewed     ConfirmationType = "viewed"
	ConfirmationTypeClicked    ConfirmationType = "clicked"
	ConfirmationTypeDismissed  ConfirmationType = "dismissed"
	ConfirmationTypeConversion ConfirmationType = "conversion"
)

// IsDefined reports whether c is one of the known confirmation types.
func (c ConfirmationType) IsDefined() bool {
	switch c {
	case ConfirmationTypeServed, ConfirmationTypeViewed, ConfirmationTypeClicked,
		ConfirmationTypeDismissed, ConfirmationTypeConversion:
		return true
	}
	return false
}

func (c ConfirmationType) String() string { return string(c) }
