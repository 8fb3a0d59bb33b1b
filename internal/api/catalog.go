package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/openadtrack/internal/models"
)

// CatalogSyncRequest replaces the full creative catalog.
type CatalogSyncRequest struct {
	CreativeAds []CatalogCreativeAd `json:"creative_ads"`
	Conversions []CatalogConversion `json:"conversions"`
}

// CatalogCreativeAd is the wire shape of one catalog creative.
type CatalogCreativeAd struct {
	CreativeInstanceID string  `json:"creative_instance_id"`
	CreativeSetID      string  `json:"creative_set_id"`
	CampaignID         string  `json:"campaign_id"`
	AdvertiserID       string  `json:"advertiser_id"`
	Segment            string  `json:"segment"`
	Dimensions         string  `json:"dimensions"`
	Ptr                float64 `json:"ptr"`
	Priority           int     `json:"priority"`
}

// CatalogConversion is the wire shape of one conversion pattern.
type CatalogConversion struct {
	CreativeSetID            string `json:"creative_set_id"`
	URLPattern               string `json:"url_pattern"`
	ObservationWindowSeconds int64  `json:"observation_window_seconds"`
	AdvertiserPublicKey      string `json:"advertiser_public_key,omitempty"`
}

// CatalogSyncHandler handles POST /catalog/sync. The purges run only after
// the catalog replacement has committed; PurgeExpired reads the tables the
// sync just wrote.
func (s *Server) CatalogSyncHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "catalog_sync"
	const method = "POST"
	defer func() { s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start)) }()

	var req CatalogSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ads := make([]models.CreativeAd, 0, len(req.CreativeAds))
	for _, ad := range req.CreativeAds {
		segment := ad.Segment
		if segment == "" {
			segment = models.SegmentUntargeted
		}
		ads = append(ads, models.CreativeAd{
			CreativeInstanceID: ad.CreativeInstanceID,
			CreativeSetID:      ad.CreativeSetID,
			CampaignID:         ad.CampaignID,
			AdvertiserID:       ad.AdvertiserID,
			Segment:            segment,
			Dimensions:         ad.Dimensions,
			Ptr:                ad.Ptr,
			Priority:           ad.Priority,
		})
	}
	conversions := make([]models.CreativeSetConversion, 0, len(req.Conversions))
	for _, conv := range req.Conversions {
		conversions = append(conversions, models.CreativeSetConversion{
			CreativeSetID:       conv.CreativeSetID,
			URLPattern:          conv.URLPattern,
			ObservationWindow:   time.Duration(conv.ObservationWindowSeconds) * time.Second,
			AdvertiserPublicKey: conv.AdvertiserPublicKey,
		})
	}

	if err := s.Catalog.ReplaceAll(r.Context(), ads, conversions); err != nil {
		s.Logger.Error("catalog sync", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	live := make(map[string]bool, len(ads)+len(conversions))
	for _, ad := range ads {
		live[ad.CreativeSetID] = true
	}
	for _, conv := range conversions {
		live[conv.CreativeSetID] = true
	}
	cancelled, err := s.Engine.RetireCreativeSets(r.Context(), live)
	if err != nil {
		s.Logger.Error("retire creative sets after sync", zap.Error(err))
	}

	expired, err := s.Events.PurgeExpired(r.Context())
	if err != nil {
		s.Logger.Error("purge expired after sync", zap.Error(err))
	}
	var orphaned int64
	for _, adType := range []models.AdType{
		models.AdTypeNotification, models.AdTypeInlineContent,
		models.AdTypeNewTabPage, models.AdTypePromotedContent,
	} {
		n, err := s.Events.PurgeOrphaned(r.Context(), adType)
		if err != nil {
			s.Logger.Error("purge orphaned after sync",
				zap.String("ad_type", adType.String()), zap.Error(err))
			continue
		}
		orphaned += n
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.writeJSON(w, http.StatusOK, []byte(fmt.Sprintf(
		`{"creative_ads":%d,"conversions":%d,"cancelled_conversions":%d,"purged_expired":%d,"purged_orphaned":%d}`,
		len(ads), len(conversions), cancelled, expired, orphaned)))
}
