package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/openadtrack/internal/engine"
	"github.com/patrickwarner/openadtrack/internal/models"
)

// ServeRequest is the eligibility request for one ad slot.
type ServeRequest struct {
	AdType     string   `json:"ad_type"`
	Dimensions string   `json:"dimensions"`
	Segments   []string `json:"segments"`
}

// ServeResponse carries the candidate set. HadOpportunity distinguishes
// "nothing matched" from "matched but suppressed".
type ServeResponse struct {
	HadOpportunity bool         `json:"had_opportunity"`
	Creatives      []CreativeAd `json:"creatives"`
}

// CreativeAd is the wire shape of one candidate.
type CreativeAd struct {
	CreativeInstanceID string  `json:"creative_instance_id"`
	CreativeSetID      string  `json:"creative_set_id"`
	CampaignID         string  `json:"campaign_id"`
	AdvertiserID       string  `json:"advertiser_id"`
	Segment            string  `json:"segment"`
	Dimensions         string  `json:"dimensions"`
	Ptr                float64 `json:"ptr"`
	Priority           int     `json:"priority"`
}

// ServeHandler handles POST /serve.
func (s *Server) ServeHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "serve"
	const method = "POST"
	defer func() { s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start)) }()

	var req ServeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	adType := models.AdType(req.AdType)
	if !adType.IsDefined() {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		http.Error(w, "unknown ad_type", http.StatusBadRequest)
		return
	}
	if req.Dimensions == "" {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		http.Error(w, "dimensions required", http.StatusBadRequest)
		return
	}

	model := models.UserModel{InterestSegments: req.Segments}
	result, err := s.Engine.ServeAd(r.Context(), adType, req.Dimensions, model)
	if errors.Is(err, engine.ErrDailyCapReached) {
		s.Metrics.IncrementRequests(endpoint, method, "429")
		http.Error(w, "daily ad cap reached", http.StatusTooManyRequests)
		return
	}
	if err != nil {
		s.Logger.Error("serve ad", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := ServeResponse{
		HadOpportunity: result.HadOpportunity,
		Creatives:      make([]CreativeAd, 0, len(result.Creatives)),
	}
	for _, ad := range result.Creatives {
		resp.Creatives = append(resp.Creatives, CreativeAd{
			CreativeInstanceID: ad.CreativeInstanceID,
			CreativeSetID:      ad.CreativeSetID,
			CampaignID:         ad.CampaignID,
			AdvertiserID:       ad.AdvertiserID,
			Segment:            ad.Segment,
			Dimensions:         ad.Dimensions,
			Ptr:                ad.Ptr,
			Priority:           ad.Priority,
		})
	}

	body, err := json.Marshal(resp)
	if err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "500")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.writeJSON(w, http.StatusOK, body)
}
