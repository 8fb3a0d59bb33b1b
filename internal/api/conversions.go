package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// PendingConversion is the wire shape of one queued conversion.
type PendingConversion struct {
	PlacementID   string    `json:"placement_id"`
	CampaignID    string    `json:"campaign_id"`
	CreativeSetID string    `json:"creative_set_id"`
	ConfirmAt     time.Time `json:"confirm_at"`
}

// ConversionsHandler handles GET /conversions with a snapshot of the pending
// queue, earliest confirmation first.
func (s *Server) ConversionsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "conversions"
	const method = "GET"
	defer func() { s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start)) }()

	items := s.Queue.Snapshot()
	pending := make([]PendingConversion, 0, len(items))
	for _, item := range items {
		pending = append(pending, PendingConversion{
			PlacementID:   item.PlacementID,
			CampaignID:    item.CampaignID,
			CreativeSetID: item.CreativeSetID,
			ConfirmAt:     item.ConfirmAt,
		})
	}

	body, err := json.Marshal(map[string]any{"pending": pending})
	if err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "500")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.writeJSON(w, http.StatusOK, body)
}
