package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/avct/uasurfer"
	"go.uber.org/zap"

	"github.com/patrickwarner/openadtrack/internal/adevents"
	"github.com/patrickwarner/openadtrack/internal/models"
)

// EventRequest is one reported ad event.
type EventRequest struct {
	PlacementID        string `json:"placement_id"`
	AdType             string `json:"ad_type"`
	ConfirmationType   string `json:"confirmation_type"`
	CampaignID         string `json:"campaign_id"`
	CreativeSetID      string `json:"creative_set_id"`
	CreativeInstanceID string `json:"creative_instance_id"`
	AdvertiserID       string `json:"advertiser_id"`
}

// EventHandler handles POST /event. Device type and country are derived from
// the request and travel only to the analytics mirror.
func (s *Server) EventHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "event"
	const method = "POST"
	defer func() { s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start)) }()

	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	event := models.AdEvent{
		PlacementID:        req.PlacementID,
		Type:               models.AdType(req.AdType),
		ConfirmationType:   models.ConfirmationType(req.ConfirmationType),
		CampaignID:         req.CampaignID,
		CreativeSetID:      req.CreativeSetID,
		CreativeInstanceID: req.CreativeInstanceID,
		AdvertiserID:       req.AdvertiserID,
	}

	err := s.Engine.FireAdEvent(r.Context(), event, deviceType(r), s.country(r))
	if errors.Is(err, adevents.ErrEmptyInstanceID) ||
		errors.Is(err, adevents.ErrUndefinedAdType) ||
		errors.Is(err, adevents.ErrUndefinedConfirmationType) {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.Logger.Error("fire ad event", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if s.Diagnostics != nil {
		s.Diagnostics.Append("ad event " + req.AdType + "/" + req.ConfirmationType +
			" placement " + req.PlacementID)
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.writeJSON(w, http.StatusOK, []byte(`{"status":"recorded"}`))
}

// deviceType classifies the requesting user agent.
func deviceType(r *http.Request) string {
	ua := r.UserAgent()
	if ua == "" {
		return ""
	}
	switch uasurfer.Parse(ua).DeviceType {
	case uasurfer.DevicePhone:
		return "phone"
	case uasurfer.DeviceTablet:
		return "tablet"
	case uasurfer.DeviceComputer:
		return "desktop"
	case uasurfer.DeviceTV:
		return "tv"
	default:
		return "other"
	}
}

// country resolves the client IP to an ISO country code.
func (s *Server) country(r *http.Request) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		host = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return s.GeoIP.Country(net.ParseIP(host))
}
