package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// VisitRequest carries a page visit's redirect chain, first hop to landing
// URL.
type VisitRequest struct {
	RedirectChain []string `json:"redirect_chain"`
}

// VisitHandler handles POST /visit: the chain is matched against the
// catalog's conversion patterns and matching conversions are queued.
func (s *Server) VisitHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "visit"
	const method = "POST"
	defer func() { s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start)) }()

	var req VisitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.RedirectChain) == 0 {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		http.Error(w, "redirect_chain required", http.StatusBadRequest)
		return
	}

	queued, err := s.Engine.MaybeConvert(r.Context(), req.RedirectChain)
	if err != nil {
		s.Logger.Error("conversion matching", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.writeJSON(w, http.StatusOK, []byte(fmt.Sprintf(`{"queued_conversions":%d}`, queued)))
}
