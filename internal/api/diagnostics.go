package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DiagnosticLogHandler handles GET /diagnostics/log with the current log
// contents as plain text.
func (s *Server) DiagnosticLogHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "diagnostics_log"
	const method = "GET"
	defer func() { s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start)) }()

	if s.Diagnostics == nil {
		s.Metrics.IncrementRequests(endpoint, method, "404")
		http.Error(w, "diagnostic log not configured", http.StatusNotFound)
		return
	}

	content, err := s.Diagnostics.ReadAll(r.Context())
	if err != nil {
		s.Logger.Error("read diagnostic log", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	s.Metrics.IncrementRequests(endpoint, method, "200")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(content)); err != nil {
		s.Logger.Warn("response write", zap.Error(err))
	}
}
