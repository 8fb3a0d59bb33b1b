// Package api exposes the ad-event subsystem over HTTP.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/openadtrack/internal/adevents"
	"github.com/patrickwarner/openadtrack/internal/config"
	"github.com/patrickwarner/openadtrack/internal/conversions"
	"github.com/patrickwarner/openadtrack/internal/creatives"
	"github.com/patrickwarner/openadtrack/internal/diagnostics"
	"github.com/patrickwarner/openadtrack/internal/engine"
	"github.com/patrickwarner/openadtrack/internal/geoip"
	"github.com/patrickwarner/openadtrack/internal/observability"
)

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger      *zap.Logger
	Engine      *engine.Engine
	Queue       *conversions.Queue
	Events      *adevents.Table
	Catalog     *creatives.Catalog
	GeoIP       *geoip.Resolver
	Diagnostics *diagnostics.Log
	Metrics     observability.MetricsRegistry
	Config      config.Config
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, eng *engine.Engine, queue *conversions.Queue,
	events *adevents.Table, catalog *creatives.Catalog, geo *geoip.Resolver,
	diag *diagnostics.Log, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Server{
		Logger:      logger,
		Engine:      eng,
		Queue:       queue,
		Events:      events,
		Catalog:     catalog,
		GeoIP:       geo,
		Diagnostics: diag,
		Metrics:     metrics,
		Config:      cfg,
	}
}

// Router builds the HTTP routing table, traced end to end.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/serve", s.ServeHandler).Methods("POST")
	r.HandleFunc("/event", s.EventHandler).Methods("POST")
	r.HandleFunc("/visit", s.VisitHandler).Methods("POST")
	r.HandleFunc("/catalog/sync", s.CatalogSyncHandler).Methods("POST")
	r.HandleFunc("/conversions", s.ConversionsHandler).Methods("GET")
	r.HandleFunc("/diagnostics/log", s.DiagnosticLogHandler).Methods("GET")
	r.HandleFunc("/health", s.HealthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())
	return otelhttp.NewHandler(r, "openadtrack")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		s.Logger.Warn("response write", zap.Error(err))
	}
}
