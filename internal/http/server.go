package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"trackart/internal/core"
	"trackart/internal/flood"
)

// Manager is the part of the coordinator manager the server needs.
type Manager interface {
	HandleStateChange(sourceID string, attrs map[string]string)
	Data(sourceID string) (core.CoverData, bool)
	Snapshot() []core.CoverData
}

type Server struct {
	config  *core.ServerConfig
	logger  *zap.Logger
	manager Manager
	gate    *flood.Floodgate
	server  *http.Server
	metrics *Metrics
}

// Metrics is the Prometheus instrumentation for the daemon. It implements
// core.ResolutionObserver, so the same value feeds the coordinator manager
// and the /metrics endpoint. Each Metrics carries its own registry, so tests
// can construct instances freely.
type Metrics struct {
	ResolutionsTotal *prometheus.CounterVec
	ResolutionErrors *prometheus.CounterVec
	ResolutionTime   *prometheus.HistogramVec
	StateEventsTotal *prometheus.CounterVec
	CacheEntries     prometheus.Gauge
	ActiveSources    prometheus.Gauge

	registry *prometheus.Registry
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	metrics := &Metrics{
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trackart_resolutions_total",
				Help: "Total number of completed cover resolutions",
			},
			[]string{"provider", "status"},
		),
		ResolutionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trackart_resolution_errors_total",
				Help: "Total number of failed cover resolutions",
			},
			[]string{"provider"},
		),
		ResolutionTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trackart_resolution_duration_seconds",
				Help:    "Time spent resolving cover artwork",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		StateEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trackart_state_events_total",
				Help: "Total number of playback state notifications received",
			},
			[]string{"status"},
		),
		CacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "trackart_cache_entries",
				Help: "Current number of entries in the cover cache",
			},
		),
		ActiveSources: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "trackart_active_sources",
				Help: "Number of playback sources with a coordinator",
			},
		),
	}

	registry.MustRegister(
		metrics.ResolutionsTotal,
		metrics.ResolutionErrors,
		metrics.ResolutionTime,
		metrics.StateEventsTotal,
		metrics.CacheEntries,
		metrics.ActiveSources,
	)
	metrics.registry = registry

	return metrics
}

// NewServer builds the HTTP surface: state ingest, cover snapshots, health
// and Prometheus metrics.
func NewServer(config *core.ServerConfig, manager Manager, metrics *Metrics, logger *zap.Logger) *Server {
	s := &Server{
		config:  config,
		logger:  logger,
		manager: manager,
		gate:    flood.New(config.IngestLimitPerMinute),
		metrics: metrics,
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.routes(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"trackartd"}`))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"trackartd"}`))
	})

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /sources", s.handleListSources)
	mux.HandleFunc("GET /sources/{sourceID}", s.handleGetSource)
	mux.HandleFunc("POST /sources/{sourceID}/state", s.handleStateEvent)

	return mux
}

// sourceView is the JSON rendering of a cover snapshot. Image bytes never
// cross this surface; observers consume artwork through their host
// integration and get the byte length here for diagnostics only.
type sourceView struct {
	SourceID    string `json:"source_id"`
	Artist      string `json:"artist,omitempty"`
	Title       string `json:"title,omitempty"`
	Album       string `json:"album,omitempty"`
	Provider    string `json:"provider,omitempty"`
	ArtworkURL  string `json:"artwork_url,omitempty"`
	ContentType string `json:"content_type"`
	ImageBytes  int    `json:"image_bytes"`
	LastUpdated string `json:"last_updated,omitempty"`
	Status      string `json:"status"`
}

func viewOf(data core.CoverData) sourceView {
	view := sourceView{
		SourceID:    data.SourceID,
		Artist:      data.Artist,
		Title:       data.Title,
		Album:       data.Album,
		Provider:    data.Provider,
		ArtworkURL:  data.ArtworkURL,
		ContentType: data.ContentType,
		ImageBytes:  len(data.Image),
		Status:      string(data.Status),
	}
	if !data.LastUpdated.IsZero() {
		view.LastUpdated = data.LastUpdated.Format(time.RFC3339)
	}
	return view
}

func (s *Server) handleListSources(w http.ResponseWriter, _ *http.Request) {
	snapshots := s.manager.Snapshot()
	views := make([]sourceView, 0, len(snapshots))
	for _, data := range snapshots {
		views = append(views, viewOf(data))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	sourceID := r.PathValue("sourceID")

	data, exists := s.manager.Data(sourceID)
	if !exists {
		s.writeError(w, http.StatusNotFound, "unknown source")
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(data))
}

// stateRequest is one playback state notification. Attribute keys follow the
// media player convention: media_artist, media_title, media_album_name.
type stateRequest struct {
	Attributes map[string]string `json:"attributes"`
}

func (s *Server) handleStateEvent(w http.ResponseWriter, r *http.Request) {
	sourceID := r.PathValue("sourceID")

	if !s.gate.CheckEvent(sourceID) {
		s.metrics.StateEventsTotal.WithLabelValues("throttled").Inc()
		s.logger.Warn("State event throttled", zap.String("source", sourceID))
		s.writeError(w, http.StatusTooManyRequests, "source is sending too fast")
		return
	}

	var req stateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.StateEventsTotal.WithLabelValues("invalid").Inc()
		s.writeError(w, http.StatusBadRequest, "malformed state event")
		return
	}

	s.metrics.StateEventsTotal.WithLabelValues("accepted").Inc()
	s.manager.HandleStateChange(sourceID, req.Attributes)

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `{"error":%q}`+"\n", message)
}

// Start runs the server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
		s.gate.Stop()
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// ObserveResolution implements core.ResolutionObserver.
func (m *Metrics) ObserveResolution(provider string, status core.Status, duration time.Duration) {
	if provider == "" {
		provider = "none"
	}
	m.ResolutionsTotal.WithLabelValues(provider, string(status)).Inc()
	m.ResolutionTime.WithLabelValues(provider).Observe(duration.Seconds())
}

// ObserveResolutionError implements core.ResolutionObserver.
func (m *Metrics) ObserveResolutionError(provider string) {
	if provider == "" {
		provider = "none"
	}
	m.ResolutionErrors.WithLabelValues(provider).Inc()
}

// SetCacheEntries updates the cover cache size gauge.
func (m *Metrics) SetCacheEntries(count int) {
	m.CacheEntries.Set(float64(count))
}

// SetActiveSources updates the active source gauge.
func (m *Metrics) SetActiveSources(count int) {
	m.ActiveSources.Set(float64(count))
}
