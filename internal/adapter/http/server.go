package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/incident-hotspot-service/internal/domain"
)

const (
	defaultHotspotLimit = 100
	maxIncidentBody     = 1 << 20
)

// Engine is the view-model service behind the API.
type Engine interface {
	View(ctx context.Context) domain.ViewModel
	CurrentFocus(ctx context.Context) *domain.FocusView
	Select(ctx context.Context, id domain.CellID) bool
	IngestBatch(ctx context.Context, events []domain.IncidentEvent) (int, error)
	RefreshZones(ctx context.Context) error
	Reset()
}

// Server exposes health, readiness, metrics and the hotspot API.
type Server struct {
	httpServer *http.Server
	engine     Engine
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the operational routes and the /v1 API.
func NewServer(addr string, engine Engine, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(15 * time.Second))

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 20 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		engine: engine,
		logger: logger,
	}

	router.Get("/healthz", sharedobs.LivenessHandler())
	router.Get("/readyz", sharedobs.ReadinessHandler(ready))
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/v1", func(r chi.Router) {
		r.Get("/view", s.handleView)
		r.Get("/hotspots", s.handleHotspots)
		r.Get("/focus", s.handleGetFocus)
		r.Put("/focus", s.handleSelectFocus)
		r.Post("/incidents", s.handleIngest)
		r.Post("/zones/refresh", s.handleRefreshZones)
		r.Post("/admin/reset", s.handleReset)
	})

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.View(r.Context()))
}

func (s *Server) handleHotspots(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), defaultHotspotLimit)
	vm := s.engine.View(r.Context())

	items := vm.Hotspots
	if len(items) > limit {
		items = items[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(vm.Hotspots),
	})
}

func (s *Server) handleGetFocus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"focus": s.engine.CurrentFocus(r.Context())})
}

type selectRequest struct {
	CellID domain.CellID `json:"cell_id"`
}

func (s *Server) handleSelectFocus(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.CellID == "" {
		writeError(w, http.StatusBadRequest, errors.New("cell_id is required"))
		return
	}

	selected := s.engine.Select(r.Context(), req.CellID)
	writeJSON(w, http.StatusOK, map[string]any{
		"selected": selected,
		"focus":    s.engine.CurrentFocus(r.Context()),
	})
}

type rejection struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var records []json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIncidentBody)).Decode(&records); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode incidents: %w", err))
		return
	}

	events := make([]domain.IncidentEvent, 0, len(records))
	rejected := make([]rejection, 0)
	for i, raw := range records {
		ev, err := domain.ParseRawEvent(domain.RawEvent{Value: raw})
		if err != nil {
			rejected = append(rejected, rejection{Index: i, Error: err.Error()})
			continue
		}
		events = append(events, ev)
	}

	accepted, err := s.engine.IngestBatch(r.Context(), events)
	if err != nil {
		// Parsing already rejects non-finite coordinates, so this is unexpected.
		s.logger.Warn("incident batch partially rejected", "error", err)
	}
	if len(rejected) > 0 {
		s.logger.Warn("rejected incidents", "count", len(rejected))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accepted": accepted,
		"rejected": rejected,
	})
}

func (s *Server) handleRefreshZones(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RefreshZones(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"refreshed": false,
			"warning":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"refreshed": true})
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.engine.Reset()
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
