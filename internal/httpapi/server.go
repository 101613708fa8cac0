// Package httpapi exposes the snapshot and the write path over HTTP.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"svklom_bridge/internal/catalog"
	"svklom_bridge/internal/lom"
	"svklom_bridge/internal/poller"
	"svklom_bridge/internal/service"
)

// Server serves the read API, the write endpoint and the metrics page.
type Server struct {
	catalog *catalog.Catalog
	poller  *poller.Poller
	writes  *service.WriteService
	logger  *slog.Logger
	router  chi.Router
}

// NewServer wires the routes. registry holds the bridge collector and backs
// the /metrics page.
func NewServer(cat *catalog.Catalog, p *poller.Poller, writes *service.WriteService, registry *prometheus.Registry, logger *slog.Logger) *Server {
	s := &Server{
		catalog: cat,
		poller:  p,
		writes:  writes,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/values", s.handleValues)
		r.Get("/values/{key}", s.handleValue)
		r.Post("/write", s.handleWrite)
	})

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// valueResponse is one catalog entry joined with its snapshot value.
type valueResponse struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	ID       string `json:"id"`
	Platform string `json:"platform"`
	Group    string `json:"group,omitempty"`
	Unit     string `json:"unit,omitempty"`
	Writable bool   `json:"writable"`
	Value    string `json:"value,omitempty"`
	Known    bool   `json:"known"`
}

type valuesResponse struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Values    []valueResponse `json:"values"`
}

// writeRequest targets one entry or, with targets, several at once with the
// same value.
type writeRequest struct {
	Target  string     `json:"target,omitempty"`
	Targets []string   `json:"targets,omitempty"`
	Value   writeValue `json:"value"`
}

// writeValue accepts any JSON scalar for the value field. The controller wire
// format is strings throughout, so numbers and booleans are carried as their
// literal text.
type writeValue string

func (v *writeValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = writeValue(s)
		return nil
	}

	var scalar any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&scalar); err != nil {
		return err
	}
	switch t := scalar.(type) {
	case json.Number:
		*v = writeValue(t.String())
	case bool:
		*v = writeValue(strconv.FormatBool(t))
	default:
		return fmt.Errorf("value must be a string, number or boolean")
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.poller.Snapshot()
	status := map[string]any{
		"status":       "ok",
		"snapshot_age": snap.Age().Round(time.Millisecond).String(),
	}
	if err := s.poller.LastError(); err != nil {
		status["status"] = "degraded"
		status["last_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleValues(w http.ResponseWriter, r *http.Request) {
	snap := s.poller.Snapshot()

	resp := valuesResponse{FetchedAt: snap.FetchedAt}
	for _, entry := range s.catalog.Entries() {
		if !entry.Enabled {
			continue
		}
		resp.Values = append(resp.Values, entryValue(entry, snap))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleValue(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	entry, ok := s.catalog.ByKey(key)
	if !ok {
		entry, ok = s.catalog.ByID(key)
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown entity: " + key})
		return
	}
	writeJSON(w, http.StatusOK, entryValue(entry, s.poller.Snapshot()))
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	// Both request forms may be combined; the service collapses targets that
	// resolve to the same entry.
	targets := req.Targets
	if req.Target != "" {
		targets = append(targets, req.Target)
	}
	if len(targets) == 0 || req.Value == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "target and value are required"})
		return
	}

	if err := s.writes.WriteMany(r.Context(), targets, string(req.Value)); err != nil {
		status := writeStatus(err)
		s.logger.Warn("write rejected", "targets", targets, "status", status, "error", err)
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	// Refresh so the next read reflects the write without waiting a full
	// interval. Skipped silently when a poll is already running.
	s.poller.Refresh(r.Context())

	w.WriteHeader(http.StatusNoContent)
}

// writeStatus maps the service error taxonomy onto HTTP statuses.
func writeStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrWritesDisabled):
		return http.StatusForbidden
	case errors.Is(err, service.ErrEntityNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotWritable), errors.Is(err, service.ErrInvalidValue):
		return http.StatusUnprocessableEntity
	case errors.Is(err, lom.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func entryValue(entry catalog.Entry, snap *poller.Snapshot) valueResponse {
	v := valueResponse{
		Key:      entry.Key,
		Name:     entry.Name,
		ID:       entry.DeviceID(),
		Platform: entry.Platform,
		Group:    entry.Group,
		Unit:     entry.Unit,
		Writable: entry.Writable,
	}
	v.Value, v.Known = snap.Get(entry.DeviceID())
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
