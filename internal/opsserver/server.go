// Package opsserver exposes the bot's operational HTTP endpoints: Prometheus
// metrics, liveness and readiness probes, and a read-only view of the team
// state store.
package opsserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Iron-Ham/teambot/internal/logging"
	"github.com/Iron-Ham/teambot/internal/state"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":9464"

// StateSource provides a point-in-time copy of the team state.
type StateSource interface {
	Contents() *state.Contents
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReadiness sets the check behind /readyz. Without it the server is
// always ready.
func WithReadiness(ready func() bool) Option {
	return func(s *Server) {
		s.ready = ready
	}
}

// WithClock overrides the clock used for record ages.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// Server serves the ops endpoints.
type Server struct {
	addr   string
	router *mux.Router
	srv    *http.Server
	store  StateSource
	ready  func() bool
	now    func() time.Time
	logger *logging.Logger
}

// New creates a Server. gatherer is typically the registry the metrics
// collector registered with.
func New(addr string, gatherer prometheus.Gatherer, store StateSource, opts ...Option) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{
		addr:   addr,
		store:  store,
		now:    time.Now,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	r.HandleFunc("/state/{origin}", s.handleOrigin).Methods(http.MethodGet)
	s.router = r

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start listens in the background. The returned channel receives the
// server's terminal error; it receives nothing after a clean Shutdown.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("ops server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ready != nil && !s.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleState returns the whole store in the snapshot file format.
func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	data, err := state.Encode(s.store.Contents())
	if err != nil {
		s.logger.Error("failed to encode state", "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "encode state"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type originView struct {
	Origin       string           `json:"origin"`
	Assignment   *assignmentView  `json:"assignment,omitempty"`
	Destinations *destinationView `json:"destinations,omitempty"`
}

type assignmentView struct {
	Red        []string `json:"red"`
	Blue       []string `json:"blue"`
	AgeSeconds float64  `json:"ageSeconds"`
}

type destinationView struct {
	Red        string  `json:"red"`
	Blue       string  `json:"blue"`
	AgeSeconds float64 `json:"ageSeconds"`
}

// handleOrigin returns the records of a single origin channel.
func (s *Server) handleOrigin(w http.ResponseWriter, r *http.Request) {
	origin, err := snowflake.ParseString(mux.Vars(r)["origin"])
	if err != nil || origin <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid origin id"})
		return
	}

	contents := s.store.Contents()
	now := s.now()
	view := originView{Origin: origin.String()}

	if rec, ok := contents.Assignments[origin]; ok {
		view.Assignment = &assignmentView{
			Red:        idStrings(rec.Value.Red),
			Blue:       idStrings(rec.Value.Blue),
			AgeSeconds: rec.Age(now).Seconds(),
		}
	}
	if rec, ok := contents.Destinations[origin]; ok {
		view.Destinations = &destinationView{
			Red:        rec.Value.Red.String(),
			Blue:       rec.Value.Blue.String(),
			AgeSeconds: rec.Age(now).Seconds(),
		}
	}

	if view.Assignment == nil && view.Destinations == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no record for origin"})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func idStrings(ids []snowflake.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
