// Package api exposes device state and IR commands over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meishild/mzbtir/internal/ble"
	"github.com/meishild/mzbtir/internal/worker"
)

// Controller is the part of *worker.Worker the server drives.
type Controller interface {
	Devices() []worker.DeviceStatus
	Refresh(ctx context.Context, name string) ([]worker.Message, error)
	Send(ctx context.Context, name, key, code string) error
	Receive(ctx context.Context, name string, timeout time.Duration) (string, error)
	OnCommand(ctx context.Context, topic, value string) error
}

// StateSource returns the retained state of every topic.
type StateSource interface {
	Snapshot() []worker.Message
}

var _ Controller = (*worker.Worker)(nil)
var _ StateSource = (*worker.RetainedStore)(nil)

// Server is the HTTP command and metrics listener.
type Server struct {
	ctl      Controller
	state    StateSource
	gatherer prometheus.Gatherer
	router   chi.Router
	server   *http.Server
}

// NewServer creates a server. gatherer may be nil to disable /metrics.
func NewServer(ctl Controller, state StateSource, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		ctl:      ctl,
		state:    state,
		gatherer: gatherer,
		router:   chi.NewRouter(),
	}
	s.setupRoutes()

	// Receive may wait several fragment timeouts, so writes get more room
	// than reads.
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/command", s.handleCommand)
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/{name}/update", s.handleUpdate)
			r.Post("/{name}/send", s.handleSend)
			r.Post("/{name}/receive", s.handleReceive)
		})
	})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.server.Addr = addr
	slog.Info("[API] listening", "addr", addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("[API] failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps an operation error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, worker.ErrUnknownDevice):
		return http.StatusNotFound
	case errors.Is(err, worker.ErrBadCommand), errors.Is(err, ble.ErrInvalidHex):
		return http.StatusBadRequest
	case errors.Is(err, ble.ErrReceiveTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func respondOpError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	slog.Warn("[API] request failed", "path", r.URL.Path, "status", status,
		"request_id", middleware.GetReqID(r.Context()), "error", err)
	respondError(w, status, err.Error())
}
