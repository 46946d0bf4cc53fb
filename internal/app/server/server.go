package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shirou/gopsutil/v4/process"

	"xray/internal/app/bus"
	"xray/internal/app/errors"
	"xray/internal/config"
	"xray/internal/config/logger"
)

// maxEnvelopeBytes caps a single ingress request body
const maxEnvelopeBytes = 1 << 20

// Server is the local HTTP ingress. Producers POST envelopes to /receive;
// the body is handed to the ingestion pipeline over the bus without being
// decoded here, so a slow decode never blocks the producer longer than the
// bus hand-off.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Addr() string
	Router() chi.Router
}

// server implements the Server interface
type server struct {
	cfg       *config.Config
	bus       bus.Bus
	router    chi.Router
	http      *http.Server
	listener  net.Listener
	startedAt time.Time
	log       logger.Logger
}

// NewServer creates the ingress server and mounts its routes
func NewServer(cfg *config.Config, b bus.Bus, log logger.Logger) Server {
	s := &server{
		cfg: cfg,
		bus: b,
		log: log.WithComponent("SERVER"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(permissiveCORS)

	r.Post("/receive", s.handleReceive)
	r.Get("/health", s.handleHealth)

	s.router = r

	return s
}

// Start binds the ingress address and serves until Stop
func (s *server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.ServerAddr())
	if err != nil {
		s.log.Error().Err(err).Msgf("Cannot listen on %s", s.cfg.ServerAddr())

		return errors.ErrFailedToListen
	}

	s.listener = listener
	s.startedAt = time.Now()
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.http.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("Ingress server stopped unexpectedly")
		}
	}()

	s.log.Info().Msgf("Listening on http://%s", s.Addr())

	s.bus.Publish(bus.Message{
		Type: bus.EventServerStarted,
		Data: bus.ServerEvent{Addr: s.Addr()},
	})

	return nil
}

// Stop shuts the ingress down, waiting for in-flight requests
func (s *server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}

	err := s.http.Shutdown(ctx)

	s.bus.Publish(bus.Message{
		Type: bus.EventServerStopped,
		Data: bus.ServerEvent{Addr: s.Addr()},
	})

	return err
}

// Addr returns the bound listen address
func (s *server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}

	return s.cfg.ServerAddr()
}

// Router exposes the route table for tests
func (s *server) Router() chi.Router {
	return s.router
}

// handleReceive accepts one raw envelope per request. The body must at
// least be JSON; everything further is the decoder's business. Envelopes
// are published as critical bus messages so arrival order survives.
func (s *server) handleReceive(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxEnvelopeBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})

		return
	}

	if !json.Valid(raw) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body is not valid JSON"})

		return
	}

	s.bus.Publish(bus.Message{
		Type:     bus.EventEnvelopeReceived,
		Critical: true,
		Data:     bus.EnvelopeReceived{Raw: raw},
	})

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// healthResponse is the payload served on GET /health
type healthResponse struct {
	Status  string  `json:"status"`
	Version string  `json:"version"`
	PID     int     `json:"pid"`
	Uptime  float64 `json:"uptime_seconds"`
	RSS     uint64  `json:"rss_bytes,omitempty"`
	CPU     float64 `json:"cpu_percent,omitempty"`
}

// handleHealth reports liveness plus process stats for the polling client
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: config.Version,
		PID:     os.Getpid(),
		Uptime:  time.Since(s.startedAt).Seconds(),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil {
			resp.RSS = mem.RSS
		}

		if cpu, err := proc.CPUPercent(); err == nil {
			resp.CPU = cpu
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// permissiveCORS mirrors the original ingress: any local page may post
// envelopes and poll health
func permissiveCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(body)
}
