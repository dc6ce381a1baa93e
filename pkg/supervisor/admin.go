package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-connectivity/pkg/metrics"
)

// AdminServer is the supervisor's HTTP admin surface: /healthz and
// /metrics, adapted from the teacher's pkg/microservice.BaseServer
// (same listen/Shutdown shape) with /metrics backed by the connectivity
// MetricsRegistry instead of a generic mux the caller fills in.
type AdminServer struct {
	logger     zerolog.Logger
	httpAddr   string
	httpServer *http.Server
	mux        *http.ServeMux

	registry *metrics.Registry
	sup      *Supervisor

	mu         sync.RWMutex
	actualAddr string
}

// NewAdminServer builds the admin server bound to httpAddr (e.g. ":8080").
func NewAdminServer(httpAddr string, registry *metrics.Registry, sup *Supervisor, logger zerolog.Logger) *AdminServer {
	mux := http.NewServeMux()
	s := &AdminServer{
		logger:   logger.With().Str("component", "AdminServer").Logger(),
		httpAddr: httpAddr,
		mux:      mux,
		registry: registry,
		sup:      sup,
	}
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/metrics", s.handleMetrics)
	s.httpServer = &http.Server{Addr: httpAddr, Handler: mux}
	return s
}

// Start listens and serves in the background, exactly as
// microservice.BaseServer.Start does.
func (s *AdminServer) Start() error {
	listener, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("admin server: listen on %s: %w", s.httpAddr, err)
	}
	s.mu.Lock()
	s.actualAddr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Info().Str("address", s.actualAddr).Msg("Admin HTTP server starting to listen.")
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Admin HTTP server failed.")
		}
	}()
	return nil
}

// Shutdown gracefully stops the HTTP server, bounded by ctx.
func (s *AdminServer) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down admin HTTP server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Error during admin HTTP server shutdown.")
		return err
	}
	return nil
}

// Addr returns the actual listen address once Start has run.
func (s *AdminServer) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actualAddr
}

func (s *AdminServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// connectionMetricsView is what /metrics renders per connection:
// lifecycle state plus the same SourceMetrics/TargetMetrics a
// RetrieveConnectionMetrics reply carries.
type connectionMetricsView struct {
	ConnectionID string                `json:"connectionId"`
	State        string                `json:"state"`
	Sources      metrics.SourceMetrics `json:"sources"`
	Targets      metrics.TargetMetrics `json:"targets"`
}

func (s *AdminServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	ids := s.sup.ConnectionIDs()
	views := make([]connectionMetricsView, 0, len(ids))
	for _, id := range ids {
		state, _ := s.sup.State(id)
		views = append(views, connectionMetricsView{
			ConnectionID: id,
			State:        string(state),
			Sources:      s.registry.AggregateSources(id),
			Targets:      s.registry.AggregateTargets(id),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(views); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode /metrics response.")
	}
}
