package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/quayside/cutover/pkg/events"
	"github.com/quayside/cutover/pkg/log"
	"github.com/quayside/cutover/pkg/types"
	"github.com/rs/zerolog"
)

// StatusFunc produces the current status report for the /status endpoint.
type StatusFunc func(ctx context.Context) (*types.StatusReport, error)

// Server is the orchestrator's own HTTP surface: liveness, a JSON status
// view, and Prometheus metrics. It observes the deployment; the application
// stack's /health remains a consumed contract, never served here.
type Server struct {
	addr      string
	status    StatusFunc
	ring      *events.Ring
	startTime time.Time
	server    *http.Server
	logger    zerolog.Logger
}

// statusPayload is the /status response body.
type statusPayload struct {
	*types.StatusReport
	RecentEvents []*events.Event `json:"recent_events,omitempty"`
}

// NewServer creates the status server. ring may be nil when no event
// history is wanted.
func NewServer(addr string, status StatusFunc, ring *events.Ring) *Server {
	s := &Server{
		addr:      addr,
		status:    status,
		ring:      ring,
		startTime: time.Now(),
		logger:    log.WithComponent("status-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", Handler())

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until Shutdown; it blocks like http.Server.ListenAndServe.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.addr).Msg("status server listening")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "alive",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.status(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("status query failed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	payload := statusPayload{StatusReport: report}
	if s.ring != nil {
		payload.RecentEvents = s.ring.Recent()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(payload)
}
