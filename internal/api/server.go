// Package api serves pool statistics over HTTP and WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/pgvanniekerk/ezbalance/pkg/ezbalance"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"
	"log/slog"
	"net/http"
	"time"
)

// DefaultStreamInterval is how often /ws pushes a snapshot when no interval is
// configured.
const DefaultStreamInterval = time.Second

// StatsProvider is anything that can report pool statistics.
type StatsProvider interface {
	Stats() ezbalance.Stats
}

// Options configure a Server.
type Options struct {

	// Gatherer backs /metrics. When nil, /metrics is not served.
	Gatherer prometheus.Gatherer

	// StreamInterval is the period between snapshots on /ws.
	StreamInterval time.Duration

	// Logger receives server lifecycle records.
	Logger *slog.Logger
}

// Server exposes /metrics, /api/stats and /ws.
type Server struct {
	addr     string
	stats    StatsProvider
	gatherer prometheus.Gatherer
	interval time.Duration
	logger   *slog.Logger

	// done is closed when the server is shutting down so open streams end.
	done chan struct{}

	server *http.Server
}

// NewServer creates a Server listening on addr once started.
func NewServer(addr string, stats StatsProvider, opts Options) *Server {
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = DefaultStreamInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	return &Server{
		addr:     addr,
		stats:    stats,
		gatherer: opts.Gatherer,
		interval: opts.StreamInterval,
		logger:   opts.Logger,
		done:     make(chan struct{}),
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/stats", s.handleStats)
	mux.Handle("/ws", websocket.Handler(s.handleWebSocket))

	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		close(s.done)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server starting", "addr", s.addr)

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, s.stats.Stats())
}

// handleWebSocket pushes a stats snapshot every interval until the client goes
// away or the server stops.
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	defer func() { _ = ws.Close() }()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	reqDone := ws.Request().Context().Done()

	for {
		if err := websocket.JSON.Send(ws, s.stats.Stats()); err != nil {
			s.logger.Debug("stats stream closed", "error", err)
			return
		}

		select {
		case <-s.done:
			return
		case <-reqDone:
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON", "error", err)
	}
}
