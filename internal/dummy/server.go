// Package dummy is a local target for swarm runs: it answers GET /count/{n}
// and counts the hits per n.
package dummy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/wesleyorama2/swarmer/internal/swarm/workload"
)

const shutdownTimeout = 5 * time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CountResponse is the body of a successful /count/{n} reply.
type CountResponse struct {
	N     int   `json:"n"`
	Count int64 `json:"count"`
}

// ErrorResponse is the body of a rejected request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server counts hits on /count/{n} for n in [1, 100].
type Server struct {
	hits    [workload.MaxCount + 1]atomic.Int64
	total   atomic.Int64
	invalid atomic.Int64

	latencyMin time.Duration
	latencyMax time.Duration
	logger     *zap.SugaredLogger
}

// Option configures a Server.
type Option func(s *Server)

// WithLatency delays every reply by a duration drawn from [low, high].
func WithLatency(low, high time.Duration) Option {
	return func(s *Server) {
		s.latencyMin = low
		s.latencyMax = high
	}
}

// WithLogger sets the server's logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a Server.
func NewServer(opts ...Option) *Server {
	s := &Server{logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /count/{n}", s.handleCount)
	return mux
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("n")
	n, err := strconv.Atoi(raw)
	if err != nil || n < workload.MinCount || n > workload.MaxCount {
		s.invalid.Add(1)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("n must be an integer in [%d, %d], got %q", workload.MinCount, workload.MaxCount, raw),
		})
		return
	}

	if s.latencyMax > 0 {
		select {
		case <-time.After(workload.RandomWait(s.latencyMin, s.latencyMax)):
		case <-r.Context().Done():
			return
		}
	}

	s.total.Add(1)
	writeJSON(w, http.StatusOK, CountResponse{N: n, Count: s.hits[n].Add(1)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// Hits returns how often /count/{n} was answered. Out of range n yields 0.
func (s *Server) Hits(n int) int64 {
	if n < workload.MinCount || n > workload.MaxCount {
		return 0
	}
	return s.hits[n].Load()
}

// Total returns the number of answered requests.
func (s *Server) Total() int64 {
	return s.total.Load()
}

// Rejected returns the number of requests refused with 400.
func (s *Server) Rejected() int64 {
	return s.invalid.Load()
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Infow("Dummy target listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return fmt.Errorf("dummy target: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down dummy target: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	s.logger.Infow("Dummy target stopped", "answered", s.Total(), "rejected", s.Rejected())
	return nil
}
