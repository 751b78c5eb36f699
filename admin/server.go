// Package admin serves the operator HTTP surface: health, controller status,
// the recent event journal and Prometheus metrics.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nodepilot/journal"
	"nodepilot/pilot"
)

// StatusSource reports controller state. *pilot.Controller satisfies it.
type StatusSource interface {
	Status() pilot.Status
}

// EntrySource lists journal entries. *journal.Journal satisfies it.
type EntrySource interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Server is the admin HTTP server.
type Server struct {
	status  StatusSource
	entries EntrySource
	logger  *slog.Logger
	metrics http.Handler
}

// New returns a server. entries may be nil when no journal is configured.
func New(status StatusSource, entries EntrySource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		status:  status,
		entries: entries,
		logger:  logger,
		metrics: promhttp.Handler(),
	}
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/status", s.handleStatus)
	r.Get("/events", s.handleEvents)
	r.Handle("/metrics", s.metrics)
	return otelhttp.NewHandler(r, "nodepilot.admin")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Status())
}

type eventView struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Outcome    string          `json:"outcome"`
	Error      string          `json:"error,omitempty"`
	Offer      string          `json:"offer,omitempty"`
	HandledAt  time.Time       `json:"handled_at"`
	DurationUS int64           `json:"duration_us"`
	Event      json.RawMessage `json:"event"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.entries == nil {
		writeJSONError(w, http.StatusNotFound, errors.New("journal disabled"))
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSONError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	entries, err := s.entries.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Warn("list journal entries", slog.Any("error", err))
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	views := make([]eventView, 0, len(entries))
	for _, e := range entries {
		views = append(views, eventView{
			ID:         e.ID.String(),
			Kind:       e.Kind,
			Outcome:    e.Outcome,
			Error:      e.Error,
			Offer:      e.Offer,
			HandledAt:  e.HandledAt,
			DurationUS: e.DispatchMicro,
			Event:      json.RawMessage(e.Payload),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("admin server listening", slog.String("addr", ln.Addr().String()))
		errc <- srv.Serve(ln)
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
