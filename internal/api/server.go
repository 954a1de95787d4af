package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uwflow/uwflow/internal/domain"
	"github.com/uwflow/uwflow/internal/drivers"
	"github.com/uwflow/uwflow/internal/metrics"
)

// RunStore reads recorded runs. *history.DB implements it.
type RunStore interface {
	List(limit int) ([]domain.RunRecord, error)
	Get(id string) (*domain.RunRecord, error)
}

// Server is the read-only uwflow status server: driver catalogs, run
// history and metrics.
type Server struct {
	store          RunStore
	version        string
	logger         *slog.Logger
	metricsEnabled bool
}

// NewServer creates a status server over store. A nil store serves an
// empty history.
func NewServer(store RunStore, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, version: version, logger: logger}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
	})

	r.Route("/api/drivers", func(r chi.Router) {
		r.Get("/", s.handleDrivers)
		r.Get("/{driver}", s.handleDriver)
	})
	r.Route("/api/runs", func(r chi.Router) {
		r.Get("/", s.handleRuns)
		r.Get("/{id}", s.handleRun)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	}
	return r
}

// ListenAndServe serves Handler on addr until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Status server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ─── Drivers ────────────────────────────────────────────────────────────────

type taskJSON struct {
	Name string `json:"name"`
	Help string `json:"help"`
}

type driverJSON struct {
	Name          string     `json:"name"`
	Help          string     `json:"help"`
	TimeInvariant bool       `json:"time_invariant"`
	Tasks         []taskJSON `json:"tasks"`
}

func toDriverJSON(k drivers.Kind) driverJSON {
	out := driverJSON{Name: k.Name, Help: k.Help, TimeInvariant: k.TimeInvariant}
	for _, e := range k.Catalog {
		out.Tasks = append(out.Tasks, taskJSON{Name: e.Name, Help: e.Help})
	}
	return out
}

func (s *Server) handleDrivers(w http.ResponseWriter, r *http.Request) {
	var out []driverJSON
	for _, k := range drivers.Kinds() {
		out = append(out, toDriverJSON(k))
	}
	writeJSON(w, http.StatusOK, map[string]any{"drivers": out})
}

func (s *Server) handleDriver(w http.ResponseWriter, r *http.Request) {
	k, err := drivers.Lookup(chi.URLParam(r, "driver"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toDriverJSON(k))
}

// ─── Runs ───────────────────────────────────────────────────────────────────

type runJSON struct {
	ID         string  `json:"id"`
	Driver     string  `json:"driver"`
	Task       string  `json:"task"`
	Cycle      string  `json:"cycle,omitempty"`
	Rundir     string  `json:"rundir"`
	Mode       string  `json:"mode,omitempty"`
	OK         bool    `json:"ok"`
	ExitCode   int     `json:"exit_code"`
	JobID      string  `json:"job_id,omitempty"`
	Error      string  `json:"error,omitempty"`
	StartedAt  string  `json:"started_at"`
	DurationMS float64 `json:"duration_ms"`
}

func toRunJSON(rec domain.RunRecord) runJSON {
	out := runJSON{
		ID:         rec.ID,
		Driver:     rec.Driver,
		Task:       rec.Task,
		Rundir:     rec.Rundir,
		Mode:       rec.Mode,
		OK:         rec.OK,
		ExitCode:   rec.ExitCode,
		JobID:      rec.JobID,
		Error:      rec.Error,
		StartedAt:  rec.StartedAt.UTC().Format(time.RFC3339),
		DurationMS: float64(rec.Duration) / float64(time.Millisecond),
	}
	if !rec.Cycle.IsZero() {
		out.Cycle = rec.Cycle.UTC().Format(time.RFC3339)
	}
	return out
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	out := []runJSON{}
	if s.store != nil {
		runs, err := s.store.List(limit)
		if err != nil {
			s.logger.Error("List runs", "error", err)
			writeError(w, http.StatusInternalServerError, "could not read run history")
			return
		}
		for _, rec := range runs {
			out = append(out, toRunJSON(rec))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.store == nil {
		writeError(w, http.StatusNotFound, domain.ErrRunNotFound.Error())
		return
	}
	rec, err := s.store.Get(id)
	switch {
	case errors.Is(err, domain.ErrRunNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.logger.Error("Get run", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not read run history")
		return
	}
	writeJSON(w, http.StatusOK, toRunJSON(*rec))
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}
