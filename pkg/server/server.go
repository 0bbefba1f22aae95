// Package server serves stored event files and the static event viewer.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Sternrassler/club-rides/pkg/archive"
	"github.com/Sternrassler/club-rides/pkg/events"
	"github.com/Sternrassler/club-rides/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RunLister lists archived collection runs.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]archive.Run, error)
}

// Config holds the server configuration.
type Config struct {
	OutputDir string
	PublicDir string

	// Runs backs /api/runs. Optional.
	Runs RunLister
}

// Server serves the event API and the static viewer.
type Server struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a server.
func New(cfg Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: log.With().Str("component", "server").Logger(),
		now:    time.Now,
	}
}

// Router configures all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/list-files", s.handleListFiles)
		r.Get("/events/{filename}", s.handleEvents)
		r.Get("/calendar/{filename}", s.handleCalendar)
		r.Get("/runs", s.handleRuns)
	})

	r.NotFound(s.handleStatic)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Server running")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info().Msg("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleListFiles(w http.ResponseWriter, _ *http.Request) {
	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		s.logger.Error().Err(err).Msg("Error creating output directory")
		writeError(w, http.StatusInternalServerError, "Failed to read output directory")
		return
	}
	entries, err := os.ReadDir(s.cfg.OutputDir)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error reading output directory")
		writeError(w, http.StatusInternalServerError, "Failed to read output directory")
		return
	}

	files := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			files = append(files, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	s.logger.Info().Int("files", len(files)).Msg("Listed event files")
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	path, ok := s.eventFile(chi.URLParam(r, "filename"))
	if !ok {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Str("path", path).Msg("File not found")
			writeError(w, http.StatusNotFound, "File not found")
			return
		}
		s.logger.Error().Err(err).Str("path", path).Msg("Error reading event file")
		writeError(w, http.StatusInternalServerError, "Failed to read event file")
		return
	}

	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("Error parsing event file")
		writeError(w, http.StatusInternalServerError, "Failed to read event file")
		return
	}

	s.logger.Info().Int("events", len(records)).Str("path", path).Msg("Serving events")
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	path, ok := s.eventFile(name)
	if !ok {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}

	occs, err := events.LoadOccurrences(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, "File not found")
			return
		}
		s.logger.Error().Err(err).Str("path", path).Msg("Error reading event file")
		writeError(w, http.StatusInternalServerError, "Failed to read event file")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+strings.TrimSuffix(name, ".json")+`.ics"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(events.GenerateICS(occs, s.now())))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runs == nil {
		writeJSON(w, http.StatusOK, []archive.Run{})
		return
	}
	runs, err := s.cfg.Runs.ListRuns(r.Context(), 50)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error listing runs")
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleStatic serves files from the public directory and falls back to
// index.html for any path that is not a file.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	root, err := filepath.Abs(s.cfg.PublicDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve public directory")
		return
	}

	clean := filepath.Clean("/" + r.URL.Path)
	candidate := filepath.Join(root, filepath.FromSlash(clean))
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		http.ServeFile(w, r, candidate)
		return
	}
	http.ServeFile(w, r, filepath.Join(root, "index.html"))
}

// eventFile maps a request filename to a path inside the output directory.
// Names that are not plain .json file names are rejected.
func (s *Server) eventFile(name string) (string, bool) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") || !strings.HasSuffix(name, ".json") {
		return "", false
	}
	return filepath.Join(s.cfg.OutputDir, name), true
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
