package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/ladder/internal/ladder"
)

const maxTranscriptBytes = 10 << 20

// Extractor builds a row from one transcript.
type Extractor interface {
	Build(ctx context.Context, filename, text string) (ladder.Result, error)
	Categories() []string
}

type Server struct {
	router    *chi.Mux
	http      *http.Server
	extractor Extractor
	backend   string
	logger    *slog.Logger
}

// NewServer serves health, status and on-demand extraction. An empty
// apiToken leaves the extract endpoint open.
func NewServer(port int, apiToken string, ext Extractor, backend string, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		extractor: ext,
		backend:   backend,
		logger:    logger,
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	router.Get("/health", s.health)
	router.Route("/api/v1/ladder", func(r chi.Router) {
		r.Get("/status", s.status)
		r.With(BearerAuthMiddleware(apiToken)).Post("/extract", s.extract)
	})

	return s
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":            "ladder",
		"categories":         s.extractor.Categories(),
		"columns":            ladder.Header(s.extractor.Categories()),
		"similarity_backend": s.backend,
	})
}

// ExtractRequest is the body of POST /api/v1/ladder/extract.
type ExtractRequest struct {
	Filename   string `json:"filename"`
	Transcript string `json:"transcript"`
}

func (s *Server) extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTranscriptBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.Filename == "" {
		req.Filename = "transcript.txt"
	}

	res, err := s.extractor.Build(r.Context(), req.Filename, req.Transcript)
	switch {
	case errors.Is(err, ladder.ErrEmptyInput), errors.Is(err, ladder.ErrNoEntries):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		s.logger.Error("extraction failed", "filename", req.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "extraction failed")
		return
	}

	s.logger.Info("transcript extracted", "filename", req.Filename, "session_id", res.Row.SessionID, "turns", res.Turns)
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
