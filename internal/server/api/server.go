// Package api exposes the record storage over HTTP. Responses carry
// entity payloads as stored, so clients can decode them directly into
// their domain types.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/oficinahq/garagesync/internal/common"
	"github.com/oficinahq/garagesync/internal/logging"
	"github.com/oficinahq/garagesync/internal/models"
	"github.com/oficinahq/garagesync/internal/server/repositories/records"
)

const shutdownTimeout = 5 * time.Second

// Server is the HTTP front of the record storage.
type Server struct {
	addr string
	repo records.Repository
	log  logging.Logger
}

// NewServer constructs the HTTP server bound to addr.
func NewServer(addr string, repo records.Repository, log logging.Logger) *Server {
	return &Server{addr: addr, repo: repo, log: log}
}

// Routes builds the router. Exposed separately so tests can drive the
// handlers through httptest without opening a port.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", s.handlePing)
		r.Route("/{kind}", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.Put("/", s.handleUpsert)
			r.Get("/head", s.handleHead)
			r.Get("/{id}", s.handleGet)
			r.Delete("/{id}", s.handleDelete)
		})
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Routes()}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "http server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kindParam(w, r)
	if !ok {
		return
	}

	recs, err := s.repo.List(r.Context(), kind)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	payloads := make([]json.RawMessage, 0, len(recs))
	for _, rec := range recs {
		payloads = append(payloads, rec.Data)
	}
	s.writeJSON(r.Context(), w, http.StatusOK, payloads)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kindParam(w, r)
	if !ok {
		return
	}

	rec, err := s.repo.GetByID(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	if rec == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.writeJSON(r.Context(), w, http.StatusOK, rec.Data)
}

func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kindParam(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, "reading body: "+err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := models.RecordFromPayload(kind, body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stored, err := s.repo.Upsert(r.Context(), rec)
	if err != nil {
		if errors.Is(err, common.ErrInvalidKind) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.serverError(w, r, err)
		return
	}
	s.writeJSON(r.Context(), w, http.StatusOK, stored.Data)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kindParam(w, r)
	if !ok {
		return
	}

	if err := s.repo.Delete(r.Context(), kind, chi.URLParam(r, "id")); err != nil {
		s.serverError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHead(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kindParam(w, r)
	if !ok {
		return
	}

	seq, err := s.repo.Head(r.Context(), kind)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.writeJSON(r.Context(), w, http.StatusOK, map[string]int64{"seq": seq})
}

func (s *Server) kindParam(w http.ResponseWriter, r *http.Request) (models.Kind, bool) {
	kind, err := models.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return kind, true
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (s *Server) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error(ctx, "writing response", "error", err)
	}
}
