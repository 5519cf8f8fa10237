// Package api exposes the approval workflow over HTTP. Every endpoint
// requires an authenticated identity resolved from a bearer token; callers
// without one are rejected before any state is read or mutated.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"

	"github.com/ScarletRedJoker/jarvis-safety/internal/approval"
	"github.com/ScarletRedJoker/jarvis-safety/internal/core"
)

// Server is the HTTP approval API.
type Server struct {
	svc      *approval.Service
	executor *core.Executor
	// tokens maps bearer tokens to caller identities.
	tokens map[string]string
	logger *log.Logger
	router *mux.Router
}

// NewServer creates the API server and wires its routes.
func NewServer(svc *approval.Service, executor *core.Executor, tokens map[string]string) *Server {
	s := &Server{
		svc:      svc,
		executor: executor,
		tokens:   tokens,
		logger:   log.Default().WithPrefix("api"),
	}

	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	actions := r.PathPrefix("/actions").Subrouter()
	actions.Use(s.requireIdentity)
	actions.HandleFunc("/pending", s.handleListPending).Methods(http.MethodGet)
	actions.HandleFunc("/create", s.handleCreate).Methods(http.MethodPost)
	actions.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	actions.HandleFunc("/{id}", s.handleGet).Methods(http.MethodGet)
	actions.HandleFunc("/{id}/approve", s.handleApprove).Methods(http.MethodPost)
	actions.HandleFunc("/{id}/reject", s.handleReject).Methods(http.MethodPost)
	actions.HandleFunc("/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
	actions.HandleFunc("/{id}/checkpoint", s.handleCheckpoint).Methods(http.MethodPost)

	execute := r.PathPrefix("/execute").Subrouter()
	execute.Use(s.requireIdentity)
	execute.HandleFunc("", s.handleExecute).Methods(http.MethodPost)
	execute.HandleFunc("/dry-run", s.handleDryRun).Methods(http.MethodPost)

	s.router = r
	return s
}

// Handler returns the HTTP handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type contextKey string

const identityKey contextKey = "identity"

// identityFrom returns the authenticated identity stored by requireIdentity.
func identityFrom(r *http.Request) string {
	identity, _ := r.Context().Value(identityKey).(string)
	return identity
}

// requireIdentity resolves the Authorization bearer token to an identity.
// Unknown or missing tokens are rejected before any state access.
func (s *Server) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		identity, ok := s.tokens[token]
		if !ok || identity == "" {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}
