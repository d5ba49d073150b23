// Package server exposes the recommendation engine and the guidance and
// irrigation services over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/cropadvisor/internal/conditions"
	"github.com/dshills/cropadvisor/internal/engine"
	"github.com/dshills/cropadvisor/internal/guidance"
	"github.com/dshills/cropadvisor/internal/irrigation"
	"github.com/dshills/cropadvisor/internal/render"
)

const (
	// DefaultMaxBodyBytes caps request bodies when Options leaves it unset.
	DefaultMaxBodyBytes = 1 << 20
	shutdownTimeout     = 10 * time.Second
)

// Options configures a Server.
type Options struct {
	CORSOrigins  []string
	MaxBodyBytes int64
}

// Server routes HTTP requests to the engine and the advice services.
type Server struct {
	engine     *engine.Engine
	guidance   *guidance.Service
	irrigation *irrigation.Service
	maxBody    int64
	log        *zap.Logger
	router     *chi.Mux
}

// New builds a Server with its routes and middleware installed. A nil
// guidance or irrigation service answers its route with 501.
func New(eng *engine.Engine, guide *guidance.Service, irr *irrigation.Service, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	s := &Server{
		engine:     eng,
		guidance:   guide,
		irrigation: irr,
		maxBody:    opts.MaxBodyBytes,
		log:        log,
		router:     chi.NewRouter(),
	}
	s.setupMiddleware(opts)
	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) setupMiddleware(opts Options) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/api/ping", s.handlePing)
	s.router.Get("/api/crops", s.handleCrops)
	s.router.Get("/api/crops/{name}", s.handleCrop)
	s.router.Post("/api/crop/predict", s.handlePredict)
	s.router.Post("/api/hybrid/recommend", s.handleGuidance)
	s.router.Post("/api/irrigation/advice", s.handleIrrigation)
}

// requestLogger logs one line per request through zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("http_request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"crops":  s.engine.KnowledgeBase().Len(),
	})
}

func (s *Server) handleCrops(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.KnowledgeBase().All())
}

func (s *Server) handleCrop(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, ok := s.engine.KnowledgeBase().Lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown crop: "+name, "")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	input, err := conditions.Decode(bytes.NewReader(body))
	if err != nil {
		s.fail(w, err)
		return
	}
	res, err := s.engine.Recommend(r.Context(), input)
	if err != nil {
		s.fail(w, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, render.RenderMarkdown(res))
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(render.RenderHTML(res))
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleGuidance(w http.ResponseWriter, r *http.Request) {
	if s.guidance == nil {
		writeError(w, http.StatusNotImplemented, "guidance service not configured", "")
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	var req guidance.Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.fail(w, &conditions.ValidationError{Field: conditions.FieldBody, Message: "malformed JSON: " + err.Error()})
		return
	}
	advice, err := s.guidance.Advise(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, advice)
}

func (s *Server) handleIrrigation(w http.ResponseWriter, r *http.Request) {
	if s.irrigation == nil {
		writeError(w, http.StatusNotImplemented, "irrigation service not configured", "")
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	var req irrigation.Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.fail(w, &conditions.ValidationError{Field: conditions.FieldBody, Message: "malformed JSON: " + err.Error()})
		return
	}
	advice, err := s.irrigation.Advise(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, advice)
}

// readBody reads at most maxBody bytes. On failure the response has been
// written and ok is false.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", conditions.FieldBody)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "could not read request body", conditions.FieldBody)
		return nil, false
	}
	return body, true
}

// fail maps err to a status: validation faults are the caller's, everything
// else is ours.
func (s *Server) fail(w http.ResponseWriter, err error) {
	var verr *conditions.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Message, verr.Field)
		return
	}
	s.log.Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error", "")
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, field string) {
	writeJSON(w, status, errorBody{Error: msg, Field: field})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
