package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/smallnest/fabflow/fab"
	"github.com/smallnest/fabflow/log"
	"github.com/smallnest/fabflow/metrics"
	"github.com/smallnest/fabflow/rag"
	"github.com/smallnest/fabflow/router"
)

// Defaults for Server options.
const (
	DefaultAddr            = ":2024"
	DefaultShutdownTimeout = 10 * time.Second
)

// Server serves the workflow, router and chatbot over HTTP.
type Server struct {
	service  *fab.Service
	router   *router.Router
	chatbot  *rag.Chatbot
	metrics  *metrics.Metrics
	validate *validator.Validate
	logger   log.Logger

	addr            string
	corsOrigins     []string
	shutdownTimeout time.Duration

	handler http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithRouter serves /router/query.
func WithRouter(r *router.Router) Option {
	return func(s *Server) { s.router = r }
}

// WithChatbot serves /api/chat.
func WithChatbot(c *rag.Chatbot) Option {
	return func(s *Server) { s.chatbot = c }
}

// WithMetrics counts requests and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithCORSOrigins sets the allowed origins. "*" allows any.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) { s.shutdownTimeout = d }
}

// New builds a Server for service.
func New(service *fab.Service, opts ...Option) *Server {
	s := &Server{
		service:         service,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		logger:          log.GetDefaultLogger(),
		addr:            DefaultAddr,
		corsOrigins:     []string{"*"},
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Get("/ok", s.handleOK)
	r.Post("/assistants/search", s.handleAssistants)
	r.Route("/threads", func(r chi.Router) {
		r.Post("/", s.handleCreateThread)
		r.Get("/{threadID}/state", s.handleState)
		r.Get("/{threadID}/history", s.handleHistory)
		r.Post("/{threadID}/runs/stream", s.handleStream)
	})
	r.Post("/router/query", s.handleRouterQuery)
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Get("/categories", s.handleCategories)
		r.Get("/health", s.handleHealth)
	})
	return r
}

// Start listens until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening on %s", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func (s *Server) cors(next http.Handler) http.Handler {
	allowAll := slices.Contains(s.corsOrigins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(s.corsOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		s.logger.Error("response encode failed: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return s.validate.Struct(v)
}
