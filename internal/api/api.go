package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/BTreeMap/Insura/internal/models"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

const shutdownTimeout = 10 * time.Second

// Conversations is the part of the dispatcher the admin endpoints drive.
type Conversations interface {
	Reset(ctx context.Context, userID string) (bool, error)
	Greet(ctx context.Context, userID string) error
}

// StateReader loads stored conversation records.
type StateReader interface {
	Get(ctx context.Context, userID string) (*models.ConversationState, error)
}

// Answerer produces a raw assistant reply.
type Answerer interface {
	Answer(ctx context.Context, text string) (string, error)
}

// Opts holds configuration for the HTTP server.
type Opts struct {
	Addr           string
	Conversations  Conversations
	States         StateReader
	LLM            Answerer
	CloudWebhook   http.HandlerFunc // Cloud API verification and delivery
	TwilioWebhook  http.HandlerFunc
	JWTSecret      string
	AllowedOrigins []string
}

// Option configures the HTTP server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithConversations sets the dispatcher used by the reset and greeting endpoints.
func WithConversations(c Conversations) Option {
	return func(o *Opts) {
		o.Conversations = c
	}
}

// WithStates sets the store read by the user data endpoints.
func WithStates(r StateReader) Option {
	return func(o *Opts) {
		o.States = r
	}
}

// WithLLM sets the assistant behind /test-llm.
func WithLLM(a Answerer) Option {
	return func(o *Opts) {
		o.LLM = a
	}
}

// WithCloudWebhook mounts the Cloud API webhook on /webhook.
func WithCloudWebhook(h http.HandlerFunc) Option {
	return func(o *Opts) {
		o.CloudWebhook = h
	}
}

// WithTwilioWebhook mounts the Twilio webhook on /twilio/webhook.
func WithTwilioWebhook(h http.HandlerFunc) Option {
	return func(o *Opts) {
		o.TwilioWebhook = h
	}
}

// WithJWTSecret protects the admin endpoints with HS256 bearer tokens.
func WithJWTSecret(secret string) Option {
	return func(o *Opts) {
		o.JWTSecret = secret
	}
}

// WithAllowedOrigins sets the CORS origins; empty allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(o *Opts) {
		o.AllowedOrigins = origins
	}
}

// Server exposes the transport webhooks and the admin endpoints.
type Server struct {
	addr          string
	conversations Conversations
	states        StateReader
	llm           Answerer
	cloudWebhook  http.HandlerFunc
	twilioWebhook http.HandlerFunc
	jwtSecret     []byte
	origins       []string
}

// NewServer creates a Server. Conversations, States and LLM are required.
func NewServer(opts ...Option) (*Server, error) {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Conversations == nil {
		return nil, fmt.Errorf("conversations are required")
	}
	if cfg.States == nil {
		return nil, fmt.Errorf("state reader is required")
	}
	if cfg.LLM == nil {
		return nil, fmt.Errorf("llm is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	s := &Server{
		addr:          cfg.Addr,
		conversations: cfg.Conversations,
		states:        cfg.States,
		llm:           cfg.LLM,
		cloudWebhook:  cfg.CloudWebhook,
		twilioWebhook: cfg.TwilioWebhook,
		origins:       cfg.AllowedOrigins,
	}
	if cfg.JWTSecret != "" {
		s.jwtSecret = []byte(cfg.JWTSecret)
	}
	return s, nil
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(s.corsOptions()))

	r.Get("/health", s.healthHandler)

	if s.cloudWebhook != nil {
		r.Get("/webhook", s.cloudWebhook)
		r.Post("/webhook", s.cloudWebhook)
	}
	if s.twilioWebhook != nil {
		r.Post("/twilio/webhook", s.twilioWebhook)
	}

	r.Group(func(r chi.Router) {
		if s.jwtSecret != nil {
			r.Use(s.authMiddleware)
		}
		r.Post("/reset-conversation/{phone}", s.resetConversationHandler)
		r.Get("/get-user-data/{phone}", s.userDataHandler)
		r.Get("/get-llm-responses/{phone}", s.llmResponsesHandler)
		r.Post("/send-greeting/{phone}", s.sendGreetingHandler)
		r.Get("/test-llm", s.testLLMHandler)
	})
	return r
}

func (s *Server) corsOptions() cors.Options {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}
	if len(s.origins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	} else {
		opts.AllowedOrigins = s.origins
	}
	return opts
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.addr, "auth", s.jwtSecret != nil)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	slog.Info("Server.Run: shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	<-errCh
	return nil
}
