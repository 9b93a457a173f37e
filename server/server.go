// Package server exposes the assistant over HTTP: a chat endpoint, direct
// action endpoints that skip the language model, and the WhatsApp webhook.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	contractx "github.com/attachehq/attache/agent/contract"
	logx "github.com/attachehq/attache/pkg/logger"
	"github.com/attachehq/attache/store/messagelog"
)

const (
	serviceName = "Attache API"
	version     = "1.0.0"
)

// Config is read from SERVER_* variables.
type Config struct {
	Host            string        `split_words:"true" default:"0.0.0.0"`
	Port            int           `split_words:"true" default:"8000"`
	AllowedOrigins  []string      `split_words:"true" default:"*"`
	ReadTimeout     time.Duration `split_words:"true" default:"30s"`
	WriteTimeout    time.Duration `split_words:"true" default:"30s"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
}

// Dispatcher is the slice of the agent the HTTP surface needs.
type Dispatcher interface {
	Handle(ctx context.Context, text string) (string, error)
	HandleDirect(ctx context.Context, action string, params contractx.ParameterSet) (contractx.Result, error)
	Actions() []contractx.Action
}

// MessageWriter records inbound webhook messages.
type MessageWriter interface {
	Insert(ctx context.Context, msg *messagelog.Message) error
}

// Server wires gin around the dispatcher.
type Server struct {
	cfg        Config
	dispatcher Dispatcher
	engine     *gin.Engine
	httpServer *http.Server
	log        zerolog.Logger

	inbox       MessageWriter
	verifyToken string
}

// Option customizes the server.
type Option func(*Server)

// WithWebhook enables the WhatsApp webhook routes, persisting inbound
// messages to the given writer. verifyToken answers Meta's verification
// handshake.
func WithWebhook(inbox MessageWriter, verifyToken string) Option {
	return func(s *Server) {
		s.inbox = inbox
		s.verifyToken = strings.TrimSpace(verifyToken)
	}
}

func New(cfg Config, dispatcher Dispatcher, opts ...Option) (*Server, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("%w: server needs a dispatcher", contractx.ErrInvalidConfig)
	}

	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		log:        logx.With("server"),
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	engine.GET("/", s.handleRoot)
	engine.GET("/health", s.handleHealth)
	engine.POST("/chat", s.handleChat)
	engine.GET("/actions", s.handleListActions)
	engine.POST("/actions/:name", s.handleDirectAction)
	engine.POST("/email/send", s.handleSendEmail)
	engine.GET("/email/unread", s.handleUnreadCount)
	engine.GET("/email/recent", s.handleRecentEmails)

	if s.inbox != nil {
		engine.GET("/webhooks/whatsapp", s.handleWebhookVerify)
		engine.POST("/webhooks/whatsapp", s.handleWebhookEvent)
	}

	s.engine = engine
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Handler exposes the route tree, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled or the listener fails, then shuts down
// gracefully within the configured deadline.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownTimeout := s.cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.log.Info().Msg("http server shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}

	for _, origin := range origins {
		if strings.TrimSpace(origin) == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}
