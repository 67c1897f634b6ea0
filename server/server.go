// Package server exposes a conversation over HTTP: a JSON API for submitting
// turns and reading messages, a websocket feed of snapshots and the page
// that renders them.
package server

import (
	"context"
	"embed"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mhpenta/mathchat"
	"github.com/mhpenta/mathchat/config"
)

//go:embed static/index.html
var staticFS embed.FS

// Server wires the store to the HTTP routes.
type Server struct {
	store   *mathchat.Store
	storage *MemoryStorage
	metrics *Metrics
	hub     *Hub
	logger  *zap.Logger
	cfg     *config.Config
	engine  *gin.Engine
}

// Option configures the Server.
type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStorage serves uploads saved by the store at /attachments. The same
// storage should be given to the store with mathchat.WithAttachmentStorage.
func WithStorage(storage *MemoryStorage) Option {
	return func(s *Server) {
		s.storage = storage
	}
}

// WithMetrics exposes m at /metrics. The same Metrics should be registered
// on the store with mathchat.WithObserver.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New builds the server and its routes.
func New(store *mathchat.Store, cfg *config.Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Server{
		store:  store,
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.hub = NewHub(store, cfg.WebSocket, s.logger)
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	if s.cfg.Server.Mode != "" {
		gin.SetMode(s.cfg.Server.Mode)
	}

	r := gin.New()
	r.Use(requestLogger(s.logger), gin.Recovery())
	r.MaxMultipartMemory = s.cfg.Server.MaxMultipartMemory

	r.GET("/", s.handleIndex)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ws", s.hub.HandleWS)

	api := r.Group("/api")
	api.GET("/messages", s.handleListMessages)
	api.POST("/messages", s.handlePostMessage)
	api.GET("/messages/:id/image", s.handleMessageImage)

	if s.storage != nil {
		r.GET(AttachmentsPrefix+"*path", s.handleAttachment)
	}
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	return r
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully. In-flight generations are allowed to finish.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	s.hub.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.store.Wait()
	return nil
}
