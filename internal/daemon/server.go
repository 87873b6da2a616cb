package daemon

import (
	"context"
	"errors"
	"net/http"

	"github.com/ecostadev/wamcp/internal/api"
	"github.com/ecostadev/wamcp/internal/config"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server manages the HTTP server carrying the tool API.
type Server struct {
	http   *http.Server
	logger *zap.Logger
}

// NewServer builds the gin engine with all tool routes and binds it to the
// configured listen address.
func NewServer(cfg *config.Config, tools *api.ToolService, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	tools.Register(engine)

	return &Server{
		http:   &http.Server{Addr: cfg.ListenAddr, Handler: engine},
		logger: logger,
	}
}

// Start begins serving requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	_ = s.http.Shutdown(ctx)
}
