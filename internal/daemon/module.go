package daemon

import (
	"context"
	"os"

	"github.com/ecostadev/wamcp/internal/api"
	"github.com/ecostadev/wamcp/internal/chat"
	"github.com/ecostadev/wamcp/internal/config"
	"github.com/ecostadev/wamcp/internal/logging"
	"github.com/ecostadev/wamcp/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the startup options passed to the fx module.
type Params struct {
	ConfigPath string // optional config.toml path; env vars always apply
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideStore,
			provideChatService,
			provideToolService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	return config.Load(p.ConfigPath)
}

func provideLogger() (*zap.Logger, error) {
	return logging.New(os.Getenv("WAMCP_LOG_FILE"))
}

func provideStore(cfg *config.Config, logger *zap.Logger) (*store.Client, error) {
	c, err := store.New(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("store client initialized",
		zap.String("url", cfg.SupabaseURL), zap.String("channel", cfg.Channel))
	return c, nil
}

func provideChatService(st *store.Client, logger *zap.Logger) *chat.Service {
	return chat.NewService(st, logger)
}

func provideToolService(c *chat.Service, logger *zap.Logger) *api.ToolService {
	return api.NewToolService(c, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			logger.Info("daemon stopped")
			return nil
		},
	})
}
