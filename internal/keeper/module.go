// internal/keeper/module.go
package keeper

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bonk-keeper/internal/config"
	"github.com/rovshanmuradov/bonk-keeper/internal/orchestrator"
	"github.com/rovshanmuradov/bonk-keeper/internal/scheduler"
	"github.com/rovshanmuradov/bonk-keeper/internal/utils/logger"
)

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&cfg.Log)
}

// ProvideZap exposes the underlying zap logger.
func ProvideZap(l *logger.Logger) *zap.Logger {
	return l.Logger
}

func provideOrchestrator(c *Container) *orchestrator.Orchestrator {
	return c.Orchestrator
}

func provideScheduler(c *Container) *scheduler.Scheduler {
	return c.Scheduler
}

// registerHooks ties the container to the fx lifecycle.
func registerHooks(lc fx.Lifecycle, c *Container, l *logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			c.Logger.Info("🚀 Starting keeper daemon")
			return c.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			err := c.Close(ctx)
			_ = l.Sync()
			return err
		},
	})
}

// Module provides the keeper daemon. The caller supplies *config.Config.
var Module = fx.Options(
	fx.Provide(ProvideLogger),
	fx.Provide(ProvideZap),
	fx.Provide(Build),
	// components
	fx.Provide(provideOrchestrator),
	fx.Provide(provideScheduler),
	fx.Invoke(registerHooks),
	fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: l.Named("fx")}
	}),
)
