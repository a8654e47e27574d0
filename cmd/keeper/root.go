// cmd/keeper/root.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bonk-keeper/internal/config"
	"github.com/rovshanmuradov/bonk-keeper/internal/keeper"
	"github.com/rovshanmuradov/bonk-keeper/internal/utils/logger"
)

// rootCmd wires the CLI surface. Every subcommand loads the config from
// --config plus BONK_KEEPER_* overrides.
var rootCmd = &cobra.Command{
	Use:           "keeper",
	Short:         "Bonk battle keeper",
	Long:          "Drive meme-token battles through victory, finalization, withdrawal and pool listing.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var flagConfig string

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to config file (yaml/json/toml)")
}

// session is one CLI invocation's config, logger and container.
type session struct {
	cfg       *config.Config
	log       *logger.Logger
	container *keeper.Container
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func openSession(cfg *config.Config) (*session, error) {
	log, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	c, err := keeper.Build(cfg, log.Logger)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return &session{cfg: cfg, log: log, container: c}, nil
}

func (s *session) close() {
	if err := s.container.Close(context.Background()); err != nil {
		s.log.Warn("shutdown finished with errors", zap.Error(err))
	}
	_ = s.log.Sync()
}

// withSession runs fn with a container and a context cancelled on SIGINT or
// SIGTERM.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signalContext(cmd)
	defer stop()
	return fn(ctx, s)
}

func parseMintArg(arg string) (solana.PublicKey, error) {
	mint, err := solana.PublicKeyFromBase58(arg)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid mint %q: %w", arg, err)
	}
	return mint, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
