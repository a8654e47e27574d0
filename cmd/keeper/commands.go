// cmd/keeper/commands.go
package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/rovshanmuradov/bonk-keeper/internal/config"
	"github.com/rovshanmuradov/bonk-keeper/internal/executor"
	"github.com/rovshanmuradov/bonk-keeper/internal/keeper"
	"github.com/rovshanmuradov/bonk-keeper/internal/price"
	"github.com/rovshanmuradov/bonk-keeper/internal/ui"
)

func init() {
	rootCmd.AddCommand(
		onceCmd(),
		runCmd(),
		completeCmd(),
		reconcileCmd(),
		matchCmd(),
		priceCmd(),
		watchCmd(),
		dashboardCmd(),
	)
}

func onceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run one batch pass over active battles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				summary, err := s.container.Orchestrator.RunBatch(ctx)
				if summary != nil {
					if perr := printJSON(summary); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler daemon with the HTTP API and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app := fx.New(
				fx.Supply(cfg),
				keeper.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			// Run blocks until SIGINT/SIGTERM, then runs OnStop hooks.
			app.Run()
			return nil
		},
	}
}

func completeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <mint>",
		Short: "Drive one winner through finalize, withdraw and pool creation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mint, err := parseMintArg(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, s *session) error {
				fr := s.container.Orchestrator.CompleteVictory(ctx, mint)
				if err := printJSON(fr); err != nil {
					return err
				}
				if fr.Err != nil {
					return fmt.Errorf("flow stopped at %s: %w", fr.Step, fr.Err)
				}
				return nil
			})
		},
	}
}

func reconcileCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "reconcile [mint]",
		Short: "Sync mirror rows from the ledger",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				return withSession(cmd, func(ctx context.Context, s *session) error {
					summary, err := s.container.Orchestrator.ReconcileAll(ctx)
					if summary != nil {
						if perr := printJSON(summary); perr != nil {
							return perr
						}
					}
					return err
				})
			}
			mint, err := parseMintArg(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, s *session) error {
				token, err := s.container.Orchestrator.Reconcile(ctx, mint)
				if err != nil {
					return err
				}
				fmt.Printf("%s  %s  sol=%s volume=%s\n",
					token.Mint, token.BattleStatus, token.SolCollected, token.TotalTradeVolume)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "resync every mirror row")
	return cmd
}

func matchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "match",
		Short: "Pair qualified tokens and start battles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				summary, err := s.container.Orchestrator.MatchPass(ctx)
				if err != nil {
					return err
				}
				return printJSON(summary)
			})
		},
	}
}

func priceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "price",
		Short: "Refresh the on-chain SOL/USD oracle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, s *session) error {
				oracleAddr, err := s.container.Oracle()
				if err != nil {
					return err
				}
				res, err := s.container.Orchestrator.RefreshPrice(ctx)
				if errors.Is(err, executor.ErrPriceUpdateTooSoon) {
					fmt.Printf("oracle %s: %v\n", oracleAddr, err)
					return nil
				}
				if err != nil {
					return err
				}
				if res.Oracle != nil {
					fmt.Printf("oracle %s: $%s (update #%d) tx %s\n",
						oracleAddr, price.FromMicroUSD(res.Oracle.SolPriceUSD).StringFixed(4),
						res.Oracle.UpdateCount, res.Signature)
				}
				return nil
			})
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Trigger victory flows from program account updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.RPC.WebSocketURL == "" {
				return errors.New("watch requires rpc.websocket_url")
			}
			cfg.Watcher.Enabled = true
			cfg.API.Enabled = false
			s, err := openSession(cfg)
			if err != nil {
				return err
			}
			defer s.close()

			ctx, stop := signalContext(cmd)
			defer stop()
			return s.container.Watcher.Run(ctx)
		},
	}
}

func dashboardCmd() *cobra.Command {
	var interval time.Duration
	c := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the battle mirror in a terminal dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			quiet(cfg)
			s, err := openSession(cfg)
			if err != nil {
				return err
			}
			defer s.close()

			c := s.container
			recovery := ui.NewRecoveryHandler(c.Logger, func() (tea.Model, []tea.ProgramOption) {
				return ui.NewDashboard(c.Store, c.Orchestrator, interval, c.Logger), []tea.ProgramOption{tea.WithAltScreen()}
			})
			return recovery.RunWithRecovery()
		},
	}
	c.Flags().DurationVar(&interval, "interval", 5*time.Second, "Mirror polling interval")
	return c
}

// quiet keeps log output off the terminal the TUI draws on.
func quiet(cfg *config.Config) {
	cfg.Log.DisableConsole = true
	cfg.API.Enabled = false
	cfg.Watcher.Enabled = false
}
