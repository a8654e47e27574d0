package keeper

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bonk-keeper/internal/config"
	"github.com/rovshanmuradov/bonk-keeper/internal/orchestrator"
	"github.com/rovshanmuradov/bonk-keeper/internal/utils/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.RPC.URLs = []string{"http://127.0.0.1:1"}
	cfg.RPC.Commitment = "confirmed"
	cfg.Program.ID = solana.NewWallet().PublicKey().String()
	cfg.Program.Treasury = solana.NewWallet().PublicKey().String()
	cfg.Program.SpoilsBps = 5000
	cfg.Program.FeeBps = 500
	cfg.Keeper.PrivateKey = solana.NewWallet().PrivateKey.String()
	cfg.Database.DSN = filepath.Join(t.TempDir(), "keeper.db")
	cfg.Database.LogLevel = "silent"
	cfg.Scheduler.BatchInterval = time.Hour
	cfg.Scheduler.Budget = time.Second
	cfg.Scheduler.TransitionTimeout = time.Second
	cfg.Scheduler.Concurrency = 1
	cfg.API.Addr = "127.0.0.1:0"
	return cfg
}

func TestBuildWiresOptionalComponents(t *testing.T) {
	cfg := testConfig(t)
	c, err := Build(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	assert.NotNil(t, c.Orchestrator)
	assert.NotNil(t, c.Scheduler)
	assert.Nil(t, c.Watcher)
	assert.Nil(t, c.API)
	assert.Equal(t, cfg.Keeper.PrivateKey, c.Wallet.PrivateKey.String())

	counts, err := c.Store.CountTokensByStatus(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestBuildRejectsOracleMismatch(t *testing.T) {
	cfg := testConfig(t)
	cfg.Program.Oracle = solana.NewWallet().PublicKey().String()
	_, err := Build(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match derived oracle")
}

func TestBuildRequiresKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Keeper.PrivateKey = ""
	_, err := Build(cfg, zap.NewNop())
	require.Error(t, err)
}

func TestModuleLifecycle(t *testing.T) {
	cfg := testConfig(t)
	cfg.API.Enabled = true
	cfg.Log.LogFile = ""
	cfg.Log.Level = "error"

	var orch *orchestrator.Orchestrator
	app := fxtest.New(t,
		fx.Supply(cfg),
		fx.Replace(logger.Nop()),
		Module,
		fx.Populate(&orch),
	)
	app.RequireStart()
	assert.NotNil(t, orch)
	app.RequireStop()
}
