// internal/orchestrator/reconcile.go
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage/models"
	"github.com/rovshanmuradov/bonk-keeper/internal/utils/logger"
)

// Reconcile overwrites the mirror row of mint with the ledger state.
func (o *Orchestrator) Reconcile(ctx context.Context, mint solana.PublicKey) (*models.Token, error) {
	st, err := o.exec.Observe(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("observe %s: %w", mint, err)
	}
	token, err := o.sync(ctx, st)
	if err != nil {
		return nil, err
	}
	o.logger.Info("Mirror synced from ledger",
		zap.String("mint", token.Mint),
		zap.String("status", token.BattleStatus))
	return token, nil
}

var allStatuses = []battle.Status{
	battle.StatusCreated,
	battle.StatusQualified,
	battle.StatusInBattle,
	battle.StatusVictoryPending,
	battle.StatusListed,
	battle.StatusPoolCreated,
}

// ResyncResult is one mirror row compared with the ledger.
type ResyncResult struct {
	Mint   string `json:"mint"`
	Before string `json:"before"`
	After  string `json:"after,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ResyncSummary aggregates a full mirror resync.
type ResyncSummary struct {
	Scanned  int            `json:"scanned"`
	Synced   int            `json:"synced"`
	Changed  int            `json:"changed"`
	Failed   int            `json:"failed"`
	Results  []ResyncResult `json:"results"`
	Duration time.Duration  `json:"durationNs"`
}

// ReconcileAll overwrites every mirror row with the ledger state. A mint that
// cannot be read is reported and left as it is.
func (o *Orchestrator) ReconcileAll(ctx context.Context) (*ResyncSummary, error) {
	start := time.Now()
	log, _ := logger.WithOperation(o.logger, "resync")
	summary := &ResyncSummary{}

	tokens, err := o.store.ListTokensByStatus(ctx, 0, allStatuses...)
	if err != nil {
		return summary, fmt.Errorf("list mirror rows: %w", err)
	}
	summary.Scanned = len(tokens)

	mints := make([]solana.PublicKey, 0, len(tokens))
	rows := make([]*models.Token, 0, len(tokens))
	for _, t := range tokens {
		pk, err := solana.PublicKeyFromBase58(t.Mint)
		if err != nil {
			summary.Failed++
			summary.Results = append(summary.Results, ResyncResult{Mint: t.Mint, Before: t.BattleStatus, Error: err.Error()})
			continue
		}
		mints = append(mints, pk)
		rows = append(rows, t)
	}
	if len(mints) == 0 {
		summary.Duration = time.Since(start)
		return summary, nil
	}

	states, errs, err := o.exec.ObserveMany(ctx, mints)
	if err != nil {
		return summary, fmt.Errorf("observe mirror rows: %w", err)
	}
	for i, t := range rows {
		res := ResyncResult{Mint: t.Mint, Before: t.BattleStatus}
		if errs[i] != nil {
			res.Error = errs[i].Error()
			summary.Failed++
			summary.Results = append(summary.Results, res)
			continue
		}
		token, err := o.sync(ctx, states[i])
		if err != nil {
			res.Error = err.Error()
			summary.Failed++
			summary.Results = append(summary.Results, res)
			continue
		}
		res.After = token.BattleStatus
		summary.Synced++
		if res.After != res.Before {
			summary.Changed++
		}
		summary.Results = append(summary.Results, res)
	}
	summary.Duration = time.Since(start)

	log.Info("🔄 Mirror resync finished",
		zap.Int("scanned", summary.Scanned),
		zap.Int("synced", summary.Synced),
		zap.Int("changed", summary.Changed),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}
