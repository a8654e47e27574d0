// internal/orchestrator/match.go
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
	"github.com/rovshanmuradov/bonk-keeper/internal/executor"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage/models"
	"github.com/rovshanmuradov/bonk-keeper/internal/utils/logger"
)

// Pairing is one battle started by a match pass.
type Pairing struct {
	A         string `json:"tokenA"`
	B         string `json:"tokenB"`
	Signature string `json:"signature"`
}

// MatchSummary aggregates one match pass.
type MatchSummary struct {
	CorrelationID string        `json:"correlationId"`
	Candidates    int           `json:"candidates"`
	Eligible      int           `json:"eligible"`
	Paired        int           `json:"paired"`
	Failed        int           `json:"failed"`
	Battles       []Pairing     `json:"battles"`
	Duration      time.Duration `json:"durationNs"`
}

// MatchPass pairs Qualified tokens, oldest first, into battles. Candidates
// come from the mirror and are verified on the ledger before pairing.
func (o *Orchestrator) MatchPass(ctx context.Context) (*MatchSummary, error) {
	start := time.Now()
	log, corrID := logger.WithOperation(o.logger, "match")
	ms := &MatchSummary{CorrelationID: corrID}

	tokens, err := o.store.ListTokensByStatus(ctx, o.opts.BatchSize, battle.StatusQualified)
	if err != nil {
		return ms, fmt.Errorf("list qualified tokens: %w", err)
	}
	ms.Candidates = len(tokens)
	if len(tokens) < 2 {
		o.saveMatchRun(ctx, ms, start)
		return ms, nil
	}

	mints := make([]solana.PublicKey, 0, len(tokens))
	for _, t := range tokens {
		if pk, err := solana.PublicKeyFromBase58(t.Mint); err == nil {
			mints = append(mints, pk)
		}
	}
	states, errs, err := o.exec.ObserveMany(ctx, mints)
	if err != nil {
		return ms, fmt.Errorf("observe candidates: %w", err)
	}

	work := context.WithoutCancel(ctx)
	var eligible []*battle.BattleState
	for i, st := range states {
		if errs[i] != nil {
			log.Warn("Candidate unreadable", zap.String("mint", mints[i].String()), zap.Error(errs[i]))
			continue
		}
		if st.Status != battle.StatusQualified || !st.IsActive {
			o.publish(work, st)
			continue
		}
		eligible = append(eligible, st)
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return qualifiedAt(eligible[i]) < qualifiedAt(eligible[j])
	})
	ms.Eligible = len(eligible)

	used := make(map[solana.PublicKey]bool, len(eligible))
	for i, a := range eligible {
		if ctx.Err() != nil {
			break
		}
		if used[a.Mint] {
			continue
		}
		for _, b := range eligible[i+1:] {
			if used[b.Mint] || o.thresholds.CanPair(a, b) != nil {
				continue
			}
			used[a.Mint], used[b.Mint] = true, true
			if o.startBattle(work, a, b, ms, log) {
				break
			}
			// No pair: a stays free for the next candidate.
			used[a.Mint] = false
		}
	}

	ms.Duration = time.Since(start)
	o.saveMatchRun(ctx, ms, start)
	log.Info("🤝 Match pass finished",
		zap.Int("candidates", ms.Candidates),
		zap.Int("eligible", ms.Eligible),
		zap.Int("paired", ms.Paired),
		zap.Int("failed", ms.Failed))
	return ms, nil
}

func (o *Orchestrator) startBattle(ctx context.Context, a, b *battle.BattleState, ms *MatchSummary, log *zap.Logger) bool {
	res, err := o.step(ctx, func(ctx context.Context) (*executor.Result, error) {
		return o.exec.StartBattle(ctx, a.Mint, b.Mint)
	})
	if err != nil {
		ms.Failed++
		log.Error("❌ Battle not started",
			zap.String("token_a", a.Mint.String()),
			zap.String("token_b", b.Mint.String()),
			zap.Error(err))
		return false
	}
	if !res.EffectOccurred {
		log.Info("Battle start had no effect",
			zap.String("token_a", a.Mint.String()),
			zap.String("reason", res.NoEffectReason))
		return false
	}

	o.publish(ctx, res.After)
	o.publish(ctx, res.Opponent)
	if err := o.store.RecordBattleStart(ctx, a.Mint.String(), b.Mint.String(), res.Signature); err != nil {
		log.Warn("battle row not recorded", zap.Error(err))
	}
	o.activity(ctx, models.ActivityBattleStarted, a.Mint.String(), res.Signature,
		fmt.Sprintf("%s vs %s", a.Mint, b.Mint))

	ms.Paired++
	ms.Battles = append(ms.Battles, Pairing{A: a.Mint.String(), B: b.Mint.String(), Signature: res.Signature})
	log.Info("⚔️ Battle started",
		zap.String("token_a", a.Mint.String()),
		zap.String("token_b", b.Mint.String()),
		zap.String("tx", res.Signature))
	return true
}

func qualifiedAt(st *battle.BattleState) int64 {
	if st.QualificationTimestamp > 0 {
		return st.QualificationTimestamp
	}
	return st.CreationTimestamp
}

func (o *Orchestrator) saveMatchRun(ctx context.Context, ms *MatchSummary, start time.Time) {
	o.saveRun(ctx, "match", &Summary{
		CorrelationID: ms.CorrelationID,
		Scanned:       ms.Candidates,
		Checked:       ms.Eligible,
		Succeeded:     ms.Paired,
		Failed:        ms.Failed,
	}, start, nil)
}
