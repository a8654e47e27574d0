// internal/orchestrator/mirror.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
	"github.com/rovshanmuradov/bonk-keeper/internal/executor"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage/models"
)

const bpsDenominator = 10_000

// sync writes the ledger-observed state of one token to the mirror.
func (o *Orchestrator) sync(ctx context.Context, st *battle.BattleState) (*models.Token, error) {
	mint := st.Mint.String()
	token, err := o.store.GetToken(ctx, mint)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		token = &models.Token{}
	case err != nil:
		return nil, fmt.Errorf("read mirror row: %w", err)
	}

	snapshot := token.SolCollected
	token.ApplyState(st, o.opts.Now())
	if st.Status == battle.StatusListed {
		// After withdrawal the ledger zeroes the reserves; the mirror
		// keeps the snapshot taken at listing.
		if st.SolCollected == 0 && snapshot.IsPositive() {
			token.SolCollected = snapshot
		}
		if token.HasPool() {
			token.BattleStatus = battle.StatusPoolCreated.String()
		}
	}
	if err := o.store.UpsertToken(ctx, token); err != nil {
		return nil, fmt.Errorf("upsert mirror row: %w", err)
	}
	return token, nil
}

// publish is sync without failure: mirror writes never change a flow result.
func (o *Orchestrator) publish(ctx context.Context, st *battle.BattleState) {
	if st == nil {
		return
	}
	if _, err := o.sync(ctx, st); err != nil {
		o.logger.Warn("mirror update failed",
			zap.String("mint", st.Mint.String()),
			zap.Stringer("status", st.Status),
			zap.Error(err))
	}
}

func (o *Orchestrator) activity(ctx context.Context, kind, mint, signature, details string) {
	err := o.store.AppendActivity(ctx, &models.Activity{
		Mint:      mint,
		Kind:      kind,
		Signature: signature,
		Details:   details,
	})
	if err != nil {
		o.logger.Warn("activity not recorded", zap.String("kind", kind), zap.String("mint", mint), zap.Error(err))
	}
}

func (o *Orchestrator) upsertWinner(ctx context.Context, w *models.Winner) {
	if err := o.store.UpsertWinner(ctx, w); err != nil {
		o.logger.Warn("winner record not written", zap.String("mint", w.Mint), zap.String("status", w.Status), zap.Error(err))
	}
}

func bps(lamports, points uint64) uint64 {
	return lamports * points / bpsDenominator
}

// recordFinalize mirrors a landed finalize_duel: both tokens, the battle row,
// the activity feed and the winner record.
func (o *Orchestrator) recordFinalize(ctx context.Context, res *executor.Result, victorySig string) {
	winner, loser := res.After, res.Opponent
	o.publish(ctx, winner)
	o.publish(ctx, loser)

	loserMint := res.OpponentBefore.Mint.String()
	if err := o.store.CompleteBattle(ctx, res.Mint.String(), loserMint, res.Signature); err != nil {
		o.logger.Warn("battle row not completed", zap.String("winner", res.Mint.String()), zap.Error(err))
	}

	spoils := bps(res.OpponentBefore.RealSolReserves, o.opts.SpoilsBps)
	fee := bps(res.Before.RealSolReserves+spoils, o.opts.FeeBps)
	record := &models.Winner{
		Mint:              res.Mint.String(),
		Name:              res.Before.Name,
		Symbol:            res.Before.Symbol,
		LoserMint:         loserMint,
		LoserName:         res.OpponentBefore.Name,
		LoserSymbol:       res.OpponentBefore.Symbol,
		FinalSolCollected: models.Lamports(winner.SolCollected),
		FinalVolumeSol:    models.Lamports(res.Before.TotalTradeVolume),
		SpoilsSol:         models.Lamports(spoils),
		PlatformFeeSol:    models.Lamports(fee),
		VictorySignature:  victorySig,
		FinalizeSignature: res.Signature,
		Status:            models.WinnerFinalized,
	}
	if ts := res.Before.VictoryTimestamp; ts > 0 {
		t := unix(ts)
		record.VictoryTimestamp = &t
	}
	o.upsertWinner(ctx, record)
	o.activity(ctx, models.ActivityFinalized, res.Mint.String(), res.Signature,
		fmt.Sprintf("defeated %s, spoils %s SOL", loserMint, record.SpoilsSol))
}

// recordWithdraw stores the withdrawn amounts before the mirror row is
// refreshed, so a later pool attempt can still size the pool.
func (o *Orchestrator) recordWithdraw(ctx context.Context, res *executor.Result) {
	if !res.EffectOccurred {
		return
	}
	mint := res.Mint.String()
	o.upsertWinner(ctx, &models.Winner{
		Mint:              mint,
		WithdrawnSol:      models.Lamports(res.SolWithdrawn),
		WithdrawnTokens:   res.TokensWithdrawn,
		WithdrawSignature: res.Signature,
		Status:            models.WinnerWithdrawn,
	})
	o.publish(ctx, res.After)
	o.activity(ctx, models.ActivityWithdrawn, mint, res.Signature,
		fmt.Sprintf("%s SOL, %d tokens", models.Lamports(res.SolWithdrawn), res.TokensWithdrawn))
}

// liquidity sizes the pool: the SOL withdrawn in this pass, else the amount
// recorded by an earlier withdraw, else the listing snapshot.
func (o *Orchestrator) liquidity(ctx context.Context, res *executor.Result) executor.Liquidity {
	liq := executor.Liquidity{SolLamports: res.SolWithdrawn, TokenAmount: res.KeeperTokenBalance}
	if liq.SolLamports > 0 {
		return liq
	}
	mint := res.Mint.String()
	if w, err := o.store.GetWinner(ctx, mint); err == nil && w.WithdrawnSol.IsPositive() {
		liq.SolLamports = models.ToLamports(w.WithdrawnSol)
		return liq
	}
	if t, err := o.store.GetToken(ctx, mint); err == nil && t.SolCollected.IsPositive() {
		liq.SolLamports = models.ToLamports(t.SolCollected)
		return liq
	}
	if res.Before != nil {
		liq.SolLamports = res.Before.SolCollected
	}
	return liq
}

func (o *Orchestrator) recordPoolFailure(ctx context.Context, st *battle.BattleState, cause error) {
	mint := st.Mint.String()
	fields := map[string]interface{}{"raydium_pool_error": cause.Error()}
	err := o.store.UpdateTokenStatus(ctx, mint, battle.StatusListed, fields)
	if errors.Is(err, storage.ErrNotFound) {
		o.publish(ctx, st)
		err = o.store.UpdateTokenStatus(ctx, mint, battle.StatusListed, fields)
	}
	if err != nil {
		o.logger.Warn("pool error not recorded", zap.String("mint", mint), zap.Error(err))
	}
	o.activity(ctx, models.ActivityPoolFailed, mint, "", cause.Error())
}

func (o *Orchestrator) recordPool(ctx context.Context, st *battle.BattleState, p *executor.PoolResult, liq executor.Liquidity) {
	mint := st.Mint.String()
	fields := map[string]interface{}{
		"raydium_pool_id":    p.PoolID,
		"raydium_url":        p.URL,
		"raydium_pool_error": "",
		"pool_claim_id":      "",
		"pool_claimed_at":    nil,
	}
	err := o.store.UpdateTokenStatus(ctx, mint, battle.StatusPoolCreated, fields)
	if errors.Is(err, storage.ErrNotFound) {
		o.publish(ctx, st)
		err = o.store.UpdateTokenStatus(ctx, mint, battle.StatusPoolCreated, fields)
	}
	if err != nil {
		o.logger.Warn("pool not mirrored", zap.String("mint", mint), zap.String("pool_id", p.PoolID), zap.Error(err))
	}
	o.upsertWinner(ctx, &models.Winner{
		Mint:          mint,
		PoolID:        p.PoolID,
		RaydiumURL:    p.URL,
		PoolSignature: p.Signature,
		Status:        models.WinnerPoolCreated,
	})
	o.activity(ctx, models.ActivityPoolCreated, mint, p.Signature,
		fmt.Sprintf("pool %s seeded with %s SOL", p.PoolID, models.Lamports(liq.SolLamports)))
}
