// internal/executor/victory.go
package executor

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
)

// CheckVictory submits check_victory_conditions for an InBattle token whose
// observed reserves and volume meet its tier targets. Below the targets
// nothing is submitted and the error wraps ErrBelowThreshold.
//
// The returned Result is never nil.
func (e *Executor) CheckVictory(ctx context.Context, mint solana.PublicKey) (res *Result, err error) {
	res = &Result{Transition: TransitionCheckVictory, Mint: mint}
	start := e.now()
	defer func() { e.finish(res, err, start) }()

	snap, err := e.readState(ctx, mint)
	if err != nil {
		return res, err
	}
	st := snap.state
	res.Before = st

	if st.Status != battle.StatusInBattle {
		return res, precondition(res.Transition, st, battle.StatusInBattle, "")
	}
	if !e.thresholds.Meets(st) {
		th, _ := e.thresholds.For(st.Tier)
		return res, fmt.Errorf("%s: %w (sol %d/%d, volume %d/%d)", mint, ErrBelowThreshold,
			st.RealSolReserves, th.SolThreshold(), st.TotalTradeVolume, th.VictoryVolume)
	}

	ix, err := e.program.CheckVictoryConditions(mint)
	if err != nil {
		return res, fmt.Errorf("build check_victory_conditions: %w", err)
	}
	landed, err := e.send(ctx, res, ix)
	if err != nil || !landed {
		return res, err
	}
	res.Success = true

	after, err := e.readState(ctx, mint)
	if err != nil {
		return res, fmt.Errorf("post-check: %w", err)
	}
	res.After = after.state
	res.EffectOccurred = after.state.Status == battle.StatusVictoryPending
	if !res.EffectOccurred {
		res.NoEffectReason = "status unchanged: " + after.state.Status.String()
	}
	return res, nil
}
