// internal/executor/finalize.go
package executor

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
)

// FinalizeDuel lists the winner and returns the loser to Qualified. The winner
// must be VictoryPending, the loser InBattle, and each must be the other's
// opponent; otherwise nothing is submitted.
func (e *Executor) FinalizeDuel(ctx context.Context, winner, loser solana.PublicKey) (res *Result, err error) {
	res = &Result{Transition: TransitionFinalizeDuel, Mint: winner}
	start := e.now()
	defer func() { e.finish(res, err, start) }()

	snaps, err := e.readStates(ctx, winner, loser)
	if err != nil {
		return res, err
	}
	w, l := snaps[0].state, snaps[1].state
	res.Before, res.OpponentBefore = w, l

	if w.Status != battle.StatusVictoryPending {
		return res, precondition(res.Transition, w, battle.StatusVictoryPending, "winner")
	}
	if l.Status != battle.StatusInBattle {
		return res, precondition(res.Transition, l, battle.StatusInBattle, "loser")
	}
	if !w.IsOpponentOf(l) {
		return res, &NotOpponentsError{
			Winner:         winner,
			Loser:          loser,
			WinnerOpponent: w.OpponentMint,
			LoserOpponent:  l.OpponentMint,
		}
	}

	ix, err := e.program.FinalizeDuel(winner, loser)
	if err != nil {
		return res, fmt.Errorf("build finalize_duel: %w", err)
	}
	landed, err := e.send(ctx, res, ix)
	if err != nil || !landed {
		return res, err
	}
	res.Success = true

	after, err := e.readStates(ctx, winner, loser)
	if err != nil {
		return res, fmt.Errorf("post-check: %w", err)
	}
	res.After, res.Opponent = after[0].state, after[1].state
	res.EffectOccurred = res.After.Status == battle.StatusListed
	if !res.EffectOccurred {
		res.NoEffectReason = "status unchanged: " + res.After.Status.String()
	}
	return res, nil
}
