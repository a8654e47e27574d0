// internal/executor/start_battle.go
package executor

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
)

// StartBattle pairs two Qualified tokens of the same tier.
func (e *Executor) StartBattle(ctx context.Context, a, b solana.PublicKey) (res *Result, err error) {
	res = &Result{Transition: TransitionStartBattle, Mint: a}
	start := e.now()
	defer func() { e.finish(res, err, start) }()

	snaps, err := e.readStates(ctx, a, b)
	if err != nil {
		return res, err
	}
	sa, sb := snaps[0].state, snaps[1].state
	res.Before, res.OpponentBefore = sa, sb

	if err := e.thresholds.CanPair(sa, sb); err != nil {
		observed := sa
		if sa.Status == battle.StatusQualified {
			observed = sb
		}
		return res, precondition(res.Transition, observed, battle.StatusQualified, err.Error())
	}

	ix, err := e.program.StartBattle(a, b)
	if err != nil {
		return res, fmt.Errorf("build start_battle: %w", err)
	}
	landed, err := e.send(ctx, res, ix)
	if err != nil || !landed {
		return res, err
	}
	res.Success = true

	after, err := e.readStates(ctx, a, b)
	if err != nil {
		return res, fmt.Errorf("post-check: %w", err)
	}
	res.After, res.Opponent = after[0].state, after[1].state
	res.EffectOccurred = res.After.Status == battle.StatusInBattle && res.After.IsOpponentOf(res.Opponent)
	if !res.EffectOccurred {
		res.NoEffectReason = "pair not observed"
	}
	return res, nil
}
