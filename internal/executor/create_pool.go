// internal/executor/create_pool.go
package executor

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
	"github.com/rovshanmuradov/bonk-keeper/internal/pool"
)

// CreatePool asks the pool service, once, for a pool seeded with liq. The
// token must still be Listed on the ledger. PoolCreated exists only in the
// mirror; the ledger account stays Listed.
func (e *Executor) CreatePool(ctx context.Context, mint solana.PublicKey, liq Liquidity) (res *Result, err error) {
	res = &Result{Transition: TransitionCreatePool, Mint: mint}
	start := e.now()
	defer func() { e.finish(res, err, start) }()

	if e.creator == nil {
		return res, ErrNoPoolCreator
	}
	snap, err := e.readState(ctx, mint)
	if err != nil {
		return res, err
	}
	res.Before, res.After = snap.state, snap.state
	if snap.state.Status != battle.StatusListed {
		return res, precondition(res.Transition, snap.state, battle.StatusListed, "")
	}
	if liq.SolLamports == 0 || liq.TokenAmount == 0 {
		return res, precondition(res.Transition, snap.state, battle.StatusListed,
			fmt.Sprintf("zero liquidity (sol %d, tokens %d)", liq.SolLamports, liq.TokenAmount))
	}

	resp, err := e.creator.CreatePool(ctx, pool.Request{
		Mint:           mint,
		SolLamports:    liq.SolLamports,
		TokenAmount:    liq.TokenAmount,
		IdempotencyKey: mint.String(),
	})
	if err != nil {
		return res, fmt.Errorf("create pool for %s: %w", mint, err)
	}
	res.Success = true
	res.EffectOccurred = true
	res.Signature = resp.Signature
	res.Pool = &PoolResult{PoolID: resp.PoolID, URL: resp.URL, Signature: resp.Signature}
	return res, nil
}
