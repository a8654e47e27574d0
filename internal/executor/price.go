// internal/executor/price.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
	"github.com/rovshanmuradov/bonk-keeper/internal/program"
)

// UpdateSolPrice writes a SOL/USD price (6 decimals) to the price oracle. It
// submits nothing while the oracle's next update time is in the future.
func (e *Executor) UpdateSolPrice(ctx context.Context, priceMicroUSD uint64) (res *Result, err error) {
	res = &Result{Transition: TransitionUpdatePrice}
	start := e.now()
	defer func() { e.finish(res, err, start) }()

	addr, err := e.program.PriceOraclePDA()
	if err != nil {
		return res, err
	}
	res.Mint = addr

	before, err := e.readOracle(ctx)
	if err != nil {
		return res, err
	}
	if !before.UpdateDue(e.now()) {
		return res, fmt.Errorf("%w: next update at %s", ErrPriceUpdateTooSoon,
			time.Unix(before.NextUpdateTimestamp, 0).UTC().Format(time.RFC3339))
	}

	ix, err := e.program.UpdateSolPrice(priceMicroUSD)
	if err != nil {
		return res, err
	}
	landed, err := e.send(ctx, res, ix)
	var subErr *SubmitError
	if errors.As(err, &subErr) && subErr.Anchor != nil && subErr.Anchor.Code == program.CodePriceUpdateTooSoon {
		return res, fmt.Errorf("%w: rejected by program", ErrPriceUpdateTooSoon)
	}
	if err != nil || !landed {
		return res, err
	}
	res.Success = true

	after, err := e.readOracle(ctx)
	if err != nil {
		return res, fmt.Errorf("post-check: %w", err)
	}
	res.Oracle = after
	res.EffectOccurred = after.UpdateCount > before.UpdateCount
	if !res.EffectOccurred {
		res.NoEffectReason = "oracle unchanged"
	}
	return res, nil
}

// ReadOracle returns the current price oracle.
func (e *Executor) ReadOracle(ctx context.Context) (*battle.PriceOracle, error) {
	return e.readOracle(ctx)
}

func (e *Executor) readOracle(ctx context.Context) (*battle.PriceOracle, error) {
	addr, err := e.program.PriceOraclePDA()
	if err != nil {
		return nil, err
	}
	acc, err := e.ledger.ReadAccount(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("read price oracle: %w", err)
	}
	return battle.DecodePriceOracle(acc.Data)
}
