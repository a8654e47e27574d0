// internal/orchestrator/price.go
package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/bonk-keeper/internal/executor"
	"github.com/rovshanmuradov/bonk-keeper/internal/price"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage/models"
)

// RefreshPrice writes the feed's SOL/USD price to the on-chain oracle. An
// update before the oracle's next slot fails with executor.ErrPriceUpdateTooSoon.
func (o *Orchestrator) RefreshPrice(ctx context.Context) (*executor.Result, error) {
	if o.feed == nil {
		return nil, ErrNoPriceFeed
	}
	usd, err := o.feed.SolUSD(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch SOL price: %w", err)
	}
	micro, err := price.ToMicroUSD(usd)
	if err != nil {
		return nil, err
	}

	res, err := o.step(ctx, func(ctx context.Context) (*executor.Result, error) {
		return o.exec.UpdateSolPrice(ctx, micro)
	})
	if err != nil {
		return res, err
	}
	if res.EffectOccurred {
		o.activity(context.WithoutCancel(ctx), models.ActivityPriceUpdate, "", res.Signature,
			fmt.Sprintf("SOL/USD %s", usd.StringFixed(2)))
		o.logger.Info("💲 SOL price updated",
			zap.String("usd", usd.String()),
			zap.Uint64("micro_usd", micro),
			zap.String("tx", res.Signature))
	}
	return res, nil
}
