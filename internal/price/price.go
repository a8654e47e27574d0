// internal/price/price.go
package price

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Feed returns the current SOL/USD price.
type Feed interface {
	SolUSD(ctx context.Context) (decimal.Decimal, error)
}

// oracleDecimals is the fixed-point precision of the on-chain price.
const oracleDecimals = 6

// ToMicroUSD converts a USD price to the oracle's 6-decimal integer,
// rounding down.
func ToMicroUSD(usd decimal.Decimal) (uint64, error) {
	if !usd.IsPositive() {
		return 0, fmt.Errorf("invalid SOL price %s", usd)
	}
	return usd.Shift(oracleDecimals).Truncate(0).BigInt().Uint64(), nil
}

// FromMicroUSD is the inverse of ToMicroUSD.
func FromMicroUSD(v uint64) decimal.Decimal {
	return decimal.NewFromInt(int64(v)).Shift(-oracleDecimals)
}

// Static is a fixed-price Feed.
type Static decimal.Decimal

func (s Static) SolUSD(context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(s), nil
}
