// internal/storage/models/amount.go
package models

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const solDecimals = 9

// Lamports converts a lamport amount into SOL.
func Lamports(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -solDecimals)
}

// ToLamports converts SOL into lamports, truncating below one lamport.
// Negative amounts yield 0.
func ToLamports(sol decimal.Decimal) uint64 {
	if sol.IsNegative() {
		return 0
	}
	return sol.Shift(solDecimals).Truncate(0).BigInt().Uint64()
}
