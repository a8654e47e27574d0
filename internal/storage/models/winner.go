// internal/storage/models/winner.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Winner record statuses as the flow advances.
const (
	WinnerFinalized   = "finalized"
	WinnerWithdrawn   = "withdrawn"
	WinnerPoolCreated = "pool_created"
)

// Winner records one completed battle, keyed by the winner mint.
type Winner struct {
	BaseModel
	Mint        string `gorm:"uniqueIndex;not null;type:varchar(44)"`
	Name        string `gorm:"type:varchar(100)"`
	Symbol      string `gorm:"type:varchar(20)"`
	LoserMint   string `gorm:"type:varchar(44)"`
	LoserName   string `gorm:"type:varchar(100)"`
	LoserSymbol string `gorm:"type:varchar(20)"`

	FinalSolCollected decimal.Decimal `gorm:"type:decimal(20,9);default:0"`
	FinalVolumeSol    decimal.Decimal `gorm:"type:decimal(20,9);default:0"`
	SpoilsSol         decimal.Decimal `gorm:"type:decimal(20,9);default:0"`
	PlatformFeeSol    decimal.Decimal `gorm:"type:decimal(20,9);default:0"`
	WithdrawnSol      decimal.Decimal `gorm:"type:decimal(20,9);default:0"`
	WithdrawnTokens   uint64

	PoolID           string `gorm:"type:varchar(64)"`
	RaydiumURL       string `gorm:"type:text"`
	VictoryTimestamp *time.Time
	Status           string `gorm:"index;type:varchar(20)"`

	VictorySignature  string `gorm:"type:varchar(88)"`
	FinalizeSignature string `gorm:"type:varchar(88)"`
	WithdrawSignature string `gorm:"type:varchar(88)"`
	PoolSignature     string `gorm:"type:varchar(88)"`
}

// MergeFrom fills every empty field of w from prev, so repeated partial
// upserts never erase what an earlier attempt recorded. The primary key is
// not copied; upserts match on Mint.
func (w *Winner) MergeFrom(prev *Winner) {
	if prev == nil {
		return
	}
	w.CreatedAt = prev.CreatedAt
	str := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	dec := func(dst *decimal.Decimal, src decimal.Decimal) {
		if dst.IsZero() {
			*dst = src
		}
	}
	str(&w.Name, prev.Name)
	str(&w.Symbol, prev.Symbol)
	str(&w.LoserMint, prev.LoserMint)
	str(&w.LoserName, prev.LoserName)
	str(&w.LoserSymbol, prev.LoserSymbol)
	str(&w.PoolID, prev.PoolID)
	str(&w.RaydiumURL, prev.RaydiumURL)
	str(&w.VictorySignature, prev.VictorySignature)
	str(&w.FinalizeSignature, prev.FinalizeSignature)
	str(&w.WithdrawSignature, prev.WithdrawSignature)
	str(&w.PoolSignature, prev.PoolSignature)
	dec(&w.FinalSolCollected, prev.FinalSolCollected)
	dec(&w.FinalVolumeSol, prev.FinalVolumeSol)
	dec(&w.SpoilsSol, prev.SpoilsSol)
	dec(&w.PlatformFeeSol, prev.PlatformFeeSol)
	dec(&w.WithdrawnSol, prev.WithdrawnSol)
	if w.WithdrawnTokens == 0 {
		w.WithdrawnTokens = prev.WithdrawnTokens
	}
	if w.VictoryTimestamp == nil {
		w.VictoryTimestamp = prev.VictoryTimestamp
	}
	if winnerRank(prev.Status) > winnerRank(w.Status) {
		w.Status = prev.Status
	}
}

func winnerRank(status string) int {
	switch status {
	case WinnerFinalized:
		return 1
	case WinnerWithdrawn:
		return 2
	case WinnerPoolCreated:
		return 3
	}
	return 0
}
