// internal/storage/models/token.go
package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
)

// Token is the mirror row of one battle token.
type Token struct {
	BaseModel
	Mint     string `gorm:"uniqueIndex;not null;type:varchar(44)"`
	Name     string `gorm:"type:varchar(100)"`
	Symbol   string `gorm:"type:varchar(20)"`
	ImageURL string `gorm:"type:text"`
	Creator  string `gorm:"type:varchar(44)"`

	BattleStatus string `gorm:"index;not null;type:varchar(20)"`
	OpponentMint string `gorm:"type:varchar(44)"`
	Tier         int    `gorm:"default:0"`
	IsActive     bool

	SolCollected     decimal.Decimal `gorm:"type:decimal(20,9);default:0"`
	RealSolReserves  decimal.Decimal `gorm:"type:decimal(20,9);default:0"`
	TotalTradeVolume decimal.Decimal `gorm:"type:decimal(20,9);default:0"`

	CreationTimestamp      *time.Time
	QualificationTimestamp *time.Time
	BattleStartTimestamp   *time.Time
	VictoryTimestamp       *time.Time
	ListingTimestamp       *time.Time

	RaydiumPoolID    string `gorm:"type:varchar(64)"`
	RaydiumURL       string `gorm:"type:text"`
	RaydiumPoolError string `gorm:"type:text"`
	// PoolClaimID marks a pool creation attempt in progress since PoolClaimedAt.
	PoolClaimID   string `gorm:"type:varchar(36)"`
	PoolClaimedAt *time.Time

	LedgerSyncedAt *time.Time
}

// Status parses BattleStatus.
func (t *Token) Status() (battle.Status, error) {
	return battle.ParseStatus(t.BattleStatus)
}

// HasPool reports whether a pool was recorded for the token.
func (t *Token) HasPool() bool {
	return t.RaydiumPoolID != ""
}

// ApplyState copies the ledger-observed fields of st onto the row.
func (t *Token) ApplyState(st *battle.BattleState, syncedAt time.Time) {
	t.Mint = st.Mint.String()
	t.BattleStatus = st.Status.String()
	t.OpponentMint = ""
	if st.HasOpponent() {
		t.OpponentMint = st.OpponentMint.String()
	}
	t.Tier = int(st.Tier)
	t.IsActive = st.IsActive
	t.SolCollected = Lamports(st.SolCollected)
	t.RealSolReserves = Lamports(st.RealSolReserves)
	t.TotalTradeVolume = Lamports(st.TotalTradeVolume)
	t.CreationTimestamp = unixTime(st.CreationTimestamp)
	t.QualificationTimestamp = unixTime(st.QualificationTimestamp)
	t.BattleStartTimestamp = unixTime(st.BattleStartTimestamp)
	t.VictoryTimestamp = unixTime(st.VictoryTimestamp)
	t.ListingTimestamp = unixTime(st.ListingTimestamp)
	if t.Name == "" {
		t.Name = st.Name
	}
	if t.Symbol == "" {
		t.Symbol = st.Symbol
	}
	synced := syncedAt.UTC()
	t.LedgerSyncedAt = &synced
}

func unixTime(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
