// internal/battle/state.go
package battle

import (
	"github.com/gagliardetto/solana-go"
)

// Tier is the battle-size class of a token. Pairing requires equal tiers.
type Tier uint8

const (
	TierTest Tier = iota
	TierProduction
)

func (t Tier) String() string {
	switch t {
	case TierTest:
		return "test"
	case TierProduction:
		return "production"
	default:
		return "unknown"
	}
}

// BattleState is the decoded battle_state account of one mint.
type BattleState struct {
	Version Version

	Mint   solana.PublicKey
	Tier   Tier
	Status Status

	// OpponentMint is the zero key when the token is not paired.
	OpponentMint solana.PublicKey

	// SolCollected mirrors RealSolReserves on current accounts. Legacy
	// accounts only carry sol_collected, which is copied into RealSolReserves.
	SolCollected         uint64
	RealSolReserves      uint64
	RealTokenReserves    uint64
	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
	TokensSold           uint64
	TotalTradeVolume     uint64

	IsActive bool

	CreationTimestamp      int64
	LastTradeTimestamp     int64
	QualificationTimestamp int64
	BattleStartTimestamp   int64
	VictoryTimestamp       int64
	ListingTimestamp       int64

	Bump   uint8
	Name   string
	Symbol string
	URI    string

	// Lamports held by the account. Filled by the ledger reader, not by Decode.
	Lamports uint64
}

// HasOpponent reports whether an opponent is assigned.
func (s *BattleState) HasOpponent() bool {
	return !s.OpponentMint.IsZero()
}

// IsOpponentOf reports whether s and other reference each other.
func (s *BattleState) IsOpponentOf(other *BattleState) bool {
	if s == nil || other == nil {
		return false
	}
	return s.HasOpponent() &&
		s.OpponentMint.Equals(other.Mint) &&
		other.OpponentMint.Equals(s.Mint)
}
