// internal/executor/result.go
package executor

import (
	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
	"github.com/rovshanmuradov/bonk-keeper/internal/blockchain"
)

// Transition names one keeper-driven state change.
type Transition string

const (
	TransitionCheckVictory Transition = "check_victory"
	TransitionFinalizeDuel Transition = "finalize_duel"
	TransitionWithdraw     Transition = "withdraw_for_listing"
	TransitionCreatePool   Transition = "create_pool"
	TransitionStartBattle  Transition = "start_battle"
	TransitionUpdatePrice  Transition = "update_sol_price"
)

// Result describes one executed (or skipped) transition.
type Result struct {
	Transition Transition
	Mint       solana.PublicKey

	// Success: a transaction landed (or the pool service answered).
	Success   bool
	Signature string
	Outcome   blockchain.Outcome
	// Reject is the program error of a stale rejection.
	Reject *blockchain.AnchorError

	Before *battle.BattleState
	After  *battle.BattleState
	// OpponentBefore/Opponent hold the second account: the loser of
	// finalize_duel, token B of start_battle.
	OpponentBefore *battle.BattleState
	Opponent       *battle.BattleState

	EffectOccurred bool
	// AlreadyApplied: the ledger already holds the transition's effect.
	AlreadyApplied bool
	NoEffectReason string

	// withdraw_for_listing
	SolWithdrawn       uint64
	TokensWithdrawn    uint64
	KeeperTokenBalance uint64

	Pool   *PoolResult
	Oracle *battle.PriceOracle
}

// PoolResult is a created liquidity pool.
type PoolResult struct {
	PoolID    string
	URL       string
	Signature string
}

// Liquidity is the amount a pool is seeded with.
type Liquidity struct {
	SolLamports uint64
	TokenAmount uint64
}

// Label is the metrics outcome of a finished transition.
func (r *Result) Label(err error) string {
	switch {
	case err != nil:
		return errorLabel(err)
	case r.EffectOccurred:
		return "effect"
	case r.AlreadyApplied:
		return "already_applied"
	default:
		return "no_effect"
	}
}
