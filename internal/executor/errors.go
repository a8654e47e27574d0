// internal/executor/errors.go
package executor

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
	"github.com/rovshanmuradov/bonk-keeper/internal/blockchain"
)

var (
	// ErrPreconditionFailed: the observed ledger state does not allow the transition.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrNotOpponents: winner and loser do not reference each other.
	ErrNotOpponents = errors.New("tokens are not opponents")
	// ErrBelowThreshold: check_victory was not submitted, the victory targets are unmet.
	ErrBelowThreshold = errors.New("victory threshold not met")
	// ErrRejected: the ledger refused the instruction for a business reason.
	ErrRejected = errors.New("transaction rejected")
	// ErrTimeout: confirmation was not observed in time; the outcome is unknown.
	ErrTimeout = errors.New("confirmation timeout")
	// ErrPriceUpdateTooSoon: the oracle does not accept a new price yet.
	ErrPriceUpdateTooSoon = errors.New("price update too soon")
	// ErrNoPoolCreator: no pool service is configured.
	ErrNoPoolCreator = errors.New("pool creator not configured")
)

// PreconditionError reports a status mismatch found before submitting.
type PreconditionError struct {
	Transition Transition
	Mint       solana.PublicKey
	Observed   battle.Status
	Required   battle.Status
	Detail     string
}

func (e *PreconditionError) Error() string {
	msg := fmt.Sprintf("%s %s: observed %s, required %s", e.Transition, e.Mint, e.Observed, e.Required)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrPreconditionFailed
}

// NotOpponentsError reports a winner/loser pair that does not reference each other.
type NotOpponentsError struct {
	Winner, Loser                 solana.PublicKey
	WinnerOpponent, LoserOpponent solana.PublicKey
}

func (e *NotOpponentsError) Error() string {
	return fmt.Sprintf("%s and %s are not opponents (winner->%s, loser->%s)",
		e.Winner, e.Loser, e.WinnerOpponent, e.LoserOpponent)
}

func (e *NotOpponentsError) Is(target error) bool {
	return target == ErrNotOpponents || target == ErrPreconditionFailed
}

// SubmitError is a submission whose outcome is a rejection, a timeout or unknown.
type SubmitError struct {
	Transition Transition
	Mint       solana.PublicKey
	Outcome    blockchain.Outcome
	Anchor     *blockchain.AnchorError
	Signature  string
	// Err is the transport error when the outcome is unknown, or the raw cause.
	Err error
	// Unknown is set when Submit itself failed and nothing is known about the tx.
	Unknown bool
}

func (e *SubmitError) Error() string {
	switch {
	case e.Unknown:
		return fmt.Sprintf("%s %s: submit failed: %v", e.Transition, e.Mint, e.Err)
	case e.Anchor != nil:
		return fmt.Sprintf("%s %s: %s: %v", e.Transition, e.Mint, e.Outcome, e.Anchor)
	default:
		return fmt.Sprintf("%s %s: %s: %v", e.Transition, e.Mint, e.Outcome, e.Err)
	}
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

func (e *SubmitError) Is(target error) bool {
	if e.Unknown {
		return false
	}
	switch target {
	case ErrRejected:
		return e.Outcome == blockchain.OutcomeRejected
	case ErrTimeout:
		return e.Outcome == blockchain.OutcomeTimeout
	}
	return false
}
