// internal/blockchain/types.go
package blockchain

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ErrAccountNotFound: the account does not exist on the ledger.
var ErrAccountNotFound = errors.New("account not found")

// Account is a raw ledger account.
type Account struct {
	Address    solana.PublicKey
	Owner      solana.PublicKey
	Lamports   uint64
	Data       []byte
	Executable bool
}

// Outcome classifies what happened to a submitted transaction.
type Outcome int

const (
	// OutcomeConfirmed: the transaction landed and executed successfully.
	OutcomeConfirmed Outcome = iota
	// OutcomeAlreadyProcessed: an earlier send of the same signed transaction
	// already landed.
	OutcomeAlreadyProcessed
	// OutcomeRejected: the ledger deterministically refused the instruction.
	OutcomeRejected
	// OutcomeTimeout: confirmation was not observed within the bounded wait.
	OutcomeTimeout
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeAlreadyProcessed:
		return "already_processed"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Landed reports whether the transaction executed on the ledger.
func (o Outcome) Landed() bool {
	return o == OutcomeConfirmed || o == OutcomeAlreadyProcessed
}

// AnchorError represents a program error raised through Anchor.
type AnchorError struct {
	Code      int    `json:"code"`
	Name      string `json:"name"`
	Msg       string `json:"msg,omitempty"`
	ProgramID string `json:"programId,omitempty"`
}

func (e *AnchorError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("anchor error %s (%d): %s", e.Name, e.Code, e.Msg)
	}
	return fmt.Sprintf("anchor error %s (%d)", e.Name, e.Code)
}

// SubmitResult is the typed result of Ledger.Submit.
type SubmitResult struct {
	Outcome   Outcome
	Signature solana.Signature
	// Reject holds the parsed program error for OutcomeRejected, when one
	// could be identified.
	Reject *AnchorError
	// Err is the raw rejection or timeout cause.
	Err  error
	Logs []string
}
