// internal/blockchain/blockchain.go
package blockchain

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/bonk-keeper/internal/wallet"
)

// Ledger is the read/submit surface of the authoritative chain state.
type Ledger interface {
	// ReadAccount returns ErrAccountNotFound for a missing account.
	ReadAccount(ctx context.Context, address solana.PublicKey) (*Account, error)
	// ReadAccounts returns one entry per address; nil marks a missing account.
	ReadAccounts(ctx context.Context, addresses []solana.PublicKey) ([]*Account, error)
	// Submit signs and sends a transaction carrying exactly one instruction
	// and waits for its confirmation. A non-nil error means the outcome is
	// unknown (transport failure after retries, or the tx could not be built).
	Submit(ctx context.Context, ix solana.Instruction, signer *wallet.Wallet) (SubmitResult, error)
	MinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error)
	// TokenAccountBalance returns the raw amount; a missing account has balance 0.
	TokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
}
