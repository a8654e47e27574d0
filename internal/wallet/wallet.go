// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/rovshanmuradov/bonk-keeper/internal/program"
)

// Wallet holds the keeper key, the only signer of transitions.
type Wallet struct {
	PrivateKey solana.PrivateKey
	PublicKey  solana.PublicKey

	mu       sync.Mutex
	ataCache map[string]solana.PublicKey // ATA cache keyed by (mint, token program)
}

// NewWallet creates a wallet from a base58-encoded private key.
func NewWallet(privateKeyBase58 string) (*Wallet, error) {
	privateKeyBytes, err := base58.Decode(strings.TrimSpace(privateKeyBase58))
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	return fromBytes(privateKeyBytes)
}

// FromSecret accepts either a base58 key or a JSON byte array as written by
// solana-keygen.
func FromSecret(secret string) (*Wallet, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("empty keeper secret")
	}
	if strings.HasPrefix(secret, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(secret), &ints); err != nil {
			return nil, fmt.Errorf("failed to parse key array: %w", err)
		}
		raw := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("key array byte %d out of range: %d", i, v)
			}
			raw[i] = byte(v)
		}
		return fromBytes(raw)
	}
	return NewWallet(secret)
}

// FromFile reads a keypair file in either format.
func FromFile(path string) (*Wallet, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair: %w", err)
	}
	return FromSecret(string(content))
}

func fromBytes(b []byte) (*Wallet, error) {
	if len(b) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(b))
	}
	privateKey := solana.PrivateKey(b)
	return &Wallet{
		PrivateKey: privateKey,
		PublicKey:  privateKey.PublicKey(),
		ataCache:   make(map[string]solana.PublicKey),
	}, nil
}

// SignTransaction signs tx with the wallet key.
func (w *Wallet) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.Sign(w.Getter())
	return err
}

// Getter returns the key lookup used by solana.Transaction.Sign.
func (w *Wallet) Getter() func(solana.PublicKey) *solana.PrivateKey {
	return func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.PublicKey) {
			return &w.PrivateKey
		}
		return nil
	}
}

// GetATA returns the wallet ATA for mint under the given token program.
// Derived addresses are cached.
func (w *Wallet) GetATA(mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	key := mint.String() + ":" + tokenProgram.String()

	w.mu.Lock()
	defer w.mu.Unlock()
	if ata, ok := w.ataCache[key]; ok {
		return ata, nil
	}
	ata, err := program.AssociatedTokenAddress(w.PublicKey, mint, tokenProgram)
	if err != nil {
		return solana.PublicKey{}, err
	}
	w.ataCache[key] = ata
	return ata, nil
}

// CreateAssociatedTokenAccountIdempotentInstruction creates the ATA of owner
// for mint if it does not exist yet; it is a no-op otherwise.
func CreateAssociatedTokenAccountIdempotentInstruction(payer, owner, mint, tokenProgram solana.PublicKey) (solana.Instruction, error) {
	ata, err := program.AssociatedTokenAddress(owner, mint, tokenProgram)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		solana.AccountMetaSlice{
			{PublicKey: payer, IsWritable: true, IsSigner: true},
			{PublicKey: ata, IsWritable: true, IsSigner: false},
			{PublicKey: owner, IsWritable: false, IsSigner: false},
			{PublicKey: mint, IsWritable: false, IsSigner: false},
			{PublicKey: solana.SystemProgramID, IsWritable: false, IsSigner: false},
			{PublicKey: tokenProgram, IsWritable: false, IsSigner: false},
		},
		[]byte{1}, // 1 = CreateIdempotent
	), nil
}

// String returns the wallet public key.
func (w *Wallet) String() string {
	return w.PublicKey.String()
}
