// internal/program/program.go
package program

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	battleStateSeed = "battle_state"
	priceOracleSeed = "price_oracle"
)

// Program describes the deployed battle program and its fixed addresses.
type Program struct {
	ID       solana.PublicKey
	Treasury solana.PublicKey
	Keeper   solana.PublicKey
}

// New parses the base58 addresses of a deployment.
func New(programID, treasury, keeper string) (*Program, error) {
	id, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("invalid program id: %w", err)
	}
	tr, err := solana.PublicKeyFromBase58(treasury)
	if err != nil {
		return nil, fmt.Errorf("invalid treasury: %w", err)
	}
	p := &Program{ID: id, Treasury: tr}
	if keeper != "" {
		kp, err := solana.PublicKeyFromBase58(keeper)
		if err != nil {
			return nil, fmt.Errorf("invalid keeper: %w", err)
		}
		p.Keeper = kp
	}
	return p, nil
}

// BattleStatePDA derives the battle_state account of mint.
func (p *Program) BattleStatePDA(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(battleStateSeed), mint.Bytes()}, p.ID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive battle state for %s: %w", mint, err)
	}
	return addr, nil
}

// PriceOraclePDA derives the singleton price oracle account.
func (p *Program) PriceOraclePDA() (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte(priceOracleSeed)}, p.ID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive price oracle: %w", err)
	}
	return addr, nil
}

// AssociatedTokenAddress derives the ATA of owner for mint under tokenProgram.
// The owner may be off-curve (the battle state PDA holds the curve tokens).
func AssociatedTokenAddress(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{
		owner.Bytes(),
		tokenProgram.Bytes(),
		mint.Bytes(),
	}, solana.SPLAssociatedTokenAccountProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive ata for %s: %w", owner, err)
	}
	return addr, nil
}

// TokenProgramForMintOwner returns the token program that owns a mint account.
func TokenProgramForMintOwner(owner solana.PublicKey) (solana.PublicKey, error) {
	switch {
	case owner.Equals(solana.TokenProgramID):
		return solana.TokenProgramID, nil
	case owner.Equals(solana.Token2022ProgramID):
		return solana.Token2022ProgramID, nil
	default:
		return solana.PublicKey{}, fmt.Errorf("mint owned by %s, not a token program", owner)
	}
}
