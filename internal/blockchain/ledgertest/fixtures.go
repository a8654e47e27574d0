// internal/blockchain/ledgertest/fixtures.go
package ledgertest

import (
	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
	"github.com/rovshanmuradov/bonk-keeper/internal/program"
	"github.com/rovshanmuradov/bonk-keeper/internal/wallet"
)

// Test deployment addresses.
const (
	ProgramID = "6LdnckDuYxXn4UkyyD5YB7w9j2k49AsuZCNmQ3GhR2Eq"
	Treasury  = "5t46DVegMLyVQ2nstgPPUNDn5WCEFwgQCXfbSx1nHrdf"
)

// CurveTokens is the token amount fixtures leave on the bonding curve.
const CurveTokens uint64 = 206_900_000_000_000

// Deployment returns a fresh keeper wallet and the program bound to it.
func Deployment() (*wallet.Wallet, *program.Program) {
	kp := solana.NewWallet()
	w, err := wallet.NewWallet(kp.PrivateKey.String())
	if err != nil {
		panic(err)
	}
	prog, err := program.New(ProgramID, Treasury, w.PublicKey.String())
	if err != nil {
		panic(err)
	}
	return w, prog
}

// Token returns an active test-tier state with a random mint.
func Token(status battle.Status, realSol, volume uint64) *battle.BattleState {
	return &battle.BattleState{
		Version:              battle.VersionCurrent,
		Mint:                 solana.NewWallet().PublicKey(),
		Tier:                 battle.TierTest,
		Status:               status,
		SolCollected:         realSol,
		RealSolReserves:      realSol,
		VirtualSolReserves:   30 * battle.LamportsPerSol,
		VirtualTokenReserves: 1_073_000_000_000_000,
		RealTokenReserves:    CurveTokens,
		TotalTradeVolume:     volume,
		IsActive:             true,
		CreationTimestamp:    1_700_000_000,
		Name:                 "Test Token",
		Symbol:               "TEST",
	}
}

// Pair makes a and b opponents.
func Pair(a, b *battle.BattleState) {
	a.OpponentMint = b.Mint
	b.OpponentMint = a.Mint
}
