// internal/program/instructions.go
package program

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Anchor instruction discriminators.
var (
	checkVictoryDiscriminator = []byte{176, 199, 31, 103, 154, 28, 170, 98}
	finalizeDuelDiscriminator = []byte{57, 165, 69, 195, 50, 206, 212, 134}
	withdrawDiscriminator     = []byte{127, 237, 151, 214, 106, 20, 93, 33}
	startBattleDiscriminator  = []byte{87, 12, 31, 196, 33, 191, 140, 147}
	updatePriceDiscriminator  = []byte{166, 98, 183, 175, 125, 81, 109, 119}
)

// Instruction names, as they appear in logs and metrics.
const (
	NameCheckVictory = "check_victory_conditions"
	NameFinalizeDuel = "finalize_duel"
	NameWithdraw     = "withdraw_for_listing"
	NameStartBattle  = "start_battle"
	NameUpdatePrice  = "update_sol_price"
)

// InstructionName maps an instruction's data prefix back to its name.
func InstructionName(data []byte) string {
	if len(data) < 8 {
		return ""
	}
	switch d := data[:8]; {
	case bytes.Equal(d, checkVictoryDiscriminator):
		return NameCheckVictory
	case bytes.Equal(d, finalizeDuelDiscriminator):
		return NameFinalizeDuel
	case bytes.Equal(d, withdrawDiscriminator):
		return NameWithdraw
	case bytes.Equal(d, startBattleDiscriminator):
		return NameStartBattle
	case bytes.Equal(d, updatePriceDiscriminator):
		return NameUpdatePrice
	}
	return ""
}

// CheckVictoryConditions builds check_victory_conditions(battle_state, price_oracle).
func (p *Program) CheckVictoryConditions(mint solana.PublicKey) (solana.Instruction, error) {
	state, err := p.BattleStatePDA(mint)
	if err != nil {
		return nil, err
	}
	oracle, err := p.PriceOraclePDA()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.NewAccountMeta(state, true, false),
		solana.NewAccountMeta(oracle, false, false),
	}, clone(checkVictoryDiscriminator)), nil
}

// FinalizeDuel builds finalize_duel(winner, loser, treasury, keeper, system).
func (p *Program) FinalizeDuel(winner, loser solana.PublicKey) (solana.Instruction, error) {
	winnerState, err := p.BattleStatePDA(winner)
	if err != nil {
		return nil, err
	}
	loserState, err := p.BattleStatePDA(loser)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.NewAccountMeta(winnerState, true, false),
		solana.NewAccountMeta(loserState, true, false),
		solana.NewAccountMeta(p.Treasury, true, false),
		solana.NewAccountMeta(p.Keeper, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}, clone(finalizeDuelDiscriminator)), nil
}

// WithdrawAccounts are the token accounts touched by withdraw_for_listing.
type WithdrawAccounts struct {
	BattleState  solana.PublicKey
	ContractATA  solana.PublicKey
	KeeperATA    solana.PublicKey
	TokenProgram solana.PublicKey
}

// WithdrawAccountsFor derives every address withdraw_for_listing needs.
func (p *Program) WithdrawAccountsFor(mint, tokenProgram solana.PublicKey) (WithdrawAccounts, error) {
	state, err := p.BattleStatePDA(mint)
	if err != nil {
		return WithdrawAccounts{}, err
	}
	contractATA, err := AssociatedTokenAddress(state, mint, tokenProgram)
	if err != nil {
		return WithdrawAccounts{}, err
	}
	keeperATA, err := AssociatedTokenAddress(p.Keeper, mint, tokenProgram)
	if err != nil {
		return WithdrawAccounts{}, err
	}
	return WithdrawAccounts{
		BattleState:  state,
		ContractATA:  contractATA,
		KeeperATA:    keeperATA,
		TokenProgram: tokenProgram,
	}, nil
}

// WithdrawForListing builds withdraw_for_listing with the account order
// battle_state, mint, contract ata, keeper ata, keeper, system, token program,
// associated token program.
func (p *Program) WithdrawForListing(mint solana.PublicKey, acc WithdrawAccounts) solana.Instruction {
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.NewAccountMeta(acc.BattleState, true, false),
		solana.NewAccountMeta(mint, true, false),
		solana.NewAccountMeta(acc.ContractATA, true, false),
		solana.NewAccountMeta(acc.KeeperATA, true, false),
		solana.NewAccountMeta(p.Keeper, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(acc.TokenProgram, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
	}, clone(withdrawDiscriminator))
}

// StartBattle builds start_battle(token_a, token_b, keeper, system).
func (p *Program) StartBattle(a, b solana.PublicKey) (solana.Instruction, error) {
	stateA, err := p.BattleStatePDA(a)
	if err != nil {
		return nil, err
	}
	stateB, err := p.BattleStatePDA(b)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.NewAccountMeta(stateA, true, false),
		solana.NewAccountMeta(stateB, true, false),
		solana.NewAccountMeta(p.Keeper, false, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}, clone(startBattleDiscriminator)), nil
}

// UpdateSolPrice builds update_sol_price(new_price). The price carries 6 decimals.
func (p *Program) UpdateSolPrice(priceMicroUSD uint64) (solana.Instruction, error) {
	oracle, err := p.PriceOraclePDA()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(updatePriceDiscriminator)
	if err := bin.NewBorshEncoder(&buf).WriteUint64(priceMicroUSD, bin.LE); err != nil {
		return nil, fmt.Errorf("encode price: %w", err)
	}
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.NewAccountMeta(oracle, true, false),
		solana.NewAccountMeta(p.Keeper, false, true),
	}, buf.Bytes()), nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
