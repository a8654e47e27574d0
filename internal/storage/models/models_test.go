package models

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
)

func TestLamportConversion(t *testing.T) {
	assert.Equal(t, "5.97", Lamports(5_970_000_000).String())
	assert.Equal(t, "0.000000001", Lamports(1).String())
	assert.Equal(t, uint64(41_500_000_000), ToLamports(decimal.RequireFromString("41.5")))
	assert.Equal(t, uint64(1), ToLamports(decimal.RequireFromString("0.0000000019")))
	assert.Zero(t, ToLamports(decimal.RequireFromString("-1")))
}

func TestApplyState(t *testing.T) {
	opp := solana.NewWallet().PublicKey()
	st := &battle.BattleState{
		Mint:                 solana.NewWallet().PublicKey(),
		Status:               battle.StatusInBattle,
		OpponentMint:         opp,
		Tier:                 battle.TierProduction,
		RealSolReserves:      2_000_000_000,
		BattleStartTimestamp: 1_700_000_100,
		Symbol:               "LDG",
	}
	tok := &Token{Symbol: "KEEP"}
	now := time.Now()
	tok.ApplyState(st, now)

	assert.Equal(t, "InBattle", tok.BattleStatus)
	assert.Equal(t, opp.String(), tok.OpponentMint)
	assert.Equal(t, 1, tok.Tier)
	assert.Equal(t, "KEEP", tok.Symbol)
	assert.Nil(t, tok.VictoryTimestamp)
	assert.Equal(t, int64(1_700_000_100), tok.BattleStartTimestamp.Unix())

	status, err := tok.Status()
	assert.NoError(t, err)
	assert.Equal(t, battle.StatusInBattle, status)
}

func TestWinnerMergeKeepsEarlierFields(t *testing.T) {
	prev := &Winner{LoserMint: "L", FinalizeSignature: "f", Status: WinnerWithdrawn, WithdrawnTokens: 10}
	w := &Winner{PoolID: "p", Status: WinnerFinalized}
	w.MergeFrom(prev)
	assert.Equal(t, "L", w.LoserMint)
	assert.Equal(t, "f", w.FinalizeSignature)
	assert.Equal(t, "p", w.PoolID)
	assert.Equal(t, WinnerWithdrawn, w.Status)
	assert.Equal(t, uint64(10), w.WithdrawnTokens)
}
