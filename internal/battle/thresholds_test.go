package battle

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
)

func TestSolThresholdRoundsDown(t *testing.T) {
	th := DefaultThresholds()[TierTest]
	assert.Equal(t, uint64(5_970_000_000), th.SolThreshold())
	assert.Equal(t, uint64(3_000_000_000), th.MatchTolerance())
}

func TestThresholdsMeets(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name   string
		sol    uint64
		volume uint64
		want   bool
	}{
		{"both met", 5_970_000_000, 6_600_000_000, true},
		{"volume one lamport short", 6_000_000_000, 6_599_999_999, false},
		{"reserves one lamport short", 5_969_999_999, 9_000_000_000, false},
		{"nothing", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &BattleState{Tier: TierTest, RealSolReserves: tt.sol, TotalTradeVolume: tt.volume}
			assert.Equal(t, tt.want, th.Meets(st))
		})
	}
}

func TestThresholdsUnknownTierNeverMeets(t *testing.T) {
	th := Thresholds{TierTest: {TargetSol: 1, VictoryVolume: 1}}
	st := &BattleState{Tier: TierProduction, RealSolReserves: 1 << 60, TotalTradeVolume: 1 << 60}
	assert.False(t, th.Meets(st))
	_, err := th.For(TierProduction)
	assert.Error(t, err)
}

func TestCanPair(t *testing.T) {
	th := DefaultThresholds()
	a := &BattleState{Mint: solana.NewWallet().PublicKey(), Status: StatusQualified, IsActive: true, RealSolReserves: 1_000_000_000}
	b := &BattleState{Mint: solana.NewWallet().PublicKey(), Status: StatusQualified, IsActive: true, RealSolReserves: 3_500_000_000}

	assert.NoError(t, th.CanPair(a, b))

	b.Tier = TierProduction
	assert.Error(t, th.CanPair(a, b))

	b.Tier = TierTest
	b.RealSolReserves = 4_500_000_000
	assert.Error(t, th.CanPair(a, b))

	assert.Error(t, th.CanPair(a, a))
}

func TestStatusOrder(t *testing.T) {
	assert.True(t, StatusInBattle.Before(StatusVictoryPending))
	assert.False(t, StatusPoolCreated.Before(StatusListed))
	assert.Equal(t, "VictoryPending", StatusVictoryPending.String())
	assert.False(t, Status(6).Valid())

	s, err := ParseStatus("Listed")
	assert.NoError(t, err)
	assert.Equal(t, StatusListed, s)
}
