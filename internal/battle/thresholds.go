// internal/battle/thresholds.go
package battle

import "fmt"

// LamportsPerSol is the number of lamports in one SOL.
const LamportsPerSol uint64 = 1_000_000_000

// TierThreshold holds the victory targets of one tier, in lamports.
type TierThreshold struct {
	TargetSol     uint64 `mapstructure:"target_sol_lamports"`
	VictoryVolume uint64 `mapstructure:"victory_volume_lamports"`
}

// SolThreshold is 99.5% of TargetSol, rounded down.
func (t TierThreshold) SolThreshold() uint64 {
	return t.TargetSol * 995 / 1000
}

// MatchTolerance is the largest reserve gap allowed between two opponents.
func (t TierThreshold) MatchTolerance() uint64 {
	return t.TargetSol / 2
}

// Thresholds maps every tier to its victory targets.
type Thresholds map[Tier]TierThreshold

// DefaultThresholds returns the targets of the deployed program.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TierTest: {
			TargetSol:     6 * LamportsPerSol,
			VictoryVolume: 6_600_000_000,
		},
		TierProduction: {
			TargetSol:     37_700_000_000,
			VictoryVolume: 41_500_000_000,
		},
	}
}

// For returns the targets of tier.
func (t Thresholds) For(tier Tier) (TierThreshold, error) {
	th, ok := t[tier]
	if !ok {
		return TierThreshold{}, fmt.Errorf("no victory threshold configured for tier %d", tier)
	}
	return th, nil
}

// Meets reports whether st has reached victory: reserves at or above
// SolThreshold and volume at or above VictoryVolume.
func (t Thresholds) Meets(st *BattleState) bool {
	th, err := t.For(st.Tier)
	if err != nil {
		return false
	}
	return st.RealSolReserves >= th.SolThreshold() && st.TotalTradeVolume >= th.VictoryVolume
}

// Progress holds completion percentages towards victory.
type Progress struct {
	SolPercent    float64
	VolumePercent float64
}

// Progress reports how far st is from each victory target.
func (t Thresholds) Progress(st *BattleState) Progress {
	th, err := t.For(st.Tier)
	if err != nil || th.SolThreshold() == 0 || th.VictoryVolume == 0 {
		return Progress{}
	}
	return Progress{
		SolPercent:    float64(st.RealSolReserves) / float64(th.SolThreshold()) * 100,
		VolumePercent: float64(st.TotalTradeVolume) / float64(th.VictoryVolume) * 100,
	}
}

// CanPair reports whether a and b may be matched into a battle.
func (t Thresholds) CanPair(a, b *BattleState) error {
	switch {
	case a.Mint.Equals(b.Mint):
		return fmt.Errorf("cannot pair %s with itself", a.Mint)
	case a.Status != StatusQualified || b.Status != StatusQualified:
		return fmt.Errorf("both tokens must be %s (got %s, %s)", StatusQualified, a.Status, b.Status)
	case !a.IsActive || !b.IsActive:
		return fmt.Errorf("trading inactive")
	case a.Tier != b.Tier:
		return fmt.Errorf("tier mismatch: %s vs %s", a.Tier, b.Tier)
	}
	th, err := t.For(a.Tier)
	if err != nil {
		return err
	}
	diff := a.RealSolReserves - b.RealSolReserves
	if b.RealSolReserves > a.RealSolReserves {
		diff = b.RealSolReserves - a.RealSolReserves
	}
	if diff > th.MatchTolerance() {
		return fmt.Errorf("unfair match: reserve gap %d exceeds %d", diff, th.MatchTolerance())
	}
	return nil
}
