package solbc

import (
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bonk-keeper/internal/program"
)

func TestParseAnchorErrorLog(t *testing.T) {
	ea := NewErrorAnalyzer(zap.NewNop(), program.ErrorName)
	got := ea.AnchorFromLogs([]string{
		"Program log: Instruction: CheckVictoryConditions",
		"Program log: AnchorError occurred. Error Code: NoVictoryAchieved. Error Number: 6014. Error Message: No victory achieved.",
	})
	require.NotNil(t, got)
	assert.Equal(t, 6014, got.Code)
	assert.Equal(t, "NoVictoryAchieved", got.Name)
	assert.Equal(t, "No victory achieved", got.Msg)
}

func TestAnchorFromHexLog(t *testing.T) {
	ea := NewErrorAnalyzer(zap.NewNop(), program.ErrorName)
	got := ea.AnchorFromLogs([]string{"Program X failed: custom program error: 0x1788"})
	require.NotNil(t, got)
	assert.Equal(t, program.CodeNoLiquidityToWithdraw, got.Code)
	assert.Equal(t, "NoLiquidityToWithdraw", got.Name)
}

func TestAnalyzeNonRPCError(t *testing.T) {
	ea := NewErrorAnalyzer(zap.NewNop(), nil)
	a := ea.Analyze(errors.New("dial tcp: connection refused"))
	assert.Equal(t, "generic_error", a.Type)
	assert.False(t, a.SimulationFailed)
	assert.Nil(t, a.Anchor)
}

func TestAnalyzeSimulationWithoutLogs(t *testing.T) {
	ea := NewErrorAnalyzer(zap.NewNop(), nil)
	a := ea.Analyze(&jsonrpc.RPCError{
		Code:    -32002,
		Message: "Transaction simulation failed: Error processing Instruction 0: custom program error: 0x1790",
		Data: map[string]interface{}{
			"err": map[string]interface{}{"InstructionError": []interface{}{float64(0), map[string]interface{}{"Custom": float64(6032)}}},
		},
	})
	assert.True(t, a.SimulationFailed)
	require.NotNil(t, a.Anchor)
	assert.Equal(t, 6032, a.Anchor.Code)
	assert.Equal(t, "Custom(6032)", a.Anchor.Name)
	assert.Contains(t, ea.FormatErrorAnalysis(a), "simulation_failed")
}
