package ui

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bonk-keeper/internal/orchestrator"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage/models"
)

type fakeSource struct {
	counts map[string]int64
	err    error
}

func (f *fakeSource) CountTokensByStatus(context.Context) (map[string]int64, error) {
	return f.counts, f.err
}

func (f *fakeSource) RecentWinners(context.Context, int) ([]*models.Winner, error) {
	return []*models.Winner{{
		Mint:              "WinnerMint1111111111111111111111111111111111",
		Symbol:            "BONKW",
		LoserMint:         "LoserMint11111111111111111111111111111111111",
		FinalSolCollected: decimal.RequireFromString("7.125"),
		SpoilsSol:         decimal.RequireFromString("1.5"),
		Status:            models.WinnerPoolCreated,
		PoolID:            "PoolId1111111111111111111111111111111111111",
	}}, nil
}

func (f *fakeSource) RecentRuns(context.Context, int) ([]*models.RunHistory, error) {
	started := time.Now()
	return []*models.RunHistory{{RunName: "batch", Status: "completed", StartedAt: &started, Checked: 3, SuccessCount: 1}}, nil
}

func (f *fakeSource) RecentActivities(context.Context, int) ([]*models.Activity, error) {
	return []*models.Activity{{Kind: models.ActivityPoolCreated, Mint: "WinnerMint1111111111111111111111111111111111"}}, nil
}

type fakeRunner struct {
	calls atomic.Int32
}

func (f *fakeRunner) RunBatch(context.Context) (*orchestrator.Summary, error) {
	f.calls.Add(1)
	return &orchestrator.Summary{Checked: 2, Succeeded: 1, Skipped: 1}, nil
}

func keyMsg(k string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

func TestDashboardRendersSnapshot(t *testing.T) {
	d := NewDashboard(&fakeSource{counts: map[string]int64{"InBattle": 4, "Listed": 1}}, nil, time.Second, zap.NewNop())
	assert.Contains(t, d.View(), "loading mirror")

	msg := d.load()()
	snap, ok := msg.(SnapshotMsg)
	require.True(t, ok)
	d.Update(snap)

	view := d.View()
	assert.Contains(t, view, "InBattle")
	assert.Contains(t, view, "PoolCreated")
	assert.Contains(t, view, "BONKW")
	assert.Contains(t, view, "7.125")
	assert.Contains(t, view, models.ActivityPoolCreated)
}

func TestDashboardLoadError(t *testing.T) {
	d := NewDashboard(&fakeSource{err: errors.New("db down")}, nil, time.Second, zap.NewNop())
	msg := d.load()()
	errMsg, ok := msg.(ErrorMsg)
	require.True(t, ok)
	d.Update(errMsg)
	assert.Contains(t, d.View(), "db down")
}

func TestDashboardTriggerRunsOneBatchAtATime(t *testing.T) {
	runner := &fakeRunner{}
	d := NewDashboard(&fakeSource{counts: map[string]int64{}}, runner, time.Second, zap.NewNop())

	_, cmd := d.Update(keyMsg("t"))
	require.NotNil(t, cmd)
	_, again := d.Update(keyMsg("t"))
	assert.Nil(t, again, "a second trigger while running is ignored")

	done, ok := cmd().(BatchDoneMsg)
	require.True(t, ok)
	assert.Equal(t, int32(1), runner.calls.Load())

	_, reload := d.Update(done)
	assert.NotNil(t, reload)
	assert.Contains(t, d.View(), "last batch: checked 2, ok 1")
}

func TestDashboardTriggerWithoutRunner(t *testing.T) {
	d := NewDashboard(&fakeSource{}, nil, time.Second, zap.NewNop())
	_, cmd := d.Update(keyMsg("t"))
	assert.Nil(t, cmd)
}

func TestDashboardQuit(t *testing.T) {
	d := NewDashboard(&fakeSource{}, nil, time.Second, zap.NewNop())
	_, cmd := d.Update(keyMsg("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
