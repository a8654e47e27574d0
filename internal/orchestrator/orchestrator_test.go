package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
	"github.com/rovshanmuradov/bonk-keeper/internal/blockchain/ledgertest"
	"github.com/rovshanmuradov/bonk-keeper/internal/executor"
	"github.com/rovshanmuradov/bonk-keeper/internal/pool"
	"github.com/rovshanmuradov/bonk-keeper/internal/price"
	"github.com/rovshanmuradov/bonk-keeper/internal/program"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage/gormstore"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage/models"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type mockCreator struct {
	mock.Mock
}

func (m *mockCreator) CreatePool(ctx context.Context, req pool.Request) (*pool.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*pool.Response)
	return resp, args.Error(1)
}

type fixture struct {
	ledger  *ledgertest.Ledger
	prog    *program.Program
	store   *gormstore.Store
	creator *mockCreator
	orch    *Orchestrator
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	keeper, prog := ledgertest.Deployment()
	led := ledgertest.New(prog, battle.DefaultThresholds())
	led.Now = func() time.Time { return testNow }

	store, err := gormstore.Open(gormstore.Config{DSN: ":memory:", LogLevel: "silent"}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	creator := &mockCreator{}
	exec := executor.New(led, keeper, prog, battle.DefaultThresholds(), creator, zap.NewNop(),
		executor.WithClock(func() time.Time { return testNow }))
	opts.Now = func() time.Time { return testNow }
	return &fixture{
		ledger:  led,
		prog:    prog,
		store:   store,
		creator: creator,
		orch: New(exec, store, battle.DefaultThresholds(),
			price.Static(decimal.RequireFromString("171.25")), opts, nil, zap.NewNop()),
	}
}

// put stores states on the ledger and mirrors them as observed.
func (f *fixture) put(t *testing.T, states ...*battle.BattleState) {
	t.Helper()
	for _, st := range states {
		f.ledger.PutBattle(st, ledgertest.CurveTokens)
		token := &models.Token{}
		token.ApplyState(st, testNow)
		require.NoError(t, f.store.UpsertToken(context.Background(), token))
	}
}

func (f *fixture) mirrorStatus(t *testing.T, mint solana.PublicKey) string {
	t.Helper()
	token, err := f.store.GetToken(context.Background(), mint.String())
	require.NoError(t, err)
	return token.BattleStatus
}

func (f *fixture) activities(t *testing.T, kind string) int {
	t.Helper()
	all, err := f.store.RecentActivities(context.Background(), 100)
	require.NoError(t, err)
	n := 0
	for _, a := range all {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

func winningPair() (*battle.BattleState, *battle.BattleState) {
	w := ledgertest.Token(battle.StatusVictoryPending, 6*battle.LamportsPerSol, 7*battle.LamportsPerSol)
	w.VictoryTimestamp = testNow.Unix() - 60
	l := ledgertest.Token(battle.StatusInBattle, 3*battle.LamportsPerSol, 4*battle.LamportsPerSol)
	ledgertest.Pair(w, l)
	return w, l
}

func sequential() Options {
	opts := DefaultOptions()
	opts.Concurrency = 1
	opts.ChainFlow = false
	return opts
}

func TestRunBatchBelowThresholdSubmitsNothing(t *testing.T) {
	f := newFixture(t, sequential())
	th := battle.DefaultThresholds()[battle.TierTest]
	a := ledgertest.Token(battle.StatusInBattle, th.SolThreshold(), th.VictoryVolume-1)
	b := ledgertest.Token(battle.StatusInBattle, battle.LamportsPerSol, battle.LamportsPerSol)
	ledgertest.Pair(a, b)
	f.put(t, a, b)

	summary, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Scanned)
	assert.Equal(t, 2, summary.Checked)
	assert.Equal(t, 0, summary.Succeeded)
	assert.Equal(t, 2, summary.Skipped)
	assert.Empty(t, f.ledger.Submissions())
	assert.Equal(t, battle.StatusInBattle, f.ledger.Battle(a.Mint).Status)

	runs, err := f.store.RecentRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "batch", runs[0].RunName)
	assert.Equal(t, "completed", runs[0].Status)
	assert.Equal(t, summary.CorrelationID, runs[0].CorrelationID)
}

func TestRunBatchVictoryUpdatesMirror(t *testing.T) {
	f := newFixture(t, sequential())
	w := ledgertest.Token(battle.StatusInBattle, 6*battle.LamportsPerSol, 7*battle.LamportsPerSol)
	l := ledgertest.Token(battle.StatusInBattle, 3*battle.LamportsPerSol, 4*battle.LamportsPerSol)
	ledgertest.Pair(w, l)
	f.put(t, w, l)

	summary, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, f.ledger.Count(program.NameCheckVictory))
	assert.Equal(t, 0, f.ledger.Count(program.NameFinalizeDuel), "flow is not chained")

	assert.Equal(t, battle.StatusVictoryPending, f.ledger.Battle(w.Mint).Status)
	assert.Equal(t, battle.StatusVictoryPending.String(), f.mirrorStatus(t, w.Mint))
	assert.Equal(t, 1, f.activities(t, models.ActivityVictory))
}

func TestRunBatchChainedFlowCompletesVictory(t *testing.T) {
	opts := sequential()
	opts.ChainFlow = true
	f := newFixture(t, opts)
	w := ledgertest.Token(battle.StatusInBattle, 6*battle.LamportsPerSol, 7*battle.LamportsPerSol)
	l := ledgertest.Token(battle.StatusInBattle, 3*battle.LamportsPerSol, 4*battle.LamportsPerSol)
	ledgertest.Pair(w, l)
	f.put(t, w, l)
	f.creator.On("CreatePool", mock.Anything, mock.Anything).
		Return(&pool.Response{PoolID: "pool-1", URL: "https://raydium.io/x", Signature: "sig-pool"}, nil).Once()

	summary, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)

	var winner MintOutcome
	for _, r := range summary.Results {
		if r.Mint == w.Mint.String() {
			winner = r
		}
	}
	assert.Equal(t, StepComplete, winner.Step)
	assert.Contains(t, winner.Signatures, StepCheckVictory)
	assert.Contains(t, winner.Signatures, StepFinalizeDuel)
	assert.Contains(t, winner.Signatures, StepWithdraw)
	assert.Equal(t, battle.StatusPoolCreated.String(), f.mirrorStatus(t, w.Mint))
	f.creator.AssertExpectations(t)
}

func TestCompleteVictoryFromVictoryPending(t *testing.T) {
	f := newFixture(t, sequential())
	w, l := winningPair()
	f.put(t, w, l)
	require.NoError(t, f.store.RecordBattleStart(context.Background(), w.Mint.String(), l.Mint.String(), "sig-start"))

	// 6 SOL + 50% of 3 SOL spoils - 5% fee.
	const listedSol = 7_125_000_000
	f.creator.On("CreatePool", mock.Anything, pool.Request{
		Mint:           w.Mint,
		SolLamports:    listedSol,
		TokenAmount:    ledgertest.CurveTokens,
		IdempotencyKey: w.Mint.String(),
	}).Return(&pool.Response{PoolID: "pool-1", URL: "https://raydium.io/pool-1", Signature: "sig-pool"}, nil).Once()

	fr := f.orch.CompleteVictory(context.Background(), w.Mint)
	require.NoError(t, fr.Err)
	assert.True(t, fr.Success)
	assert.False(t, fr.AlreadyComplete)
	assert.Equal(t, StepComplete, fr.Step)
	assert.Equal(t, "pool-1", fr.PoolID)
	assert.Equal(t, "sig-pool", fr.Signatures[StepCreatePool])
	assert.NotEmpty(t, fr.Signatures[StepFinalizeDuel])
	assert.NotEmpty(t, fr.Signatures[StepWithdraw])

	assert.Equal(t, battle.StatusListed, f.ledger.Battle(w.Mint).Status)
	assert.Equal(t, battle.StatusQualified, f.ledger.Battle(l.Mint).Status)
	assert.Equal(t, battle.StatusPoolCreated.String(), f.mirrorStatus(t, w.Mint))
	assert.Equal(t, battle.StatusQualified.String(), f.mirrorStatus(t, l.Mint))

	loser, err := f.store.GetToken(context.Background(), l.Mint.String())
	require.NoError(t, err)
	assert.Empty(t, loser.OpponentMint)

	winner, err := f.store.GetWinner(context.Background(), w.Mint.String())
	require.NoError(t, err)
	assert.Equal(t, models.WinnerPoolCreated, winner.Status)
	assert.Equal(t, l.Mint.String(), winner.LoserMint)
	assert.Equal(t, "pool-1", winner.PoolID)
	assert.True(t, winner.SpoilsSol.Equal(decimal.RequireFromString("1.5")), winner.SpoilsSol.String())
	assert.True(t, winner.PlatformFeeSol.Equal(decimal.RequireFromString("0.375")), winner.PlatformFeeSol.String())
	assert.True(t, winner.WithdrawnSol.Equal(decimal.RequireFromString("7.125")), winner.WithdrawnSol.String())
	assert.NotEmpty(t, winner.FinalizeSignature)
	assert.NotEmpty(t, winner.WithdrawSignature)

	for _, kind := range []string{models.ActivityFinalized, models.ActivityWithdrawn, models.ActivityPoolCreated} {
		assert.Equal(t, 1, f.activities(t, kind), kind)
	}
	f.creator.AssertExpectations(t)
}

func TestCompleteVictoryIsIdempotent(t *testing.T) {
	f := newFixture(t, sequential())
	w, l := winningPair()
	f.put(t, w, l)
	f.creator.On("CreatePool", mock.Anything, mock.Anything).
		Return(&pool.Response{PoolID: "pool-1", URL: "u", Signature: "s"}, nil).Once()

	first := f.orch.CompleteVictory(context.Background(), w.Mint)
	require.NoError(t, first.Err)
	submitted := len(f.ledger.Submissions())

	second := f.orch.CompleteVictory(context.Background(), w.Mint)
	require.NoError(t, second.Err)
	assert.True(t, second.AlreadyComplete)
	assert.Equal(t, "pool-1", second.PoolID)
	assert.Len(t, f.ledger.Submissions(), submitted)
	f.creator.AssertNumberOfCalls(t, "CreatePool", 1)
}

func TestCompleteVictoryNotOpponentsSubmitsNothing(t *testing.T) {
	f := newFixture(t, sequential())
	w, l := winningPair()
	l.OpponentMint = solana.NewWallet().PublicKey()
	f.put(t, w, l)

	fr := f.orch.CompleteVictory(context.Background(), w.Mint)
	require.Error(t, fr.Err)
	assert.ErrorIs(t, fr.Err, executor.ErrNotOpponents)
	assert.Equal(t, StepFinalizeDuel, fr.Step)
	assert.False(t, fr.Success)
	assert.NotEmpty(t, fr.Error)
	assert.Equal(t, 0, f.ledger.Count(program.NameFinalizeDuel))
	assert.Equal(t, battle.StatusVictoryPending, f.ledger.Battle(w.Mint).Status)
}

func TestBatchResumesAfterWithdrawWithoutRewithdrawing(t *testing.T) {
	f := newFixture(t, sequential())
	st := ledgertest.Token(battle.StatusListed, 7*battle.LamportsPerSol, 8*battle.LamportsPerSol)
	f.put(t, st)

	// A previous run withdrew and stopped before the pool was created.
	_, err := f.orch.exec.WithdrawForListing(context.Background(), st.Mint)
	require.NoError(t, err)
	require.Equal(t, 1, f.ledger.Count(program.NameWithdraw))

	f.creator.On("CreatePool", mock.Anything, pool.Request{
		Mint:           st.Mint,
		SolLamports:    7 * battle.LamportsPerSol,
		TokenAmount:    ledgertest.CurveTokens,
		IdempotencyKey: st.Mint.String(),
	}).Return(&pool.Response{PoolID: "pool-7", URL: "u", Signature: "s"}, nil).Once()

	summary, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, f.ledger.Count(program.NameWithdraw), "must not withdraw twice")
	assert.Equal(t, battle.StatusPoolCreated.String(), f.mirrorStatus(t, st.Mint))
	f.creator.AssertExpectations(t)

	// The next pass sees the pool and leaves the token alone.
	summary, err = f.orch.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Scanned)
}

func TestPoolFailureKeepsListedAndRetriesNextPass(t *testing.T) {
	f := newFixture(t, sequential())
	st := ledgertest.Token(battle.StatusListed, 7*battle.LamportsPerSol, 8*battle.LamportsPerSol)
	f.put(t, st)
	f.creator.On("CreatePool", mock.Anything, mock.Anything).
		Return(nil, &pool.ServiceError{Status: 500, Message: "pool service down"}).Once()

	fr := f.orch.CompleteVictory(context.Background(), st.Mint)
	require.Error(t, fr.Err)
	assert.Equal(t, StepCreatePool, fr.Step)

	token, err := f.store.GetToken(context.Background(), st.Mint.String())
	require.NoError(t, err)
	assert.Equal(t, battle.StatusListed.String(), token.BattleStatus)
	assert.Contains(t, token.RaydiumPoolError, "pool service down")
	assert.Equal(t, 1, f.activities(t, models.ActivityPoolFailed))

	f.creator.On("CreatePool", mock.Anything, mock.Anything).
		Return(&pool.Response{PoolID: "pool-2", URL: "u", Signature: "s"}, nil).Once()
	summary, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, f.ledger.Count(program.NameWithdraw))

	token, err = f.store.GetToken(context.Background(), st.Mint.String())
	require.NoError(t, err)
	assert.Equal(t, battle.StatusPoolCreated.String(), token.BattleStatus)
	assert.Equal(t, "pool-2", token.RaydiumPoolID)
	assert.Empty(t, token.RaydiumPoolError)
}

func TestConcurrentBatchesProduceOneVictory(t *testing.T) {
	f := newFixture(t, sequential())
	w := ledgertest.Token(battle.StatusInBattle, 6*battle.LamportsPerSol, 7*battle.LamportsPerSol)
	l := ledgertest.Token(battle.StatusInBattle, battle.LamportsPerSol, battle.LamportsPerSol)
	ledgertest.Pair(w, l)
	f.put(t, w, l)

	var arrived sync.WaitGroup
	arrived.Add(2)
	f.ledger.BeforeSubmit = func(name string) {
		if name != program.NameCheckVictory {
			return
		}
		arrived.Done()
		arrived.Wait()
	}

	summaries := make([]*Summary, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			summaries[i], err = f.orch.RunBatch(context.Background())
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	succeeded, failed := 0, 0
	for _, s := range summaries {
		succeeded += s.Succeeded
		failed += s.Failed
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 2, f.ledger.Count(program.NameCheckVictory))
	assert.Equal(t, battle.StatusVictoryPending, f.ledger.Battle(w.Mint).Status)
	assert.Equal(t, battle.StatusVictoryPending.String(), f.mirrorStatus(t, w.Mint))
}

// raceTransitioner lets another keeper act on the ledger right before the
// first CheckVictory of the batch reads it.
type raceTransitioner struct {
	Transitioner
	once   sync.Once
	before func(ctx context.Context)
}

func (r *raceTransitioner) CheckVictory(ctx context.Context, mint solana.PublicKey) (*executor.Result, error) {
	r.once.Do(func() { r.before(ctx) })
	return r.Transitioner.CheckVictory(ctx, mint)
}

func outcomeOf(s *Summary, mint solana.PublicKey) MintOutcome {
	for _, r := range s.Results {
		if r.Mint == mint.String() {
			return r
		}
	}
	return MintOutcome{}
}

func TestRunBatchVictoryByAnotherKeeperIsNotAFailure(t *testing.T) {
	f := newFixture(t, sequential())
	w := ledgertest.Token(battle.StatusInBattle, 6*battle.LamportsPerSol, 7*battle.LamportsPerSol)
	l := ledgertest.Token(battle.StatusInBattle, battle.LamportsPerSol, battle.LamportsPerSol)
	ledgertest.Pair(w, l)
	f.put(t, w, l)

	inner := f.orch.exec
	f.orch.exec = &raceTransitioner{Transitioner: inner, before: func(ctx context.Context) {
		_, err := inner.CheckVictory(ctx, w.Mint)
		assert.NoError(t, err)
	}}

	summary, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, summary.Succeeded)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 1, f.ledger.Count(program.NameCheckVictory))

	out := outcomeOf(summary, w.Mint)
	assert.Equal(t, ResultSkipped, out.Result)
	assert.Equal(t, "advanced by another keeper", out.Reason)
	assert.Empty(t, out.Error)
	assert.Equal(t, battle.StatusVictoryPending.String(), f.mirrorStatus(t, w.Mint))
}

func TestChainedFlowContinuesAfterVictoryByAnotherKeeper(t *testing.T) {
	opts := sequential()
	opts.ChainFlow = true
	f := newFixture(t, opts)
	w := ledgertest.Token(battle.StatusInBattle, 6*battle.LamportsPerSol, 7*battle.LamportsPerSol)
	l := ledgertest.Token(battle.StatusInBattle, battle.LamportsPerSol, battle.LamportsPerSol)
	ledgertest.Pair(w, l)
	f.put(t, w, l)
	f.creator.On("CreatePool", mock.Anything, mock.Anything).
		Return(&pool.Response{PoolID: "pool-1", URL: "u", Signature: "sig-pool"}, nil).Once()

	inner := f.orch.exec
	f.orch.exec = &raceTransitioner{Transitioner: inner, before: func(ctx context.Context) {
		_, err := inner.CheckVictory(ctx, w.Mint)
		assert.NoError(t, err)
	}}

	summary, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 1, summary.Succeeded)

	out := outcomeOf(summary, w.Mint)
	assert.Equal(t, StepComplete, out.Step)
	assert.NotContains(t, out.Signatures, StepCheckVictory)
	assert.Contains(t, out.Signatures, StepFinalizeDuel)
	assert.Equal(t, battle.StatusPoolCreated.String(), f.mirrorStatus(t, w.Mint))
	f.creator.AssertExpectations(t)
}

func TestLoserQualifiedMidFlowIsNotAFailure(t *testing.T) {
	opts := sequential()
	opts.ChainFlow = true
	f := newFixture(t, opts)
	w := ledgertest.Token(battle.StatusVictoryPending, 6*battle.LamportsPerSol, 7*battle.LamportsPerSol)
	l := ledgertest.Token(battle.StatusInBattle, 6*battle.LamportsPerSol, 7*battle.LamportsPerSol)
	ledgertest.Pair(w, l)
	f.put(t, l)

	inner := f.orch.exec
	f.orch.exec = &raceTransitioner{Transitioner: inner, before: func(context.Context) {
		f.ledger.Mutate(l.Mint, func(st *battle.BattleState) {
			st.Status = battle.StatusQualified
			st.OpponentMint = solana.PublicKey{}
		})
	}}

	summary, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, f.ledger.Submissions())

	out := outcomeOf(summary, l.Mint)
	assert.Equal(t, "no keeper transition in status Qualified", out.Reason)
	assert.Equal(t, battle.StatusQualified.String(), f.mirrorStatus(t, l.Mint))
}

func TestCompleteVictoryOnQualifiedTokenIsNotActionable(t *testing.T) {
	f := newFixture(t, sequential())
	st := ledgertest.Token(battle.StatusQualified, battle.LamportsPerSol, battle.LamportsPerSol)
	f.put(t, st)

	fr := f.orch.CompleteVictory(context.Background(), st.Mint)
	assert.ErrorIs(t, fr.Err, ErrNotActionable)
	assert.Empty(t, f.ledger.Submissions())
}

func TestConcurrentFlowsCreateOnePool(t *testing.T) {
	f := newFixture(t, sequential())
	st := ledgertest.Token(battle.StatusListed, 7*battle.LamportsPerSol, 8*battle.LamportsPerSol)
	f.put(t, st)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.creator.On("CreatePool", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(&pool.Response{PoolID: "pool-1", URL: "u", Signature: "sig-pool"}, nil).Once()

	ctx := context.Background()
	results := make([]*FlowResult, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = f.orch.CompleteVictory(ctx, st.Mint)
	}()
	<-entered

	// The second flow finds the withdraw applied and reaches pool creation
	// while the first is still waiting on the service.
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = f.orch.CompleteVictory(ctx, st.Mint)
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	fresh := 0
	for _, fr := range results {
		require.NoError(t, fr.Err)
		assert.True(t, fr.Success)
		assert.Equal(t, "pool-1", fr.PoolID)
		if !fr.AlreadyComplete {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	f.creator.AssertNumberOfCalls(t, "CreatePool", 1)
	assert.Equal(t, 1, f.ledger.Count(program.NameWithdraw))
	assert.Equal(t, 1, f.activities(t, models.ActivityPoolCreated))
}

func TestPoolClaimedElsewhereIsLeftAlone(t *testing.T) {
	f := newFixture(t, sequential())
	st := ledgertest.Token(battle.StatusListed, 7*battle.LamportsPerSol, 8*battle.LamportsPerSol)
	f.put(t, st)
	ctx := context.Background()
	require.NoError(t, f.store.ClaimPool(ctx, st.Mint.String(), "other-keeper", testNow, time.Minute))

	fr := f.orch.CompleteVictory(ctx, st.Mint)
	require.NoError(t, fr.Err)
	assert.False(t, fr.Success)
	assert.Contains(t, fr.Reason, "claimed by another keeper")
	f.creator.AssertNotCalled(t, "CreatePool", mock.Anything, mock.Anything)

	summary, err := f.orch.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)

	// The claim was abandoned: once it expires the next pass creates the pool.
	f.orch.opts.Now = func() time.Time { return testNow.Add(time.Hour) }
	f.creator.On("CreatePool", mock.Anything, mock.Anything).
		Return(&pool.Response{PoolID: "pool-9", URL: "u", Signature: "s"}, nil).Once()
	summary, err = f.orch.RunBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, f.ledger.Count(program.NameWithdraw))

	token, err := f.store.GetToken(ctx, st.Mint.String())
	require.NoError(t, err)
	assert.Equal(t, "pool-9", token.RaydiumPoolID)
	assert.Empty(t, token.PoolClaimID)
	f.creator.AssertExpectations(t)
}

func TestRunBatchReconcilesDivergedMirror(t *testing.T) {
	f := newFixture(t, sequential())
	st := ledgertest.Token(battle.StatusQualified, battle.LamportsPerSol, battle.LamportsPerSol)
	f.put(t, st)
	require.NoError(t, f.store.UpdateTokenStatus(context.Background(), st.Mint.String(), battle.StatusInBattle, nil))

	summary, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Reconciled)
	assert.Empty(t, f.ledger.Submissions())
	assert.Equal(t, battle.StatusQualified.String(), f.mirrorStatus(t, st.Mint))
}

func TestRunBatchIsolatesMissingAccounts(t *testing.T) {
	f := newFixture(t, sequential())
	ghost := ledgertest.Token(battle.StatusInBattle, 6*battle.LamportsPerSol, 7*battle.LamportsPerSol)
	token := &models.Token{}
	token.ApplyState(ghost, testNow)
	require.NoError(t, f.store.UpsertToken(context.Background(), token))

	w := ledgertest.Token(battle.StatusInBattle, 6*battle.LamportsPerSol, 7*battle.LamportsPerSol)
	l := ledgertest.Token(battle.StatusInBattle, battle.LamportsPerSol, battle.LamportsPerSol)
	ledgertest.Pair(w, l)
	f.put(t, w, l)

	summary, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Scanned)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Succeeded)
}

func TestRunBatchBudgetStopsNewWork(t *testing.T) {
	opts := sequential()
	opts.Budget = time.Nanosecond
	f := newFixture(t, opts)
	w := ledgertest.Token(battle.StatusInBattle, 6*battle.LamportsPerSol, 7*battle.LamportsPerSol)
	l := ledgertest.Token(battle.StatusInBattle, battle.LamportsPerSol, battle.LamportsPerSol)
	ledgertest.Pair(w, l)
	f.put(t, w, l)

	summary, err := f.orch.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.NotStarted)
	assert.Empty(t, f.ledger.Submissions())

	runs, err := f.store.RecentRuns(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "partial", runs[0].Status)
}

func TestReconcile(t *testing.T) {
	f := newFixture(t, sequential())
	st := ledgertest.Token(battle.StatusInBattle, battle.LamportsPerSol, battle.LamportsPerSol)
	f.ledger.PutBattle(st, ledgertest.CurveTokens)

	_, err := f.store.GetToken(context.Background(), st.Mint.String())
	require.ErrorIs(t, err, storage.ErrNotFound)

	token, err := f.orch.Reconcile(context.Background(), st.Mint)
	require.NoError(t, err)
	assert.Equal(t, battle.StatusInBattle.String(), token.BattleStatus)
	assert.Equal(t, "Test Token", token.Name)

	_, err = f.orch.Reconcile(context.Background(), solana.NewWallet().PublicKey())
	assert.Error(t, err)
}

func TestReconcileAll(t *testing.T) {
	f := newFixture(t, sequential())
	ctx := context.Background()
	moved := ledgertest.Token(battle.StatusQualified, battle.LamportsPerSol, battle.LamportsPerSol)
	same := ledgertest.Token(battle.StatusInBattle, battle.LamportsPerSol, battle.LamportsPerSol)
	f.put(t, moved, same)
	require.NoError(t, f.store.UpdateTokenStatus(ctx, moved.Mint.String(), battle.StatusInBattle, nil))

	ghost := &models.Token{}
	ghost.ApplyState(ledgertest.Token(battle.StatusInBattle, 1, 1), testNow)
	require.NoError(t, f.store.UpsertToken(ctx, ghost))

	summary, err := f.orch.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Scanned)
	assert.Equal(t, 2, summary.Synced)
	assert.Equal(t, 1, summary.Changed)
	assert.Equal(t, 1, summary.Failed)
	assert.Empty(t, f.ledger.Submissions())
	assert.Equal(t, battle.StatusQualified.String(), f.mirrorStatus(t, moved.Mint))
	assert.Equal(t, battle.StatusInBattle.String(), f.mirrorStatus(t, same.Mint))
}

func TestMatchPassPairsQualifiedTokens(t *testing.T) {
	f := newFixture(t, sequential())
	a := ledgertest.Token(battle.StatusQualified, 2*battle.LamportsPerSol, battle.LamportsPerSol)
	b := ledgertest.Token(battle.StatusQualified, 3*battle.LamportsPerSol, battle.LamportsPerSol)
	far := ledgertest.Token(battle.StatusQualified, 5*battle.LamportsPerSol+battle.LamportsPerSol/2, battle.LamportsPerSol)
	a.CreationTimestamp, b.CreationTimestamp, far.CreationTimestamp = 100, 200, 300
	f.put(t, a, b, far)

	ms, err := f.orch.MatchPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, ms.Eligible)
	assert.Equal(t, 1, ms.Paired)
	require.Len(t, ms.Battles, 1)
	assert.Equal(t, a.Mint.String(), ms.Battles[0].A)
	assert.Equal(t, b.Mint.String(), ms.Battles[0].B)

	assert.Equal(t, b.Mint, f.ledger.Battle(a.Mint).OpponentMint)
	assert.Equal(t, a.Mint, f.ledger.Battle(b.Mint).OpponentMint)
	assert.Equal(t, battle.StatusInBattle.String(), f.mirrorStatus(t, a.Mint))
	assert.Equal(t, battle.StatusInBattle.String(), f.mirrorStatus(t, b.Mint))
	assert.Equal(t, battle.StatusQualified.String(), f.mirrorStatus(t, far.Mint))
	assert.Equal(t, 1, f.activities(t, models.ActivityBattleStarted))
}

func TestRefreshPrice(t *testing.T) {
	f := newFixture(t, sequential())
	f.ledger.PutOracle(&battle.PriceOracle{
		SolPriceUSD:         150_000_000,
		LastUpdateTimestamp: testNow.Add(-time.Hour).Unix(),
		NextUpdateTimestamp: testNow.Add(-time.Minute).Unix(),
	})

	res, err := f.orch.RefreshPrice(context.Background())
	require.NoError(t, err)
	assert.True(t, res.EffectOccurred)
	require.NotNil(t, res.Oracle)
	assert.Equal(t, uint64(171_250_000), res.Oracle.SolPriceUSD)
	assert.Equal(t, 1, f.activities(t, models.ActivityPriceUpdate))

	_, err = f.orch.RefreshPrice(context.Background())
	assert.True(t, errors.Is(err, executor.ErrPriceUpdateTooSoon), err)
}
