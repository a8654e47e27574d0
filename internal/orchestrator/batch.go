// internal/orchestrator/batch.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage/models"
	"github.com/rovshanmuradov/bonk-keeper/internal/utils/logger"
)

// Per-mint batch results.
const (
	ResultAdvanced       = "advanced"
	ResultBelowThreshold = "below_threshold"
	ResultSkipped        = "skipped"
	ResultReconciled     = "reconciled"
	ResultFailed         = "failed"
	ResultNotStarted     = "not_started"
)

// batchStatuses are the mirror statuses scanned for work.
var batchStatuses = []battle.Status{
	battle.StatusInBattle,
	battle.StatusVictoryPending,
	battle.StatusListed,
}

// MintOutcome is the result of one candidate in a batch.
type MintOutcome struct {
	Mint         string          `json:"mint"`
	Result       string          `json:"result"`
	MirrorStatus string          `json:"mirrorStatus,omitempty"`
	LedgerStatus string          `json:"ledgerStatus,omitempty"`
	Step         Step            `json:"step,omitempty"`
	Signatures   map[Step]string `json:"signatures,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	Error        string          `json:"error,omitempty"`
	Duration     time.Duration   `json:"durationNs"`
}

// Summary aggregates one batch pass.
type Summary struct {
	CorrelationID string        `json:"correlationId"`
	Scanned       int           `json:"scanned"`
	Checked       int           `json:"checked"`
	Succeeded     int           `json:"succeeded"`
	Failed        int           `json:"failed"`
	Skipped       int           `json:"skipped"`
	Reconciled    int           `json:"reconciled"`
	NotStarted    int           `json:"notStarted"`
	Results       []MintOutcome `json:"results"`
	Duration      time.Duration `json:"durationNs"`
}

func (s *Summary) count(out MintOutcome) {
	switch out.Result {
	case ResultAdvanced:
		s.Succeeded++
	case ResultFailed:
		s.Failed++
	case ResultNotStarted:
		s.NotStarted++
	case ResultReconciled:
		s.Reconciled++
	default:
		s.Skipped++
	}
}

// RunBatch is one scheduled pass over every candidate in the mirror. A failure
// of one mint never stops the others; the returned error covers only the
// candidate and ledger reads that the whole pass depends on.
func (o *Orchestrator) RunBatch(ctx context.Context) (*Summary, error) {
	start := time.Now()
	log, corrID := logger.WithOperation(o.logger, "batch")
	summary := &Summary{CorrelationID: corrID}

	tokens, err := o.store.ListTokensByStatus(ctx, o.opts.BatchSize, batchStatuses...)
	if err != nil {
		o.saveRun(ctx, "batch", summary, start, err)
		return summary, fmt.Errorf("list candidates: %w", err)
	}
	summary.Scanned = len(tokens)
	o.recorder.BatchCandidates(len(tokens))
	log.Info("🔍 Batch started", zap.Int("candidates", len(tokens)))

	outcomes := make([]MintOutcome, len(tokens))
	mints := make([]solana.PublicKey, 0, len(tokens))
	index := make([]int, 0, len(tokens))
	for i, t := range tokens {
		outcomes[i] = MintOutcome{Mint: t.Mint, MirrorStatus: t.BattleStatus, Result: ResultNotStarted}
		pk, err := solana.PublicKeyFromBase58(t.Mint)
		if err != nil {
			outcomes[i].Result, outcomes[i].Error = ResultFailed, fmt.Sprintf("invalid mint: %v", err)
			continue
		}
		mints = append(mints, pk)
		index = append(index, i)
	}

	var (
		states []*battle.BattleState
		errs   []error
	)
	if len(mints) > 0 {
		states, errs, err = o.exec.ObserveMany(ctx, mints)
		if err != nil {
			o.saveRun(ctx, "batch", summary, start, err)
			return summary, fmt.Errorf("observe candidates: %w", err)
		}
	}

	halt := ctx
	if o.opts.Budget > 0 {
		var cancel context.CancelFunc
		halt, cancel = context.WithDeadline(ctx, start.Add(o.opts.Budget))
		defer cancel()
	}
	work := context.WithoutCancel(ctx)

	sem := semaphore.NewWeighted(int64(o.opts.Concurrency))
	var g errgroup.Group
	for k, i := range index {
		if halt.Err() != nil || sem.Acquire(halt, 1) != nil {
			log.Warn("⏱️ Budget exhausted, leaving remaining candidates for the next pass",
				zap.Int("not_started", len(index)-k))
			break
		}
		k, i := k, i
		g.Go(func() error {
			defer sem.Release(1)
			outcomes[i] = o.process(halt, work, tokens[i], states[k], errs[k], log)
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range outcomes {
		summary.count(out)
		if out.Result == ResultBelowThreshold || out.Result == ResultAdvanced ||
			(out.Result == ResultFailed && out.Step == StepCheckVictory) {
			summary.Checked++
		}
		o.recorder.BatchResult(out.Result)
	}
	summary.Results = outcomes
	summary.Duration = time.Since(start)
	o.saveRun(ctx, "batch", summary, start, nil)

	log.Info("✅ Batch finished",
		zap.Int("scanned", summary.Scanned),
		zap.Int("checked", summary.Checked),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("reconciled", summary.Reconciled),
		zap.Int("not_started", summary.NotStarted),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

// process handles one candidate: verify against the ledger, reconcile a
// diverged mirror row, gate on the thresholds and drive the flow.
func (o *Orchestrator) process(halt, work context.Context, token *models.Token, st *battle.BattleState, stErr error, log *zap.Logger) (out MintOutcome) {
	start := time.Now()
	out = MintOutcome{Mint: token.Mint, MirrorStatus: token.BattleStatus}
	defer func() { out.Duration = time.Since(start) }()
	log = logger.WithMint(log, token.Mint)

	if stErr != nil {
		out.Result, out.Error = ResultFailed, stErr.Error()
		log.Warn("Ledger state unavailable", zap.Error(stErr))
		return out
	}
	out.LedgerStatus = st.Status.String()

	if token.HasPool() {
		out.Result, out.Reason = ResultSkipped, "pool exists"
		return out
	}
	if done, _ := o.poolRecorded(work, st); done {
		o.publish(work, st)
		out.Result, out.Reason = ResultSkipped, "pool exists"
		return out
	}

	mirrorStatus, _ := token.Status()
	if st.Status != mirrorStatus {
		o.publish(work, st)
		log.Info("🔄 Mirror reconciled",
			zap.String("mirror", token.BattleStatus),
			zap.Stringer("ledger", st.Status))
		if st.Status != battle.StatusVictoryPending && st.Status != battle.StatusListed {
			out.Result = ResultReconciled
			return out
		}
	}

	chain := true
	if st.Status == battle.StatusInBattle {
		if !o.thresholds.Meets(st) {
			p := o.thresholds.Progress(st)
			log.Debug("Below victory threshold",
				zap.Float64("sol_pct", p.SolPercent),
				zap.Float64("volume_pct", p.VolumePercent))
			out.Result = ResultBelowThreshold
			return out
		}
		chain = o.opts.ChainFlow
	}

	fr := newFlowResult(token.Mint)
	err := o.drive(halt, work, st, chain, fr, log)
	out.Step, out.Signatures, out.LedgerStatus = fr.Step, fr.Signatures, fr.Status
	switch {
	case err != nil:
		out.Result, out.Error = ResultFailed, err.Error()
		log.Error("❌ Mint failed", zap.String("step", string(fr.Step)), zap.Error(err))
	case fr.advanced():
		out.Result = ResultAdvanced
	default:
		out.Result, out.Reason = ResultSkipped, "no effect"
		if fr.Reason != "" {
			out.Reason = fr.Reason
		}
	}
	return out
}

func (o *Orchestrator) saveRun(ctx context.Context, name string, s *Summary, start time.Time, runErr error) {
	started, completed := start.UTC(), time.Now().UTC()
	status := "completed"
	switch {
	case runErr != nil:
		status = "failed"
	case s.Failed > 0 || s.NotStarted > 0:
		status = "partial"
	}
	run := &models.RunHistory{
		RunName:       name,
		CorrelationID: s.CorrelationID,
		Status:        status,
		StartedAt:     &started,
		CompletedAt:   &completed,
		Scanned:       s.Scanned,
		Checked:       s.Checked,
		SuccessCount:  s.Succeeded,
		ErrorCount:    s.Failed,
		Skipped:       s.Skipped,
		Reconciled:    s.Reconciled,
		NotStarted:    s.NotStarted,
	}
	var total time.Duration
	var n int
	for _, r := range s.Results {
		if r.Result != ResultNotStarted {
			total += r.Duration
			n++
		}
	}
	if n > 0 {
		run.AverageExecutionTime = float64(total.Microseconds()) / float64(n) / 1000
	}
	if err := o.store.SaveRun(context.WithoutCancel(ctx), run); err != nil && !errors.Is(err, context.Canceled) {
		o.logger.Warn("run history not saved", zap.String("run", name), zap.Error(err))
	}
}
