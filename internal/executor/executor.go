// internal/executor/executor.go
//
// Package executor runs exactly one ledger transition per call: it verifies
// the precondition against freshly read state, submits one instruction,
// waits for confirmation and re-reads the accounts to observe the effect.
// It never touches the mirror store.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
	"github.com/rovshanmuradov/bonk-keeper/internal/blockchain"
	"github.com/rovshanmuradov/bonk-keeper/internal/pool"
	"github.com/rovshanmuradov/bonk-keeper/internal/program"
	"github.com/rovshanmuradov/bonk-keeper/internal/wallet"
)

// Recorder receives one observation per finished transition.
type Recorder interface {
	ObserveTransition(transition string, outcome string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTransition(string, string, time.Duration) {}

// Option configures an Executor.
type Option func(*Executor)

// WithBestEffortDecode decodes accounts of unknown size with the closest
// known layout instead of failing.
func WithBestEffortDecode() Option {
	return func(e *Executor) { e.bestEffort = true }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) {
		if r != nil {
			e.recorder = r
		}
	}
}

// Executor executes battle program transitions with the keeper credential.
type Executor struct {
	ledger     blockchain.Ledger
	keeper     *wallet.Wallet
	program    program.Program
	thresholds battle.Thresholds
	creator    pool.Creator
	recorder   Recorder
	bestEffort bool
	now        func() time.Time
	logger     *zap.Logger
}

// New creates an Executor. creator may be nil when pools are not created by
// this process.
func New(
	ledger blockchain.Ledger,
	keeper *wallet.Wallet,
	prog *program.Program,
	thresholds battle.Thresholds,
	creator pool.Creator,
	logger *zap.Logger,
	opts ...Option,
) *Executor {
	p := *prog
	if p.Keeper.IsZero() {
		p.Keeper = keeper.PublicKey
	} else if !p.Keeper.Equals(keeper.PublicKey) {
		logger.Warn("configured keeper differs from signing wallet; the program will reject transitions",
			zap.String("configured", p.Keeper.String()),
			zap.String("wallet", keeper.PublicKey.String()))
	}
	e := &Executor{
		ledger:     ledger,
		keeper:     keeper,
		program:    p,
		thresholds: thresholds,
		creator:    creator,
		recorder:   nopRecorder{},
		now:        time.Now,
		logger:     logger.Named("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Program returns the program bindings used for submissions.
func (e *Executor) Program() *program.Program {
	return &e.program
}

// snapshot is one decoded battle state with its raw account.
type snapshot struct {
	state   *battle.BattleState
	account *blockchain.Account
}

// readStates reads the battle states of mints in one batched request.
func (e *Executor) readStates(ctx context.Context, mints ...solana.PublicKey) ([]snapshot, error) {
	pdas := make([]solana.PublicKey, len(mints))
	for i, m := range mints {
		pda, err := e.program.BattleStatePDA(m)
		if err != nil {
			return nil, fmt.Errorf("derive battle state of %s: %w", m, err)
		}
		pdas[i] = pda
	}
	accounts, err := e.ledger.ReadAccounts(ctx, pdas)
	if err != nil {
		return nil, fmt.Errorf("read battle states: %w", err)
	}
	out := make([]snapshot, len(mints))
	for i, acc := range accounts {
		if acc == nil {
			return nil, fmt.Errorf("battle state of %s: %w", mints[i], blockchain.ErrAccountNotFound)
		}
		st, err := e.decode(mints[i], acc)
		if err != nil {
			return nil, err
		}
		out[i] = snapshot{state: st, account: acc}
	}
	return out, nil
}

func (e *Executor) readState(ctx context.Context, mint solana.PublicKey) (snapshot, error) {
	snaps, err := e.readStates(ctx, mint)
	if err != nil {
		return snapshot{}, err
	}
	return snaps[0], nil
}

// Observe reads and decodes the current battle state of mint.
func (e *Executor) Observe(ctx context.Context, mint solana.PublicKey) (*battle.BattleState, error) {
	snap, err := e.readState(ctx, mint)
	if err != nil {
		return nil, err
	}
	return snap.state, nil
}

// ObserveMany reads the states of mints in one request. A missing account or
// an undecodable one yields a nil state and an entry in errs.
func (e *Executor) ObserveMany(ctx context.Context, mints []solana.PublicKey) (states []*battle.BattleState, errs []error, err error) {
	pdas := make([]solana.PublicKey, len(mints))
	for i, m := range mints {
		if pdas[i], err = e.program.BattleStatePDA(m); err != nil {
			return nil, nil, fmt.Errorf("derive battle state of %s: %w", m, err)
		}
	}
	accounts, err := e.ledger.ReadAccounts(ctx, pdas)
	if err != nil {
		return nil, nil, fmt.Errorf("read battle states: %w", err)
	}
	states = make([]*battle.BattleState, len(mints))
	errs = make([]error, len(mints))
	for i, acc := range accounts {
		if acc == nil {
			errs[i] = fmt.Errorf("battle state of %s: %w", mints[i], blockchain.ErrAccountNotFound)
			continue
		}
		states[i], errs[i] = e.decode(mints[i], acc)
	}
	return states, errs, nil
}

func (e *Executor) decode(mint solana.PublicKey, acc *blockchain.Account) (*battle.BattleState, error) {
	st, err := battle.Decode(acc.Data)
	if errors.Is(err, battle.ErrUnknownVersion) && e.bestEffort {
		e.logger.Warn("unknown battle state layout, decoding best effort",
			zap.String("mint", mint.String()),
			zap.Int("size", len(acc.Data)))
		st, err = battle.DecodeBestEffort(acc.Data)
	}
	if err != nil {
		return nil, fmt.Errorf("decode battle state of %s: %w", mint, err)
	}
	st.Lamports = acc.Lamports
	return st, nil
}

// send submits ix and classifies the outcome. landed=false with a nil error
// means the ledger refused the instruction because the state already moved
// on; res.NoEffectReason is set in that case.
func (e *Executor) send(ctx context.Context, res *Result, ix solana.Instruction) (landed bool, err error) {
	sub, err := e.ledger.Submit(ctx, ix, e.keeper)
	if err != nil {
		return false, &SubmitError{Transition: res.Transition, Mint: res.Mint, Err: err, Unknown: true}
	}
	res.Outcome = sub.Outcome
	if !sub.Signature.IsZero() {
		res.Signature = sub.Signature.String()
	}

	switch {
	case sub.Outcome.Landed():
		e.logger.Debug("transition landed",
			zap.String("transition", string(res.Transition)),
			zap.String("mint", res.Mint.String()),
			zap.String("tx", res.Signature),
			zap.Stringer("outcome", sub.Outcome))
		return true, nil
	case sub.Outcome == blockchain.OutcomeRejected && sub.Reject != nil && program.IsStalePrecondition(sub.Reject.Code):
		res.Reject = sub.Reject
		res.NoEffectReason = "stale: " + sub.Reject.Name
		e.logger.Info("transition rejected as stale",
			zap.String("transition", string(res.Transition)),
			zap.String("mint", res.Mint.String()),
			zap.String("reason", sub.Reject.Name))
		return false, nil
	default:
		return false, &SubmitError{
			Transition: res.Transition,
			Mint:       res.Mint,
			Outcome:    sub.Outcome,
			Anchor:     sub.Reject,
			Signature:  res.Signature,
			Err:        sub.Err,
		}
	}
}

// finish records metrics and logs the outcome of a transition.
func (e *Executor) finish(res *Result, err error, start time.Time) {
	label := res.Label(err)
	elapsed := e.now().Sub(start)
	e.recorder.ObserveTransition(string(res.Transition), label, elapsed)

	fields := []zap.Field{
		zap.String("transition", string(res.Transition)),
		zap.String("mint", res.Mint.String()),
		zap.String("outcome", label),
		zap.Duration("duration", elapsed),
	}
	if res.Signature != "" {
		fields = append(fields, zap.String("tx", res.Signature))
	}
	switch {
	case err == nil:
		e.logger.Info("transition finished", fields...)
	case errors.Is(err, ErrPreconditionFailed), errors.Is(err, ErrBelowThreshold), errors.Is(err, ErrPriceUpdateTooSoon):
		e.logger.Debug("transition skipped", append(fields, zap.Error(err))...)
	default:
		e.logger.Error("transition failed", append(fields, zap.Error(err))...)
	}
}

func errorLabel(err error) string {
	switch {
	case errors.Is(err, ErrBelowThreshold):
		return "below_threshold"
	case errors.Is(err, ErrPreconditionFailed):
		return "precondition"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrPriceUpdateTooSoon):
		return "too_soon"
	default:
		return "error"
	}
}

func precondition(t Transition, st *battle.BattleState, required battle.Status, detail string) *PreconditionError {
	return &PreconditionError{
		Transition: t,
		Mint:       st.Mint,
		Observed:   st.Status,
		Required:   required,
		Detail:     detail,
	}
}
