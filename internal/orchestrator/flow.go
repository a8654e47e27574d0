// internal/orchestrator/flow.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
	"github.com/rovshanmuradov/bonk-keeper/internal/executor"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage"
	"github.com/rovshanmuradov/bonk-keeper/internal/storage/models"
	"github.com/rovshanmuradov/bonk-keeper/internal/utils/logger"
)

// Step is a stage of the victory flow.
type Step string

const (
	StepStart        Step = "start"
	StepCheckVictory Step = "check_victory"
	StepFinalizeDuel Step = "finalize_duel"
	StepWithdraw     Step = "withdraw_for_listing"
	StepCreatePool   Step = "create_pool"
	StepComplete     Step = "complete"
)

// maxFlowIterations bounds re-observations of one mint in a single run.
const maxFlowIterations = 8

// FlowResult reports how far one mint progressed.
type FlowResult struct {
	Mint            string          `json:"mint"`
	Step            Step            `json:"step"`
	Success         bool            `json:"success"`
	AlreadyComplete bool            `json:"alreadyComplete"`
	Status          string          `json:"status,omitempty"`
	Signatures      map[Step]string `json:"signatures,omitempty"`
	PoolID          string          `json:"poolId,omitempty"`
	URL             string          `json:"raydiumUrl,omitempty"`
	// Reason explains a flow that stopped without error or effect.
	Reason string `json:"reason,omitempty"`
	Err    error  `json:"-"`
	Error  string `json:"error,omitempty"`
}

func newFlowResult(mint string) *FlowResult {
	return &FlowResult{Mint: mint, Step: StepStart, Signatures: make(map[Step]string)}
}

func (r *FlowResult) fail(err error) {
	r.Err = err
	if err != nil {
		r.Error = err.Error()
	}
}

// advanced reports whether the run produced any ledger or pool effect.
func (r *FlowResult) advanced() bool {
	return len(r.Signatures) > 0 || (r.PoolID != "" && !r.AlreadyComplete)
}

// CompleteVictory drives one mint through every remaining step of the victory
// flow, starting from whatever status the ledger holds now. It is safe to call
// repeatedly: finished steps are observed, not repeated.
func (o *Orchestrator) CompleteVictory(ctx context.Context, mint solana.PublicKey) *FlowResult {
	log, _ := logger.WithOperation(o.logger, "complete_victory")
	log = logger.WithMint(log, mint.String())
	fr := newFlowResult(mint.String())

	st, err := o.exec.Observe(ctx, mint)
	if err != nil {
		fr.fail(fmt.Errorf("observe: %w", err))
		log.Error("❌ Victory flow failed", zap.Error(err))
		return fr
	}
	fr.Status = st.Status.String()

	if done, pool := o.poolRecorded(ctx, st); done {
		fr.AlreadyComplete, fr.Success = true, true
		fr.Step, fr.PoolID, fr.URL = StepComplete, pool.PoolID, pool.RaydiumURL
		fr.Status = battle.StatusPoolCreated.String()
		o.publish(ctx, st)
		log.Info("Victory flow already complete", zap.String("pool_id", pool.PoolID))
		return fr
	}

	if err := o.drive(ctx, context.WithoutCancel(ctx), st, true, fr, log); err != nil {
		fr.fail(err)
		log.Error("❌ Victory flow stopped", zap.String("step", string(fr.Step)), zap.Error(err))
		return fr
	}
	log.Info("Victory flow finished",
		zap.String("step", string(fr.Step)),
		zap.Bool("success", fr.Success),
		zap.String("reason", fr.Reason),
		zap.Any("signatures", fr.Signatures))
	return fr
}

// poolRecorded reports whether a Listed token already has a pool in the
// mirror (token row or winner record).
func (o *Orchestrator) poolRecorded(ctx context.Context, st *battle.BattleState) (bool, *models.Winner) {
	if st.Status != battle.StatusListed {
		return false, nil
	}
	mint := st.Mint.String()
	if w, err := o.store.GetWinner(ctx, mint); err == nil && w.PoolID != "" {
		return true, w
	}
	if t, err := o.store.GetToken(ctx, mint); err == nil && t.HasPool() {
		return true, &models.Winner{Mint: mint, PoolID: t.RaydiumPoolID, RaydiumURL: t.RaydiumURL}
	}
	return false, nil
}

// drive advances st step by step. halt stops the loop between steps; each
// transition runs on work, so a started submission is never abandoned.
// With chain=false an InBattle token stops after its victory check.
//
// A token moved by another keeper is not a failure: the flow looks at the
// ledger again and continues from the new status, or stops with a reason.
func (o *Orchestrator) drive(halt, work context.Context, st *battle.BattleState, chain bool, fr *FlowResult, log *zap.Logger) error {
	mint := st.Mint
	for i := 0; i < maxFlowIterations; i++ {
		if err := halt.Err(); err != nil {
			log.Info("Flow paused before next step", zap.String("step", string(fr.Step)), zap.Error(err))
			return nil
		}
		fr.Status = st.Status.String()

		var (
			res *executor.Result
			err error
		)
		switch st.Status {
		case battle.StatusInBattle:
			fr.Step = StepCheckVictory
			res, err = o.step(work, func(ctx context.Context) (*executor.Result, error) {
				return o.exec.CheckVictory(ctx, mint)
			})
			if isStale(err) {
				if st, err = o.moved(work, mint, err, fr, log); err != nil {
					return err
				}
				if !chain {
					return nil
				}
				continue
			}
			if err != nil {
				return err
			}
			if res.EffectOccurred {
				fr.Signatures[StepCheckVictory] = res.Signature
				o.publish(work, res.After)
				p := o.thresholds.Progress(res.Before)
				o.activity(work, models.ActivityVictory, mint.String(), res.Signature,
					fmt.Sprintf("sol %.1f%%, volume %.1f%%", p.SolPercent, p.VolumePercent))
				log.Info("🏆 Victory confirmed", zap.String("tx", res.Signature))
			}
			if !chain {
				if res.After == nil {
					o.reobserve(work, mint, fr)
				} else {
					fr.Status = res.After.Status.String()
				}
				return nil
			}

		case battle.StatusVictoryPending:
			if !st.HasOpponent() {
				return ErrNoOpponent
			}
			fr.Step = StepFinalizeDuel
			res, err = o.step(work, func(ctx context.Context) (*executor.Result, error) {
				return o.exec.FinalizeDuel(ctx, mint, st.OpponentMint)
			})
			if isStale(err) {
				if st, err = o.moved(work, mint, err, fr, log); err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}
			if res.EffectOccurred {
				fr.Signatures[StepFinalizeDuel] = res.Signature
				o.recordFinalize(work, res, fr.Signatures[StepCheckVictory])
				log.Info("⚔️ Duel finalized",
					zap.String("loser", st.OpponentMint.String()),
					zap.String("tx", res.Signature))
			}

		case battle.StatusListed:
			return o.list(work, st, fr, log)

		default:
			o.publish(work, st)
			if i == 0 {
				return fmt.Errorf("%s is %s: %w", mint, st.Status, ErrNotActionable)
			}
			// Another keeper took the token out of our hands (a loser that
			// became Qualified, a finished duel).
			fr.Reason = "no keeper transition in status " + st.Status.String()
			log.Info("Flow ended, token moved on", zap.Stringer("status", st.Status))
			return nil
		}

		if res.After != nil {
			if !res.EffectOccurred && res.After.Status == st.Status {
				fr.Reason = fmt.Sprintf("%s had no effect: %s", res.Transition, res.NoEffectReason)
				log.Info("Transition landed without effect",
					zap.String("transition", string(res.Transition)),
					zap.String("reason", res.NoEffectReason))
				return nil
			}
			st = res.After
			continue
		}
		// Stale rejection: someone else moved the token, look again.
		if st, err = o.exec.Observe(work, mint); err != nil {
			return fmt.Errorf("re-observe after %s: %w", res.Transition, err)
		}
	}
	return fmt.Errorf("flow for %s did not settle after %d steps", mint, maxFlowIterations)
}

// isStale reports a precondition mismatch: the token left the status the
// transition needs between our read and the executor's own. A broken pairing
// is a real fault and is not stale.
func isStale(err error) bool {
	return errors.Is(err, executor.ErrPreconditionFailed) && !errors.Is(err, executor.ErrNotOpponents)
}

// moved re-reads a token another keeper advanced and mirrors what it finds.
func (o *Orchestrator) moved(ctx context.Context, mint solana.PublicKey, cause error, fr *FlowResult, log *zap.Logger) (*battle.BattleState, error) {
	st, err := o.exec.Observe(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("re-observe after %s: %w", fr.Step, err)
	}
	o.publish(ctx, st)
	fr.Status = st.Status.String()
	fr.Reason = "advanced by another keeper"
	log.Info("🔄 Token advanced elsewhere, re-observed",
		zap.String("step", string(fr.Step)),
		zap.Stringer("status", st.Status),
		zap.NamedError("cause", cause))
	return st, nil
}

// list withdraws the curve's liquidity if still there and creates the pool.
func (o *Orchestrator) list(ctx context.Context, st *battle.BattleState, fr *FlowResult, log *zap.Logger) error {
	mint := st.Mint
	fr.Step = StepWithdraw
	res, err := o.step(ctx, func(ctx context.Context) (*executor.Result, error) {
		return o.exec.WithdrawForListing(ctx, mint)
	})
	if err != nil {
		return err
	}
	if res.EffectOccurred {
		fr.Signatures[StepWithdraw] = res.Signature
		o.recordWithdraw(ctx, res)
		log.Info("💰 Liquidity withdrawn",
			zap.Uint64("sol_lamports", res.SolWithdrawn),
			zap.Uint64("tokens", res.TokensWithdrawn),
			zap.String("tx", res.Signature))
	}
	if !res.EffectOccurred && !res.AlreadyApplied {
		return fmt.Errorf("withdraw had no effect: %s", res.NoEffectReason)
	}

	fr.Step = StepCreatePool
	liq := o.liquidity(ctx, res)
	ran := false
	v, err, _ := o.pools.Do(mint.String(), func() (interface{}, error) {
		ran = true
		return o.createPool(ctx, st, liq, log)
	})
	if err != nil {
		return err
	}
	attempt := v.(*poolAttempt)
	if attempt.pool == nil {
		fr.Reason = attempt.reason
		return nil
	}
	fr.PoolID, fr.URL = attempt.pool.PoolID, attempt.pool.URL
	switch {
	case !ran:
		fr.AlreadyComplete, fr.Reason = true, "pool created by a concurrent flow"
	case attempt.existing:
		fr.AlreadyComplete, fr.Reason = true, "pool already recorded"
	default:
		fr.Signatures[StepCreatePool] = attempt.pool.Signature
	}

	fr.Step = StepComplete
	fr.Success = true
	fr.Status = battle.StatusPoolCreated.String()
	return nil
}

// poolAttempt is the outcome of one pool creation, shared by every flow of
// the mint that joined it.
type poolAttempt struct {
	pool     *executor.PoolResult
	existing bool
	reason   string
}

// createPool claims the mint's pool attempt in the mirror, then calls the
// pool service once. A claim held by another keeper ends the flow without an
// error; the claim is released on failure so the next pass retries.
func (o *Orchestrator) createPool(ctx context.Context, st *battle.BattleState, liq executor.Liquidity, log *zap.Logger) (*poolAttempt, error) {
	mint := st.Mint.String()
	if done, w := o.poolRecorded(ctx, st); done {
		return &poolAttempt{
			pool:     &executor.PoolResult{PoolID: w.PoolID, URL: w.RaydiumURL},
			existing: true,
		}, nil
	}

	owner := uuid.NewString()
	err := o.store.ClaimPool(ctx, mint, owner, o.opts.Now(), o.opts.PoolClaimTTL)
	if errors.Is(err, storage.ErrNotFound) {
		o.publish(ctx, st)
		err = o.store.ClaimPool(ctx, mint, owner, o.opts.Now(), o.opts.PoolClaimTTL)
	}
	switch {
	case errors.Is(err, storage.ErrPoolClaimed):
		log.Info("⏳ Pool creation already claimed, leaving it to its owner")
		return &poolAttempt{reason: "pool creation claimed by another keeper"}, nil
	case err != nil:
		return nil, fmt.Errorf("claim pool attempt: %w", err)
	}

	started := time.Now()
	pres, err := o.step(ctx, func(ctx context.Context) (*executor.Result, error) {
		return o.exec.CreatePool(ctx, st.Mint, liq)
	})
	if err != nil {
		if relErr := o.store.ReleasePoolClaim(ctx, mint, owner); relErr != nil {
			log.Warn("pool claim not released", zap.Error(relErr))
		}
		if !errors.Is(err, executor.ErrNoPoolCreator) {
			o.recordPoolFailure(ctx, st, err)
		}
		return nil, err
	}
	log.Info("🌊 Pool created",
		zap.String("pool_id", pres.Pool.PoolID),
		zap.Duration("took", time.Since(started)))
	o.recordPool(ctx, st, pres.Pool, liq)
	return &poolAttempt{pool: pres.Pool}, nil
}

// reobserve refreshes the mirror after a stale rejection.
func (o *Orchestrator) reobserve(ctx context.Context, mint solana.PublicKey, fr *FlowResult) {
	st, err := o.exec.Observe(ctx, mint)
	if err != nil {
		return
	}
	fr.Status = st.Status.String()
	o.publish(ctx, st)
}

func unix(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}
