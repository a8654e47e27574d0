// internal/executor/withdraw.go
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
	"github.com/rovshanmuradov/bonk-keeper/internal/blockchain"
	"github.com/rovshanmuradov/bonk-keeper/internal/program"
	"github.com/rovshanmuradov/bonk-keeper/internal/wallet"
)

// WithdrawForListing moves the curve's SOL above rent and its tokens to the
// keeper. A Listed token without SOL above rent was already withdrawn: the
// result is AlreadyApplied and nothing is submitted.
func (e *Executor) WithdrawForListing(ctx context.Context, mint solana.PublicKey) (res *Result, err error) {
	res = &Result{Transition: TransitionWithdraw, Mint: mint}
	start := e.now()
	defer func() { e.finish(res, err, start) }()

	snap, err := e.readState(ctx, mint)
	if err != nil {
		return res, err
	}
	st := snap.state
	res.Before = st
	if st.Status != battle.StatusListed {
		return res, precondition(res.Transition, st, battle.StatusListed, "")
	}

	rent, err := e.ledger.MinimumBalanceForRentExemption(ctx, uint64(len(snap.account.Data)))
	if err != nil {
		return res, fmt.Errorf("rent exemption: %w", err)
	}

	tokenProgram, err := e.tokenProgram(ctx, mint)
	if err != nil {
		return res, err
	}
	keeperATA, err := e.keeper.GetATA(mint, tokenProgram)
	if err != nil {
		return res, fmt.Errorf("keeper ata: %w", err)
	}

	if snap.account.Lamports <= rent {
		res.AlreadyApplied = true
		res.NoEffectReason = "already withdrawn"
		if res.KeeperTokenBalance, err = e.ledger.TokenAccountBalance(ctx, keeperATA); err != nil {
			return res, fmt.Errorf("keeper token balance: %w", err)
		}
		return res, nil
	}

	if err := e.ensureTokenAccount(ctx, res, keeperATA, mint, tokenProgram); err != nil {
		return res, err
	}
	tokensBefore, err := e.ledger.TokenAccountBalance(ctx, keeperATA)
	if err != nil {
		return res, fmt.Errorf("keeper token balance: %w", err)
	}

	accounts, err := e.program.WithdrawAccountsFor(mint, tokenProgram)
	if err != nil {
		return res, fmt.Errorf("withdraw accounts: %w", err)
	}
	landed, err := e.send(ctx, res, e.program.WithdrawForListing(mint, accounts))
	if err != nil {
		return res, err
	}
	if !landed {
		if res.Reject != nil && res.Reject.Code == program.CodeNoLiquidityToWithdraw {
			res.AlreadyApplied = true
			res.KeeperTokenBalance = tokensBefore
		}
		return res, nil
	}
	res.Success = true

	after, err := e.readState(ctx, mint)
	if err != nil {
		return res, fmt.Errorf("post-check: %w", err)
	}
	res.After = after.state
	tokensAfter, err := e.ledger.TokenAccountBalance(ctx, keeperATA)
	if err != nil {
		return res, fmt.Errorf("keeper token balance: %w", err)
	}
	res.KeeperTokenBalance = tokensAfter
	if tokensAfter > tokensBefore {
		res.TokensWithdrawn = tokensAfter - tokensBefore
	}
	if snap.account.Lamports > after.account.Lamports {
		res.SolWithdrawn = snap.account.Lamports - after.account.Lamports
	}
	res.EffectOccurred = res.SolWithdrawn > 0 || res.TokensWithdrawn > 0
	if !res.EffectOccurred {
		res.NoEffectReason = "no balance moved"
	}
	return res, nil
}

// tokenProgram picks Token or Token-2022 from the owner of the mint account.
func (e *Executor) tokenProgram(ctx context.Context, mint solana.PublicKey) (solana.PublicKey, error) {
	acc, err := e.ledger.ReadAccount(ctx, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("read mint %s: %w", mint, err)
	}
	return program.TokenProgramForMintOwner(acc.Owner)
}

// ensureTokenAccount creates the keeper's token account in its own transaction
// when it does not exist.
func (e *Executor) ensureTokenAccount(ctx context.Context, res *Result, ata, mint, tokenProgram solana.PublicKey) error {
	_, err := e.ledger.ReadAccount(ctx, ata)
	if err == nil {
		return nil
	}
	if !errors.Is(err, blockchain.ErrAccountNotFound) {
		return fmt.Errorf("read keeper ata: %w", err)
	}

	ix, err := wallet.CreateAssociatedTokenAccountIdempotentInstruction(e.keeper.PublicKey, e.keeper.PublicKey, mint, tokenProgram)
	if err != nil {
		return fmt.Errorf("build create ata: %w", err)
	}
	sub, err := e.ledger.Submit(ctx, ix, e.keeper)
	if err != nil {
		return &SubmitError{Transition: res.Transition, Mint: res.Mint, Err: fmt.Errorf("create keeper ata: %w", err), Unknown: true}
	}
	if !sub.Outcome.Landed() {
		cause := sub.Err
		if cause == nil {
			cause = errors.New(sub.Outcome.String())
		}
		return &SubmitError{
			Transition: res.Transition,
			Mint:       res.Mint,
			Outcome:    sub.Outcome,
			Anchor:     sub.Reject,
			Signature:  sub.Signature.String(),
			Err:        fmt.Errorf("create keeper ata: %w", cause),
		}
	}
	e.logger.Info("keeper token account created",
		zap.String("mint", mint.String()),
		zap.String("ata", ata.String()),
		zap.String("tx", sub.Signature.String()))
	return nil
}
