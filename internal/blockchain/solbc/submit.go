// internal/blockchain/solbc/submit.go
package solbc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bonk-keeper/internal/blockchain"
	"github.com/rovshanmuradov/bonk-keeper/internal/wallet"
)

// ErrConfirmationTimeout is the cause carried by OutcomeTimeout results.
var ErrConfirmationTimeout = errors.New("confirmation timeout")

// Submit signs a single-instruction transaction with signer as fee payer,
// sends it with preflight and waits for confirmation.
//
// Send failures that are transport-level are retried with the same signed
// transaction, so a retry can never apply the instruction twice. A stale
// blockhash causes a re-sign with a fresh one.
func (c *Client) Submit(ctx context.Context, ix solana.Instruction, signer *wallet.Wallet) (blockchain.SubmitResult, error) {
	tx, err := c.buildSigned(ctx, ix, signer)
	if err != nil {
		return blockchain.SubmitResult{}, err
	}
	sig := tx.Signatures[0]
	log := c.logger.With(zap.String("tx_hash", sig.String()))

	for attempt := 0; ; attempt++ {
		_, err = call(ctx, c, "sendTransaction", func(ctx context.Context, cl *solanarpc.Client) (solana.Signature, error) {
			return cl.SendTransactionWithOpts(ctx, tx, solanarpc.TransactionOpts{
				PreflightCommitment: c.cfg.Commitment,
			})
		})
		if err == nil {
			break
		}

		analysis := c.analyzer.Analyze(err)
		switch {
		case analysis.AlreadyProcessed:
			log.Info("Transaction already processed, awaiting its confirmation")
			res := c.awaitConfirmation(ctx, sig)
			if res.Outcome == blockchain.OutcomeConfirmed {
				res.Outcome = blockchain.OutcomeAlreadyProcessed
			}
			return res, nil

		case analysis.BlockhashNotFound && attempt == 0:
			log.Debug("Blockhash expired before send, re-signing")
			if tx, err = c.buildSigned(ctx, ix, signer); err != nil {
				return blockchain.SubmitResult{}, err
			}
			sig = tx.Signatures[0]
			log = c.logger.With(zap.String("tx_hash", sig.String()))
			continue

		case analysis.SimulationFailed:
			log.Warn("Transaction rejected in preflight",
				zap.String("analysis", c.analyzer.FormatErrorAnalysis(analysis)))
			return blockchain.SubmitResult{
				Outcome:   blockchain.OutcomeRejected,
				Signature: sig,
				Reject:    analysis.Anchor,
				Err:       err,
				Logs:      analysis.Logs,
			}, nil
		}
		return blockchain.SubmitResult{Signature: sig}, fmt.Errorf("send transaction: %w", err)
	}

	log.Debug("Transaction sent, awaiting confirmation")
	return c.awaitConfirmation(ctx, sig), nil
}

func (c *Client) buildSigned(ctx context.Context, ix solana.Instruction, signer *wallet.Wallet) (*solana.Transaction, error) {
	blockhash, err := c.GetRecentBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("get blockhash: %w", err)
	}
	instructions, err := c.cfg.Budget.Instructions()
	if err != nil {
		return nil, err
	}
	instructions = append(instructions, ix)
	tx, err := solana.NewTransaction(
		instructions,
		blockhash,
		solana.TransactionPayer(signer.PublicKey),
	)
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	if err := signer.SignTransaction(tx); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return tx, nil
}

// awaitConfirmation polls until the transaction is confirmed.
func (c *Client) awaitConfirmation(ctx context.Context, sig solana.Signature) blockchain.SubmitResult {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	timeout := time.NewTimer(c.cfg.ConfirmTimeout)
	defer timeout.Stop()

	res := blockchain.SubmitResult{Signature: sig}
	for {
		select {
		case <-ctx.Done():
			res.Outcome = blockchain.OutcomeTimeout
			res.Err = fmt.Errorf("%w: %w", ErrConfirmationTimeout, ctx.Err())
			return res
		case <-timeout.C:
			res.Outcome = blockchain.OutcomeTimeout
			res.Err = ErrConfirmationTimeout
			return res
		case <-ticker.C:
			statuses, err := call(ctx, c, "getSignatureStatuses", func(ctx context.Context, cl *solanarpc.Client) (*solanarpc.GetSignatureStatusesResult, error) {
				return cl.GetSignatureStatuses(ctx, false, sig)
			})
			if err != nil {
				c.logger.Warn("Error getting signature statuses", zap.Error(err))
				continue
			}
			if statuses == nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
				continue
			}
			status := statuses.Value[0]
			if status.Err != nil {
				res.Outcome = blockchain.OutcomeRejected
				res.Reject = c.analyzer.AnchorFromInstructionError(status.Err)
				res.Err = fmt.Errorf("transaction failed: %v", status.Err)
				return res
			}
			if status.ConfirmationStatus == solanarpc.ConfirmationStatusFinalized ||
				status.ConfirmationStatus == solanarpc.ConfirmationStatusConfirmed {
				res.Outcome = blockchain.OutcomeConfirmed
				return res
			}
		}
	}
}
