// internal/blockchain/solbc/client.go
package solbc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rovshanmuradov/bonk-keeper/internal/blockchain"
	"github.com/rovshanmuradov/bonk-keeper/internal/blockchain/solbc/rpc"
)

// maxAccountsPerRequest – лимит ключей getMultipleAccounts.
const maxAccountsPerRequest = 100

// codeInvalidParams возвращает getTokenAccountBalance для отсутствующего аккаунта.
const codeInvalidParams = -32602

// Config содержит настройки клиента леджера.
type Config struct {
	URLs              []string
	Commitment        solanarpc.CommitmentType
	RequestsPerSecond float64
	Burst             int
	MaxRetries        uint
	MaxElapsed        time.Duration
	RequestTimeout    time.Duration
	ConfirmTimeout    time.Duration
	PollInterval      time.Duration
	NodeCooldown      time.Duration
	// Budget добавляется в начало каждой транзакции.
	Budget ComputeBudget
}

func (c *Config) setDefaults() {
	if c.Commitment == "" {
		c.Commitment = solanarpc.CommitmentConfirmed
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 4
	}
	if c.MaxElapsed <= 0 {
		c.MaxElapsed = 20 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = rpc.DefaultTimeout
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
}

// LatencyObserver получает длительность каждого RPC-вызова.
type LatencyObserver interface {
	ObserveRPC(method string, d time.Duration, err error)
}

// Client – адаптер леджера поверх solana-go с failover между узлами,
// ограничением частоты запросов и повторами для транзиентных ошибок.
type Client struct {
	cfg      Config
	pool     *rpc.Pool
	limiter  *rate.Limiter
	analyzer *ErrorAnalyzer
	observer LatencyObserver
	logger   *zap.Logger
}

// NewClient создаёт клиента по конфигурации.
func NewClient(cfg Config, analyzer *ErrorAnalyzer, observer LatencyObserver, logger *zap.Logger) (*Client, error) {
	cfg.setDefaults()
	pool, err := rpc.NewPool(cfg.URLs, cfg.NodeCooldown, logger)
	if err != nil {
		return nil, err
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if analyzer == nil {
		analyzer = NewErrorAnalyzer(logger, nil)
	}
	return &Client{
		cfg:      cfg,
		pool:     pool,
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		analyzer: analyzer,
		observer: observer,
		logger:   logger.Named("solbc-client"),
	}, nil
}

// call выполняет fn на следующем здоровом узле и повторяет транзиентные
// ошибки с экспоненциальной задержкой на другом узле.
func call[T any](ctx context.Context, c *Client, method string, fn func(context.Context, *solanarpc.Client) (T, error)) (T, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 250 * time.Millisecond
	eb.MaxInterval = 4 * time.Second

	op := func() (T, error) {
		var zero T
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, backoff.Permanent(err)
		}
		node := c.pool.Next()
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()

		start := time.Now()
		res, err := fn(reqCtx, node.Client)
		elapsed := time.Since(start)
		err = rpc.Classify(err, node.URL, method)
		c.pool.Report(node, err, elapsed)
		if c.observer != nil {
			c.observer.ObserveRPC(method, elapsed, err)
		}
		if err == nil {
			return res, nil
		}
		if !rpc.IsRetryableError(err) {
			return zero, backoff.Permanent(err)
		}
		return zero, err
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(c.cfg.MaxRetries),
		backoff.WithMaxElapsedTime(c.cfg.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Debug("Retrying RPC call",
				zap.String("method", method),
				zap.Duration("backoff", next),
				zap.Error(err))
		}),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	return res, err
}

// ReadAccount получает один аккаунт.
func (c *Client) ReadAccount(ctx context.Context, address solana.PublicKey) (*blockchain.Account, error) {
	accs, err := c.ReadAccounts(ctx, []solana.PublicKey{address})
	if err != nil {
		return nil, err
	}
	if accs[0] == nil {
		return nil, fmt.Errorf("%s: %w", address, blockchain.ErrAccountNotFound)
	}
	return accs[0], nil
}

// ReadAccounts получает аккаунты пачками по 100 ключей.
func (c *Client) ReadAccounts(ctx context.Context, addresses []solana.PublicKey) ([]*blockchain.Account, error) {
	out := make([]*blockchain.Account, 0, len(addresses))
	for start := 0; start < len(addresses); start += maxAccountsPerRequest {
		end := min(start+maxAccountsPerRequest, len(addresses))
		chunk := addresses[start:end]

		res, err := call(ctx, c, "getMultipleAccounts", func(ctx context.Context, cl *solanarpc.Client) (*solanarpc.GetMultipleAccountsResult, error) {
			return cl.GetMultipleAccountsWithOpts(ctx, chunk, &solanarpc.GetMultipleAccountsOpts{
				Commitment: c.cfg.Commitment,
				Encoding:   solana.EncodingBase64,
			})
		})
		if err != nil {
			return nil, fmt.Errorf("read %d accounts: %w", len(chunk), err)
		}
		if len(res.Value) != len(chunk) {
			return nil, rpc.NewError(rpc.ErrInvalidResponse, "", "getMultipleAccounts")
		}
		for i, acc := range res.Value {
			if acc == nil {
				out = append(out, nil)
				continue
			}
			var data []byte
			if acc.Data != nil {
				data = acc.Data.GetBinary()
			}
			out = append(out, &blockchain.Account{
				Address:    chunk[i],
				Owner:      acc.Owner,
				Lamports:   acc.Lamports,
				Data:       data,
				Executable: acc.Executable,
			})
		}
	}
	return out, nil
}

// MinimumBalanceForRentExemption возвращает rent-exempt минимум для размера данных.
func (c *Client) MinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error) {
	return call(ctx, c, "getMinimumBalanceForRentExemption", func(ctx context.Context, cl *solanarpc.Client) (uint64, error) {
		return cl.GetMinimumBalanceForRentExemption(ctx, dataSize, c.cfg.Commitment)
	})
}

// TokenAccountBalance получает баланс токенного аккаунта.
func (c *Client) TokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	res, err := call(ctx, c, "getTokenAccountBalance", func(ctx context.Context, cl *solanarpc.Client) (*solanarpc.GetTokenAccountBalanceResult, error) {
		return cl.GetTokenAccountBalance(ctx, account, c.cfg.Commitment)
	})
	if err != nil {
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == codeInvalidParams {
			return 0, nil
		}
		return 0, fmt.Errorf("token balance of %s: %w", account, err)
	}
	if res == nil || res.Value == nil {
		return 0, nil
	}
	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse token amount %q: %w", res.Value.Amount, err)
	}
	return amount, nil
}

// GetBalance получает баланс аккаунта в лампортах.
func (c *Client) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	res, err := call(ctx, c, "getBalance", func(ctx context.Context, cl *solanarpc.Client) (*solanarpc.GetBalanceResult, error) {
		return cl.GetBalance(ctx, account, c.cfg.Commitment)
	})
	if err != nil {
		return 0, err
	}
	return res.Value, nil
}

// GetRecentBlockhash получает последний blockhash.
func (c *Client) GetRecentBlockhash(ctx context.Context) (solana.Hash, error) {
	res, err := call(ctx, c, "getLatestBlockhash", func(ctx context.Context, cl *solanarpc.Client) (*solanarpc.GetLatestBlockhashResult, error) {
		return cl.GetLatestBlockhash(ctx, solanarpc.CommitmentFinalized)
	})
	if err != nil {
		return solana.Hash{}, err
	}
	if res == nil || res.Value == nil {
		return solana.Hash{}, rpc.NewError(rpc.ErrInvalidResponse, "", "getLatestBlockhash")
	}
	return res.Value.Blockhash, nil
}

// Проверяем, что Client реализует интерфейс blockchain.Ledger.
var _ blockchain.Ledger = (*Client)(nil)
