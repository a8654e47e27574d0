// internal/pool/http_creator.go
package pool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultRequestTimeout = 90 * time.Second

// HTTPCreator вызывает внешний сервис создания пулов по HTTP.
type HTTPCreator struct {
	client  *http.Client
	logger  *zap.Logger
	baseURL string
	token   string
	cluster string
}

// HTTPConfig настраивает HTTPCreator.
type HTTPConfig struct {
	URL     string
	Token   string
	Cluster string
	Timeout time.Duration
}

type createPoolRequest struct {
	TokenMint   string `json:"tokenMint"`
	SolLamports uint64 `json:"solLamports"`
	TokenAmount uint64 `json:"tokenAmount"`
}

type createPoolResponse struct {
	Success    bool   `json:"success"`
	PoolID     string `json:"poolId"`
	Signature  string `json:"signature"`
	RaydiumURL string `json:"raydiumUrl"`
	Error      string `json:"error"`
	Details    string `json:"details"`
}

// NewHTTPCreator создает клиента сервиса пулов.
func NewHTTPCreator(cfg HTTPConfig, logger *zap.Logger) *HTTPCreator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &HTTPCreator{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger:  logger.Named("pool-service"),
		baseURL: cfg.URL,
		token:   cfg.Token,
		cluster: cfg.Cluster,
	}
}

// CreatePool выполняет один запрос к сервису без повторов.
func (s *HTTPCreator) CreatePool(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(createPoolRequest{
		TokenMint:   req.Mint.String(),
		SolLamports: req.SolLamports,
		TokenAmount: req.TokenAmount,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.token)
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	s.logger.Debug("pool request completed",
		zap.Duration("duration", time.Since(start)),
		zap.String("token", req.Mint.String()),
		zap.Int("status", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out createPoolResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode != http.StatusOK || decodeErr != nil || !out.Success {
		svcErr := &ServiceError{Status: resp.StatusCode, Message: out.Error, Details: out.Details}
		if svcErr.Message == "" {
			svcErr.Message = string(bytes.TrimSpace(raw))
		}
		return nil, svcErr
	}
	if out.PoolID == "" {
		return nil, &ServiceError{Status: resp.StatusCode, Message: "response has no pool id"}
	}

	url := out.RaydiumURL
	if url == "" {
		url = TradingURL(req.Mint, s.cluster)
	}
	s.logger.Info("pool created",
		zap.String("token", req.Mint.String()),
		zap.String("pool_id", out.PoolID))
	return &Response{PoolID: out.PoolID, Signature: out.Signature, URL: url}, nil
}
