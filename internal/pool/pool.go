// internal/pool/pool.go
package pool

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gagliardetto/solana-go"
)

// Request describes the liquidity to seed a pool with.
type Request struct {
	Mint        solana.PublicKey
	SolLamports uint64
	TokenAmount uint64
	// IdempotencyKey lets the service recognise a repeated request for the
	// same pool.
	IdempotencyKey string
}

// Response is a created pool.
type Response struct {
	PoolID    string
	Signature string
	URL       string
}

// Creator creates the liquidity pool of a winning token. One call is one
// attempt; the next orchestrator pass does any retry.
type Creator interface {
	CreatePool(ctx context.Context, req Request) (*Response, error)
}

// ServiceError is a non-success answer of the pool service.
type ServiceError struct {
	Status  int
	Message string
	Details string
}

func (e *ServiceError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("pool service: status %d: %s (%s)", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("pool service: status %d: %s", e.Status, e.Message)
}

// TradingURL returns the public swap page of mint.
func TradingURL(mint solana.PublicKey, cluster string) string {
	q := url.Values{}
	q.Set("inputMint", mint.String())
	q.Set("outputMint", "sol")
	if cluster != "" {
		q.Set("cluster", cluster)
	}
	return "https://raydium.io/swap/?" + q.Encode()
}
