package pool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPCreatorSuccess(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	var got createPoolRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		assert.Equal(t, mint.String(), r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success":   true,
			"poolId":    "PooL111",
			"signature": "sig111",
		})
	}))
	defer srv.Close()

	c := NewHTTPCreator(HTTPConfig{URL: srv.URL, Token: "s3cret", Cluster: "devnet"}, zap.NewNop())
	resp, err := c.CreatePool(context.Background(), Request{
		Mint:           mint,
		SolLamports:    6_000_000_000,
		TokenAmount:    206_900_000,
		IdempotencyKey: mint.String(),
	})
	require.NoError(t, err)

	assert.Equal(t, mint.String(), got.TokenMint)
	assert.Equal(t, uint64(6_000_000_000), got.SolLamports)
	assert.Equal(t, "PooL111", resp.PoolID)
	assert.Equal(t, "sig111", resp.Signature)
	assert.Equal(t, TradingURL(mint, "devnet"), resp.URL)
}

func TestHTTPCreatorFailureIsSingleAttempt(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "Failed to create Raydium pool",
			"details": "insufficient funds",
		})
	}))
	defer srv.Close()

	c := NewHTTPCreator(HTTPConfig{URL: srv.URL}, zap.NewNop())
	_, err := c.CreatePool(context.Background(), Request{Mint: solana.NewWallet().PublicKey(), SolLamports: 1, TokenAmount: 1})
	require.Error(t, err)

	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, http.StatusInternalServerError, svcErr.Status)
	assert.Equal(t, "insufficient funds", svcErr.Details)
	assert.Equal(t, 1, calls)
}

func TestHTTPCreatorRejectsSuccessWithoutPool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := NewHTTPCreator(HTTPConfig{URL: srv.URL}, zap.NewNop())
	_, err := c.CreatePool(context.Background(), Request{Mint: solana.NewWallet().PublicKey()})
	assert.Error(t, err)
}

func TestTradingURL(t *testing.T) {
	mint := solana.MustPublicKeyFromBase58("6LdnckDuYxXn4UkyyD5YB7w9j2k49AsuZCNmQ3GhR2Eq")
	u := TradingURL(mint, "devnet")
	assert.True(t, strings.HasPrefix(u, "https://raydium.io/swap/?"))
	assert.Contains(t, u, "inputMint="+mint.String())
	assert.Contains(t, u, "outputMint=sol")
	assert.Contains(t, u, "cluster=devnet")
}
