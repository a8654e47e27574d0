package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestToMicroUSD(t *testing.T) {
	v, err := ToMicroUSD(decimal.RequireFromString("171.2534567"))
	require.NoError(t, err)
	assert.Equal(t, uint64(171_253_456), v)
	assert.Equal(t, "171.253456", FromMicroUSD(v).String())

	_, err = ToMicroUSD(decimal.Zero)
	assert.Error(t, err)
}

func TestCoinGeckoFeedRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"solana":{"usd":171.25}}`))
	}))
	defer srv.Close()

	feed := NewCoinGeckoFeed(srv.URL, time.Second, 3, zap.NewNop())
	got, err := feed.SolUSD(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("171.25")))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCoinGeckoFeedDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	feed := NewCoinGeckoFeed(srv.URL, time.Second, 3, zap.NewNop())
	_, err := feed.SolUSD(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCoinGeckoFeedRejectsMissingPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"solana":{}}`))
	}))
	defer srv.Close()

	_, err := NewCoinGeckoFeed(srv.URL, time.Second, 2, zap.NewNop()).SolUSD(context.Background())
	assert.Error(t, err)
}
