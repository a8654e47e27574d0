package rpc

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		sentinel  error
		retryable bool
	}{
		{"http 429", jsonrpc.NewHTTPError(429, errors.New("too many")), ErrRateLimit, true},
		{"http 503", jsonrpc.NewHTTPError(503, errors.New("unavailable")), ErrConnectionFailed, true},
		{"node behind", &jsonrpc.RPCError{Code: -32005, Message: "Node is behind"}, ErrConnectionFailed, true},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ErrTimeout, true},
		{"reset", errors.New("read: connection reset by peer"), ErrConnectionFailed, true},
		{"simulation", &jsonrpc.RPCError{Code: -32002, Message: "Transaction simulation failed"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, "http://node", "getX")
			assert.Equal(t, tt.retryable, IsRetryableError(got))
			if tt.sentinel != nil {
				assert.ErrorIs(t, got, tt.sentinel)
				assert.ErrorIs(t, got, tt.err)
			} else {
				assert.Same(t, tt.err, got)
			}
		})
	}
	assert.Nil(t, Classify(nil, "", ""))
}

func TestPoolRotatesAndCoolsDownFailedNodes(t *testing.T) {
	p, err := NewPool([]string{"http://a", "http://b"}, time.Minute, zap.NewNop())
	assert.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	p.now = func() time.Time { return now }

	assert.Equal(t, "http://a", p.Next().URL)
	assert.Equal(t, "http://b", p.Next().URL)

	a := p.Clients()[0]
	p.Report(a, &Error{Err: ErrConnectionFailed}, time.Millisecond)
	assert.Equal(t, "http://b", p.Next().URL)
	assert.Equal(t, "http://b", p.Next().URL)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, "http://a", p.Next().URL)

	_, failed, _ := a.GetMetrics()
	assert.Equal(t, uint64(1), failed)
}

func TestPoolFallsBackWhenAllCooling(t *testing.T) {
	p, err := NewPool([]string{"http://a"}, time.Minute, zap.NewNop())
	assert.NoError(t, err)
	c := p.Next()
	p.Report(c, &Error{Err: ErrConnectionFailed}, 0)
	// a single node is never taken out of rotation
	assert.Same(t, c, p.Next())

	_, err = NewPool(nil, 0, zap.NewNop())
	assert.ErrorIs(t, err, ErrNoActiveClients)
}
