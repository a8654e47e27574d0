package keeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestShutdownClosesInReverseOrder(t *testing.T) {
	sh := NewShutdownHandler(zap.NewNop(), time.Second)

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"store", "scheduler", "api"} {
		name := name
		sh.AddFunc(name, func() error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, sh.Shutdown(context.Background()))
	assert.Equal(t, []string{"api", "scheduler", "store"}, order)

	// second call is a no-op
	require.NoError(t, sh.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestShutdownCollectsErrorsAndTimeouts(t *testing.T) {
	sh := NewShutdownHandler(zap.NewNop(), 20*time.Millisecond)
	boom := errors.New("boom")
	closed := false

	sh.AddFunc("store", func() error {
		closed = true
		return nil
	})
	sh.AddFunc("broken", func() error { return boom })
	block := make(chan struct{})
	defer close(block)
	sh.AddFunc("stuck", func() error {
		<-block
		return nil
	})

	err := sh.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "stuck: shutdown timeout")
	assert.True(t, closed, "services after a failing one are still closed")
}
