// internal/blockchain/solbc/rpc/types.go
package rpc

import (
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 10 * time.Second
	// DefaultCooldown – сколько упавший узел остаётся вне ротации.
	DefaultCooldown = 30 * time.Second
)

// NodeClient представляет отдельный RPC узел
type NodeClient struct {
	Client *rpc.Client
	URL    string

	mutex         sync.RWMutex
	disabledUntil time.Time
	metrics       *metrics
}

// metrics содержит метрики производительности RPC узла
type metrics struct {
	successCount uint64
	errorCount   uint64
	latency      time.Duration
	mutex        sync.RWMutex
}

// Pool представляет пул RPC клиентов
type Pool struct {
	clients  []*NodeClient
	logger   *zap.Logger
	cooldown time.Duration
	now      func() time.Time

	mutex     sync.Mutex
	currIndex int
}
