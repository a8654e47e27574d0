// internal/blockchain/solbc/rpc/client.go
package rpc

import (
	"time"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
)

// NewClient создает новый экземпляр NodeClient
func NewClient(url string) *NodeClient {
	return &NodeClient{
		Client:  solanarpc.New(url),
		URL:     url,
		metrics: &metrics{},
	}
}

// GetMetrics возвращает текущие метрики узла
func (c *NodeClient) GetMetrics() (success uint64, failed uint64, latency time.Duration) {
	c.metrics.mutex.RLock()
	defer c.metrics.mutex.RUnlock()
	return c.metrics.successCount, c.metrics.errorCount, c.metrics.latency
}

// disable выводит узел из ротации до указанного времени.
func (c *NodeClient) disable(until time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.disabledUntil = until
}

// IsActive возвращает текущий статус активности узла
func (c *NodeClient) IsActive(now time.Time) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return !now.Before(c.disabledUntil)
}

// UpdateMetrics обновляет метрики узла
func (c *NodeClient) UpdateMetrics(success bool, latency time.Duration) {
	c.metrics.mutex.Lock()
	defer c.metrics.mutex.Unlock()

	if success {
		c.metrics.successCount++
	} else {
		c.metrics.errorCount++
	}
	// Скользящее среднее
	if c.metrics.latency == 0 {
		c.metrics.latency = latency
	} else {
		c.metrics.latency = (c.metrics.latency + latency) / 2
	}
}
