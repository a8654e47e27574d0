// internal/blockchain/solbc/rpc/pool.go
package rpc

import (
	"time"

	"go.uber.org/zap"
)

// NewPool создает пул клиентов по списку URL
func NewPool(urls []string, cooldown time.Duration, logger *zap.Logger) (*Pool, error) {
	if len(urls) == 0 {
		return nil, ErrNoActiveClients
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	clients := make([]*NodeClient, 0, len(urls))
	for _, url := range urls {
		clients = append(clients, NewClient(url))
	}
	return &Pool{
		clients:  clients,
		logger:   logger.Named("rpc-pool"),
		cooldown: cooldown,
		now:      time.Now,
		// первый вызов Next вернёт клиента с индексом 0
		currIndex: len(clients) - 1,
	}, nil
}

// Clients возвращает все узлы пула.
func (p *Pool) Clients() []*NodeClient {
	return p.clients
}

// Next возвращает следующий активный клиент по кругу. Если все узлы
// выведены из ротации, возвращается следующий по порядку.
func (p *Pool) Next() *NodeClient {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	now := p.now()
	for range p.clients {
		p.currIndex = (p.currIndex + 1) % len(p.clients)
		if c := p.clients[p.currIndex]; c.IsActive(now) {
			return c
		}
	}
	p.currIndex = (p.currIndex + 1) % len(p.clients)
	p.logger.Warn("No active RPC nodes, using cooled-down node",
		zap.String("url", p.clients[p.currIndex].URL))
	return p.clients[p.currIndex]
}

// Report учитывает результат вызова на c и выводит узел из
// ротации при критической ошибке.
func (p *Pool) Report(c *NodeClient, err error, latency time.Duration) {
	c.UpdateMetrics(err == nil, latency)
	if err == nil || !IsCriticalError(err) || len(p.clients) == 1 {
		return
	}
	c.disable(p.now().Add(p.cooldown))
	p.logger.Warn("RPC node taken out of rotation",
		zap.String("url", c.URL),
		zap.Duration("cooldown", p.cooldown),
		zap.Error(err))
}
