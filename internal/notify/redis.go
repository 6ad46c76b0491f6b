// Package notify mirrors engine output onto Redis Pub/Sub channels for
// dashboard consumers. Delivery is best-effort; the strategy never waits on
// a slow dashboard.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"solana-momentum-bot/internal/domain"
)

// Redis channels.
const (
	SignalChannel = "mombot:signals"
	PnLChannel    = "mombot:pnl"
)

// RedisPublisher publishes trade signals and PnL updates to Redis Pub/Sub.
type RedisPublisher struct {
	rdb    *redis.Client
	logger *log.Logger
}

// NewRedisPublisher connects a publisher to the Redis at addr.
func NewRedisPublisher(ctx context.Context, addr string, logger *log.Logger) (*RedisPublisher, error) {
	if logger == nil {
		logger = log.Default()
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisPublisher{rdb: rdb, logger: logger}, nil
}

// PublishSignal mirrors one trade signal.
func (p *RedisPublisher) PublishSignal(ctx context.Context, sig domain.TradeSignal) {
	p.publish(ctx, SignalChannel, sig)
}

// PublishPnL mirrors one PnL update.
func (p *RedisPublisher) PublishPnL(ctx context.Context, pnl domain.PnLUpdate) {
	p.publish(ctx, PnLChannel, pnl)
}

func (p *RedisPublisher) publish(ctx context.Context, channel string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Printf("[notify] marshal for %s: %v", channel, err)
		return
	}
	if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		p.logger.Printf("[notify] publish %s: %v", channel, err)
	}
}

// Run drains the given streams into Redis until the context is cancelled or
// both channels close.
func (p *RedisPublisher) Run(ctx context.Context, signals <-chan domain.TradeSignal, pnl <-chan domain.PnLUpdate) {
	for signals != nil || pnl != nil {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
			p.PublishSignal(ctx, sig)
		case update, ok := <-pnl:
			if !ok {
				pnl = nil
				continue
			}
			p.PublishPnL(ctx, update)
		}
	}
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
