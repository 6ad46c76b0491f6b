package feed

import (
	"context"
	"log"
	"sync"
	"time"

	"solana-momentum-bot/internal/domain"
	"solana-momentum-bot/internal/solana"
)

// PoolSource delivers pool-creation events.
type PoolSource interface {
	// Pools returns the pool event stream. The channel is closed when the
	// source shuts down.
	Pools() <-chan domain.PoolEvent
}

// PriceSource delivers trade events for tracked mints.
type PriceSource interface {
	// Prices returns the trade event stream.
	Prices() <-chan domain.PriceEvent

	// TrackMint starts forwarding trades for a mint.
	TrackMint(mint string)

	// UntrackMint stops forwarding trades for a mint.
	UntrackMint(mint string)
}

// WSFeed subscribes to pump.fun program logs and fans parsed events out to
// a pool stream and a mint-filtered price stream. It implements both
// PoolSource and PriceSource.
type WSFeed struct {
	ws     solana.WSClient
	parser *Parser
	logger *log.Logger

	pools  chan domain.PoolEvent
	prices chan domain.PriceEvent

	tracked   map[string]struct{}
	trackedMu sync.RWMutex

	now func() time.Time
}

// NewWSFeed creates a feed over an established WebSocket client.
func NewWSFeed(ws solana.WSClient, logger *log.Logger) *WSFeed {
	if logger == nil {
		logger = log.Default()
	}
	return &WSFeed{
		ws:      ws,
		parser:  NewParser(),
		logger:  logger,
		pools:   make(chan domain.PoolEvent, 256),
		prices:  make(chan domain.PriceEvent, 1024),
		tracked: make(map[string]struct{}),
		now:     time.Now,
	}
}

// Pools returns the pool event stream.
func (f *WSFeed) Pools() <-chan domain.PoolEvent { return f.pools }

// Prices returns the trade event stream for tracked mints.
func (f *WSFeed) Prices() <-chan domain.PriceEvent { return f.prices }

// TrackMint starts forwarding trades for a mint.
func (f *WSFeed) TrackMint(mint string) {
	f.trackedMu.Lock()
	f.tracked[mint] = struct{}{}
	f.trackedMu.Unlock()
}

// UntrackMint stops forwarding trades for a mint.
func (f *WSFeed) UntrackMint(mint string) {
	f.trackedMu.Lock()
	delete(f.tracked, mint)
	f.trackedMu.Unlock()
}

func (f *WSFeed) isTracked(mint string) bool {
	f.trackedMu.RLock()
	_, ok := f.tracked[mint]
	f.trackedMu.RUnlock()
	return ok
}

// Run subscribes and pumps events until the context is cancelled. Both
// output channels are closed on return.
func (f *WSFeed) Run(ctx context.Context) error {
	defer close(f.pools)
	defer close(f.prices)

	logsCh, err := f.ws.SubscribeLogs(ctx, solana.LogsFilter{
		Mentions: []string{PumpFunProgram},
	})
	if err != nil {
		return err
	}
	f.logger.Printf("[feed] subscribed to program %s", PumpFunProgram)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case notif, ok := <-logsCh:
			if !ok {
				f.logger.Println("[feed] subscription channel closed")
				return nil
			}
			f.handleNotification(ctx, notif)
		}
	}
}

func (f *WSFeed) handleNotification(ctx context.Context, notif solana.LogNotification) {
	// Failed transactions produce no state change worth trading on.
	if notif.Err != nil {
		return
	}

	nowMs := f.now().UnixMilli()
	pools, prices := f.parser.ParseLogs(notif.Logs, notif.Signature, nowMs)

	for _, ev := range pools {
		select {
		case f.pools <- ev:
		case <-ctx.Done():
			return
		}
	}

	for _, ev := range prices {
		if !f.isTracked(ev.Mint) {
			continue
		}
		select {
		case f.prices <- ev:
		case <-ctx.Done():
			return
		}
	}
}
