package risk

import (
	"context"
	"log"

	"solana-momentum-bot/internal/solana"
)

// DevExitProbe checks whether a token's creator has fully exited.
type DevExitProbe struct {
	rpc    solana.RPCClient
	logger *log.Logger
}

// NewDevExitProbe creates a probe over the given RPC client.
func NewDevExitProbe(rpc solana.RPCClient, logger *log.Logger) *DevExitProbe {
	if logger == nil {
		logger = log.Default()
	}
	return &DevExitProbe{rpc: rpc, logger: logger}
}

// HasExited reports whether every token account the dev wallet holds for
// mint has a zero balance. Any RPC error yields the conservative false.
func (p *DevExitProbe) HasExited(ctx context.Context, mint, devWallet string) bool {
	accounts, err := p.rpc.GetTokenAccountsByOwner(ctx, devWallet, mint)
	if err != nil {
		p.logger.Printf("[risk] dev token accounts fetch failed for %s: %v", mint, err)
		return false
	}

	for _, account := range accounts {
		balance, err := p.rpc.GetTokenAccountBalance(ctx, account)
		if err != nil {
			p.logger.Printf("[risk] dev balance fetch failed for %s: %v", account, err)
			return false
		}
		if balance > 0 {
			return false
		}
	}
	return true
}
