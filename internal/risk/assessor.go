// Package risk probes on-chain token metadata before and after entry:
// transfer-fee and bundler checks at admission, and creator-exit probes on
// the pre-entry path.
package risk

import (
	"context"
	"encoding/binary"
	"log"
	"sync/atomic"
	"time"

	"solana-momentum-bot/internal/solana"
)

// MaxConcurrency bounds concurrent risk assessments.
const MaxConcurrency = 6

// acquireBackoff is the spin-wait interval while the concurrency bound is
// saturated.
const acquireBackoff = 50 * time.Millisecond

// Token-2022 mint layout: transferFeeBasisPoints lives at byte offset 133
// when the transfer-fee extension is present.
const (
	transferFeeOffset  = 133
	transferFeeMinSize = 135
)

// Assessment is the outcome of a token risk probe. FeeBps is nil when the
// fee could not be determined.
type Assessment struct {
	FeeBps  *int
	Bundler bool
}

// Assessor probes mint accounts and create transactions with bounded
// concurrency.
type Assessor struct {
	rpc             solana.RPCClient
	bundlerPrograms map[string]struct{}
	inFlight        atomic.Int32
	maxInFlight     int32
	logger          *log.Logger
}

// NewAssessor creates an Assessor flagging the given bundler program IDs.
func NewAssessor(rpc solana.RPCClient, bundlerPrograms []string, logger *log.Logger) *Assessor {
	if logger == nil {
		logger = log.Default()
	}
	set := make(map[string]struct{}, len(bundlerPrograms))
	for _, p := range bundlerPrograms {
		set[p] = struct{}{}
	}
	return &Assessor{
		rpc:             rpc,
		bundlerPrograms: set,
		maxInFlight:     MaxConcurrency,
		logger:          logger,
	}
}

// InFlight returns the number of assessments currently running.
func (a *Assessor) InFlight() int {
	return int(a.inFlight.Load())
}

// Assess probes the mint for a transfer fee and, when createTx is given,
// the create transaction for a bundler program. Probe failures leave the
// corresponding field at its zero value rather than failing the whole
// assessment.
func (a *Assessor) Assess(ctx context.Context, mint, createTx string) Assessment {
	if err := a.acquire(ctx); err != nil {
		return Assessment{}
	}
	defer a.inFlight.Add(-1)

	var out Assessment

	info, err := a.rpc.GetAccountInfo(ctx, mint)
	if err != nil {
		a.logger.Printf("[risk] mint account fetch failed for %s: %v", mint, err)
	} else if info != nil {
		out.FeeBps = transferFeeBps(info)
	}

	if createTx != "" {
		tx, err := a.rpc.GetTransaction(ctx, createTx)
		if err != nil {
			a.logger.Printf("[risk] create tx fetch failed for %s: %v", mint, err)
		} else if tx != nil {
			if _, ok := a.bundlerPrograms[tx.FirstInstructionProgram()]; ok {
				out.Bundler = true
			}
		}
	}

	return out
}

// acquire spin-waits until an assessment slot frees up.
func (a *Assessor) acquire(ctx context.Context) error {
	for {
		cur := a.inFlight.Load()
		if cur < a.maxInFlight && a.inFlight.CompareAndSwap(cur, cur+1) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(acquireBackoff):
		}
	}
}

// transferFeeBps extracts the transfer fee from a mint account, nil when it
// cannot be read. Mints owned by the legacy token program carry no fee.
func transferFeeBps(info *solana.AccountInfo) *int {
	if info.Owner != solana.Token2022Program {
		zero := 0
		return &zero
	}
	if len(info.Data) < transferFeeMinSize {
		return nil
	}
	fee := int(binary.LittleEndian.Uint16(info.Data[transferFeeOffset : transferFeeOffset+2]))
	return &fee
}
