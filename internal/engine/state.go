package engine

import (
	"math"
	"time"

	"solana-momentum-bot/internal/domain"
)

// TokenState is the per-mint mutable record. A state existing in the engine
// map means the token is actively tracked.
type TokenState struct {
	Mint          string
	Symbol        string
	DevWallet     string
	CreatedAtMs   int64
	DevFirstToken bool

	RiskChecked    bool
	IsBundler      bool
	TransferFeeBps *int
	DevSold        bool
	HasBought      bool
	IsExceptional  bool

	HighestPrice   float64 // starts at 0
	LowestPrice    float64 // starts at +Inf
	PeakSinceEntry float64 // 0 until entry
	LastPrice      float64

	Liquidity     float64
	PeakLiquidity float64
	VolumeSol     float64

	Window *RollingWindow
	EMA    *EMAPair
	ATR    *ATR

	EntryPrice    float64
	EntrySol      float64
	EntryTimeMs   int64
	EntryFeatures domain.FeatureVector

	InitialTokens float64

	noBuyTimer       *time.Timer
	devProbeInFlight bool
	NextDevCheckMs   int64
}

// newTokenState creates a tracked token from an admitted pool event.
func newTokenState(ev domain.PoolEvent, nowMs int64, windowMs, emaShortMs, emaLongMs, atrWindowSec int64) *TokenState {
	return &TokenState{
		Mint:        ev.Mint,
		Symbol:      ev.Symbol,
		DevWallet:   ev.DevWallet,
		CreatedAtMs: nowMs,
		LowestPrice: math.Inf(1),
		Liquidity:   ev.InitialMcap,
		Window:      NewRollingWindow(windowMs),
		EMA:         NewEMAPair(emaShortMs, emaLongMs, windowMs),
		ATR:         NewATR(atrWindowSec),
	}
}

// cancelNoBuyTimer stops a pending auto-untrack, if any.
func (s *TokenState) cancelNoBuyTimer() {
	if s.noBuyTimer != nil {
		s.noBuyTimer.Stop()
		s.noBuyTimer = nil
	}
}

// ageMs returns the token age at nowMs.
func (s *TokenState) ageMs(nowMs int64) int64 {
	return nowMs - s.CreatedAtMs
}
