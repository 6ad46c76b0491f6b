package engine

// windowTrade is one trade observation inside the rolling window.
type windowTrade struct {
	tsMs int64
	sol  float64
}

// windowWallet is one wallet observation inside the rolling window.
type windowWallet struct {
	tsMs int64
	addr string
}

// RollingWindow aggregates trades and wallet observations over a fixed time
// window. Observations older than the window are pruned on every update.
type RollingWindow struct {
	windowMs int64
	trades   []windowTrade
	wallets  []windowWallet
}

// NewRollingWindow creates a window spanning windowMs milliseconds.
func NewRollingWindow(windowMs int64) *RollingWindow {
	return &RollingWindow{windowMs: windowMs}
}

// Observe appends a trade and wallet observation at tsMs and prunes expired
// entries. sol is the absolute trade notional.
func (w *RollingWindow) Observe(tsMs int64, sol float64, wallet string) {
	w.trades = append(w.trades, windowTrade{tsMs: tsMs, sol: sol})
	if wallet != "" {
		w.wallets = append(w.wallets, windowWallet{tsMs: tsMs, addr: wallet})
	}
	w.Prune(tsMs)
}

// Prune drops observations with tsMs - entry.tsMs > window.
func (w *RollingWindow) Prune(tsMs int64) {
	cut := 0
	for cut < len(w.trades) && tsMs-w.trades[cut].tsMs > w.windowMs {
		cut++
	}
	if cut > 0 {
		w.trades = append(w.trades[:0], w.trades[cut:]...)
	}

	cut = 0
	for cut < len(w.wallets) && tsMs-w.wallets[cut].tsMs > w.windowMs {
		cut++
	}
	if cut > 0 {
		w.wallets = append(w.wallets[:0], w.wallets[cut:]...)
	}
}

// TradeCount returns the number of trades in the window.
func (w *RollingWindow) TradeCount() int {
	return len(w.trades)
}

// TPS returns trades per second over the window span.
func (w *RollingWindow) TPS() float64 {
	return float64(len(w.trades)) / (float64(w.windowMs) / 1000)
}

// Volume returns the summed trade notional in the window.
func (w *RollingWindow) Volume() float64 {
	var sum float64
	for _, t := range w.trades {
		sum += t.sol
	}
	return sum
}

// UniqueWallets returns the number of distinct wallets in the window.
func (w *RollingWindow) UniqueWallets() int {
	seen := make(map[string]struct{}, len(w.wallets))
	for _, obs := range w.wallets {
		seen[obs.addr] = struct{}{}
	}
	return len(seen)
}

// AvgSol returns the mean trade notional, 0-safe on an empty window.
func (w *RollingWindow) AvgSol() float64 {
	n := len(w.trades)
	if n < 1 {
		n = 1
	}
	return w.Volume() / float64(n)
}
