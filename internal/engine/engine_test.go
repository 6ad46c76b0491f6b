package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-momentum-bot/internal/bus"
	"solana-momentum-bot/internal/config"
	"solana-momentum-bot/internal/domain"
	"solana-momentum-bot/internal/risk"
)

// fakeAssessor returns a fixed assessment immediately.
type fakeAssessor struct {
	res risk.Assessment
}

func (f *fakeAssessor) Assess(_ context.Context, _, _ string) risk.Assessment {
	return f.res
}

// fakeProbe reports a fixed dev-exit answer.
type fakeProbe struct {
	exited bool
}

func (f *fakeProbe) HasExited(_ context.Context, _, _ string) bool {
	return f.exited
}

// fakeModel scores every vector identically.
type fakeModel struct {
	score float64
}

func (f *fakeModel) Predict(_ domain.FeatureVector) float64 {
	return f.score
}

// recordingTracker captures track/untrack calls.
type recordingTracker struct {
	tracked   []string
	untracked []string
}

func (t *recordingTracker) TrackMint(mint string)   { t.tracked = append(t.tracked, mint) }
func (t *recordingTracker) UntrackMint(mint string) { t.untracked = append(t.untracked, mint) }

// testClock drives the engine's notion of now.
type testClock struct {
	ms int64
}

func (c *testClock) now() time.Time { return time.UnixMilli(c.ms) }

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// testConfig returns scenario defaults: take_profit=0.9, a low liquidity
// floor so small curves stay tracked, and the dev-sold gate off.
func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Entry.MinRuntimeMcapSol = 5
	cfg.Entry.RequireDevSold = false
	cfg.Exit.TakeProfit = floatPtr(0.9)
	return &cfg
}

// newTestEngine builds an engine with fakes and a manual clock.
func newTestEngine(t *testing.T, cfg *config.Config, opts Options) (*Engine, *testClock, *recordingTracker) {
	t.Helper()

	clock := &testClock{}
	tracker := &recordingTracker{}

	opts.Config = cfg
	if opts.Assessor == nil {
		opts.Assessor = &fakeAssessor{res: risk.Assessment{FeeBps: intPtr(0)}}
	}
	opts.Tracker = tracker

	e := New(opts)
	e.now = clock.now
	return e, clock, tracker
}

// drainMessage processes exactly one async completion.
func drainMessage(t *testing.T, e *Engine) {
	t.Helper()
	select {
	case m := <-e.msgs:
		e.HandleMessage(context.Background(), m)
	case <-time.After(2 * time.Second):
		t.Fatal("no engine message arrived")
	}
}

// admit runs a pool event through admission including the risk completion.
func admit(t *testing.T, e *Engine, clock *testClock, ev domain.PoolEvent) {
	t.Helper()
	e.HandlePool(context.Background(), ev)
	if e.cfg.Admission.EnableTaxBundlerFilter {
		drainMessage(t, e)
	}
}

// collect drains every buffered value from a subscription channel.
func collect[T any](ch <-chan T) []T {
	var out []T
	for {
		select {
		case v := <-ch:
			out = append(out, v)
		default:
			return out
		}
	}
}

func priceEvent(mint string, tsMs int64, price, liquidity, sol float64, wallet string) domain.PriceEvent {
	return domain.PriceEvent{
		Mint:        mint,
		Price:       price,
		Liquidity:   liquidity,
		Sol:         sol,
		Wallet:      wallet,
		Side:        domain.SideBuy,
		TimestampMs: tsMs,
	}
}

// burst feeds enough trades inside the window to push TPS over min_tps.
func burst(e *Engine, clock *testClock, mint string, fromMs int64, n int, price float64) {
	for i := 0; i < n; i++ {
		ts := fromMs + int64(i)*50
		clock.ms = ts
		e.HandlePrice(context.Background(), priceEvent(mint, ts, price, 10, 0.1, "w"+string(rune('a'+i%20))))
	}
}

// runS1 drives scenario S1 up to and including the BUY at 3.5.
func runS1(t *testing.T, e *Engine, clock *testClock) {
	t.Helper()
	ctx := context.Background()

	e.devTokenCount["D"] = 1 // dev D has launched before

	clock.ms = 0
	admit(t, e, clock, domain.PoolEvent{
		Mint:        "MINT1",
		CreatedAtMs: 0,
		InitialMcap: 10,
		Symbol:      "AAA",
		DevWallet:   "D",
		Signature:   "sig1",
	})
	require.Contains(t, e.states, "MINT1")

	// Low print at t=5s.
	clock.ms = 5000
	e.HandlePrice(ctx, priceEvent("MINT1", 5000, 1.0, 10, 0.1, "w0"))

	// Burst driving tps >= 5 inside the 4s window.
	burst(e, clock, "MINT1", 7000, 24, 1.0)
	require.Contains(t, e.states, "MINT1", "burst must not trigger entry at flat price")

	// Momentum print: rise = 3.5/1.0 - 1 = 2.5 >= 2.0.
	clock.ms = 9000
	e.HandlePrice(ctx, priceEvent("MINT1", 9000, 3.5, 10, 0.1, "wX"))

	st := e.states["MINT1"]
	require.NotNil(t, st)
	require.True(t, st.HasBought)
	assert.Equal(t, 3.5, st.EntryPrice)
	assert.Equal(t, 0.5, st.EntrySol)
	assert.True(t, st.IsExceptional)
}

func TestScenarioS1_HeuristicBuyThenTakeProfit(t *testing.T) {
	e, clock, tracker := newTestEngine(t, testConfig(), Options{})
	sigCh, cancel := e.Signals(16, bus.Lossless)
	defer cancel()
	pnlCh, cancelPnL := e.PnL(16, bus.Lossless)
	defer cancelPnL()

	runS1(t, e, clock)

	sigs := collect(sigCh)
	require.Len(t, sigs, 1)
	assert.Equal(t, domain.ActionBuy, sigs[0].Action)
	assert.Equal(t, 3.5, sigs[0].Price)

	// Take profit: pnl = 6.65/3.5 - 1 = 0.9.
	clock.ms = 20000
	e.HandlePrice(context.Background(), priceEvent("MINT1", 20000, 6.65, 10, 0.1, "wY"))

	sigs = collect(sigCh)
	require.Len(t, sigs, 1)
	assert.Equal(t, domain.ActionSell, sigs[0].Action)
	assert.Equal(t, domain.ReasonTakeProfit, sigs[0].Reason)

	updates := collect(pnlCh)
	require.Len(t, updates, 1)
	assert.InDelta(t, 0.45, updates[0].ProfitSol, 1e-9)
	assert.InDelta(t, 0.45, e.profitSol, 1e-9)
	assert.Zero(t, e.investedSol)

	// SELL always untracks.
	assert.NotContains(t, e.states, "MINT1")
	assert.Contains(t, tracker.untracked, "MINT1")
}

func TestScenarioS2_RugStopLoss(t *testing.T) {
	e, clock, _ := newTestEngine(t, testConfig(), Options{})
	sigCh, cancel := e.Signals(16, bus.Lossless)
	defer cancel()

	runS1(t, e, clock)
	collect(sigCh) // discard the BUY

	// Liquidity collapses below peak*(1-0.4) = 6; price prints 3.3.
	clock.ms = 15000
	e.HandlePrice(context.Background(), priceEvent("MINT1", 15000, 3.3, 5.9, 0.1, "wZ"))

	sigs := collect(sigCh)
	require.Len(t, sigs, 1)
	assert.Equal(t, domain.ActionSell, sigs[0].Action)
	assert.Equal(t, domain.ReasonRug, sigs[0].Reason)
	// The exit settles on the trade's price, not the liquidity.
	assert.Equal(t, 3.3, sigs[0].Price)
	assert.InDelta(t, 0.5*(3.3/3.5-1), e.profitSol, 1e-9)
	assert.NotContains(t, e.states, "MINT1")
}

func TestScenarioS3_FeeRejection(t *testing.T) {
	cfg := testConfig()
	e, clock, tracker := newTestEngine(t, cfg, Options{
		Assessor: &fakeAssessor{res: risk.Assessment{FeeBps: intPtr(100)}},
	})
	sigCh, cancel := e.Signals(16, bus.Lossless)
	defer cancel()

	clock.ms = 0
	admit(t, e, clock, domain.PoolEvent{Mint: "TAXED", CreatedAtMs: 0, InitialMcap: 10})

	assert.NotContains(t, e.states, "TAXED")
	assert.Contains(t, tracker.untracked, "TAXED")
	assert.Empty(t, collect(sigCh))
}

func TestScenarioS4_NoBuyTimeout(t *testing.T) {
	e, clock, tracker := newTestEngine(t, testConfig(), Options{})
	sigCh, cancel := e.Signals(16, bus.Lossless)
	defer cancel()

	clock.ms = 0
	admit(t, e, clock, domain.PoolEvent{Mint: "QUIET", CreatedAtMs: 0, InitialMcap: 10})
	require.Contains(t, e.states, "QUIET")

	clock.ms = 60000
	e.HandleMessage(context.Background(), noBuyTimeout{mint: "QUIET"})

	assert.NotContains(t, e.states, "QUIET")
	assert.Contains(t, tracker.untracked, "QUIET")
	assert.Empty(t, collect(sigCh))
}

func TestScenarioS5_MigrationFillExit(t *testing.T) {
	e, clock, _ := newTestEngine(t, testConfig(), Options{})
	sigCh, cancel := e.Signals(16, bus.Lossless)
	defer cancel()

	e.devTokenCount["D"] = 1
	clock.ms = 0
	admit(t, e, clock, domain.PoolEvent{Mint: "MIG", CreatedAtMs: 0, InitialMcap: 10, DevWallet: "D"})

	ctx := context.Background()

	// First event anchors the curve size.
	clock.ms = 1000
	ev := priceEvent("MIG", 1000, 1.0, 10, 0.1, "w0")
	ev.TokensCurve = 1_000_000
	e.HandlePrice(ctx, ev)
	require.Equal(t, 1_000_000.0, e.states["MIG"].InitialTokens)

	burst(e, clock, "MIG", 2000, 24, 1.0)
	clock.ms = 4000
	e.HandlePrice(ctx, priceEvent("MIG", 4000, 3.5, 10, 0.1, "wX"))
	require.True(t, e.states["MIG"].HasBought)
	collect(sigCh)

	// Curve nearly drained: fill = 1 - 20000/1000000 = 0.98 >= 0.97.
	clock.ms = 5000
	exit := priceEvent("MIG", 5000, 3.6, 10, 0.1, "wY")
	exit.TokensCurve = 20_000
	e.HandlePrice(ctx, exit)

	sigs := collect(sigCh)
	require.Len(t, sigs, 1)
	assert.Equal(t, domain.ActionSell, sigs[0].Action)
	assert.Equal(t, domain.ReasonTakeProfit, sigs[0].Reason)
	assert.NotContains(t, e.states, "MIG")
}

func TestScenarioS6_PureMLReplacesHeuristics(t *testing.T) {
	cfg := testConfig()
	cfg.Admission.EnableTaxBundlerFilter = false
	cfg.ML.Enabled = true
	cfg.ML.PureML = true

	e, clock, _ := newTestEngine(t, cfg, Options{
		BuyModel:  &fakeModel{score: 0.8},
		SellModel: &fakeModel{score: 0.9},
	})
	sigCh, cancel := e.Signals(16, bus.Lossless)
	defer cancel()

	clock.ms = 0
	admit(t, e, clock, domain.PoolEvent{Mint: "ML", CreatedAtMs: 0, InitialMcap: 10})

	ctx := context.Background()

	// First price: buy score 0.8 >= 0.5, no heuristic gate applies.
	clock.ms = 1000
	e.HandlePrice(ctx, priceEvent("ML", 1000, 1.0, 10, 0.1, "w0"))

	sigs := collect(sigCh)
	require.Len(t, sigs, 1)
	assert.Equal(t, domain.ActionBuy, sigs[0].Action)

	// Next price: sell score 0.9 >= 0.5.
	clock.ms = 2000
	e.HandlePrice(ctx, priceEvent("ML", 2000, 1.1, 10, 0.1, "w1"))

	sigs = collect(sigCh)
	require.Len(t, sigs, 1)
	assert.Equal(t, domain.ActionSell, sigs[0].Action)
	assert.Equal(t, domain.ReasonTakeProfit, sigs[0].Reason)
	assert.NotContains(t, e.states, "ML")
}

func TestAdmission_CreatesTrackedState(t *testing.T) {
	e, clock, tracker := newTestEngine(t, testConfig(), Options{})

	clock.ms = 42_000
	admit(t, e, clock, domain.PoolEvent{Mint: "NEW", CreatedAtMs: 42_000, InitialMcap: 77, Symbol: "NEW"})

	st := e.states["NEW"]
	require.NotNil(t, st)
	assert.Equal(t, int64(42_000), st.CreatedAtMs)
	assert.Equal(t, 77.0, st.Liquidity)
	assert.True(t, math.IsInf(st.LowestPrice, 1))
	assert.Zero(t, st.HighestPrice)
	assert.False(t, st.HasBought)
	assert.Contains(t, tracker.tracked, "NEW")
}

func TestAdmission_Idempotent(t *testing.T) {
	e, clock, _ := newTestEngine(t, testConfig(), Options{})

	clock.ms = 0
	admit(t, e, clock, domain.PoolEvent{Mint: "DUP", CreatedAtMs: 0, InitialMcap: 10})
	st := e.states["DUP"]
	st.HighestPrice = 123 // marker

	e.HandlePool(context.Background(), domain.PoolEvent{Mint: "DUP", CreatedAtMs: 0, InitialMcap: 99})

	require.Same(t, st, e.states["DUP"])
	assert.Equal(t, 123.0, e.states["DUP"].HighestPrice)
}

func TestAdmission_StaleAndMcapBounds(t *testing.T) {
	cfg := testConfig()
	cfg.Admission.MinInitialMcap = 5
	cfg.Admission.MaxInitialLiquiditySol = 100
	e, clock, _ := newTestEngine(t, cfg, Options{})

	clock.ms = 700_000 // 700s after creation at 0
	e.HandlePool(context.Background(), domain.PoolEvent{Mint: "OLD", CreatedAtMs: 0, InitialMcap: 10})
	assert.NotContains(t, e.states, "OLD")

	clock.ms = 0
	e.HandlePool(context.Background(), domain.PoolEvent{Mint: "TINY", CreatedAtMs: 0, InitialMcap: 1})
	assert.NotContains(t, e.states, "TINY")

	e.HandlePool(context.Background(), domain.PoolEvent{Mint: "HUGE", CreatedAtMs: 0, InitialMcap: 500})
	assert.NotContains(t, e.states, "HUGE")
}

func TestAdmission_DevSameTickerSkip(t *testing.T) {
	cfg := testConfig()
	cfg.Admission.SkipDevSameTicker = true
	e, clock, _ := newTestEngine(t, cfg, Options{})

	clock.ms = 0
	admit(t, e, clock, domain.PoolEvent{Mint: "A1", CreatedAtMs: 0, InitialMcap: 10, Symbol: "PEPE", DevWallet: "D"})
	require.Contains(t, e.states, "A1")

	// Same dev relaunches the same ticker (case-insensitive).
	e.HandlePool(context.Background(), domain.PoolEvent{Mint: "A2", CreatedAtMs: 0, InitialMcap: 10, Symbol: "pepe", DevWallet: "D"})
	assert.NotContains(t, e.states, "A2")

	// A different ticker passes.
	admit(t, e, clock, domain.PoolEvent{Mint: "A3", CreatedAtMs: 0, InitialMcap: 10, Symbol: "DOGE", DevWallet: "D"})
	assert.Contains(t, e.states, "A3")
}

func TestPreEntry_DevFirstTokenUntracks(t *testing.T) {
	e, clock, _ := newTestEngine(t, testConfig(), Options{})

	clock.ms = 0
	admit(t, e, clock, domain.PoolEvent{Mint: "FIRST", CreatedAtMs: 0, InitialMcap: 10, DevWallet: "ROOKIE"})
	require.True(t, e.states["FIRST"].DevFirstToken)

	clock.ms = 1000
	e.HandlePrice(context.Background(), priceEvent("FIRST", 1000, 1.0, 10, 0.1, "w0"))
	assert.NotContains(t, e.states, "FIRST")
}

func TestPreEntry_RequireDevSoldGates(t *testing.T) {
	cfg := testConfig()
	cfg.Entry.RequireDevSold = true
	probe := &fakeProbe{exited: false}
	e, clock, _ := newTestEngine(t, cfg, Options{DevProbe: probe})
	sigCh, cancel := e.Signals(16, bus.Lossless)
	defer cancel()

	e.devTokenCount["D"] = 1
	clock.ms = 0
	admit(t, e, clock, domain.PoolEvent{Mint: "GATED", CreatedAtMs: 0, InitialMcap: 10, DevWallet: "D"})

	ctx := context.Background()

	// The dev sells but still holds a balance: the gate stays shut and
	// momentum prints cannot open a position.
	clock.ms = 1000
	sell := priceEvent("GATED", 1000, 1.0, 10, -0.2, "D")
	sell.Side = domain.SideSell
	e.HandlePrice(ctx, sell)
	drainMessage(t, e)
	require.False(t, e.states["GATED"].DevSold)

	burst(e, clock, "GATED", 2000, 24, 1.0)
	clock.ms = 4000
	e.HandlePrice(ctx, priceEvent("GATED", 4000, 3.5, 10, 0.1, "wX"))
	require.Contains(t, e.states, "GATED")
	assert.False(t, e.states["GATED"].HasBought)
	assert.Empty(t, collect(sigCh))

	// Full exit after the probe spacing elapses: the gate opens.
	probe.exited = true
	clock.ms = 17_000
	sell2 := priceEvent("GATED", 17_000, 1.2, 10, -0.2, "D")
	sell2.Side = domain.SideSell
	e.HandlePrice(ctx, sell2)
	drainMessage(t, e)
	require.True(t, e.states["GATED"].DevSold)

	// Fresh low, fresh burst, fresh rise: entry unblocks.
	clock.ms = 17_500
	e.HandlePrice(ctx, priceEvent("GATED", 17_500, 1.0, 10, 0.1, "w1"))
	burst(e, clock, "GATED", 18_000, 24, 1.0)
	clock.ms = 20_000
	e.HandlePrice(ctx, priceEvent("GATED", 20_000, 3.5, 10, 0.1, "w2"))
	assert.True(t, e.states["GATED"].HasBought)
}

func TestDevProbe_RateLimitedAndSingleFlight(t *testing.T) {
	cfg := testConfig()
	e, clock, _ := newTestEngine(t, cfg, Options{DevProbe: &fakeProbe{exited: false}})

	e.devTokenCount["D"] = 1
	clock.ms = 0
	admit(t, e, clock, domain.PoolEvent{Mint: "RL", CreatedAtMs: 0, InitialMcap: 10, DevWallet: "D"})

	ctx := context.Background()
	clock.ms = 1000
	sell := priceEvent("RL", 1000, 1.0, 10, -0.2, "D")
	sell.Side = domain.SideSell
	e.HandlePrice(ctx, sell)

	st := e.states["RL"]
	require.True(t, st.devProbeInFlight)
	assert.Equal(t, int64(1000+devCheckIntervalMs), st.NextDevCheckMs)
	drainMessage(t, e)
	require.False(t, st.devProbeInFlight)

	// A second dev sell inside the 15s spacing must not launch a probe.
	clock.ms = 5000
	sell2 := priceEvent("RL", 5000, 1.0, 10, -0.2, "D")
	sell2.Side = domain.SideSell
	e.HandlePrice(ctx, sell2)
	assert.False(t, st.devProbeInFlight)

	// After the spacing it may probe again.
	clock.ms = 17000
	sell3 := priceEvent("RL", 17000, 1.0, 10, -0.2, "D")
	sell3.Side = domain.SideSell
	e.HandlePrice(ctx, sell3)
	assert.True(t, st.devProbeInFlight)
}

func TestLiquidityFloor_Untracks(t *testing.T) {
	e, clock, tracker := newTestEngine(t, testConfig(), Options{})

	e.devTokenCount["D"] = 1
	clock.ms = 0
	admit(t, e, clock, domain.PoolEvent{Mint: "DRY", CreatedAtMs: 0, InitialMcap: 10, DevWallet: "D"})

	clock.ms = 1000
	e.HandlePrice(context.Background(), priceEvent("DRY", 1000, 1.0, 2, 0.1, "w0"))

	assert.NotContains(t, e.states, "DRY")
	assert.Contains(t, tracker.untracked, "DRY")
}

func TestExtrema_Monotonic(t *testing.T) {
	e, clock, _ := newTestEngine(t, testConfig(), Options{})

	e.devTokenCount["D"] = 1
	clock.ms = 0
	admit(t, e, clock, domain.PoolEvent{Mint: "EXT", CreatedAtMs: 0, InitialMcap: 10, DevWallet: "D"})

	ctx := context.Background()
	prices := []float64{1.0, 2.0, 1.5, 3.0, 0.5, 2.5}
	var prevHigh, prevLow = 0.0, math.Inf(1)
	for i, p := range prices {
		ts := int64(1000 + i*100)
		clock.ms = ts
		e.HandlePrice(ctx, priceEvent("EXT", ts, p, 10, 0.1, "w0"))
		st := e.states["EXT"]
		assert.GreaterOrEqual(t, st.HighestPrice, prevHigh)
		assert.LessOrEqual(t, st.LowestPrice, prevLow)
		assert.GreaterOrEqual(t, st.HighestPrice, st.LowestPrice)
		prevHigh, prevLow = st.HighestPrice, st.LowestPrice
	}
}

func TestHeuristicEntry_GateOrder(t *testing.T) {
	cfg := testConfig()
	cfg.Entry.MaxAvgSolPerTx = 0.05 // whales everywhere
	e, clock, _ := newTestEngine(t, cfg, Options{})

	e.devTokenCount["D"] = 1
	clock.ms = 0
	admit(t, e, clock, domain.PoolEvent{Mint: "WHALE", CreatedAtMs: 0, InitialMcap: 10, DevWallet: "D"})

	ctx := context.Background()
	clock.ms = 1000
	e.HandlePrice(ctx, priceEvent("WHALE", 1000, 1.0, 10, 0.1, "w0"))
	burst(e, clock, "WHALE", 2000, 24, 1.0)

	// avg sol 0.1 > 0.05: anti-whale gate blocks the entry.
	clock.ms = 4000
	e.HandlePrice(ctx, priceEvent("WHALE", 4000, 3.5, 10, 0.1, "wX"))
	require.Contains(t, e.states, "WHALE")
	assert.False(t, e.states["WHALE"].HasBought)
}

func TestHeuristicEntry_DevBlacklist(t *testing.T) {
	e, clock, _ := newTestEngine(t, testConfig(), Options{})

	e.devTokenCount["D"] = 1
	e.devBlacklist["D"] = 1_000_000 // blacklisted until t=1000s

	clock.ms = 0
	admit(t, e, clock, domain.PoolEvent{Mint: "BL", CreatedAtMs: 0, InitialMcap: 10, DevWallet: "D"})

	ctx := context.Background()
	clock.ms = 1000
	e.HandlePrice(ctx, priceEvent("BL", 1000, 1.0, 10, 0.1, "w0"))
	burst(e, clock, "BL", 2000, 24, 1.0)

	clock.ms = 4000
	e.HandlePrice(ctx, priceEvent("BL", 4000, 3.5, 10, 0.1, "wX"))
	require.Contains(t, e.states, "BL")
	assert.False(t, e.states["BL"].HasBought)
}

func TestOpenPosition_BlacklistsDev(t *testing.T) {
	e, clock, _ := newTestEngine(t, testConfig(), Options{})
	runS1(t, e, clock)

	expiry, ok := e.devBlacklist["D"]
	require.True(t, ok)
	assert.Equal(t, clock.ms+3600_000, expiry)
	assert.Equal(t, 0.5, e.investedSol)
	assert.Equal(t, 0.5, e.totalInvestedSol)
}

func TestTrailingStop_SellsOnDrawdown(t *testing.T) {
	cfg := testConfig()
	cfg.Exit.TakeProfit = nil // no hard TP, exercise the trail
	e, clock, _ := newTestEngine(t, cfg, Options{})
	sigCh, cancel := e.Signals(16, bus.Lossless)
	defer cancel()

	runS1(t, e, clock)
	collect(sigCh)

	ctx := context.Background()

	// Keep TPS hot while price runs up: gainPct grows past 0.3 so the
	// weak-signal exits disarm.
	burst(e, clock, "MINT1", 10_000, 24, 7.0)
	st := e.states["MINT1"]
	require.NotNil(t, st)
	require.Equal(t, 7.0, st.PeakSinceEntry)
	require.Empty(t, collect(sigCh))

	// gainPct = 1.0, gainTrail = min(0.5, 0.2) = 0.2, extra = 0.3 cap,
	// exceptional adds 0.1: dyn = 0.2+0.3+0.2+0.1 = 0.8. A print at 1.0
	// is far below peak*(1-0.8).
	clock.ms = 12_000
	e.HandlePrice(ctx, priceEvent("MINT1", 12_000, 1.0, 10, 0.1, "wD"))

	sigs := collect(sigCh)
	require.Len(t, sigs, 1)
	assert.Equal(t, domain.ActionSell, sigs[0].Action)
	assert.Equal(t, domain.ReasonStopLoss, sigs[0].Reason)
}

func TestMomentumCollapse_SellsOnTPSDrop(t *testing.T) {
	cfg := testConfig()
	cfg.Exit.TakeProfit = nil
	e, clock, _ := newTestEngine(t, cfg, Options{})
	sigCh, cancel := e.Signals(16, bus.Lossless)
	defer cancel()

	runS1(t, e, clock)
	collect(sigCh)

	// Long silence drains the window; one print at a small gain has
	// tps ~= 0.25 < exit_tps (2.5) and gainPct < 0.3.
	clock.ms = 60_000
	e.HandlePrice(context.Background(), priceEvent("MINT1", 60_000, 3.6, 10, 0.1, "wQ"))

	sigs := collect(sigCh)
	require.Len(t, sigs, 1)
	assert.Equal(t, domain.ActionSell, sigs[0].Action)
	assert.Equal(t, domain.ReasonStopLoss, sigs[0].Reason)
}

func TestSettle_PnLArithmetic(t *testing.T) {
	e, clock, _ := newTestEngine(t, testConfig(), Options{})
	pnlCh, cancel := e.PnL(16, bus.Lossless)
	defer cancel()

	runS1(t, e, clock)
	before := e.profitSol

	clock.ms = 20_000
	e.HandlePrice(context.Background(), priceEvent("MINT1", 20_000, 6.65, 10, 0.1, "wY"))

	want := 0.5 * (6.65/3.5 - 1)
	assert.InDelta(t, want, e.profitSol-before, 1e-9)
	assert.GreaterOrEqual(t, e.investedSol, 0.0)

	updates := collect(pnlCh)
	require.Len(t, updates, 1)
	assert.InDelta(t, e.profitSol, updates[0].ProfitSol, 1e-12)
}

func TestRun_GuardsPanicsAndDrainsStreams(t *testing.T) {
	e, clock, _ := newTestEngine(t, testConfig(), Options{})
	clock.ms = 0

	pools := make(chan domain.PoolEvent, 4)
	prices := make(chan domain.PriceEvent, 4)

	// A malformed price event (unknown mint, bad price) must not kill Run.
	pools <- domain.PoolEvent{Mint: "RUN", CreatedAtMs: 0, InitialMcap: 10}
	prices <- domain.PriceEvent{Mint: "RUN", Price: -1, TimestampMs: 1}
	close(pools)
	close(prices)

	done := make(chan error, 1)
	go func() {
		done <- e.Run(context.Background(), pools, prices)
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after streams closed")
	}
}
