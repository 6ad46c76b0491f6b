// Package engine implements the per-token momentum strategy: admission of
// newly created bonding-curve tokens, rolling feature computation over
// their trade stream, entry/exit decisions, and realized PnL tracking.
//
// All state transitions run serially on the Run goroutine. Risk probes,
// dev-exit probes and timers complete asynchronously and re-enter the loop
// as messages; a completion may find its token already untracked and is
// then discarded.
package engine

import (
	"context"
	"log"
	"math"
	"runtime/debug"
	"strings"
	"time"

	"solana-momentum-bot/internal/bus"
	"solana-momentum-bot/internal/config"
	"solana-momentum-bot/internal/domain"
	"solana-momentum-bot/internal/featurelog"
	"solana-momentum-bot/internal/journal"
	"solana-momentum-bot/internal/observability"
	"solana-momentum-bot/internal/risk"
)

// devCheckIntervalMs rate-limits dev-exit probes per token.
const devCheckIntervalMs = 15_000

// RiskAssessor probes a mint at admission time.
type RiskAssessor interface {
	Assess(ctx context.Context, mint, createTx string) risk.Assessment
}

// DevExitProber checks whether the creator has dumped all holdings.
type DevExitProber interface {
	HasExited(ctx context.Context, mint, devWallet string) bool
}

// MintTracker narrows the upstream price feed to admitted mints.
type MintTracker interface {
	TrackMint(mint string)
	UntrackMint(mint string)
}

// Predictor scores a feature vector as a probability.
type Predictor interface {
	Predict(feats domain.FeatureVector) float64
}

// Options wires an Engine. Config and Assessor are required; everything
// else is optional.
type Options struct {
	Config     *config.Config
	Assessor   RiskAssessor
	DevProbe   DevExitProber
	Tracker    MintTracker
	Journal    journal.TradeStore
	FeatureLog *featurelog.Writer
	PredLog    *featurelog.Writer
	BuyModel   Predictor
	SellModel  Predictor
	Metrics    *observability.Metrics
	Logger     *log.Logger
}

// Engine drives the per-token state machines.
type Engine struct {
	cfg        *config.Config
	assessor   RiskAssessor
	devProbe   DevExitProber
	tracker    MintTracker
	journal    journal.TradeStore
	featureLog *featurelog.Writer
	predLog    *featurelog.Writer
	buyModel   Predictor
	sellModel  Predictor
	metrics    *observability.Metrics
	logger     *log.Logger

	states        map[string]*TokenState
	devTokenCount map[string]int
	devLastTicker map[string]string
	devBlacklist  map[string]int64 // expiry, Unix ms

	profitSol        float64
	investedSol      float64
	totalInvestedSol float64

	signals *bus.Broadcaster[domain.TradeSignal]
	pnl     *bus.Broadcaster[domain.PnLUpdate]

	// msgs carries async completions back onto the strategy goroutine.
	msgs chan message

	now func() time.Time
}

// message re-enters the strategy loop from async work.
type message interface{}

type riskResult struct {
	mint       string
	assessment risk.Assessment
}

type devExitResult struct {
	mint   string
	exited bool
}

type noBuyTimeout struct {
	mint string
}

// New creates an Engine from Options.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		cfg:           opts.Config,
		assessor:      opts.Assessor,
		devProbe:      opts.DevProbe,
		tracker:       opts.Tracker,
		journal:       opts.Journal,
		featureLog:    opts.FeatureLog,
		predLog:       opts.PredLog,
		buyModel:      opts.BuyModel,
		sellModel:     opts.SellModel,
		metrics:       opts.Metrics,
		logger:        logger,
		states:        make(map[string]*TokenState),
		devTokenCount: make(map[string]int),
		devLastTicker: make(map[string]string),
		devBlacklist:  make(map[string]int64),
		signals:       bus.NewBroadcaster[domain.TradeSignal](),
		pnl:           bus.NewBroadcaster[domain.PnLUpdate](),
		msgs:          make(chan message, 1024),
		now:           time.Now,
	}
}

// Signals subscribes to trade signals. The execution adapter should use
// bus.Lossless; dashboards bus.DropOldest.
func (e *Engine) Signals(buffer int, policy bus.Policy) (<-chan domain.TradeSignal, func()) {
	return e.signals.Subscribe(buffer, policy)
}

// PnL subscribes to cumulative realized profit updates.
func (e *Engine) PnL(buffer int, policy bus.Policy) (<-chan domain.PnLUpdate, func()) {
	return e.pnl.Subscribe(buffer, policy)
}

// Run consumes both event streams until the context is cancelled or both
// streams end. Every handler runs on this goroutine.
func (e *Engine) Run(ctx context.Context, pools <-chan domain.PoolEvent, prices <-chan domain.PriceEvent) error {
	defer e.signals.Close()
	defer e.pnl.Close()

	for {
		if pools == nil && prices == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-pools:
			if !ok {
				pools = nil
				continue
			}
			e.guard(func() { e.HandlePool(ctx, ev) })
		case ev, ok := <-prices:
			if !ok {
				prices = nil
				continue
			}
			e.guard(func() { e.HandlePrice(ctx, ev) })
		case m := <-e.msgs:
			e.guard(func() { e.HandleMessage(ctx, m) })
		}
	}
}

// guard keeps a per-event panic from tearing down the engine.
func (e *Engine) guard(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Printf("[engine] recovered: %v\n%s", r, debug.Stack())
		}
	}()
	fn()
}

// post re-enters the loop; drops with a log line if the engine is wedged.
func (e *Engine) post(m message) {
	select {
	case e.msgs <- m:
	default:
		e.logger.Printf("[engine] message queue full, dropping %T", m)
	}
}

// HandlePool runs the admission filter on one pool-creation event.
func (e *Engine) HandlePool(ctx context.Context, ev domain.PoolEvent) {
	if e.metrics != nil {
		e.metrics.PoolEventsProcessed.Inc()
	}
	if ev.Mint == "" {
		e.logger.Printf("[engine] malformed pool event: no mint")
		if e.metrics != nil {
			e.metrics.MalformedEvents.Inc()
		}
		return
	}

	nowMs := e.now().UnixMilli()

	// Per-dev ticker dedup. History updates even on rejection so the next
	// launch compares against this one.
	if ev.DevWallet != "" && ev.Symbol != "" {
		prev, seen := e.devLastTicker[ev.DevWallet]
		e.devLastTicker[ev.DevWallet] = ev.Symbol
		if e.cfg.Admission.SkipDevSameTicker && seen && strings.EqualFold(prev, ev.Symbol) {
			e.reject(ev.Mint, "same_ticker")
			return
		}
	}

	if ev.CreatedAtMs > 0 && nowMs-ev.CreatedAtMs > e.cfg.Admission.TokenMaxAgeSec*1000 {
		e.reject(ev.Mint, "stale")
		return
	}

	if ev.InitialMcap < e.cfg.Admission.MinInitialMcap || ev.InitialMcap > e.cfg.Admission.MaxInitialLiquiditySol {
		e.reject(ev.Mint, "initial_mcap")
		return
	}

	if _, ok := e.states[ev.Mint]; ok {
		return
	}

	st := newTokenState(ev, nowMs,
		e.cfg.Entry.TPSWindowMs, e.cfg.Entry.EMAShortMs, e.cfg.Entry.EMALongMs, e.cfg.Entry.ATRWindowSec)
	if ev.DevWallet != "" {
		st.DevFirstToken = e.devTokenCount[ev.DevWallet] == 0
		e.devTokenCount[ev.DevWallet]++
	}
	e.states[ev.Mint] = st
	if e.tracker != nil {
		e.tracker.TrackMint(ev.Mint)
	}
	if e.metrics != nil {
		e.metrics.TokensAdmitted.Inc()
		e.metrics.TokensTracked.Set(float64(len(e.states)))
	}

	mint := ev.Mint
	st.noBuyTimer = time.AfterFunc(time.Duration(e.cfg.Admission.NoTradeTimeoutSec)*time.Second, func() {
		e.post(noBuyTimeout{mint: mint})
	})

	if !e.cfg.Admission.EnableTaxBundlerFilter {
		st.RiskChecked = true
		return
	}

	createTx := ev.Signature
	go func() {
		res := e.assessor.Assess(ctx, mint, createTx)
		e.post(riskResult{mint: mint, assessment: res})
	}()
}

// HandleMessage applies one async completion. The token may have been
// untracked since the work was started; the result is then discarded.
func (e *Engine) HandleMessage(ctx context.Context, m message) {
	switch msg := m.(type) {
	case riskResult:
		st, ok := e.states[msg.mint]
		if !ok {
			return
		}
		st.TransferFeeBps = msg.assessment.FeeBps
		st.IsBundler = msg.assessment.Bundler
		st.RiskChecked = true

		if st.TransferFeeBps != nil && *st.TransferFeeBps > e.cfg.Admission.MaxTransferFeeBps {
			e.debugf("reject %s: transfer fee %d bps", msg.mint, *st.TransferFeeBps)
			e.untrack(st, "transfer_fee")
			return
		}
		if st.IsBundler && !e.cfg.Admission.AllowBundler {
			e.debugf("reject %s: bundler creator", msg.mint)
			e.untrack(st, "bundler")
			return
		}

	case devExitResult:
		st, ok := e.states[msg.mint]
		if !ok {
			return
		}
		st.devProbeInFlight = false
		if msg.exited {
			st.DevSold = true
		}
		if e.metrics != nil {
			result := "holding"
			if msg.exited {
				result = "exited"
			}
			e.metrics.DevExitProbesTotal.WithLabelValues(result).Inc()
		}

	case noBuyTimeout:
		st, ok := e.states[msg.mint]
		if !ok {
			return
		}
		if !st.HasBought {
			e.debugf("untrack %s: no buy within timeout", msg.mint)
			e.untrack(st, "no_buy_timeout")
		}
	}
}

// HandlePrice applies one trade event to its token state machine.
func (e *Engine) HandlePrice(ctx context.Context, ev domain.PriceEvent) {
	st, ok := e.states[ev.Mint]
	if !ok {
		return
	}
	if e.metrics != nil {
		e.metrics.PriceEventsProcessed.Inc()
	}
	if ev.Price <= 0 {
		e.logger.Printf("[engine] malformed price event for %s: price=%v", ev.Mint, ev.Price)
		if e.metrics != nil {
			e.metrics.MalformedEvents.Inc()
		}
		return
	}

	nowMs := e.now().UnixMilli()

	// First sight of the curve size anchors the migration-fill computation.
	if st.InitialTokens == 0 && ev.TokensCurve > 0 {
		st.InitialTokens = ev.TokensCurve
	}

	// Liquidity floor.
	if ev.Liquidity < e.cfg.Entry.MinRuntimeMcapSol {
		e.debugf("untrack %s: liquidity %.2f below floor", ev.Mint, ev.Liquidity)
		e.untrack(st, "liquidity_floor")
		return
	}
	st.Liquidity = ev.Liquidity
	if ev.Liquidity > st.PeakLiquidity {
		st.PeakLiquidity = ev.Liquidity
	}

	e.maybeProbeDevExit(ctx, st, ev, nowMs)

	// Rolling aggregates and indicators.
	notional := math.Abs(ev.Sol)
	st.Window.Observe(ev.TimestampMs, notional, ev.Wallet)
	st.VolumeSol += notional
	st.EMA.Update(ev.Price, st.Window.TradeCount())
	st.ATR.Update(ev.Price)

	feats := e.computeFeatures(st, ev, nowMs)

	// Pre-entry gates.
	if !st.HasBought {
		if !st.RiskChecked {
			return
		}
		if e.cfg.Entry.SkipDevFirstToken && st.DevFirstToken {
			e.debugf("untrack %s: dev first token", ev.Mint)
			e.untrack(st, "dev_first_token")
			return
		}
		if e.cfg.Entry.RequireDevSold && !st.DevSold {
			return
		}
	}

	// Exits below only consider positions opened before this event; a
	// position opened by this very event must not exit on it.
	hadPosition := st.HasBought

	// ML entry.
	if e.buyModel != nil && !st.HasBought {
		score := e.buyModel.Predict(feats)
		e.logPrediction("buy", ev.Mint, score, e.cfg.ML.ThresholdBuy, feats, nowMs)
		if score >= e.cfg.ML.ThresholdBuy {
			e.openPosition(st, ev, feats, nowMs)
		}
	}

	e.logFeatures(st, ev, feats, nowMs)

	// Rug detection: liquidity collapsed off its peak while holding.
	if hadPosition && ev.Liquidity < st.PeakLiquidity*(1-e.cfg.Exit.RugLiquidityDropPct) {
		e.closePosition(st, ev.Price, nowMs, domain.ReasonRug)
		return
	}

	// Extrema.
	if ev.Price > st.HighestPrice {
		st.HighestPrice = ev.Price
	}
	if ev.Price < st.LowestPrice {
		st.LowestPrice = ev.Price
	}
	st.LastPrice = ev.Price

	if !hadPosition {
		if !st.HasBought && !e.cfg.ML.PureML {
			e.heuristicEntry(st, ev, feats, nowMs)
		}
		return
	}

	// ML exit.
	if e.sellModel != nil {
		score := e.sellModel.Predict(feats)
		e.logPrediction("sell", ev.Mint, score, e.cfg.ML.ThresholdSell, feats, nowMs)
		if score >= e.cfg.ML.ThresholdSell {
			e.closePosition(st, ev.Price, nowMs, domain.ReasonTakeProfit)
			return
		}
	}

	// Migration fill: the curve is nearly depleted, exit before the venue
	// moves.
	if st.InitialTokens > 0 {
		fill := 1 - ev.TokensCurve/st.InitialTokens
		if fill >= e.cfg.Exit.MigrateFillPct {
			e.closePosition(st, ev.Price, nowMs, domain.ReasonTakeProfit)
			return
		}
	}

	if !e.cfg.ML.PureML {
		e.adaptiveExit(st, ev, nowMs)
	}
}

// heuristicEntry applies the momentum entry rules of the non-ML path.
func (e *Engine) heuristicEntry(st *TokenState, ev domain.PriceEvent, feats domain.FeatureVector, nowMs int64) {
	if st.ageMs(nowMs) > e.cfg.Admission.TokenMaxAgeSec*1000 {
		e.debugf("untrack %s: aged out before entry", st.Mint)
		e.untrack(st, "stale")
		return
	}
	if st.Liquidity < e.cfg.Entry.MinLiquiditySol || st.VolumeSol < e.cfg.Entry.MinVolumeSol {
		return
	}
	if expiry, ok := e.devBlacklist[st.DevWallet]; ok && st.DevWallet != "" && expiry > nowMs {
		e.debugf("skip %s: dev blacklisted", st.Mint)
		return
	}

	tps := st.Window.TPS()
	if tps < e.cfg.Entry.MinTPS {
		return
	}
	if st.Window.UniqueWallets() < e.cfg.Entry.MinUniqueWallets {
		return
	}
	if st.Window.AvgSol() > e.cfg.Entry.MaxAvgSolPerTx {
		return
	}

	if st.LowestPrice <= 0 || math.IsInf(st.LowestPrice, 1) {
		return
	}
	rise := ev.Price/st.LowestPrice - 1
	if rise >= e.cfg.Entry.ExceptionalMomentumPct {
		st.IsExceptional = true
		e.openPosition(st, ev, feats, nowMs)
	}
}

// adaptiveExit runs the trailing-stop and momentum-collapse sell rules.
func (e *Engine) adaptiveExit(st *TokenState, ev domain.PriceEvent, nowMs int64) {
	if ev.Price > st.PeakSinceEntry {
		st.PeakSinceEntry = ev.Price
	}

	pnl := ev.Price/st.EntryPrice - 1
	if e.cfg.Exit.TakeProfit != nil && pnl >= *e.cfg.Exit.TakeProfit {
		e.closePosition(st, ev.Price, nowMs, domain.ReasonTakeProfit)
		return
	}

	tps := st.Window.TPS()
	extraTrail := clamp((tps/e.cfg.Entry.MinTPS-1)*e.cfg.Exit.TPSTrailScale, 0, 0.3)
	gainPct := st.PeakSinceEntry/st.EntryPrice - 1
	gainTrail := math.Min(0.5, 0.1+gainPct*0.1)
	dynTrail := e.cfg.Exit.BaseTrailDD + extraTrail + gainTrail
	if st.IsExceptional {
		dynTrail += 0.1
	}
	absTrail := st.ATR.Value() * e.cfg.Exit.ATRMult
	allowedDrop := math.Max(absTrail, st.PeakSinceEntry*dynTrail)

	switch {
	case gainPct < e.cfg.Exit.DisableEMATPSGainPct && st.EMA.Initialized() && st.EMA.Short() < st.EMA.Long():
		e.closePosition(st, ev.Price, nowMs, domain.ReasonStopLoss)
	case gainPct < 0.3 && tps < e.cfg.EffectiveExitTPS():
		e.closePosition(st, ev.Price, nowMs, domain.ReasonStopLoss)
	case ev.Price <= st.PeakSinceEntry-allowedDrop:
		e.closePosition(st, ev.Price, nowMs, domain.ReasonStopLoss)
	}
}

// maybeProbeDevExit launches an async dev-exit probe when a dev sell is
// observed. At most one probe per token is in flight, and probes are
// spaced at least 15 seconds apart.
func (e *Engine) maybeProbeDevExit(ctx context.Context, st *TokenState, ev domain.PriceEvent, nowMs int64) {
	if st.DevSold || st.DevWallet == "" || e.devProbe == nil {
		return
	}
	if ev.Wallet != st.DevWallet || ev.Side != domain.SideSell {
		return
	}
	if st.devProbeInFlight || nowMs < st.NextDevCheckMs {
		return
	}

	st.devProbeInFlight = true
	st.NextDevCheckMs = nowMs + devCheckIntervalMs

	mint, dev := st.Mint, st.DevWallet
	go func() {
		exited := e.devProbe.HasExited(ctx, mint, dev)
		e.post(devExitResult{mint: mint, exited: exited})
	}()
}

// computeFeatures builds the fixed model input for the current event.
func (e *Engine) computeFeatures(st *TokenState, ev domain.PriceEvent, nowMs int64) domain.FeatureVector {
	var f domain.FeatureVector

	f[domain.FeatLogPrice] = math.Log(ev.Price + 1e-12)
	f[domain.FeatLogLiquidity] = math.Log(ev.Liquidity + 1)
	f[domain.FeatTPS] = st.Window.TPS() / 10
	if st.LowestPrice > 0 && !math.IsInf(st.LowestPrice, 1) {
		f[domain.FeatRiseFromLow] = ev.Price/st.LowestPrice - 1
	}
	f[domain.FeatUniqueWallets] = float64(st.Window.UniqueWallets()) / 10
	f[domain.FeatEMAGap] = st.EMA.Gap(ev.Price)
	if st.ATR.Initialized() {
		f[domain.FeatATRRatio] = st.ATR.Value() / ev.Price
	}
	f[domain.FeatTokenAge] = (float64(st.ageMs(nowMs)) / 60_000) / 60
	if st.PeakSinceEntry > 0 {
		f[domain.FeatDrawdown] = st.PeakSinceEntry/ev.Price - 1
	}
	if st.EntryPrice > 0 {
		f[domain.FeatRiseFromEntry] = ev.Price/st.EntryPrice - 1
	}

	return f
}

// openPosition opens the single position a token may carry and emits BUY.
func (e *Engine) openPosition(st *TokenState, ev domain.PriceEvent, feats domain.FeatureVector, nowMs int64) {
	st.EntryPrice = ev.Price
	st.EntrySol = e.cfg.Entry.TradeSizeSol
	st.EntryTimeMs = nowMs
	st.EntryFeatures = feats
	st.PeakSinceEntry = ev.Price
	st.HasBought = true
	st.cancelNoBuyTimer()

	e.investedSol += st.EntrySol
	e.totalInvestedSol += st.EntrySol

	if st.DevWallet != "" {
		e.devBlacklist[st.DevWallet] = nowMs + e.cfg.Entry.DevBlacklistSec*1000
	}

	e.logger.Printf("[engine] BUY %s (%s) at %.10f size %.2f SOL", st.Mint, st.Symbol, ev.Price, st.EntrySol)
	e.emitSignal(domain.TradeSignal{
		Mint:        st.Mint,
		Action:      domain.ActionBuy,
		Symbol:      st.Symbol,
		Price:       ev.Price,
		TimestampMs: nowMs,
	})
	if e.metrics != nil {
		e.metrics.InvestedSol.Set(e.investedSol)
	}
}

// closePosition emits SELL, settles realized PnL, journals the trade, and
// untracks the token. A token sells at most once because untracking
// removes its state.
func (e *Engine) closePosition(st *TokenState, exitPrice float64, nowMs int64, reason domain.Reason) {
	pnlSol := st.EntrySol * (exitPrice - st.EntryPrice) / st.EntryPrice
	e.profitSol += pnlSol
	e.investedSol = math.Max(0, e.investedSol-st.EntrySol)

	e.logger.Printf("[engine] SELL %s (%s) at %.10f reason=%s pnl=%+.4f SOL total=%+.4f SOL",
		st.Mint, st.Symbol, exitPrice, reason, pnlSol, e.profitSol)

	e.emitSignal(domain.TradeSignal{
		Mint:        st.Mint,
		Action:      domain.ActionSell,
		Reason:      reason,
		Symbol:      st.Symbol,
		Price:       exitPrice,
		TimestampMs: nowMs,
	})
	e.pnl.Publish(domain.PnLUpdate{
		ProfitSol:        e.profitSol,
		InvestedSol:      e.investedSol,
		TotalInvestedSol: e.totalInvestedSol,
		TimestampMs:      nowMs,
	})

	if e.metrics != nil {
		e.metrics.RealizedProfitSol.Set(e.profitSol)
		e.metrics.InvestedSol.Set(e.investedSol)
	}

	if e.journal != nil {
		record := &domain.TradeRecord{
			Mint:        st.Mint,
			Symbol:      st.Symbol,
			EntryPrice:  st.EntryPrice,
			ExitPrice:   exitPrice,
			EntryTimeMs: st.EntryTimeMs,
			ExitTimeMs:  nowMs,
			SizeSol:     st.EntrySol,
			PnLSol:      pnlSol,
			Reason:      reason,
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := e.journal.Insert(ctx, record); err != nil {
				e.logger.Printf("[engine] journal insert %s: %v", record.Mint, err)
			}
		}()
	}

	e.untrack(st, "sold")
}

// emitSignal publishes to all signal subscribers.
func (e *Engine) emitSignal(sig domain.TradeSignal) {
	e.signals.Publish(sig)
	if e.metrics != nil {
		e.metrics.SignalsEmitted.WithLabelValues(string(sig.Action), string(sig.Reason)).Inc()
	}
}

// reject counts an admission rejection.
func (e *Engine) reject(mint, cause string) {
	e.debugf("reject %s: %s", mint, cause)
	if e.metrics != nil {
		e.metrics.TokensRejected.WithLabelValues(cause).Inc()
	}
}

// untrack removes a token and cancels its pending work.
func (e *Engine) untrack(st *TokenState, cause string) {
	st.cancelNoBuyTimer()
	delete(e.states, st.Mint)
	if e.tracker != nil {
		e.tracker.UntrackMint(st.Mint)
	}
	if e.metrics != nil {
		if cause != "sold" {
			e.metrics.TokensRejected.WithLabelValues(cause).Inc()
		}
		e.metrics.TokensTracked.Set(float64(len(e.states)))
	}
}

// featureRecord is one append-only feature log line.
type featureRecord struct {
	Ts            int64   `json:"ts"`
	Mint          string  `json:"mint"`
	LogPrice      float64 `json:"log_price"`
	LogLiquidity  float64 `json:"log_liquidity"`
	TPS           float64 `json:"tps"`
	RiseFromLow   float64 `json:"rise_from_low"`
	UniqueWallets float64 `json:"unique_wallets"`
	EMAGap        float64 `json:"ema_gap"`
	ATRRatio      float64 `json:"atr_ratio"`
	TokenAge      float64 `json:"token_age"`
	Drawdown      float64 `json:"drawdown"`
	RiseFromEntry float64 `json:"rise_from_entry"`
	HasBought     bool    `json:"has_bought"`
	FeeBps        *int    `json:"fee_bps"`
	Bundler       bool    `json:"bundler"`
	DevSold       bool    `json:"dev_sold"`
}

func (e *Engine) logFeatures(st *TokenState, ev domain.PriceEvent, f domain.FeatureVector, nowMs int64) {
	if e.featureLog == nil {
		return
	}
	e.featureLog.Append(featureRecord{
		Ts:            nowMs,
		Mint:          ev.Mint,
		LogPrice:      f[domain.FeatLogPrice],
		LogLiquidity:  f[domain.FeatLogLiquidity],
		TPS:           f[domain.FeatTPS],
		RiseFromLow:   f[domain.FeatRiseFromLow],
		UniqueWallets: f[domain.FeatUniqueWallets],
		EMAGap:        f[domain.FeatEMAGap],
		ATRRatio:      f[domain.FeatATRRatio],
		TokenAge:      f[domain.FeatTokenAge],
		Drawdown:      f[domain.FeatDrawdown],
		RiseFromEntry: f[domain.FeatRiseFromEntry],
		HasBought:     st.HasBought,
		FeeBps:        st.TransferFeeBps,
		Bundler:       st.IsBundler,
		DevSold:       st.DevSold,
	})
}

// predictionRecord is one append-only prediction log line.
type predictionRecord struct {
	Ts        int64                `json:"ts"`
	Mint      string               `json:"mint"`
	Kind      string               `json:"kind"`
	Score     float64              `json:"score"`
	Threshold float64              `json:"threshold"`
	Features  domain.FeatureVector `json:"features"`
}

func (e *Engine) logPrediction(kind, mint string, score, threshold float64, f domain.FeatureVector, nowMs int64) {
	if e.predLog == nil {
		return
	}
	e.predLog.Append(predictionRecord{
		Ts:        nowMs,
		Mint:      mint,
		Kind:      kind,
		Score:     score,
		Threshold: threshold,
		Features:  f,
	})
}

// debugf logs only when verbose rejection logging is on.
func (e *Engine) debugf(format string, args ...interface{}) {
	if e.cfg.DebugFilters {
		e.logger.Printf("[engine] "+format, args...)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
