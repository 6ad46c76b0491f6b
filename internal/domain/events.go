package domain

// Side indicates the direction of a curve trade.
type Side string

// Trade sides.
const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// PoolEvent notifies that a new bonding-curve market was created for a mint.
type PoolEvent struct {
	Mint        string  // token mint address
	CreatedAtMs int64   // creation time, Unix milliseconds
	InitialMcap float64 // initial market cap / virtual liquidity in SOL
	Symbol      string  // token ticker (optional)
	DevWallet   string  // creator wallet (optional)
	Signature   string  // create transaction signature (optional)
}

// PriceEvent is a single curve trade observation for a tracked mint.
type PriceEvent struct {
	Mint        string
	Price       float64 // token price in SOL, > 0
	Liquidity   float64 // curve liquidity in SOL
	Sol         float64 // trade notional in SOL, negative for sells
	Wallet      string  // trading wallet
	TokensCurve float64 // tokens remaining on the curve
	Side        Side
	TimestampMs int64 // Unix milliseconds
}

// Action is the trade signal direction.
type Action string

// Signal actions.
const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Reason explains why a SELL signal fired.
type Reason string

// Exit reasons.
const (
	ReasonTakeProfit Reason = "TP"
	ReasonStopLoss   Reason = "SL"
	ReasonMigration  Reason = "MIGR"
	ReasonRug        Reason = "RUG"
	ReasonManual     Reason = "MANUAL"
)

// TradeSignal is emitted to the execution adapter when the engine decides
// to open or close a position.
type TradeSignal struct {
	Mint        string
	Action      Action
	Reason      Reason // set on SELL only
	Symbol      string
	Price       float64
	TimestampMs int64
}

// PnLUpdate carries cumulative realized profit after every settle.
type PnLUpdate struct {
	ProfitSol        float64
	InvestedSol      float64
	TotalInvestedSol float64
	TimestampMs      int64
}
