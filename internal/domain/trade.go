package domain

// TradeRecord is a settled position written to the trade journal.
type TradeRecord struct {
	Mint        string
	Symbol      string
	EntryPrice  float64
	ExitPrice   float64
	EntryTimeMs int64
	ExitTimeMs  int64
	SizeSol     float64 // entry size in SOL
	PnLSol      float64 // realized profit in SOL
	Reason      Reason
}
