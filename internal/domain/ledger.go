package domain

// CapitalLedger tracks cash and margin. Available capital and futures
// margin are clamped at zero on every debit; they never go negative.
type CapitalLedger struct {
	TotalCapital           float64
	ReserveCapital         float64
	AvailableCapital       float64
	FuturesAvailableMargin float64
	RealizedGridProfit     float64
	RealizedHedgeProfit    float64
}

// NewCapitalLedger splits the starting capital into tradable and reserve
// shares. The reserve doubles as futures margin in the simulated modes.
func NewCapitalLedger(initial, reserveRatio float64) CapitalLedger {
	reserve := initial * reserveRatio
	return CapitalLedger{
		TotalCapital:           initial,
		ReserveCapital:         reserve,
		AvailableCapital:       initial - reserve,
		FuturesAvailableMargin: reserve,
	}
}

// DebitSpot removes spot cash, clamped at zero.
func (l *CapitalLedger) DebitSpot(amount float64) {
	l.AvailableCapital -= amount
	if l.AvailableCapital < 0 {
		l.AvailableCapital = 0
	}
}

// CreditSpot adds spot cash.
func (l *CapitalLedger) CreditSpot(amount float64) {
	l.AvailableCapital += amount
}

// DebitMargin removes futures margin, clamped at zero.
func (l *CapitalLedger) DebitMargin(amount float64) {
	l.FuturesAvailableMargin -= amount
	if l.FuturesAvailableMargin < 0 {
		l.FuturesAvailableMargin = 0
	}
}

// CreditMargin returns margin (plus pnl) to the futures account,
// clamping the result at zero when the pnl is a large loss.
func (l *CapitalLedger) CreditMargin(amount float64) {
	l.FuturesAvailableMargin += amount
	if l.FuturesAvailableMargin < 0 {
		l.FuturesAvailableMargin = 0
	}
}

// Equity is cash (available + reserve) plus the market value of all
// open spot lots at the given price.
func (l *CapitalLedger) Equity(positions []Position, price float64) float64 {
	value := 0.0
	for _, p := range positions {
		value += p.Qty * price
	}
	return l.AvailableCapital + l.ReserveCapital + value
}

// AccountType labels a balance snapshot row.
type AccountType string

const (
	AccountSpot     AccountType = "SPOT"
	AccountFutures  AccountType = "FUTURES"
	AccountCombined AccountType = "COMBINED"
)

// BalanceSnapshot is one persisted balance record.
type BalanceSnapshot struct {
	AccountType   AccountType
	Symbol        string
	Timestamp     int64 // ms
	StartBalance  float64
	EndBalance    float64
	NetFlow       float64
	RealizedPnL   float64
	UnrealizedPnL float64
	Fees          float64
	Notes         string
}

// OrderSide is the direction of a spot or futures order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderRecord is what a broker returns for a placed (or simulated) order.
type OrderRecord struct {
	OrderID     string
	Symbol      string
	Side        OrderSide
	Type        string // LIMIT | MARKET
	Status      string // NEW | FILLED | ...
	Price       float64
	Qty         float64
	ExecutedQty float64
	QuoteQty    float64
	GridID      string
	Timestamp   int64 // ms
}
