package domain

// Bar is one closed OHLCV candle. Bars arrive in strictly increasing
// timestamp order and are never mutated.
type Bar struct {
	Timestamp int64 // ms since epoch
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// IndicatorSnapshot is the bar plus every derived indicator, one row per
// (symbol, timestamp). Rows are append-only.
type IndicatorSnapshot struct {
	Symbol    string
	Timestamp int64 // ms since epoch
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	TR        float64
	ATR14     float64
	ATR28     float64
	EMA14     float64
	EMA28     float64
	EMA50     float64
	EMA100    float64
	EMA200    float64
}

// Bar returns the OHLCV portion of the snapshot.
func (s IndicatorSnapshot) Bar() Bar {
	return Bar{
		Timestamp: s.Timestamp,
		Open:      s.Open,
		High:      s.High,
		Low:       s.Low,
		Close:     s.Close,
		Volume:    s.Volume,
	}
}
