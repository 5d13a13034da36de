package domain

// indicators.go — streaming TR / ATR / EMA maintenance.
//
// The Tracker owns a bounded True Range window (long enough for the
// longest ATR period) plus the previous snapshot for EMA seeds. One
// Update per bar produces the full IndicatorSnapshot for that bar.

const (
	ATRShortPeriod = 14
	ATRLongPeriod  = 28
)

// EMAPeriods are the EMA horizons maintained per bar, fast to slow.
var EMAPeriods = [5]int{14, 28, 50, 100, 200}

// TrueRange returns max(high−low, |high−prevClose|, |low−prevClose|).
// The first bar in a series has no previous close and uses high−low only.
func TrueRange(high, low, prevClose float64, hasPrev bool) float64 {
	tr := high - low
	if !hasPrev {
		return tr
	}
	if d := abs(high - prevClose); d > tr {
		tr = d
	}
	if d := abs(low - prevClose); d > tr {
		tr = d
	}
	return tr
}

// NextEMA advances an EMA one bar: alpha*close + (1-alpha)*prev with
// alpha = 2/(period+1). Without a previous value the EMA seeds at close.
func NextEMA(close, prev float64, period int, hasPrev bool) float64 {
	if !hasPrev {
		return close
	}
	alpha := 2.0 / float64(period+1)
	return alpha*close + (1-alpha)*prev
}

// Tracker maintains streaming indicator state across consecutive bars.
type Tracker struct {
	symbol    string
	prevClose float64
	hasPrev   bool
	trWindow  []float64 // most recent last, capped at ATRLongPeriod
	prev      IndicatorSnapshot
	hasSnap   bool
}

// NewTracker creates an empty tracker for one symbol.
func NewTracker(symbol string) *Tracker {
	return &Tracker{
		symbol:   symbol,
		trWindow: make([]float64, 0, ATRLongPeriod),
	}
}

// Seed restores tracker state from persisted snapshots in chronological
// order, so a restarted engine continues the same TR window and EMA chain.
func (t *Tracker) Seed(rows []IndicatorSnapshot) {
	if len(rows) == 0 {
		return
	}
	t.trWindow = t.trWindow[:0]
	start := 0
	if len(rows) > ATRLongPeriod {
		start = len(rows) - ATRLongPeriod
	}
	for _, r := range rows[start:] {
		t.trWindow = append(t.trWindow, r.TR)
	}
	last := rows[len(rows)-1]
	t.prev = last
	t.hasSnap = true
	t.prevClose = last.Close
	t.hasPrev = true
}

// Update folds one bar into the tracker and returns its snapshot.
func (t *Tracker) Update(bar Bar) IndicatorSnapshot {
	tr := TrueRange(bar.High, bar.Low, t.prevClose, t.hasPrev)

	t.trWindow = append(t.trWindow, tr)
	if len(t.trWindow) > ATRLongPeriod {
		t.trWindow = t.trWindow[len(t.trWindow)-ATRLongPeriod:]
	}

	snap := IndicatorSnapshot{
		Symbol:    t.symbol,
		Timestamp: bar.Timestamp,
		Open:      bar.Open,
		High:      bar.High,
		Low:       bar.Low,
		Close:     bar.Close,
		Volume:    bar.Volume,
		TR:        tr,
		ATR14:     windowMean(t.trWindow, ATRShortPeriod),
		ATR28:     windowMean(t.trWindow, ATRLongPeriod),
	}

	snap.EMA14 = NextEMA(bar.Close, t.prev.EMA14, EMAPeriods[0], t.hasSnap)
	snap.EMA28 = NextEMA(bar.Close, t.prev.EMA28, EMAPeriods[1], t.hasSnap)
	snap.EMA50 = NextEMA(bar.Close, t.prev.EMA50, EMAPeriods[2], t.hasSnap)
	snap.EMA100 = NextEMA(bar.Close, t.prev.EMA100, EMAPeriods[3], t.hasSnap)
	snap.EMA200 = NextEMA(bar.Close, t.prev.EMA200, EMAPeriods[4], t.hasSnap)

	t.prev = snap
	t.hasSnap = true
	t.prevClose = bar.Close
	t.hasPrev = true
	return snap
}

// windowMean averages the last n values; with fewer than n it averages
// what exists (the ATR ramps up over the first bars of a series).
func windowMean(vals []float64, n int) float64 {
	if len(vals) == 0 {
		return 0
	}
	start := 0
	if len(vals) > n {
		start = len(vals) - n
	}
	sum := 0.0
	for _, v := range vals[start:] {
		sum += v
	}
	return sum / float64(len(vals)-start)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
