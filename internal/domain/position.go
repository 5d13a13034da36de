package domain

// Position is an open spot lot created by a grid buy. It is removed when
// fully sold or force-liquidated during a full recenter.
type Position struct {
	ID          string
	Symbol      string
	EntryPrice  float64
	Qty         float64
	GridPrice   float64 // the rung that produced this lot
	TargetPrice float64
	OpenedAt    int64 // ms
	GroupID     string
	Hedged      bool
}

// UnrealizedPnL marks the lot to the given price.
func (p Position) UnrealizedPnL(price float64) float64 {
	return (price - p.EntryPrice) * p.Qty
}

// HedgeState is the single live protective short. Nil means no hedge.
type HedgeState struct {
	Symbol       string
	Qty          float64
	EntryPrice   float64 // volume-weighted across scale-ins
	LockedMargin float64
	OpenedAt     int64 // ms
	OrderRef     string
}

// PnL is the short-convention mark: (entry − price) * qty.
func (h *HedgeState) PnL(price float64) float64 {
	return (h.EntryPrice - price) * h.Qty
}

// Extend folds a scale-in into the state, volume-weighting the entry.
func (h *HedgeState) Extend(qty, price, margin float64) {
	total := h.Qty + qty
	if total <= 0 {
		return
	}
	h.EntryPrice = (h.EntryPrice*h.Qty + price*qty) / total
	h.Qty = total
	h.LockedMargin += margin
}

// NetQty sums open spot inventory.
func NetQty(positions []Position) float64 {
	total := 0.0
	for _, p := range positions {
		total += p.Qty
	}
	return total
}

// TotalUnrealizedPnL marks all open lots to the given price.
func TotalUnrealizedPnL(positions []Position, price float64) float64 {
	total := 0.0
	for _, p := range positions {
		total += p.UnrealizedPnL(price)
	}
	return total
}
