package ports

import (
	"context"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// Storage persists engine state. Every write made during bar processing
// is best-effort: the engine logs failures and keeps its in-memory state
// authoritative for the tick.
type Storage interface {
	// SaveGridGroup persists all levels of a new active group.
	SaveGridGroup(ctx context.Context, group domain.GridGroup) error

	// LoadActiveGridGroup returns the active group for the symbol, or
	// nil when none exists.
	LoadActiveGridGroup(ctx context.Context, symbol string) (*domain.GridGroup, error)

	// MarkLevelFilled updates the fill flag on one rung of a group.
	MarkLevelFilled(ctx context.Context, symbol, groupID string, price float64, filled bool) error

	// DeactivateGroup retires a group (logically, rows are kept).
	DeactivateGroup(ctx context.Context, symbol, groupID, reason string) error

	// CancelOpenOrders marks every open order of a group as canceled.
	CancelOpenOrders(ctx context.Context, symbol, groupID string) error

	// SaveIndicator appends one indicator row.
	SaveIndicator(ctx context.Context, snap domain.IndicatorSnapshot) error

	// LoadRecentIndicators returns up to limit rows, most recent first.
	LoadRecentIndicators(ctx context.Context, symbol string, limit int) ([]domain.IndicatorSnapshot, error)

	// SaveSpotOrder records a placed or simulated spot order.
	SaveSpotOrder(ctx context.Context, rec domain.OrderRecord) error

	// SaveHedgeOpen records a hedge open/extend and returns a reference
	// used to close it later.
	SaveHedgeOpen(ctx context.Context, symbol string, qty, price float64, leverage int) (string, error)

	// CloseHedgeOrder marks a hedge order closed with its realized pnl.
	CloseHedgeOrder(ctx context.Context, orderRef string, closePrice, realizedPnL float64) error

	// SaveBalanceSnapshot appends one balance record.
	SaveBalanceSnapshot(ctx context.Context, snap domain.BalanceSnapshot) error

	// Close shuts the store down cleanly.
	Close() error
}
