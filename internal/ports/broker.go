package ports

import (
	"context"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

// Broker places spot and hedge orders. Implementations differ by run
// mode: the paper broker fills everything instantly in memory, the
// exchange broker signs real requests. The engine only ever sees this
// interface.
type Broker interface {
	// PlaceSpotBuy submits (or simulates) a limit buy at the grid price.
	PlaceSpotBuy(ctx context.Context, timestampMs int64, price, qty float64, gridID string) (domain.OrderRecord, error)

	// PlaceSpotSell closes a position at the given price.
	PlaceSpotSell(ctx context.Context, timestampMs int64, position domain.Position, sellPrice float64) (domain.OrderRecord, error)

	// OpenHedgeShort opens or extends the protective short and returns
	// the average entry price actually obtained.
	OpenHedgeShort(ctx context.Context, timestampMs int64, qty, price float64, reason string) (float64, error)

	// CloseHedge buys back qty of the short.
	CloseHedge(ctx context.Context, timestampMs int64, qty, price float64, reason string) error

	// RefreshBalances overwrites the ledger's available capital and
	// futures margin from ground truth (a no-op for paper brokers).
	RefreshBalances(ctx context.Context, ledger *domain.CapitalLedger) error
}
