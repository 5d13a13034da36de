package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGridGroupRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	group := domain.NewGridGroup("BTCUSDT", 100, 2, 3)
	require.NoError(t, s.SaveGridGroup(ctx, group))

	loaded, err := s.LoadActiveGridGroup(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, group.ID, loaded.ID)
	assert.Equal(t, group.BasePrice, loaded.BasePrice)
	assert.Equal(t, group.Spacing, loaded.Spacing)
	require.Len(t, loaded.Levels, 3)
	// Ascending order survives the roundtrip.
	assert.Equal(t, 94.0, loaded.Levels[0].Price)
	assert.Equal(t, 98.0, loaded.Levels[2].Price)
}

func TestLoadActiveGridGroupEmpty(t *testing.T) {
	s := newTestStore(t)

	loaded, err := s.LoadActiveGridGroup(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMarkLevelFilledPersists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	group := domain.NewGridGroup("BTCUSDT", 100, 2, 3)
	require.NoError(t, s.SaveGridGroup(ctx, group))
	require.NoError(t, s.MarkLevelFilled(ctx, "BTCUSDT", group.ID, 96, true))

	loaded, err := s.LoadActiveGridGroup(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, loaded.Levels[0].Filled)
	assert.True(t, loaded.Levels[1].Filled)

	require.NoError(t, s.MarkLevelFilled(ctx, "BTCUSDT", group.ID, 96, false))
	loaded, err = s.LoadActiveGridGroup(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, loaded.Levels[1].Filled)
}

func TestDeactivateGroupHidesIt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	group := domain.NewGridGroup("BTCUSDT", 100, 2, 3)
	require.NoError(t, s.SaveGridGroup(ctx, group))
	require.NoError(t, s.DeactivateGroup(ctx, "BTCUSDT", group.ID, "test"))

	loaded, err := s.LoadActiveGridGroup(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestIndicatorsMostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveIndicator(ctx, domain.IndicatorSnapshot{
			Symbol:    "BTCUSDT",
			Timestamp: int64(i) * 60000,
			Close:     100 + float64(i),
			ATR14:     2,
		}))
	}

	rows, err := s.LoadRecentIndicators(ctx, "BTCUSDT", 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(4*60000), rows[0].Timestamp)
	assert.Equal(t, int64(2*60000), rows[2].Timestamp)
	assert.Equal(t, 104.0, rows[0].Close)
}

func TestSaveIndicatorIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snap := domain.IndicatorSnapshot{Symbol: "BTCUSDT", Timestamp: 60000, Close: 100}
	require.NoError(t, s.SaveIndicator(ctx, snap))

	// Replaying the same bar overwrites instead of duplicating.
	snap.Close = 101
	require.NoError(t, s.SaveIndicator(ctx, snap))

	rows, err := s.LoadRecentIndicators(ctx, "BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 101.0, rows[0].Close)
}

func TestHedgeOrderLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ref, err := s.SaveHedgeOpen(ctx, "BTCUSDT", 1.5, 100, 2)
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	require.NoError(t, s.CloseHedgeOrder(ctx, ref, 95, 7.5))

	var status string
	var pnl float64
	err = s.db.QueryRow(
		`SELECT status, realized_pnl FROM futures_orders WHERE order_ref = ?`, ref,
	).Scan(&status, &pnl)
	require.NoError(t, err)
	assert.Equal(t, "CLOSED", status)
	assert.Equal(t, 7.5, pnl)
}

func TestCancelOpenOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := domain.OrderRecord{
		OrderID: "o1", Symbol: "BTCUSDT", Side: domain.SideBuy,
		Type: "LIMIT", Status: "NEW", Price: 98, Qty: 1, GridID: "g1", Timestamp: 1,
	}
	require.NoError(t, s.SaveSpotOrder(ctx, rec))
	rec.OrderID, rec.Status = "o2", "FILLED"
	require.NoError(t, s.SaveSpotOrder(ctx, rec))

	require.NoError(t, s.CancelOpenOrders(ctx, "BTCUSDT", "g1"))

	var canceled, filled int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM spot_orders WHERE status = 'CANCELED'`).Scan(&canceled))
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM spot_orders WHERE status = 'FILLED'`).Scan(&filled))
	assert.Equal(t, 1, canceled)
	assert.Equal(t, 1, filled, "filled orders are left alone")
}

func TestBalanceSnapshotInsert(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveBalanceSnapshot(context.Background(), domain.BalanceSnapshot{
		AccountType: domain.AccountSpot, Symbol: "BTCUSDT", Timestamp: 1,
		StartBalance: 700, EndBalance: 710, RealizedPnL: 10, Notes: "test",
	}))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM balance_snapshots`).Scan(&count))
	assert.Equal(t, 1, count)
}
