package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/alejandrodnm/gridbot/internal/domain"
)

var errBrokerDown = errors.New("broker down")

// fakeBroker records calls and can be told to fail per operation.
type fakeBroker struct {
	failBuy       bool
	failSell      bool
	failHedgeOpen bool
	failClose     bool

	buys       []domain.OrderRecord
	sells      []domain.OrderRecord
	hedgeOpens []float64 // quantities
	hedgeClose int
}

func (f *fakeBroker) PlaceSpotBuy(_ context.Context, ts int64, price, qty float64, gridID string) (domain.OrderRecord, error) {
	if f.failBuy {
		return domain.OrderRecord{}, errBrokerDown
	}
	rec := domain.OrderRecord{
		OrderID:     fmt.Sprintf("buy-%d", len(f.buys)+1),
		Side:        domain.SideBuy,
		Status:      "FILLED",
		Price:       price,
		Qty:         qty,
		ExecutedQty: qty,
		GridID:      gridID,
		Timestamp:   ts,
	}
	f.buys = append(f.buys, rec)
	return rec, nil
}

func (f *fakeBroker) PlaceSpotSell(_ context.Context, ts int64, position domain.Position, sellPrice float64) (domain.OrderRecord, error) {
	if f.failSell {
		return domain.OrderRecord{}, errBrokerDown
	}
	rec := domain.OrderRecord{
		OrderID:     fmt.Sprintf("sell-%d", len(f.sells)+1),
		Side:        domain.SideSell,
		Status:      "FILLED",
		Price:       sellPrice,
		Qty:         position.Qty,
		ExecutedQty: position.Qty,
		GridID:      position.GroupID,
		Timestamp:   ts,
	}
	f.sells = append(f.sells, rec)
	return rec, nil
}

func (f *fakeBroker) OpenHedgeShort(_ context.Context, _ int64, qty, price float64, _ string) (float64, error) {
	if f.failHedgeOpen {
		return 0, errBrokerDown
	}
	f.hedgeOpens = append(f.hedgeOpens, qty)
	return price, nil
}

func (f *fakeBroker) CloseHedge(_ context.Context, _ int64, _, _ float64, _ string) error {
	if f.failClose {
		return errBrokerDown
	}
	f.hedgeClose++
	return nil
}

func (f *fakeBroker) RefreshBalances(_ context.Context, _ *domain.CapitalLedger) error {
	return nil
}

// fakeStore keeps everything in memory.
type fakeStore struct {
	groups      []domain.GridGroup
	deactivated []string
	canceled    []string
	indicators  []domain.IndicatorSnapshot
	spotOrders  []domain.OrderRecord
	hedgeOpens  int
	hedgeCloses int
	balances    []domain.BalanceSnapshot
}

func (f *fakeStore) SaveGridGroup(_ context.Context, group domain.GridGroup) error {
	f.groups = append(f.groups, group)
	return nil
}

func (f *fakeStore) LoadActiveGridGroup(_ context.Context, _ string) (*domain.GridGroup, error) {
	return nil, nil
}

func (f *fakeStore) MarkLevelFilled(_ context.Context, _, _ string, _ float64, _ bool) error {
	return nil
}

func (f *fakeStore) DeactivateGroup(_ context.Context, _, groupID, _ string) error {
	f.deactivated = append(f.deactivated, groupID)
	return nil
}

func (f *fakeStore) CancelOpenOrders(_ context.Context, _, groupID string) error {
	f.canceled = append(f.canceled, groupID)
	return nil
}

func (f *fakeStore) SaveIndicator(_ context.Context, snap domain.IndicatorSnapshot) error {
	f.indicators = append(f.indicators, snap)
	return nil
}

func (f *fakeStore) LoadRecentIndicators(_ context.Context, _ string, _ int) ([]domain.IndicatorSnapshot, error) {
	return nil, nil
}

func (f *fakeStore) SaveSpotOrder(_ context.Context, rec domain.OrderRecord) error {
	f.spotOrders = append(f.spotOrders, rec)
	return nil
}

func (f *fakeStore) SaveHedgeOpen(_ context.Context, _ string, _, _ float64, _ int) (string, error) {
	f.hedgeOpens++
	return fmt.Sprintf("hedge-%d", f.hedgeOpens), nil
}

func (f *fakeStore) CloseHedgeOrder(_ context.Context, _ string, _, _ float64) error {
	f.hedgeCloses++
	return nil
}

func (f *fakeStore) SaveBalanceSnapshot(_ context.Context, snap domain.BalanceSnapshot) error {
	f.balances = append(f.balances, snap)
	return nil
}

func (f *fakeStore) Close() error { return nil }
