package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantcore/engine/internal/core"
	"github.com/quantcore/engine/internal/quanterrors"
)

// stubExecClient implements exchange.ExecutionClient with scripted
// OpenOrders/Positions responses and a call counter on CancelOrder.
type stubExecClient struct {
	orders       []core.OpenOrder
	positions    []core.Position
	ordersErr    error
	positionsErr error
	cancelErr    error
	cancelCalls  []string
}

func (c *stubExecClient) SubmitOrder(ctx context.Context, req core.OrderRequest) (core.OrderResult, error) {
	return core.OrderResult{}, nil
}

func (c *stubExecClient) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	c.cancelCalls = append(c.cancelCalls, exchangeOrderID)
	return c.cancelErr
}

func (c *stubExecClient) CancelAll(ctx context.Context, pair *core.TradingPair) error { return nil }

func (c *stubExecClient) OpenOrders(ctx context.Context, pair *core.TradingPair) ([]core.OpenOrder, error) {
	return c.orders, c.ordersErr
}

func (c *stubExecClient) Positions(ctx context.Context) ([]core.Position, error) {
	return c.positions, c.positionsErr
}

func (c *stubExecClient) Balance(ctx context.Context) (core.Balance, error) { return core.Balance{}, nil }

func (c *stubExecClient) SetLeverage(ctx context.Context, pair core.TradingPair, multiplier float64, cross bool) error {
	return nil
}

func btcPair(t *testing.T) core.TradingPair {
	p, err := core.ParseTradingPair("BTC-USDT")
	require.NoError(t, err)
	return p
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRecoverWithoutCheckpointReturnsNoCheckpoint(t *testing.T) {
	m := NewManager(Config{}, nil, nil, nil, fixedClock(time.Unix(0, 0)))
	_, err := m.Recover()
	assert.ErrorIs(t, err, quanterrors.ErrNoCheckpoint)
}

func TestCheckpointThenRecoverReturnsDeepClone(t *testing.T) {
	pair := btcPair(t)
	state := core.SystemState{
		Equity: core.DecimalFromInt(1000),
		Positions: []core.Position{
			{Pair: pair, Side: core.PositionLong, Size: core.OneDecimal},
		},
		OpenOrders: []core.OpenOrder{
			{ExchangeOrderID: "42", Pair: pair, Side: core.OrderSideBuy},
		},
	}

	m := NewManager(Config{}, nil, nil, nil, fixedClock(time.Unix(0, 0)))
	m.Checkpoint(state)

	cp, err := m.Recover()
	require.NoError(t, err)
	assert.Equal(t, state.Positions, cp.State.Positions)
	assert.Equal(t, state.OpenOrders, cp.State.OpenOrders)

	// Mutating the caller's slice must not affect the stored checkpoint.
	state.Positions[0].Size = core.DecimalFromInt(99)
	cp2, err := m.Recover()
	require.NoError(t, err)
	assert.True(t, cp2.State.Positions[0].Size.Equal(core.OneDecimal))
}

func TestCheckpointQueueEvictsBeyondMaxCount(t *testing.T) {
	m := NewManager(Config{MaxCheckpoints: 3}, nil, nil, nil, fixedClock(time.Unix(0, 0)))
	for i := 0; i < 5; i++ {
		m.Checkpoint(core.SystemState{Equity: core.DecimalFromInt(int64(i))})
	}

	all := m.Checkpoints()
	require.Len(t, all, 3)
	assert.True(t, all[len(all)-1].State.Equity.Equal(core.DecimalFromInt(4)), "newest checkpoint must survive eviction")
}

func TestCheckpointQueueEvictsByAge(t *testing.T) {
	now := time.Unix(0, 0)
	clockVal := now
	clock := func() time.Time { return clockVal }

	m := NewManager(Config{MaxCheckpointAgeHours: 1}, nil, nil, nil, clock)
	m.Checkpoint(core.SystemState{Equity: core.OneDecimal})

	clockVal = now.Add(2 * time.Hour)
	m.Checkpoint(core.SystemState{Equity: core.DecimalFromInt(2)})

	all := m.Checkpoints()
	require.Len(t, all, 1)
	assert.True(t, all[0].State.Equity.Equal(core.DecimalFromInt(2)))
}

func TestRecoverWithSyncNoExecClientReturnsCheckpointOnly(t *testing.T) {
	m := NewManager(Config{}, nil, nil, nil, fixedClock(time.Unix(0, 0)))
	m.Checkpoint(core.SystemState{Equity: core.OneDecimal})

	result, err := m.RecoverWithSync(context.Background(), false)
	require.NoError(t, err)
	assert.Zero(t, result.OrphanOrders)
	assert.Zero(t, result.StaleOrders)
	assert.Zero(t, result.PositionMismatches)
	assert.Zero(t, result.MissingPositions)
}

// TestRecoverWithSyncReconciliationScenario reproduces the canonical
// reconciliation scenario exactly: a checkpoint with one open order
// {id: 42} and one BTC position of size 1; the exchange reports orders
// [{id: 42}, {id: 99}] and a BTC position of size 1.5.
func TestRecoverWithSyncReconciliationScenario(t *testing.T) {
	pair := btcPair(t)
	m := NewManager(Config{}, nil, nil, nil, fixedClock(time.Unix(0, 0)))
	m.Checkpoint(core.SystemState{
		Positions:  []core.Position{{Pair: pair, Side: core.PositionLong, Size: core.OneDecimal}},
		OpenOrders: []core.OpenOrder{{ExchangeOrderID: "42", Pair: pair, Side: core.OrderSideBuy}},
	})

	client := &stubExecClient{
		orders: []core.OpenOrder{
			{ExchangeOrderID: "42", Pair: pair, Side: core.OrderSideBuy},
			{ExchangeOrderID: "99", Pair: pair, Side: core.OrderSideSell},
		},
		positions: []core.Position{
			{Pair: pair, Side: core.PositionLong, Size: core.DecimalFromFloat(1.5)},
		},
	}
	m.execClient = client

	result, err := m.RecoverWithSync(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.OrphanOrders)
	assert.Equal(t, 0, result.StaleOrders)
	assert.Equal(t, 1, result.PositionMismatches)
	assert.Equal(t, 0, result.MissingPositions)
	assert.Empty(t, client.cancelCalls, "cancel must not be called when cancelOrphans is false")
}

func TestRecoverWithSyncCancelsOrphanExactlyOnce(t *testing.T) {
	pair := btcPair(t)
	m := NewManager(Config{}, nil, nil, nil, fixedClock(time.Unix(0, 0)))
	m.Checkpoint(core.SystemState{
		Positions:  []core.Position{{Pair: pair, Side: core.PositionLong, Size: core.OneDecimal}},
		OpenOrders: []core.OpenOrder{{ExchangeOrderID: "42", Pair: pair, Side: core.OrderSideBuy}},
	})

	client := &stubExecClient{
		orders: []core.OpenOrder{
			{ExchangeOrderID: "42", Pair: pair, Side: core.OrderSideBuy},
			{ExchangeOrderID: "99", Pair: pair, Side: core.OrderSideSell},
		},
		positions: []core.Position{
			{Pair: pair, Side: core.PositionLong, Size: core.DecimalFromFloat(1.5)},
		},
	}
	m.execClient = client

	result, err := m.RecoverWithSync(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, []string{"99"}, client.cancelCalls)
	assert.Equal(t, []string{"99"}, result.CancelledOrphans)
}

func TestRecoverWithSyncStaleOrderDetected(t *testing.T) {
	pair := btcPair(t)
	m := NewManager(Config{}, nil, nil, nil, fixedClock(time.Unix(0, 0)))
	m.Checkpoint(core.SystemState{
		OpenOrders: []core.OpenOrder{{ExchangeOrderID: "42", Pair: pair, Side: core.OrderSideBuy}},
	})

	client := &stubExecClient{}
	m.execClient = client

	result, err := m.RecoverWithSync(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.StaleOrders)
	assert.Zero(t, result.OrphanOrders)
}

func TestRecoverWithSyncMissingPositionDetected(t *testing.T) {
	pair := btcPair(t)
	m := NewManager(Config{}, nil, nil, nil, fixedClock(time.Unix(0, 0)))
	m.Checkpoint(core.SystemState{})

	client := &stubExecClient{
		positions: []core.Position{{Pair: pair, Side: core.PositionLong, Size: core.OneDecimal}},
	}
	m.execClient = client

	result, err := m.RecoverWithSync(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.MissingPositions)
	assert.Zero(t, result.PositionMismatches)
}

func TestRecoverWithSyncExactStateRoundTripsDeepEqual(t *testing.T) {
	pair := btcPair(t)
	state := core.SystemState{
		Equity:    core.DecimalFromInt(1000),
		Positions: []core.Position{{Pair: pair, Side: core.PositionLong, Size: core.OneDecimal}},
		OpenOrders: []core.OpenOrder{
			{ExchangeOrderID: "42", Pair: pair, Side: core.OrderSideBuy},
		},
	}

	m := NewManager(Config{}, nil, nil, nil, fixedClock(time.Unix(0, 0)))
	m.Checkpoint(state)

	client := &stubExecClient{
		orders:    state.OpenOrders,
		positions: state.Positions,
	}
	m.execClient = client

	result, err := m.RecoverWithSync(context.Background(), false)
	require.NoError(t, err)
	assert.Zero(t, result.OrphanOrders)
	assert.Zero(t, result.StaleOrders)
	assert.Zero(t, result.PositionMismatches)
	assert.Zero(t, result.MissingPositions)
	assert.Equal(t, state.Positions, result.Checkpoint.State.Positions)
	assert.Equal(t, state.OpenOrders, result.Checkpoint.State.OpenOrders)
}

func TestRecoverWithSyncPropagatesExecClientErrors(t *testing.T) {
	m := NewManager(Config{}, nil, nil, nil, fixedClock(time.Unix(0, 0)))
	m.Checkpoint(core.SystemState{})

	client := &stubExecClient{ordersErr: assertErr{"boom"}}
	m.execClient = client

	_, err := m.RecoverWithSync(context.Background(), false)
	require.Error(t, err)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
