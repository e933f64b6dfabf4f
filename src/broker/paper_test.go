package broker

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derivbot/src/market"
)

func drain(b *PaperBroker) []Event {
	var out []Event
	for {
		select {
		case ev := <-b.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPaperBroker_OrderAck(t *testing.T) {
	b := NewPaperBroker(decimal.NewFromInt(1000))
	defer b.Close()

	err := b.RequestOrder(context.Background(), OrderRequest{
		PositionID: "pos-1",
		Symbol:     "frxEURUSD",
		Direction:  market.SignalBuy,
		Stake:      decimal.NewFromInt(100),
		Price:      decimal.NewFromFloat(1.25),
	})
	require.NoError(t, err)

	events := drain(b)
	require.Len(t, events, 2)

	assert.Equal(t, EventPositionOpened, events[0].Type)
	assert.Equal(t, "pos-1", events[0].PositionID)
	assert.True(t, decimal.NewFromFloat(1.25).Equal(events[0].Price))

	assert.Equal(t, EventBalanceUpdate, events[1].Type)
	assert.True(t, decimal.NewFromInt(900).Equal(events[1].Balance))
	assert.True(t, decimal.NewFromInt(900).Equal(b.Balance()))
}

func TestPaperBroker_FailNext(t *testing.T) {
	b := NewPaperBroker(decimal.NewFromInt(1000))
	defer b.Close()
	b.FailNext("market closed")

	err := b.RequestOrder(context.Background(), OrderRequest{
		PositionID: "pos-1",
		Stake:      decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	events := drain(b)
	require.Len(t, events, 1)
	assert.Equal(t, EventOrderFailed, events[0].Type)
	assert.Equal(t, "market closed", events[0].Reason)
	// 余额不受影响
	assert.True(t, decimal.NewFromInt(1000).Equal(b.Balance()))

	// 只影响一笔
	err = b.RequestOrder(context.Background(), OrderRequest{
		PositionID: "pos-2",
		Stake:      decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	events = drain(b)
	require.Len(t, events, 2)
	assert.Equal(t, EventPositionOpened, events[0].Type)
}

func TestPaperBroker_InsufficientBalance(t *testing.T) {
	b := NewPaperBroker(decimal.NewFromInt(50))
	defer b.Close()

	err := b.RequestOrder(context.Background(), OrderRequest{
		PositionID: "pos-1",
		Stake:      decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	events := drain(b)
	require.Len(t, events, 1)
	assert.Equal(t, EventOrderFailed, events[0].Type)
	assert.Equal(t, "insufficient balance", events[0].Reason)
}

func TestPaperBroker_Settle(t *testing.T) {
	b := NewPaperBroker(decimal.NewFromInt(1000))
	defer b.Close()

	require.NoError(t, b.RequestOrder(context.Background(), OrderRequest{
		PositionID: "pos-1",
		Stake:      decimal.NewFromInt(100),
	}))
	drain(b)

	// 盈利结算：返还注金并加上收益
	b.Settle("pos-1", decimal.NewFromInt(100), decimal.NewFromInt(85))

	events := drain(b)
	require.Len(t, events, 2)
	assert.Equal(t, EventPositionClosed, events[0].Type)
	assert.True(t, decimal.NewFromInt(85).Equal(events[0].Profit))
	assert.True(t, decimal.NewFromInt(1085).Equal(b.Balance()))
}

func TestPaperBroker_SettleLossKeepsStake(t *testing.T) {
	b := NewPaperBroker(decimal.NewFromInt(1000))
	defer b.Close()

	require.NoError(t, b.RequestOrder(context.Background(), OrderRequest{
		PositionID: "pos-1",
		Stake:      decimal.NewFromInt(100),
	}))
	drain(b)

	b.Settle("pos-1", decimal.NewFromInt(100), decimal.NewFromInt(-100))

	drain(b)
	// 亏损：注金不返还
	assert.True(t, decimal.NewFromInt(900).Equal(b.Balance()))
}

func TestPaperBroker_ClosedRejectsOrders(t *testing.T) {
	b := NewPaperBroker(decimal.NewFromInt(1000))
	require.NoError(t, b.Close())

	err := b.RequestOrder(context.Background(), OrderRequest{PositionID: "pos-1"})
	assert.Error(t, err)
}
