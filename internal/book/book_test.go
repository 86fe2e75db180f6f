package book

import (
	"testing"

	"mbobook/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func add(id common.OrderID, side common.Side, price common.Price, size uint64) common.MboMsg {
	return common.MboMsg{Action: common.ActionAdd, OrderID: id, Side: side, Price: price, Size: size}
}

func cancel(id common.OrderID, size uint64) common.MboMsg {
	return common.MboMsg{Action: common.ActionCancel, OrderID: id, Size: size}
}

func modify(id common.OrderID, side common.Side, price common.Price, size uint64) common.MboMsg {
	return common.MboMsg{Action: common.ActionModify, OrderID: id, Side: side, Price: price, Size: size}
}

func TestAddCancelRoundTrip(t *testing.T) {
	b := New()

	_, err := b.Apply(add(1, common.SideBid, 100_000_000_000, 5))
	require.NoError(t, err)

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, common.Price(100_000_000_000), bid.Price)
	assert.EqualValues(t, 5, bid.Size)
	assert.Equal(t, 1, bid.Count)

	_, err = b.Apply(cancel(1, 5))
	require.NoError(t, err)

	_, ok = b.BestBid()
	assert.False(t, ok)
	assert.Equal(t, 0, b.OrderCount())
	assert.Empty(t, b.Bids())
}

func TestFIFOPriority(t *testing.T) {
	b := New()
	_, err := b.Apply(add(1, common.SideBid, 100, 3))
	require.NoError(t, err)
	_, err = b.Apply(add(2, common.SideBid, 100, 4))
	require.NoError(t, err)

	_, err = b.Apply(cancel(1, 3))
	require.NoError(t, err)

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, common.Price(100), bid.Price)
	assert.EqualValues(t, 4, bid.Size)
	assert.Equal(t, 1, bid.Count)
}

func TestModifyToNewPriceDropsToTail(t *testing.T) {
	b := New()
	require.NoError(t, apply1(t, b, add(1, common.SideBid, 100, 2)))
	require.NoError(t, apply1(t, b, add(2, common.SideBid, 100, 2)))
	require.NoError(t, apply1(t, b, modify(1, common.SideBid, 101, 2)))

	levels100 := 0
	for _, lvl := range b.Bids() {
		if lvl.Price == 100 {
			levels100 = lvl.Count
		}
	}
	assert.Equal(t, 1, levels100)

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, common.Price(101), bid.Price)
	assert.EqualValues(t, 2, bid.Size)
	assert.Equal(t, 1, bid.Count)
}

func TestCrossedBookRefusal(t *testing.T) {
	b := New()
	require.NoError(t, apply1(t, b, add(1, common.SideAsk, 100, 1)))

	_, err := b.Apply(add(2, common.SideBid, 101, 1))
	require.Error(t, err)
	var bookErr *Error
	require.ErrorAs(t, err, &bookErr)
	assert.Equal(t, ErrKindWouldCross, bookErr.Kind)

	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, common.Price(100), ask.Price)
	_, ok = b.BestBid()
	assert.False(t, ok)
}

func TestCancelUnknownOrder(t *testing.T) {
	b := New()
	_, err := b.Apply(cancel(42, 1))
	require.Error(t, err)
	var bookErr *Error
	require.ErrorAs(t, err, &bookErr)
	assert.Equal(t, ErrKindUnknownOrder, bookErr.Kind)
	assert.Equal(t, 0, b.OrderCount())
}

func TestDuplicateOrderRejected(t *testing.T) {
	b := New()
	require.NoError(t, apply1(t, b, add(1, common.SideBid, 100, 1)))
	_, err := b.Apply(add(1, common.SideBid, 100, 1))
	require.Error(t, err)
	var bookErr *Error
	require.ErrorAs(t, err, &bookErr)
	assert.Equal(t, ErrKindDuplicateOrder, bookErr.Kind)
}

func TestCancelClampsToZero(t *testing.T) {
	b := New()
	require.NoError(t, apply1(t, b, add(1, common.SideBid, 100, 5)))
	eff, err := b.Apply(cancel(1, 50))
	require.NoError(t, err)
	assert.EqualValues(t, 5, eff.Size)
	assert.Equal(t, 0, b.OrderCount())
}

func TestUnapplyAddIsIdentity(t *testing.T) {
	b := New()
	msg := add(1, common.SideBid, 100, 5)
	eff, err := b.Apply(msg)
	require.NoError(t, err)

	before := b.Snapshot()
	_ = before

	require.NoError(t, b.Unapply(msg, eff))
	assert.Equal(t, 0, b.OrderCount())
	_, ok := b.BestBid()
	assert.False(t, ok)
}

func TestUnapplyCancelPartialIsIdentity(t *testing.T) {
	b := New()
	addMsg := add(1, common.SideBid, 100, 5)
	_, err := b.Apply(addMsg)
	require.NoError(t, err)

	cancelMsg := cancel(1, 2)
	eff, err := b.Apply(cancelMsg)
	require.NoError(t, err)

	bid, _ := b.BestBid()
	assert.EqualValues(t, 3, bid.Size)

	require.NoError(t, b.Unapply(cancelMsg, eff))
	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.EqualValues(t, 5, bid.Size)
}

func TestUnapplyModifyPriceChangeRestoresOrdering(t *testing.T) {
	b := New()
	require.NoError(t, apply1(t, b, add(1, common.SideBid, 100, 2)))
	require.NoError(t, apply1(t, b, add(2, common.SideBid, 100, 3)))
	require.NoError(t, apply1(t, b, add(3, common.SideBid, 100, 4)))

	modMsg := modify(2, common.SideBid, 105, 3)
	eff, err := b.Apply(modMsg)
	require.NoError(t, err)

	require.NoError(t, b.Unapply(modMsg, eff))

	var lvl100 []LevelView
	for _, l := range b.Bids() {
		if l.Price == 100 {
			lvl100 = append(lvl100, l)
		}
	}
	require.Len(t, lvl100, 1)
	assert.EqualValues(t, 9, lvl100[0].Size)
	assert.Equal(t, 3, lvl100[0].Count)

	snap := b.Snapshot()
	var found bool
	for _, l := range snap.Bids {
		if l.Price == 100 {
			found = true
			require.Len(t, l.Orders, 3)
			assert.Equal(t, common.OrderID(1), l.Orders[0].OrderID)
			assert.Equal(t, common.OrderID(2), l.Orders[1].OrderID)
			assert.Equal(t, common.OrderID(3), l.Orders[2].OrderID)
		}
	}
	assert.True(t, found)
}

func TestInvalidSizeRejected(t *testing.T) {
	b := New()
	_, err := b.Apply(add(1, common.SideBid, 100, 0))
	require.Error(t, err)
	var bookErr *Error
	require.ErrorAs(t, err, &bookErr)
	assert.Equal(t, ErrKindInvalidSize, bookErr.Kind)
}

func TestClearWipesBook(t *testing.T) {
	b := New()
	require.NoError(t, apply1(t, b, add(1, common.SideBid, 100, 1)))
	require.NoError(t, apply1(t, b, add(2, common.SideAsk, 101, 1)))

	eff, err := b.Apply(common.MboMsg{Action: common.ActionClear})
	require.NoError(t, err)
	assert.Nil(t, eff)
	assert.Equal(t, 0, b.OrderCount())
	assert.Empty(t, b.Bids())
	assert.Empty(t, b.Asks())
}

func TestTradeAndFillProduceNoEffect(t *testing.T) {
	b := New()
	eff, err := b.Apply(common.MboMsg{Action: common.ActionTrade})
	require.NoError(t, err)
	assert.Nil(t, eff)

	eff, err = b.Apply(common.MboMsg{Action: common.ActionFill})
	require.NoError(t, err)
	assert.Nil(t, eff)
}

func apply1(t *testing.T, b *Book, msg common.MboMsg) error {
	t.Helper()
	_, err := b.Apply(msg)
	return err
}
