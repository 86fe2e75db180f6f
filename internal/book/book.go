// Package book implements the per-(instrument,publisher) limit order book:
// two ordered price ladders with FIFO order queues inside each level, an
// order-id index for O(log n) locate, and a reversible Apply/Unapply pair.
//
// Price levels are ordered btree nodes (github.com/tidwall/btree), but
// Apply here never matches orders against each other — MBO actions only
// ever mutate resting liquidity (add, cancel, reprice). Matching/crossing
// is out of scope for this system; a crossing Add is refused outright
// (ErrWouldCross) rather than executed.
package book

import (
	"mbobook/internal/common"

	"github.com/tidwall/btree"
)

// priceLevel holds every order resting at one price, in strict FIFO arrival
// order. Appends go to the tail; price-time priority reads front-to-back.
type priceLevel struct {
	price  common.Price
	orders []*common.Order
}

type levels = btree.BTreeG[*priceLevel]

// locator is the orders_by_id index entry: enough to find an order's level
// in O(log n) without scanning both ladders.
type locator struct {
	side  common.Side
	price common.Price
}

// Book is a per-(instrument,publisher) limit order ladder.
type Book struct {
	bids *levels // descending: highest price first
	asks *levels // ascending: lowest price first
	byID map[common.OrderID]locator
}

// New constructs an empty Book.
func New() *Book {
	b := &Book{}
	b.reset()
	return b
}

func (b *Book) reset() {
	b.bids = btree.NewBTreeG(func(a, bl *priceLevel) bool { return a.price > bl.price })
	b.asks = btree.NewBTreeG(func(a, bl *priceLevel) bool { return a.price < bl.price })
	b.byID = make(map[common.OrderID]locator)
}

func (b *Book) tree(side common.Side) *levels {
	if side == common.SideBid {
		return b.bids
	}
	return b.asks
}

func (b *Book) opposite(side common.Side) *levels {
	if side == common.SideBid {
		return b.asks
	}
	return b.bids
}

// wouldCross reports whether resting an order for side at price would
// violate invariant I3 (max(bids) < min(offers)) against the opposite side
// as it currently stands.
func (b *Book) wouldCross(side common.Side, price common.Price) bool {
	opp := b.opposite(side)
	best, ok := opp.Min()
	if !ok {
		return false
	}
	if side == common.SideBid {
		return price >= best.price
	}
	return price <= best.price
}

func (b *Book) levelFor(side common.Side, price common.Price) (*priceLevel, bool) {
	lvl, ok := b.tree(side).GetMut(&priceLevel{price: price})
	return lvl, ok
}

func (b *Book) ensureLevel(side common.Side, price common.Price) *priceLevel {
	t := b.tree(side)
	if lvl, ok := t.GetMut(&priceLevel{price: price}); ok {
		return lvl
	}
	lvl := &priceLevel{price: price}
	t.Set(lvl)
	return lvl
}

func (b *Book) deleteLevelIfEmpty(side common.Side, lvl *priceLevel) {
	if len(lvl.orders) == 0 {
		b.tree(side).Delete(&priceLevel{price: lvl.price})
	}
}

func findOrder(lvl *priceLevel, id common.OrderID) (int, *common.Order) {
	for i, o := range lvl.orders {
		if o.ID() == id {
			return i, o
		}
	}
	return -1, nil
}

func removeOrderAt(lvl *priceLevel, idx int) *common.Order {
	o := lvl.orders[idx]
	lvl.orders = append(lvl.orders[:idx], lvl.orders[idx+1:]...)
	return o
}

// Apply dispatches one MboMsg against the book and returns the reversible
// effect it produced, or a recoverable *Error.
func (b *Book) Apply(msg common.MboMsg) (*Effect, error) {
	switch msg.Action {
	case common.ActionAdd:
		return b.applyAdd(msg)
	case common.ActionCancel:
		return b.applyCancel(msg)
	case common.ActionModify:
		return b.applyModify(msg)
	case common.ActionClear:
		b.reset()
		return nil, nil
	default: // Trade, Fill, None
		return nil, nil
	}
}

func (b *Book) applyAdd(msg common.MboMsg) (*Effect, error) {
	if msg.Side != common.SideBid && msg.Side != common.SideAsk {
		return nil, newError(ErrKindInvalidSide, ErrInvalidSide)
	}
	if msg.Size == 0 {
		return nil, newError(ErrKindInvalidSize, ErrInvalidSize)
	}
	if _, exists := b.byID[msg.OrderID]; exists {
		return nil, newError(ErrKindDuplicateOrder, ErrDuplicateOrder)
	}
	if b.wouldCross(msg.Side, msg.Price) {
		return nil, newError(ErrKindWouldCross, ErrWouldCross)
	}

	lvl := b.ensureLevel(msg.Side, msg.Price)
	lvl.orders = append(lvl.orders, &common.Order{Msg: msg, Price: msg.Price, Size: msg.Size})
	b.byID[msg.OrderID] = locator{side: msg.Side, price: msg.Price}

	return addEffect(msg.Side, msg.Price, msg.Size), nil
}

func (b *Book) applyCancel(msg common.MboMsg) (*Effect, error) {
	loc, ok := b.byID[msg.OrderID]
	if !ok {
		return nil, newError(ErrKindUnknownOrder, ErrUnknownOrder)
	}
	lvl, ok := b.levelFor(loc.side, loc.price)
	idx, order := -1, (*common.Order)(nil)
	if ok {
		idx, order = findOrder(lvl, msg.OrderID)
	}
	if order == nil {
		// Index and ladder disagree; treat as the index being stale rather
		// than panicking, and drop the stale entry.
		delete(b.byID, msg.OrderID)
		return nil, newError(ErrKindUnknownOrder, ErrUnknownOrder)
	}

	cancelled := msg.Size
	if cancelled > order.Size {
		cancelled = order.Size // clamp to zero, per spec
	}
	order.Size -= cancelled

	if order.Size == 0 {
		removeOrderAt(lvl, idx)
		delete(b.byID, msg.OrderID)
		b.deleteLevelIfEmpty(loc.side, lvl)
	}

	return cancelEffect(loc.side, loc.price, cancelled), nil
}

func (b *Book) applyModify(msg common.MboMsg) (*Effect, error) {
	loc, ok := b.byID[msg.OrderID]
	if !ok {
		return nil, newError(ErrKindUnknownOrder, ErrUnknownOrder)
	}
	if msg.Size == 0 {
		return nil, newError(ErrKindInvalidSize, ErrInvalidSize)
	}
	lvl, ok := b.levelFor(loc.side, loc.price)
	idx, order := -1, (*common.Order)(nil)
	if ok {
		idx, order = findOrder(lvl, msg.OrderID)
	}
	if order == nil {
		delete(b.byID, msg.OrderID)
		return nil, newError(ErrKindUnknownOrder, ErrUnknownOrder)
	}

	oldPrice, oldSize := order.Price, order.Size
	newPrice, newSize := msg.Price, msg.Size

	if newPrice == oldPrice {
		// Same-price modify preserves queue position.
		order.Size = newSize
		order.Msg = msg
		return modifyEffect(loc.side, oldPrice, newPrice, oldSize, newSize), nil
	}

	// Price change: guard against the post-move state before mutating
	// anything. The opposite side is unaffected by moving within our own
	// side, so this check is valid pre-mutation.
	if b.wouldCross(loc.side, newPrice) {
		return nil, newError(ErrKindWouldCross, ErrWouldCross)
	}

	oldIndex := idx
	removeOrderAt(lvl, idx)
	b.deleteLevelIfEmpty(loc.side, lvl)

	newLvl := b.ensureLevel(loc.side, newPrice)
	newLvl.orders = append(newLvl.orders, &common.Order{Msg: msg, Price: newPrice, Size: newSize})
	b.byID[msg.OrderID] = locator{side: loc.side, price: newPrice}

	eff := modifyEffect(loc.side, oldPrice, newPrice, oldSize, newSize)
	eff.oldIndex = oldIndex
	return eff, nil
}

// Unapply restores the pre-Apply state for a (msg, effect) pair previously
// produced by Apply. It is total on well-formed pairs; it is not required
// to be meaningful on arbitrary input.
func (b *Book) Unapply(msg common.MboMsg, eff *Effect) error {
	if eff == nil {
		return nil
	}
	switch eff.Kind {
	case EffectAdd:
		return b.unapplyAdd(msg)
	case EffectCancel:
		return b.unapplyCancel(msg, eff)
	case EffectModify:
		return b.unapplyModify(msg, eff)
	default:
		return nil
	}
}

func (b *Book) unapplyAdd(msg common.MboMsg) error {
	loc, ok := b.byID[msg.OrderID]
	if !ok {
		return newError(ErrKindUnknownOrder, ErrUnknownOrder)
	}
	lvl, ok := b.levelFor(loc.side, loc.price)
	if !ok {
		return newError(ErrKindUnknownOrder, ErrUnknownOrder)
	}
	idx, order := findOrder(lvl, msg.OrderID)
	if order == nil {
		return newError(ErrKindUnknownOrder, ErrUnknownOrder)
	}
	removeOrderAt(lvl, idx)
	delete(b.byID, msg.OrderID)
	b.deleteLevelIfEmpty(loc.side, lvl)
	return nil
}

func (b *Book) unapplyCancel(msg common.MboMsg, eff *Effect) error {
	loc, ok := b.byID[msg.OrderID]
	if ok {
		lvl, ok := b.levelFor(loc.side, loc.price)
		if !ok {
			return newError(ErrKindUnknownOrder, ErrUnknownOrder)
		}
		_, order := findOrder(lvl, msg.OrderID)
		if order == nil {
			return newError(ErrKindUnknownOrder, ErrUnknownOrder)
		}
		order.Size += eff.Size
		return nil
	}
	// Order was fully removed by the cancel; recreate it. Position within
	// the level cannot be recovered (it was deleted outright), so it is
	// appended to the tail instead.
	lvl := b.ensureLevel(eff.Side, eff.Price)
	lvl.orders = append(lvl.orders, &common.Order{Msg: msg, Price: eff.Price, Size: eff.Size})
	b.byID[msg.OrderID] = locator{side: eff.Side, price: eff.Price}
	return nil
}

func (b *Book) unapplyModify(msg common.MboMsg, eff *Effect) error {
	loc, ok := b.byID[msg.OrderID]
	if !ok {
		return newError(ErrKindUnknownOrder, ErrUnknownOrder)
	}
	lvl, ok := b.levelFor(loc.side, loc.price)
	if !ok {
		return newError(ErrKindUnknownOrder, ErrUnknownOrder)
	}
	idx, order := findOrder(lvl, msg.OrderID)
	if order == nil {
		return newError(ErrKindUnknownOrder, ErrUnknownOrder)
	}

	if eff.OldPrice == eff.NewPrice {
		order.Size = eff.OldSize
		return nil
	}

	removeOrderAt(lvl, idx)
	b.deleteLevelIfEmpty(loc.side, lvl)

	restored := &common.Order{Msg: msg, Price: eff.OldPrice, Size: eff.OldSize}
	oldLvl := b.ensureLevel(loc.side, eff.OldPrice)
	at := eff.oldIndex
	if at < 0 || at > len(oldLvl.orders) {
		at = len(oldLvl.orders)
	}
	oldLvl.orders = append(oldLvl.orders, nil)
	copy(oldLvl.orders[at+1:], oldLvl.orders[at:])
	oldLvl.orders[at] = restored
	b.byID[msg.OrderID] = locator{side: loc.side, price: eff.OldPrice}
	return nil
}

// LevelView is a read-only summary of one price level, used for BBO
// aggregation and snapshotting.
type LevelView struct {
	Price common.Price
	Size  uint64
	Count int
}

func levelView(lvl *priceLevel) LevelView {
	var size uint64
	for _, o := range lvl.orders {
		size += o.Size
	}
	return LevelView{Price: lvl.price, Size: size, Count: len(lvl.orders)}
}

// Bids returns bid levels in descending price order.
func (b *Book) Bids() []LevelView {
	out := make([]LevelView, 0, b.bids.Len())
	b.bids.Scan(func(lvl *priceLevel) bool {
		out = append(out, levelView(lvl))
		return true
	})
	return out
}

// Asks returns ask levels in ascending price order.
func (b *Book) Asks() []LevelView {
	out := make([]LevelView, 0, b.asks.Len())
	b.asks.Scan(func(lvl *priceLevel) bool {
		out = append(out, levelView(lvl))
		return true
	})
	return out
}

// BestBid returns the top-of-book bid level, if any.
func (b *Book) BestBid() (LevelView, bool) {
	lvl, ok := b.bids.Min()
	if !ok {
		return LevelView{}, false
	}
	return levelView(lvl), true
}

// BestAsk returns the top-of-book ask level, if any.
func (b *Book) BestAsk() (LevelView, bool) {
	lvl, ok := b.asks.Min()
	if !ok {
		return LevelView{}, false
	}
	return levelView(lvl), true
}

// OrderCount returns the number of live resting orders tracked by
// orders_by_id (invariant I1's domain).
func (b *Book) OrderCount() int { return len(b.byID) }

// LevelSnapshot is a deep, serialization-safe copy of one price level.
type LevelSnapshot struct {
	Price  common.Price    `json:"price"`
	Orders []OrderSnapshot `json:"orders"`
}

// OrderSnapshot is a deep copy of one resting order.
type OrderSnapshot struct {
	OrderID common.OrderID `json:"order_id"`
	Size    uint64         `json:"size"`
}

// Snapshot is a deep, consistent copy of the whole book suitable for
// serialization without holding any lock while marshaling.
type Snapshot struct {
	Bids []LevelSnapshot `json:"bids"`
	Asks []LevelSnapshot `json:"asks"`
}

func snapshotLevels(t *levels) []LevelSnapshot {
	out := make([]LevelSnapshot, 0, t.Len())
	t.Scan(func(lvl *priceLevel) bool {
		orders := make([]OrderSnapshot, len(lvl.orders))
		for i, o := range lvl.orders {
			orders[i] = OrderSnapshot{OrderID: o.ID(), Size: o.Size}
		}
		out = append(out, LevelSnapshot{Price: lvl.price, Orders: orders})
		return true
	})
	return out
}

// Snapshot returns a deep copy of the book.
func (b *Book) Snapshot() Snapshot {
	return Snapshot{Bids: snapshotLevels(b.bids), Asks: snapshotLevels(b.asks)}
}
