package market

import "mbobook/internal/common"

// Level is one side of an aggregated BBO quote: size is summed across
// publishers at the exact best price, count is the number of resting
// orders contributing to it.
type Level struct {
	Price common.Price `json:"price"`
	Size  uint64       `json:"size"`
	Count uint64       `json:"count"`
}

// BBO is the aggregated best bid/offer for one instrument across every
// publisher that carries it.
type BBO struct {
	BestBid   *Level `json:"best_bid"`
	BestOffer *Level `json:"best_offer"`
}

// AggregateBBO computes the best bid and best offer across every publisher
// book for instrument, summing size and counting orders at the winning
// price. Returns nil for either side when no publisher has liquidity there.
func (m *Market) AggregateBBO(instrument common.InstrumentID) BBO {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pbs := m.books[instrument]

	var bestBid *Level
	var bestAsk *Level

	for _, pb := range pbs {
		if lvl, ok := pb.Book.BestBid(); ok {
			bestBid = mergeLevel(bestBid, lvl.Price, lvl.Size, uint64(lvl.Count), true)
		}
		if lvl, ok := pb.Book.BestAsk(); ok {
			bestAsk = mergeLevel(bestAsk, lvl.Price, lvl.Size, uint64(lvl.Count), false)
		}
	}

	return BBO{BestBid: bestBid, BestOffer: bestAsk}
}

// mergeLevel folds one publisher's best level into the running aggregate,
// preferring higher prices for bids and lower prices for asks, and summing
// size/count when prices tie exactly.
func mergeLevel(cur *Level, price common.Price, size, count uint64, isBid bool) *Level {
	if cur == nil {
		return &Level{Price: price, Size: size, Count: count}
	}
	switch {
	case price == cur.Price:
		cur.Size += size
		cur.Count += count
	case isBid && price > cur.Price:
		return &Level{Price: price, Size: size, Count: count}
	case !isBid && price < cur.Price:
		return &Level{Price: price, Size: size, Count: count}
	}
	return cur
}
