package market

import (
	"mbobook/internal/book"
	"mbobook/internal/common"
)

// PublisherSnapshot pairs a publisher's label with its book state, in the
// first-seen insertion order recorded for that instrument.
type PublisherSnapshot struct {
	PublisherID common.PublisherID `json:"publisher_id"`
	Label       string             `json:"label"`
	Book        book.Snapshot      `json:"book"`
}

// Snapshot is a deep, consistent copy of the entire Market, safe to
// serialize without holding any lock.
type Snapshot struct {
	Instruments map[common.InstrumentID][]PublisherSnapshot `json:"instruments"`
}

// Snapshot returns a deep copy of every book in the market, preserving the
// first-seen publisher order per instrument.
func (m *Market) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := Snapshot{Instruments: make(map[common.InstrumentID][]PublisherSnapshot, len(m.books))}
	for instrument, pbs := range m.books {
		list := make([]PublisherSnapshot, 0, len(pbs))
		for _, pb := range pbs {
			list = append(list, PublisherSnapshot{
				PublisherID: pb.PublisherID,
				Label:       common.Label(pb.PublisherID),
				Book:        pb.Book.Snapshot(),
			})
		}
		out.Instruments[instrument] = list
	}
	return out
}
