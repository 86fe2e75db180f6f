// Package market routes each MboMsg to the correct (instrument, publisher)
// book, creates publisher books on first sight, and aggregates best
// bid/offer across publishers: a two-level instrument → publisher map with
// insertion order preserved for deterministic snapshot JSON.
package market

import (
	"encoding/json"
	"sync"

	"mbobook/internal/book"
	"mbobook/internal/common"
)

// publisherBook pairs a publisher with its book; kept in a slice (not a
// map) per instrument so iteration order matches first-seen order.
type publisherBook struct {
	PublisherID common.PublisherID
	Book        *book.Book
}

// Market maps instrument_id → ordered list of (publisher_id, Book).
type Market struct {
	mu    sync.RWMutex
	books map[common.InstrumentID][]*publisherBook
	index map[common.InstrumentID]map[common.PublisherID]*book.Book
}

// New constructs an empty Market.
func New() *Market {
	return &Market{
		books: make(map[common.InstrumentID][]*publisherBook),
		index: make(map[common.InstrumentID]map[common.PublisherID]*book.Book),
	}
}

// Effect wraps the outcome of routing and applying one message:
// PublisherCreated is set iff this message caused a new per-publisher book
// to be allocated.
type Effect struct {
	PublisherCreated *common.PublisherID
	BookEffect       *book.Effect
	ErrKind          book.ErrorKind
	Err              error
}

// jsonEffect is Effect's wire shape: Err becomes a plain string since the
// error interface has no marshaler of its own, and ErrKind is omitted
// entirely when there was no error.
type jsonEffect struct {
	PublisherCreated *common.PublisherID `json:"publisher_created,omitempty"`
	BookEffect       *book.Effect        `json:"book_effect,omitempty"`
	ErrKind          string              `json:"error_kind,omitempty"`
	Err              string              `json:"error,omitempty"`
}

// MarshalJSON renders Effect the way it crosses the wire: to SSE
// subscribers and into the Sink's effect_payload_json column.
func (e Effect) MarshalJSON() ([]byte, error) {
	je := jsonEffect{PublisherCreated: e.PublisherCreated, BookEffect: e.BookEffect}
	if e.Err != nil {
		je.ErrKind = e.ErrKind.String()
		je.Err = e.Err.Error()
	}
	return json.Marshal(je)
}

// Apply routes msg to its (instrument, publisher) book, creating the book
// on first sight, and delegates to Book.Apply.
func (m *Market) Apply(msg common.MboMsg) Effect {
	m.mu.Lock()
	defer m.mu.Unlock()

	publisherBooks, ok := m.index[msg.InstrumentID]
	if !ok {
		publisherBooks = make(map[common.PublisherID]*book.Book)
		m.index[msg.InstrumentID] = publisherBooks
	}

	var effect Effect
	b, ok := publisherBooks[msg.PublisherID]
	if !ok {
		b = book.New()
		publisherBooks[msg.PublisherID] = b
		m.books[msg.InstrumentID] = append(m.books[msg.InstrumentID], &publisherBook{
			PublisherID: msg.PublisherID,
			Book:        b,
		})
		created := msg.PublisherID
		effect.PublisherCreated = &created
	}

	eff, err := b.Apply(msg)
	effect.BookEffect = eff
	if err != nil {
		effect.Err = err
		if be, ok := err.(*book.Error); ok {
			effect.ErrKind = be.Kind
		}
	}
	return effect
}

// Book returns the book for (instrument, publisher), if it exists. Intended
// for tests and for Unapply-driven backward navigation.
func (m *Market) Book(instrument common.InstrumentID, publisher common.PublisherID) (*book.Book, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pb, ok := m.index[instrument]
	if !ok {
		return nil, false
	}
	b, ok := pb[publisher]
	return b, ok
}

// Instruments returns every instrument ID the market has seen, in no
// particular order.
func (m *Market) Instruments() []common.InstrumentID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]common.InstrumentID, 0, len(m.books))
	for id := range m.books {
		out = append(out, id)
	}
	return out
}
