// Package common holds the wire-level data model shared by every layer of
// the book reconstruction pipeline: the tagged enums, the fixed-point price
// type, and the immutable message/order records described in the feed's MBO
// schema.
package common

import (
	"encoding/json"
	"fmt"
)

// Side is the book side a message or resting order belongs to.
type Side uint8

const (
	SideNone Side = iota
	SideBid
	SideAsk
)

func (s Side) String() string {
	switch s {
	case SideBid:
		return "Bid"
	case SideAsk:
		return "Ask"
	default:
		return "None"
	}
}

// MarshalJSON renders a Side as its display name ("Bid"/"Ask"/"None")
// rather than its numeric tag, matching how this feed's effects are shown
// to SSE subscribers and stored in the Sink.
func (s Side) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// Action is the MBO action a message carries. Only Add, Cancel and Modify
// mutate a ladder; Clear wipes a book; Trade and Fill are recorded but do
// not themselves change resting liquidity.
type Action uint8

const (
	ActionNone Action = iota
	ActionAdd
	ActionCancel
	ActionModify
	ActionClear
	ActionTrade
	ActionFill
)

func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "Add"
	case ActionCancel:
		return "Cancel"
	case ActionModify:
		return "Modify"
	case ActionClear:
		return "Clear"
	case ActionTrade:
		return "Trade"
	case ActionFill:
		return "Fill"
	default:
		return "None"
	}
}

// MarshalJSON renders an Action as its display name.
func (a Action) MarshalJSON() ([]byte, error) { return json.Marshal(a.String()) }

// Price is a signed fixed-point price in nano-units (1e-9) of the
// instrument's quote currency.
type Price int64

// InstrumentID identifies a tradeable instrument within the feed.
type InstrumentID uint32

// PublisherID identifies a dataset/schema/venue triple that produced a book.
type PublisherID uint16

// OrderID is the feed-assigned identity of a resting order.
type OrderID uint64

// MboMsg is one decoded record off the Market-By-Order feed. It is treated
// as immutable once constructed: Book and Market never mutate a message,
// only the state it describes.
type MboMsg struct {
	Length       uint8        `json:"length"`
	RType        uint8        `json:"rtype"`
	PublisherID  PublisherID  `json:"publisher_id"`
	InstrumentID InstrumentID `json:"instrument_id"`
	TsEvent      int64        `json:"ts_event"` // unix nanoseconds

	OrderID   OrderID `json:"order_id"`
	Price     Price   `json:"price"`
	Size      uint64  `json:"size"`
	Flags     uint8   `json:"flags"`
	ChannelID uint16  `json:"channel_id"`
	Action    Action  `json:"action"`
	Side      Side    `json:"side"`
	TsRecv    int64   `json:"ts_recv"` // unix nanoseconds
	TsInDelta int32   `json:"ts_in_delta"`
	Sequence  uint64  `json:"sequence"`
}

func (m MboMsg) String() string {
	return fmt.Sprintf("MboMsg{seq=%d instrument=%d publisher=%d order=%d action=%s side=%s price=%d size=%d}",
		m.Sequence, m.InstrumentID, m.PublisherID, m.OrderID, m.Action, m.Side, m.Price, m.Size)
}

// Order is a resting order sitting inside a price level. The originating
// MboMsg is kept wholesale as the natural carrier of identity; Price and
// Size are tracked out-of-band since a resting order's size changes
// independently of the message that first created it.
type Order struct {
	Msg   MboMsg
	Price Price
	Size  uint64
}

// ID returns the resting order's feed identity.
func (o *Order) ID() OrderID { return o.Msg.OrderID }
