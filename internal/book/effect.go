package book

import (
	"encoding/json"

	"mbobook/internal/common"
)

// EffectKind tags which variant a BookEffect carries.
type EffectKind uint8

const (
	EffectNone EffectKind = iota
	EffectAdd
	EffectCancel
	EffectModify
)

func (k EffectKind) String() string {
	switch k {
	case EffectAdd:
		return "Add"
	case EffectCancel:
		return "Cancel"
	case EffectModify:
		return "Modify"
	default:
		return "None"
	}
}

// Effect is the reversible description of what one Apply call changed. It
// is kept algebraically sufficient: Cancel carries the cancelled
// size rather than the post-size, Modify carries both old and new
// price+size, so Unapply never needs to consult current book state.
type Effect struct {
	Kind EffectKind  `json:"kind"`
	Side common.Side `json:"side"`

	// Add: price/size of the new resting order.
	// Cancel: price/size cancelled.
	Price common.Price `json:"price,omitempty"`
	Size  uint64       `json:"size,omitempty"`

	// Modify only.
	OldPrice common.Price `json:"old_price,omitempty"`
	NewPrice common.Price `json:"new_price,omitempty"`
	OldSize  uint64       `json:"old_size,omitempty"`
	NewSize  uint64       `json:"new_size,omitempty"`

	// oldIndex records the order's position within its old price level at
	// the moment a price-changing Modify removed it, so Unapply can splice
	// it back to the exact same slot instead of merely the tail. Internal
	// bookkeeping only: unexported, so it never appears in serialized
	// effect payloads.
	oldIndex int
}

func (k EffectKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func addEffect(side common.Side, price common.Price, size uint64) *Effect {
	return &Effect{Kind: EffectAdd, Side: side, Price: price, Size: size}
}

func cancelEffect(side common.Side, price common.Price, sizeCancelled uint64) *Effect {
	return &Effect{Kind: EffectCancel, Side: side, Price: price, Size: sizeCancelled}
}

func modifyEffect(side common.Side, oldPrice, newPrice common.Price, oldSize, newSize uint64) *Effect {
	return &Effect{
		Kind:     EffectModify,
		Side:     side,
		OldPrice: oldPrice,
		NewPrice: newPrice,
		OldSize:  oldSize,
		NewSize:  newSize,
	}
}
