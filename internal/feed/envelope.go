// Package feed defines the shared (message, effect) envelope that flows
// from the Ingest Driver to both the Broadcast Hub and the Persistence
// Sink, so neither of those packages needs to import the other.
package feed

import (
	"mbobook/internal/common"
	"mbobook/internal/market"
)

// Envelope is one unit of the replayable (message, effect) stream.
type Envelope struct {
	Seq    uint64        `json:"seq"`
	Msg    common.MboMsg `json:"msg"`
	Effect market.Effect `json:"effect"`
}

// Consumer receives envelopes in the exact order the Ingest Driver produced
// them. Both the Broadcast Hub and the Persistence Sink implement it.
type Consumer interface {
	Consume(Envelope)
}
