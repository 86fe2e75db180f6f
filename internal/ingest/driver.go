package ingest

import (
	"context"
	"errors"
	"io"
	"time"

	"mbobook/internal/feed"
	"mbobook/internal/market"
	"mbobook/internal/metrics"

	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"
)

// Config controls the driver's behavior on decode failure.
type Config struct {
	// AbortOnMalformedRecord stops the ingest entirely on a decode error
	// when true (the default). When false, the bad record is skipped with
	// a warn-level log and the ingest continues.
	AbortOnMalformedRecord bool
}

// DefaultConfig aborts the ingest on the first malformed record.
func DefaultConfig() Config {
	return Config{AbortOnMalformedRecord: true}
}

// Driver reads a RecordSource, pumps each record through the Market, and
// publishes the resulting envelope to every registered consumer in strict
// order.
type Driver struct {
	source    RecordSource
	market    *market.Market
	consumers []feed.Consumer
	cfg       Config
	log       zerolog.Logger

	seq uint64
}

// New constructs a Driver over source, applying messages to m and fanning
// the resulting envelopes out to consumers in the order given.
func New(source RecordSource, m *market.Market, cfg Config, logger zerolog.Logger, consumers ...feed.Consumer) *Driver {
	return &Driver{
		source:    source,
		market:    m,
		consumers: consumers,
		cfg:       cfg,
		log:       logger.With().Str("component", "ingest").Logger(),
	}
}

// Run drains the source until exhaustion, context cancellation, or a fatal
// decode error, whichever comes first. The driver is single-threaded with
// respect to Market mutation: no concurrent caller may call m.Apply while
// Run is active.
func (d *Driver) Run(t *tomb.Tomb, ctx context.Context) error {
	defer d.source.Close()

	for {
		select {
		case <-t.Dying():
			d.log.Info().Msg("ingest stopping on shutdown signal")
			return nil
		default:
		}

		msg, err := d.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			d.log.Info().Uint64("messages_processed", d.seq).Msg("ingest reached end of feed")
			return nil
		}
		if err != nil {
			var decodeErr *DecodeError
			if errors.As(err, &decodeErr) {
				d.log.Warn().Err(err).Str("line", decodeErr.Line).Msg("malformed mbo record")
				if d.cfg.AbortOnMalformedRecord {
					return err
				}
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				d.log.Info().Msg("ingest cancelled")
				return nil
			}
			return err
		}

		start := time.Now()
		effect := d.market.Apply(msg)
		metrics.ApplyLatencySeconds.Observe(time.Since(start).Seconds())
		metrics.MessagesProcessedTotal.Inc()
		if effect.Err != nil {
			// Book-semantic errors are recoverable: log at warn, keep going.
			d.log.Warn().
				Err(effect.Err).
				Str("error_kind", effect.ErrKind.String()).
				Uint64("order_id", uint64(msg.OrderID)).
				Uint32("instrument_id", uint32(msg.InstrumentID)).
				Uint16("publisher_id", uint16(msg.PublisherID)).
				Uint64("seq", d.seq+1).
				Msg("book rejected message")
		}

		d.seq++
		env := feed.Envelope{Seq: d.seq, Msg: msg, Effect: effect}
		for _, c := range d.consumers {
			c.Consume(env)
		}
	}
}
