// Package sink persists (MboMsg, MarketEffect) pairs to a WAL-mode SQLite
// database in batches, on a single flush goroutine tied to a tomb
// lifecycle.
package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"mbobook/internal/feed"

	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"
	_ "modernc.org/sqlite"
)

// ResumePolicy names how ingest restarts against a database that already
// holds rows. It is carried in Config only: Open and Run do not read it,
// and nothing in this package skips or deletes records because of it.
// MaxSeq is the lookup a caller uses to act on ResumeFromMaxSeq.
type ResumePolicy int

const (
	// ReplayFromZero treats the feed as the canonical source: existing rows
	// are left alone and ingest starts its own sequence counter at zero
	// regardless of what's stored.
	ReplayFromZero ResumePolicy = iota
	// ResumeFromMaxSeq names restarting ingest after the max seq already
	// committed (see MaxSeq), avoiding duplicate rows on restart.
	ResumeFromMaxSeq
)

// DefaultBatchSize is the default commit batch size.
const DefaultBatchSize = 1000

// DefaultBatchInterval is the default commit interval.
const DefaultBatchInterval = 50 * time.Millisecond

// DefaultCommitTimeout is the fatal commit deadline.
const DefaultCommitTimeout = 5 * time.Second

// Config tunes batching behavior.
type Config struct {
	BatchSize     int
	BatchInterval time.Duration
	CommitTimeout time.Duration
	Resume        ResumePolicy
	QueueCapacity int
}

// DefaultConfig returns the production batching defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     DefaultBatchSize,
		BatchInterval: DefaultBatchInterval,
		CommitTimeout: DefaultCommitTimeout,
		Resume:        ReplayFromZero,
		QueueCapacity: 4096,
	}
}

// Sink implements feed.Consumer, batching every envelope it receives into
// periodic WAL-mode transactions.
type Sink struct {
	db  *sql.DB
	cfg Config
	log zerolog.Logger

	queue chan feed.Envelope
}

// Open opens (creating if absent) the SQLite file at path, switches it to
// WAL mode, and applies the schema. It does not start the flush loop; call
// Run for that.
func Open(path string, cfg Config, logger zerolog.Logger) (*Sink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sink: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // WAL mode still serializes writers; avoid pool contention.

	if _, err := db.Exec(pragmaWAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: apply schema: %w", err)
	}

	return &Sink{
		db:    db,
		cfg:   cfg,
		log:   logger.With().Str("component", "sink").Logger(),
		queue: make(chan feed.Envelope, cfg.QueueCapacity),
	}, nil
}

// MaxSeq returns the highest seq already committed, or 0 if the messages
// table is empty. Callers implementing resume-from-max-seq use this to
// decide where to restart the feed.
func (s *Sink) MaxSeq(ctx context.Context) (uint64, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM messages`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("sink: query max seq: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return uint64(max.Int64), nil
}

// Consume implements feed.Consumer. It queues env for the next batch
// commit; if the queue is full the caller blocks, applying natural
// back-pressure to the ingest driver. Unlike the Hub, the Sink may not
// silently drop a record: every accepted record must be either committed
// or the whole ingest aborted.
func (s *Sink) Consume(env feed.Envelope) {
	s.queue <- env
}

// Close releases the underlying database handle. Call after Run returns.
func (s *Sink) Close() error {
	return s.db.Close()
}

// Run drains the queue into periodic batch commits until t dies or a
// commit fails. A commit failure is fatal: it is returned from Run and no
// further records are accepted. Partial batches are never acknowledged;
// a batch is committed whole or not at all.
func (s *Sink) Run(t *tomb.Tomb) error {
	ticker := time.NewTicker(s.cfg.BatchInterval)
	defer ticker.Stop()

	batch := make([]feed.Envelope, 0, s.cfg.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.commit(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for {
		select {
		case <-t.Dying():
			if err := flush(); err != nil {
				return err
			}
			return nil
		case env := <-s.queue:
			batch = append(batch, env)
			if len(batch) >= s.cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}
		}
	}
}

// commit writes one batch in a single transaction, subject to the commit
// timeout. Any failure here is fatal.
func (s *Sink) commit(batch []feed.Envelope) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CommitTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sink: begin batch of %d: %w", len(batch), err)
	}
	defer tx.Rollback()

	msgStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (seq, ts_event, ts_recv, publisher_id, instrument_id,
			order_id, action, side, price, size, flags, channel_id, sequence)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("sink: prepare messages insert: %w", err)
	}
	defer msgStmt.Close()

	effStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO effects (seq, publisher_created, effect_kind, effect_payload_json, error_kind)
		VALUES (?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("sink: prepare effects insert: %w", err)
	}
	defer effStmt.Close()

	for _, env := range batch {
		m := env.Msg
		if _, err := msgStmt.ExecContext(ctx, env.Seq, m.TsEvent, m.TsRecv, m.PublisherID, m.InstrumentID,
			m.OrderID, uint8(m.Action), uint8(m.Side), m.Price, m.Size, m.Flags, m.ChannelID, m.Sequence); err != nil {
			return fmt.Errorf("sink: insert message seq=%d: %w", env.Seq, err)
		}

		payload, err := json.Marshal(env.Effect)
		if err != nil {
			return fmt.Errorf("sink: marshal effect seq=%d: %w", env.Seq, err)
		}

		var publisherCreated sql.NullInt64
		if env.Effect.PublisherCreated != nil {
			publisherCreated = sql.NullInt64{Int64: int64(*env.Effect.PublisherCreated), Valid: true}
		}
		var errKind sql.NullString
		if env.Effect.Err != nil {
			errKind = sql.NullString{String: env.Effect.ErrKind.String(), Valid: true}
		}
		kind := "None"
		if env.Effect.BookEffect != nil {
			kind = env.Effect.BookEffect.Kind.String()
		}

		if _, err := effStmt.ExecContext(ctx, env.Seq, publisherCreated, kind, string(payload), errKind); err != nil {
			return fmt.Errorf("sink: insert effect seq=%d: %w", env.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sink: commit batch of %d: %w", len(batch), err)
	}
	s.log.Debug().Int("batch_size", len(batch)).Msg("committed batch")
	return nil
}
