package sink

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mbobook/internal/common"
	"mbobook/internal/feed"
	"mbobook/internal/market"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tomb "gopkg.in/tomb.v2"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	cfg.BatchInterval = 10 * time.Millisecond
	return cfg
}

func TestSinkCommitsBatchOnSizeThreshold(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "mbo.db")
	s, err := Open(dbPath, testConfig(), zerolog.Nop())
	require.NoError(t, err)

	tb := &tomb.Tomb{}
	tb.Go(func() error { return s.Run(tb) })

	m := market.New()
	for i := uint64(1); i <= 2; i++ {
		msg := common.MboMsg{Action: common.ActionAdd, InstrumentID: 1, PublisherID: 1, OrderID: common.OrderID(i), Side: common.SideBid, Price: 100, Size: 5}
		eff := m.Apply(msg)
		s.Consume(feed.Envelope{Seq: i, Msg: msg, Effect: eff})
	}

	require.Eventually(t, func() bool {
		var count int
		row := s.db.QueryRow(`SELECT COUNT(*) FROM messages`)
		_ = row.Scan(&count)
		return count == 2
	}, time.Second, 10*time.Millisecond)

	tb.Kill(nil)
	require.NoError(t, tb.Wait())
	require.NoError(t, s.Close())
}

func TestSinkFlushesPartialBatchOnInterval(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "mbo.db")
	s, err := Open(dbPath, testConfig(), zerolog.Nop())
	require.NoError(t, err)

	tb := &tomb.Tomb{}
	tb.Go(func() error { return s.Run(tb) })

	msg := common.MboMsg{Action: common.ActionAdd, InstrumentID: 1, PublisherID: 1, OrderID: 1, Side: common.SideBid, Price: 100, Size: 5}
	s.Consume(feed.Envelope{Seq: 1, Msg: msg})

	require.Eventually(t, func() bool {
		var count int
		row := s.db.QueryRow(`SELECT COUNT(*) FROM messages`)
		_ = row.Scan(&count)
		return count == 1
	}, time.Second, 10*time.Millisecond)

	tb.Kill(nil)
	require.NoError(t, tb.Wait())
	require.NoError(t, s.Close())
}

func TestMaxSeqOnEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "mbo.db")
	s, err := Open(dbPath, DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	maxSeq, err := s.MaxSeq(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0, maxSeq)
}

func TestMaxSeqReflectsCommittedRows(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "mbo.db")
	s, err := Open(dbPath, testConfig(), zerolog.Nop())
	require.NoError(t, err)

	tb := &tomb.Tomb{}
	tb.Go(func() error { return s.Run(tb) })

	for i := uint64(1); i <= 3; i++ {
		msg := common.MboMsg{Action: common.ActionAdd, InstrumentID: 1, PublisherID: 1, OrderID: common.OrderID(i), Side: common.SideBid, Price: 100, Size: 5}
		s.Consume(feed.Envelope{Seq: i, Msg: msg})
	}

	require.Eventually(t, func() bool {
		n, err := s.MaxSeq(context.Background())
		return err == nil && n == 3
	}, time.Second, 10*time.Millisecond)

	tb.Kill(nil)
	require.NoError(t, tb.Wait())
	require.NoError(t, s.Close())
}

func TestWALModeEnabled(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "mbo.db")
	s, err := Open(dbPath, DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	var mode string
	require.NoError(t, s.db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
}
