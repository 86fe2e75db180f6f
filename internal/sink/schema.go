package sink

const schemaDDL = `
CREATE TABLE IF NOT EXISTS messages (
	seq           INTEGER PRIMARY KEY,
	ts_event      INTEGER NOT NULL,
	ts_recv       INTEGER NOT NULL,
	publisher_id  INTEGER NOT NULL,
	instrument_id INTEGER NOT NULL,
	order_id      INTEGER NOT NULL,
	action        INTEGER NOT NULL,
	side          INTEGER NOT NULL,
	price         INTEGER NOT NULL,
	size          INTEGER NOT NULL,
	flags         INTEGER NOT NULL,
	channel_id    INTEGER NOT NULL,
	sequence      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS effects (
	seq                 INTEGER PRIMARY KEY REFERENCES messages(seq),
	publisher_created   INTEGER,
	effect_kind         TEXT NOT NULL,
	effect_payload_json TEXT NOT NULL,
	error_kind          TEXT
);

CREATE INDEX IF NOT EXISTS idx_messages_instrument_ts ON messages (instrument_id, ts_event);
CREATE INDEX IF NOT EXISTS idx_messages_publisher_ts ON messages (publisher_id, ts_event);
`

const pragmaWAL = `PRAGMA journal_mode = WAL;`
