package observability

import "database/sql"

// Schema is the DDL of the tool-call journal.
const Schema = `
CREATE TABLE IF NOT EXISTS tool_calls (
    entry_id    TEXT PRIMARY KEY,
    timestamp   INTEGER NOT NULL,
    tool        TEXT NOT NULL,
    request_id  TEXT,
    transport   TEXT,
    arguments   TEXT NOT NULL DEFAULT '{}',
    status      TEXT NOT NULL,
    error       TEXT,
    duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tool_calls_timestamp ON tool_calls(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_tool_calls_tool ON tool_calls(tool, timestamp DESC);
`

// Init applies Schema to db.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
