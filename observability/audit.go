// CLAUDE:SUMMARY Asynchronous SQLite journal of tool invocations with batched writes, filtered queries, retention cleanup and a kit middleware.
// Package observability records every tool invocation in a SQLite journal
// and builds the process logger.
//
// Writes are queued and flushed in batches by one goroutine; a full queue
// falls back to a synchronous insert so no entry is dropped.
package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/discordweb/dbopen"
	"github.com/hazyhaar/discordweb/idgen"
	"github.com/hazyhaar/discordweb/kit"
)

// Call statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Entry is one tool invocation.
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Tool       string    `json:"tool"`
	RequestID  string    `json:"request_id,omitempty"`
	Transport  string    `json:"transport,omitempty"`
	Arguments  string    `json:"arguments"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

// Filter narrows Query. Zero fields do not filter.
type Filter struct {
	Tool   string
	Status string
	Since  time.Time
	Until  time.Time
	Limit  int // default 100
}

const insertEntry = `INSERT INTO tool_calls
	(entry_id, timestamp, tool, request_id, transport, arguments, status, error, duration_ms)
	VALUES (?,?,?,?,?,?,?,?,?)`

// Journal persists Entries asynchronously.
type Journal struct {
	db        *sql.DB
	newID     idgen.Generator
	logger    *slog.Logger
	batchSize int
	interval  time.Duration
	ch        chan *Entry
	stop      chan struct{}
	done      chan struct{}
}

// Option configures a Journal.
type Option func(*Journal)

// WithIDGenerator sets the entry id generator. Default: "aud_" + UUIDv7.
func WithIDGenerator(gen idgen.Generator) Option { return func(j *Journal) { j.newID = gen } }

// WithLogger sets the logger used for write failures.
func WithLogger(l *slog.Logger) Option { return func(j *Journal) { j.logger = l } }

// WithFlush sets the batch size and flush interval. Defaults: 100, 5s.
func WithFlush(batchSize int, interval time.Duration) Option {
	return func(j *Journal) { j.batchSize, j.interval = batchSize, interval }
}

// NewJournal applies Schema to db and starts the flush goroutine.
func NewJournal(db *sql.DB, opts ...Option) (*Journal, error) {
	if err := Init(db); err != nil {
		return nil, fmt.Errorf("observability: init schema: %w", err)
	}
	j := &Journal{
		db:        db,
		newID:     idgen.Prefixed("aud_", idgen.Default),
		logger:    slog.Default(),
		batchSize: 100,
		interval:  5 * time.Second,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(j)
	}
	j.ch = make(chan *Entry, 10*j.batchSize)
	go j.flushLoop()
	return j, nil
}

// Record queues e, filling its id, timestamp and status when empty.
func (j *Journal) Record(e *Entry) {
	j.fillDefaults(e)
	select {
	case j.ch <- e:
	default:
		j.logger.Warn("observability: journal queue full, writing inline", "tool", e.Tool)
		if err := j.write(context.Background(), []*Entry{e}); err != nil {
			j.logger.Error("observability: inline write failed", "error", err)
		}
	}
}

// Middleware records every call passing through an endpoint. Tool name,
// request id, transport and arguments come from the kit context values.
func (j *Journal) Middleware() kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			e := &Entry{
				Timestamp:  start,
				Tool:       kit.GetTool(ctx),
				RequestID:  kit.GetRequestID(ctx),
				Transport:  kit.GetTransport(ctx),
				Arguments:  string(kit.GetArguments(ctx)),
				DurationMs: time.Since(start).Milliseconds(),
			}
			if err != nil {
				e.Status, e.Error = StatusError, err.Error()
			}
			j.Record(e)
			return resp, err
		}
	}
}

// Query returns entries matching f, newest first.
func (j *Journal) Query(ctx context.Context, f Filter) ([]Entry, error) {
	q := `SELECT entry_id, timestamp, tool, request_id, transport, arguments, status, error, duration_ms
		FROM tool_calls WHERE 1=1`
	var args []any
	if f.Tool != "" {
		q += " AND tool = ?"
		args = append(args, f.Tool)
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status)
	}
	if !f.Since.IsZero() {
		q += " AND timestamp >= ?"
		args = append(args, f.Since.UnixMilli())
	}
	if !f.Until.IsZero() {
		q += " AND timestamp <= ?"
		args = append(args, f.Until.UnixMilli())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " ORDER BY timestamp DESC, entry_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observability: query: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var ts int64
		var requestID, transport, errMsg sql.NullString
		if err := rows.Scan(&e.ID, &ts, &e.Tool, &requestID, &transport,
			&e.Arguments, &e.Status, &errMsg, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("observability: scan: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		e.RequestID, e.Transport, e.Error = requestID.String, transport.String, errMsg.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Cleanup deletes entries older than retentionDays and returns how many.
func (j *Journal) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	threshold := time.Now().AddDate(0, 0, -retentionDays).UnixMilli()
	res, err := dbopen.Exec(ctx, j.db, "DELETE FROM tool_calls WHERE timestamp < ?", threshold)
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close flushes queued entries and stops the flush goroutine.
func (j *Journal) Close() error {
	close(j.stop)
	<-j.done
	return nil
}

func (j *Journal) fillDefaults(e *Entry) {
	if e.ID == "" {
		e.ID = j.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Arguments == "" {
		e.Arguments = "{}"
	}
	if e.Status == "" {
		e.Status = StatusSuccess
		if e.Error != "" {
			e.Status = StatusError
		}
	}
}

func (j *Journal) write(ctx context.Context, batch []*Entry) error {
	return dbopen.RunTx(ctx, j.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertEntry)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range batch {
			if _, err := stmt.ExecContext(ctx, e.ID, e.Timestamp.UnixMilli(), e.Tool,
				e.RequestID, e.Transport, e.Arguments, e.Status, e.Error, e.DurationMs); err != nil {
				return fmt.Errorf("insert %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

func (j *Journal) flushLoop() {
	defer close(j.done)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	batch := make([]*Entry, 0, j.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := j.write(ctx, batch); err != nil {
			j.logger.Error("observability: flush failed", "entries", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-j.stop:
			for {
				select {
				case e := <-j.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		case e := <-j.ch:
			batch = append(batch, e)
			if len(batch) >= j.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
