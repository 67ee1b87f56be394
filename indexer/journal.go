package indexer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"rentescrow/core/events"
)

// ErrPathRequired is returned when the journal path is missing.
var ErrPathRequired = errors.New("indexer: journal path must be configured")

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Journal persists committed ledger events into SQLite so listings can be
// queried by record, owner or event type without scanning state.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Entry is one journaled event.
type Entry struct {
	Sequence   int64             `json:"sequence"`
	Height     uint64            `json:"height"`
	TxHash     string            `json:"txHash"`
	Index      int               `json:"index"`
	Type       string            `json:"type"`
	Record     string            `json:"record,omitempty"`
	Owner      string            `json:"owner,omitempty"`
	Renter     string            `json:"renter,omitempty"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// Filter narrows a journal query. Zero values match everything.
type Filter struct {
	Record     string
	Owner      string
	Type       string
	FromHeight uint64
	Limit      int
}

// Open initialises the journal using a sqlite DSN. ":memory:" keeps the
// journal in process.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if dsn == ":memory:" {
		// every pooled connection would otherwise see its own database
		db.SetMaxOpenConns(1)
	}
	if logger == nil {
		logger = slog.Default()
	}
	j := &Journal{db: db, logger: logger.With(slog.String("component", "indexer"))}
	if err := j.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS events (
            sequence INTEGER PRIMARY KEY AUTOINCREMENT,
            height INTEGER NOT NULL,
            tx_hash TEXT NOT NULL,
            idx INTEGER NOT NULL,
            type TEXT NOT NULL,
            record TEXT,
            owner TEXT,
            renter TEXT,
            payload TEXT NOT NULL,
            recorded_at TIMESTAMP NOT NULL,
            UNIQUE(tx_hash, idx)
        );`,
		`CREATE INDEX IF NOT EXISTS events_record ON events(record);`,
		`CREATE INDEX IF NOT EXISTS events_owner ON events(owner);`,
		`CREATE INDEX IF NOT EXISTS events_type ON events(type);`,
	}
	for _, stmt := range schema {
		if _, err := j.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close releases database resources.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Emit implements events.Emitter. Only committed events are journaled; write
// failures are logged because emitters cannot fail the transaction that has
// already been committed.
func (j *Journal) Emit(evt events.Event) {
	committed, ok := evt.(events.Committed)
	if !ok || j == nil {
		return
	}
	if err := j.Record(context.Background(), committed); err != nil {
		j.logger.Error("journal event", slog.String("type", committed.Inner.Type), slog.Any("error", err))
	}
}

// Record persists a committed event. Re-recording the same transaction index
// is a no-op.
func (j *Journal) Record(ctx context.Context, c events.Committed) error {
	if j == nil || j.db == nil {
		return fmt.Errorf("journal not configured")
	}
	attrs := c.Inner.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	payload, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `
        INSERT INTO events(height, tx_hash, idx, type, record, owner, renter, payload, recorded_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(tx_hash, idx) DO NOTHING
    `, c.Height, fmt.Sprintf("%x", c.TxHash), c.Index, c.Inner.Type,
		nullable(attrs["record"]), nullable(attrs["owner"]), nullable(attrs["renter"]),
		string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

// Query returns journaled events in commit order.
func (j *Journal) Query(ctx context.Context, f Filter) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, fmt.Errorf("journal not configured")
	}
	clauses := []string{"height >= ?"}
	args := []interface{}{f.FromHeight}
	if v := strings.TrimSpace(f.Record); v != "" {
		clauses = append(clauses, "record = ?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(f.Owner); v != "" {
		clauses = append(clauses, "owner = ?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(f.Type); v != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, v)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	args = append(args, limit)
	query := `SELECT sequence, height, tx_hash, idx, type, record, owner, renter, payload, recorded_at
        FROM events WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY sequence ASC LIMIT ?`
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			entry                 Entry
			record, owner, renter sql.NullString
			payload               string
		)
		if err := rows.Scan(&entry.Sequence, &entry.Height, &entry.TxHash, &entry.Index, &entry.Type,
			&record, &owner, &renter, &payload, &entry.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		entry.Record = record.String
		entry.Owner = owner.String
		entry.Renter = renter.String
		if err := json.Unmarshal([]byte(payload), &entry.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// LatestHeight returns the highest journaled height, or zero when empty.
func (j *Journal) LatestHeight(ctx context.Context) (uint64, error) {
	var height sql.NullInt64
	if err := j.db.QueryRowContext(ctx, `SELECT MAX(height) FROM events`).Scan(&height); err != nil {
		return 0, fmt.Errorf("query height: %w", err)
	}
	if !height.Valid {
		return 0, nil
	}
	return uint64(height.Int64), nil
}
