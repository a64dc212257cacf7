package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB with expertroute-specific helpers.
type DB struct {
	*sql.DB
	path string
}

// Querier is satisfied by both *sql.DB and *sql.Tx, so stores can run their
// statements either standalone or inside a caller's transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open creates or opens a SQLite database at the given path.
//
// Transactions are opened with BEGIN IMMEDIATE so a check-then-write sequence
// (forwarding, responding) holds the write lock from its first read.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	d := &DB{DB: sqlDB, path: path}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// OpenMemory creates an in-memory SQLite database (useful for testing).
// The pool is pinned to one connection because every new :memory:
// connection would otherwise see its own empty database.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	d := &DB{DB: sqlDB, path: ":memory:"}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// Wrap adopts an already-open handle without running migrations. Tests use
// it with sqlmock.
func Wrap(sqlDB *sql.DB) *DB {
	return &DB{DB: sqlDB, path: "external"}
}

// Path returns the location the database was opened from.
func (d *DB) Path() string { return d.path }

// WithTx runs fn inside a transaction, committing on success and rolling back
// on error or panic.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// timeLayout keeps a fixed-width fraction so stored timestamps compare
// correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in UTC in the layout every table stores.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// NullTime converts an optional timestamp into a nullable column value.
func NullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatTime(*t), Valid: true}
}

// ParseTime parses a stored timestamp. The driver may hand DATETIME columns
// back already reformatted as RFC 3339, so both layouts are accepted. An
// unparseable value yields the zero time.
func ParseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, time.DateTime} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ParseNullTime is ParseTime for nullable columns.
func ParseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := ParseTime(ns.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

// BoolInt converts a bool to the 0/1 integer SQLite stores.
func BoolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Page renders the LIMIT/OFFSET tail of a query. SQLite only accepts
// OFFSET after a LIMIT, so an offset on its own gets LIMIT -1 (no limit).
func Page(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset > 0:
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", offset)
	}
	return ""
}

// migrate runs all schema migrations.
func (d *DB) migrate() error {
	_, err := d.Exec(schema)
	return err
}

// schema contains the full database schema. New tables are added here.
const schema = `
CREATE TABLE IF NOT EXISTS questions (
    id TEXT PRIMARY KEY,
    asker_id TEXT NOT NULL,
    title TEXT NOT NULL,
    body TEXT NOT NULL,
    primary_tags TEXT NOT NULL DEFAULT '[]',
    secondary_tags TEXT NOT NULL DEFAULT '[]',
    expected_answer_type TEXT NOT NULL DEFAULT 'tactical'
        CHECK(expected_answer_type IN ('tactical','strategic','resource','introduction','brainstorming')),
    urgency TEXT NOT NULL DEFAULT 'medium' CHECK(urgency IN ('low','medium','high','urgent')),
    ai_summary TEXT NOT NULL DEFAULT '',
    classification_confidence REAL NOT NULL DEFAULT 0,
    classified_at DATETIME,
    visibility_level TEXT NOT NULL
        CHECK(visibility_level IN ('firstDegree','secondDegree','thirdDegree','public')),
    is_anonymous INTEGER NOT NULL DEFAULT 0,
    is_sensitive INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'active' CHECK(status IN ('active','answered','closed')),
    forward_count INTEGER NOT NULL DEFAULT 0,
    view_count INTEGER NOT NULL DEFAULT 0,
    response_count INTEGER NOT NULL DEFAULT 0,
    helpful_votes INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_questions_status ON questions(status, expires_at);
CREATE INDEX IF NOT EXISTS idx_questions_asker ON questions(asker_id);

CREATE TABLE IF NOT EXISTS question_responses (
    id TEXT PRIMARY KEY,
    question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
    responder_id TEXT NOT NULL,
    content TEXT NOT NULL,
    response_type TEXT NOT NULL
        CHECK(response_type IN ('tactical','strategic','resource','introduction','brainstorming')),
    helpful_votes INTEGER NOT NULL DEFAULT 0,
    unhelpful_votes INTEGER NOT NULL DEFAULT 0,
    is_marked_helpful INTEGER NOT NULL DEFAULT 0,
    is_accepted INTEGER NOT NULL DEFAULT 0,
    quality_score REAL,
    source_type TEXT NOT NULL DEFAULT 'human' CHECK(source_type IN ('human','syntheticAssisted')),
    quality_level TEXT CHECK(quality_level IS NULL OR quality_level IN ('low','medium','high')),
    visible_to TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    deleted_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_responses_question ON question_responses(question_id, created_at);

CREATE TABLE IF NOT EXISTS forward_records (
    id TEXT PRIMARY KEY,
    question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
    forwarded_by TEXT NOT NULL,
    forwarded_to TEXT NOT NULL,
    reason TEXT,
    network_degree_at_forward INTEGER NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_forwards_question ON forward_records(question_id, forwarded_to);

CREATE TABLE IF NOT EXISTS question_matches (
    question_id TEXT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
    expert_id TEXT NOT NULL,
    match_score REAL NOT NULL,
    tag_relevance REAL NOT NULL,
    expertise_confidence REAL NOT NULL,
    response_history REAL NOT NULL,
    activity REAL NOT NULL,
    network_distance REAL NOT NULL,
    network_degree INTEGER NOT NULL,
    is_notified INTEGER NOT NULL DEFAULT 0,
    notified_at DATETIME,
    viewed_at DATETIME,
    responded_at DATETIME,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    PRIMARY KEY(question_id, expert_id)
);

CREATE INDEX IF NOT EXISTS idx_matches_expert ON question_matches(expert_id, is_notified);

CREATE TABLE IF NOT EXISTS experts (
    user_id TEXT PRIMARY KEY,
    is_available INTEGER NOT NULL DEFAULT 1,
    response_rate REAL NOT NULL DEFAULT 0,
    avg_response_latency_ms INTEGER NOT NULL DEFAULT 0,
    last_active_at DATETIME,
    max_questions_per_week INTEGER NOT NULL DEFAULT 5,
    current_week_count INTEGER NOT NULL DEFAULT 0,
    week_started_at DATETIME NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS expertise_tags (
    user_id TEXT NOT NULL REFERENCES experts(user_id) ON DELETE CASCADE,
    tag TEXT NOT NULL,
    confidence REAL NOT NULL DEFAULT 0 CHECK(confidence >= 0 AND confidence <= 1),
    PRIMARY KEY(user_id, tag)
);

CREATE INDEX IF NOT EXISTS idx_expertise_tag ON expertise_tags(tag);

CREATE TABLE IF NOT EXISTS connections (
    user_id TEXT NOT NULL,
    peer_id TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    PRIMARY KEY(user_id, peer_id)
);

CREATE TABLE IF NOT EXISTS audit_entries (
    id TEXT PRIMARY KEY,
    timestamp DATETIME NOT NULL,
    actor_type TEXT NOT NULL CHECK(actor_type IN ('user','system')),
    actor_id TEXT NOT NULL,
    action TEXT NOT NULL,
    scope TEXT NOT NULL,
    scope_id TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL DEFAULT '',
    affected_users TEXT NOT NULL DEFAULT '[]',
    previous_value TEXT,
    new_value TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_entries(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_entries(actor_id);
CREATE INDEX IF NOT EXISTS idx_audit_scope ON audit_entries(scope, scope_id);

CREATE TABLE IF NOT EXISTS notifications (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    recipient_id TEXT NOT NULL,
    question_id TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    score REAL NOT NULL DEFAULT 0,
    delivered INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, delivered);

CREATE TABLE IF NOT EXISTS notification_preferences (
    user_id TEXT NOT NULL,
    channel TEXT NOT NULL DEFAULT 'inbox',
    webhook_url TEXT,
    min_score REAL NOT NULL DEFAULT 0,
    PRIMARY KEY(user_id, channel)
);
`
