package runlog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeFailed Outcome = "failed"
)

// Run is a single refresh attempt. AccountKey is the hashed account id, raw
// account ids are never stored.
type Run struct {
	ID          string
	AccountKey  string
	StartedAt   time.Time
	Duration    time.Duration
	Outcome     Outcome
	Error       string
	TermCode    string
	Total       int
	Unsubmitted int
}

type Log struct {
	db *sql.DB
}

func isRemote(dsn string) bool {
	for _, scheme := range []string{"libsql://", "http://", "https://", "ws://", "wss://"} {
		if strings.HasPrefix(dsn, scheme) {
			return true
		}
	}
	return false
}

// Open opens a libsql database for remote dsns and a local sqlite file (or
// ":memory:") otherwise, then applies the schema.
func Open(ctx context.Context, dsn string) (*Log, error) {
	if dsn == "" {
		return nil, fmt.Errorf("a run log dsn was not specified")
	}

	var db *sql.DB
	var err error
	if isRemote(dsn) {
		db, err = sql.Open("libsql", dsn)
	} else {
		db, err = sql.Open("sqlite", dsn)
		if err == nil {
			// sqlite serializes writers, a single connection also keeps
			// ":memory:" databases from splitting per connection
			db.SetMaxOpenConns(1)
		}
	}
	if err != nil {
		return nil, err
	}

	if !isRemote(dsn) && dsn != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, err
		}
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply run log schema: %w", err)
	}
	return &Log{db: db}, nil
}

func (l *Log) Close() error {
	return l.db.Close()
}

const insertRun = `insert into refresh_run (
    id, account_key, started_at, duration_ms, outcome, error, term_code, total, unsubmitted
) values (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Record inserts the run, assigning it an id when it has none.
func (l *Log) Record(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := l.db.ExecContext(
		ctx,
		insertRun,
		run.ID,
		run.AccountKey,
		run.StartedAt.UnixMilli(),
		run.Duration.Milliseconds(),
		string(run.Outcome),
		run.Error,
		run.TermCode,
		run.Total,
		run.Unsubmitted,
	)
	if err != nil {
		return "", err
	}
	return run.ID, nil
}

const selectRecent = `select
    id, account_key, started_at, duration_ms, outcome, error, term_code, total, unsubmitted
from refresh_run
order by started_at desc
limit ?`

// Recent lists up to limit runs, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, selectRecent, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		var run Run
		var startedAt, durationMs int64
		var outcome string
		err := rows.Scan(
			&run.ID,
			&run.AccountKey,
			&startedAt,
			&durationMs,
			&outcome,
			&run.Error,
			&run.TermCode,
			&run.Total,
			&run.Unsubmitted,
		)
		if err != nil {
			return nil, err
		}
		run.StartedAt = time.UnixMilli(startedAt)
		run.Duration = time.Duration(durationMs) * time.Millisecond
		run.Outcome = Outcome(outcome)
		out = append(out, run)
	}
	return out, rows.Err()
}
