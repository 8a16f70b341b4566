package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"modelshoot/internal/metrics"
)

// SQLExecutor defines the contract repositories use for executing SQL queries.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DefaultSlowStatement is the latency above which a statement logs a warning.
const DefaultSlowStatement = 250 * time.Millisecond

var markerRegexp = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// SQLRunner requires every statement to start with a "--sql <uuid>" marker
// line, strips it, and reports latency per marker.
type SQLRunner struct {
	DB     Querier
	Logger zerolog.Logger
	Slow   time.Duration
}

func NewSQLRunner(db Querier, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{DB: db, Logger: logger, Slow: DefaultSlowStatement}
}

// WithQuerier returns a runner with the same settings bound to db, typically
// a transaction.
func (r *SQLRunner) WithQuerier(db Querier) *SQLRunner {
	cp := *r
	cp.DB = db
	return &cp
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, body, err := extractMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	start := time.Now()
	tag, err := r.DB.Exec(ctx, body, args...)
	r.observe(marker, "exec", start, err, func(e *zerolog.Event) *zerolog.Event {
		return e.Int64("rows", tag.RowsAffected())
	})
	return tag, err
}

// QueryRow defers timing until Scan, where pgx actually reports the outcome.
func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, body, err := extractMarker(query)
	if err != nil {
		return errorRow{err: err}
	}
	return &timedRow{row: r.DB.QueryRow(ctx, body, args...), runner: r, marker: marker, start: time.Now()}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	marker, body, err := extractMarker(query)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := r.DB.Query(ctx, body, args...)
	if err != nil {
		r.observe(marker, "query", start, err, nil)
		return nil, err
	}
	return &timedRows{Rows: rows, runner: r, marker: marker, start: start}, nil
}

func (r *SQLRunner) observe(marker, op string, start time.Time, err error, fields func(*zerolog.Event) *zerolog.Event) {
	elapsed := time.Since(start)
	result := "ok"
	var evt *zerolog.Event
	switch {
	case err != nil && IsNoRows(err):
		result = "no_rows"
		evt = r.Logger.Debug()
	case err != nil:
		result = "error"
		evt = r.Logger.Error().Err(err)
	case r.Slow > 0 && elapsed > r.Slow:
		evt = r.Logger.Warn().Bool("slow", true)
	default:
		evt = r.Logger.Debug()
	}
	metrics.SQLDuration.WithLabelValues(marker, op, result).Observe(elapsed.Seconds())
	if fields != nil {
		evt = fields(evt)
	}
	evt.Str("sql", marker).Str("op", op).Dur("duration", elapsed).Msg("sql statement")
}

type timedRow struct {
	row    pgx.Row
	runner *SQLRunner
	marker string
	start  time.Time
}

func (t *timedRow) Scan(dest ...any) error {
	err := t.row.Scan(dest...)
	t.runner.observe(t.marker, "query_row", t.start, err, nil)
	return err
}

type timedRows struct {
	pgx.Rows
	runner *SQLRunner
	marker string
	start  time.Time
	count  int64
	done   bool
}

func (t *timedRows) Next() bool {
	if t.Rows.Next() {
		t.count++
		return true
	}
	return false
}

func (t *timedRows) Close() {
	t.Rows.Close()
	if t.done {
		return
	}
	t.done = true
	n := t.count
	t.runner.observe(t.marker, "query", t.start, t.Rows.Err(), func(e *zerolog.Event) *zerolog.Event {
		return e.Int64("rows", n)
	})
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(dest ...any) error {
	return e.err
}

func extractMarker(query string) (string, string, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", "", errors.New("empty query")
	}
	first, body, _ := strings.Cut(trimmed, "\n")
	first = strings.TrimSpace(first)
	if !markerRegexp.MatchString(first) {
		return "", "", errors.New("sql marker missing or invalid")
	}
	return strings.TrimPrefix(first, "--sql "), body, nil
}

var _ SQLExecutor = (*SQLRunner)(nil)
