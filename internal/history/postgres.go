package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of *pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PoolConfig configures the connection pool.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Connect opens and verifies a connection pool.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

var schemaSQL = []string{`
CREATE TABLE IF NOT EXISTS export_history (
	id          UUID PRIMARY KEY,
	kind        TEXT NOT NULL,
	source      TEXT,
	report_type TEXT,
	requested   TEXT NOT NULL,
	produced    TEXT,
	filename    TEXT,
	row_count   INTEGER NOT NULL DEFAULT 0,
	degraded    BOOLEAN NOT NULL DEFAULT FALSE,
	notice      TEXT,
	error       TEXT,
	ip_address  TEXT,
	user_agent  TEXT,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS export_history_created_at_idx ON export_history (created_at DESC)`,
}

const insertSQL = `
INSERT INTO export_history (
	id, kind, source, report_type, requested, produced, filename, row_count,
	degraded, notice, error, ip_address, user_agent, duration_ms, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

const selectColumns = `id, kind, source, report_type, requested, produced, filename, row_count,
	degraded, notice, error, ip_address, user_agent, duration_ms, created_at`

// PostgresStore keeps history in the export_history table.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a store backed by db.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the history table and index if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaSQL {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create export_history: %w", err)
		}
	}
	return nil
}

// Insert implements Store.
func (s *PostgresStore) Insert(ctx context.Context, e Entry) error {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return fmt.Errorf("history entry id: %w", err)
	}

	_, err = s.db.Exec(ctx, insertSQL,
		pgtype.UUID{Bytes: id, Valid: true},
		string(e.Kind),
		toPgText(string(e.Source)),
		toPgText(e.ReportType),
		e.Requested,
		toPgText(e.Produced),
		toPgText(e.Filename),
		int32(e.Rows),
		e.Degraded,
		toPgText(e.Notice),
		toPgText(e.Error),
		toPgText(e.IPAddress),
		toPgText(e.UserAgent),
		e.DurationMS,
		pgtype.Timestamptz{Time: e.CreatedAt, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("insert export history: %w", err)
	}
	return nil
}

// Recent implements Store.
func (s *PostgresStore) Recent(ctx context.Context, f Filter) ([]Entry, error) {
	query, args := recentQuery(f.normalize())

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query export history: %w", err)
	}

	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("scan export history: %w", err)
	}
	return entries, nil
}

// recentQuery builds the filtered SELECT with positional arguments.
func recentQuery(f Filter) (string, []any) {
	var where []string
	var args []any

	if f.Format != "" {
		args = append(args, f.Format)
		where = append(where, fmt.Sprintf("(requested = $%d OR produced = $%d)", len(args), len(args)))
	}
	if f.ReportType != "" {
		args = append(args, f.ReportType)
		where = append(where, fmt.Sprintf("report_type = $%d", len(args)))
	}
	if !f.Since.IsZero() {
		args = append(args, pgtype.Timestamptz{Time: f.Since, Valid: true})
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(selectColumns)
	b.WriteString(" FROM export_history")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	args = append(args, int32(f.Limit))
	fmt.Fprintf(&b, " ORDER BY created_at DESC LIMIT $%d", len(args))
	return b.String(), args
}

func scanEntry(row pgx.CollectableRow) (Entry, error) {
	var (
		id                           pgtype.UUID
		kind, requested              string
		source, reportType, produced pgtype.Text
		filename, notice, errText    pgtype.Text
		ip, ua                       pgtype.Text
		rowCount                     int32
		degraded                     bool
		durationMS                   int64
		createdAt                    pgtype.Timestamptz
	)
	err := row.Scan(&id, &kind, &source, &reportType, &requested, &produced, &filename,
		&rowCount, &degraded, &notice, &errText, &ip, &ua, &durationMS, &createdAt)
	if err != nil {
		return Entry{}, err
	}

	return Entry{
		ID:         uuidToString(id),
		Kind:       Kind(kind),
		Source:     Source(source.String),
		ReportType: reportType.String,
		Requested:  requested,
		Produced:   produced.String,
		Filename:   filename.String,
		Rows:       int(rowCount),
		Degraded:   degraded,
		Notice:     notice.String,
		Error:      errText.String,
		IPAddress:  ip.String,
		UserAgent:  ua.String,
		DurationMS: durationMS,
		CreatedAt:  createdAt.Time,
	}, nil
}

// PurgeOlderThan implements Store.
func (s *PostgresStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, "DELETE FROM export_history WHERE created_at < $1",
		pgtype.Timestamptz{Time: cutoff, Valid: true})
	if err != nil {
		return 0, fmt.Errorf("purge export history: %w", err)
	}
	return tag.RowsAffected(), nil
}

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func uuidToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}
