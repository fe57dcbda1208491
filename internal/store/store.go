package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/docexam/internal/model"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no archived report has the requested ID.
var ErrNotFound = errors.New("report not found")

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// Store archives finished session reports.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// New opens the archive. A postgres:// or postgresql:// DSN selects the pgx
// driver; anything else is treated as a SQLite path (":memory:" included).
func New(dsn string) (*Store, error) {
	var (
		db  *sql.DB
		err error
		d   dialect
	)
	if isPostgres(dsn) {
		d = dialectPostgres
		db, err = sql.Open("pgx", dsn)
	} else {
		d = dialectSQLite
		db, err = sql.Open("sqlite", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if d == dialectSQLite {
		// :memory: databases are per connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, dialect: d}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	ts := "DATETIME"
	if s.dialect == dialectPostgres {
		ts = "TIMESTAMPTZ"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			session_id TEXT PRIMARY KEY,
			document_title TEXT NOT NULL,
			percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			started_at ` + ts + ` NOT NULL,
			archived_at ` + ts + ` NOT NULL,
			body TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS archive_metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// SaveReport archives r, replacing any earlier report for the same session.
func (s *Store) SaveReport(r model.SessionReport) error {
	if r.SessionID == "" {
		return errors.New("save report: empty session id")
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(s.rebind(
		`INSERT INTO reports (session_id, document_title, percentage, status, started_at, archived_at, body)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   document_title = excluded.document_title,
		   percentage = excluded.percentage,
		   status = excluded.status,
		   archived_at = excluded.archived_at,
		   body = excluded.body`),
		r.SessionID, r.DocumentTitle, r.Percentage, string(r.Status), r.StartedAt.UTC(), time.Now().UTC(), string(body),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	if err := s.setMetadata(tx, keyLastSession, r.SessionID); err != nil {
		return fmt.Errorf("record last session: %w", err)
	}
	return tx.Commit()
}

// GetReport returns the archived report for sessionID, or ErrNotFound.
func (s *Store) GetReport(sessionID string) (model.SessionReport, error) {
	var r model.SessionReport
	var body string
	err := s.db.QueryRow(s.rebind(`SELECT body FROM reports WHERE session_id = ?`), sessionID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return r, fmt.Errorf("decode report %s: %w", sessionID, err)
	}
	return r, nil
}

// ListReports returns a summary of every archived report, newest first.
func (s *Store) ListReports() ([]model.ReportSummary, error) {
	rows, err := s.db.Query(
		`SELECT session_id, document_title, percentage, status, archived_at FROM reports ORDER BY archived_at DESC, session_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ReportSummary
	for rows.Next() {
		var rs model.ReportSummary
		var status string
		if err := rows.Scan(&rs.SessionID, &rs.DocumentTitle, &rs.Percentage, &status, &rs.ArchivedAt); err != nil {
			return nil, err
		}
		rs.Status = model.Status(status)
		out = append(out, rs)
	}
	return out, rows.Err()
}

// ReportCount returns the number of archived reports.
func (s *Store) ReportCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM reports`).Scan(&count)
	return count, err
}
