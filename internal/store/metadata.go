package store

import (
	"database/sql"
	"errors"

	"github.com/pavelanni/docexam/internal/model"
)

const keyLastSession = "last_session_id"

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (s *Store) setMetadata(db execer, key, value string) error {
	_, err := db.Exec(s.rebind(
		`INSERT INTO archive_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`),
		key, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(s.rebind(`SELECT value FROM archive_metadata WHERE key = ?`), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// LastSessionID returns the session ID of the most recently saved report,
// or "" when the archive is empty.
func (s *Store) LastSessionID() (string, error) {
	return s.GetMetadata(keyLastSession)
}

// LatestReport returns the most recently saved report, or ErrNotFound.
func (s *Store) LatestReport() (model.SessionReport, error) {
	id, err := s.LastSessionID()
	if err != nil {
		return model.SessionReport{}, err
	}
	if id == "" {
		return model.SessionReport{}, ErrNotFound
	}
	return s.GetReport(id)
}
