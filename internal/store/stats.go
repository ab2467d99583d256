package store

import (
	"database/sql"
	"fmt"
)

// Well-known stat keys
const (
	StatSchemaVersion = "schema_version"
	StatLastSync      = "last_sync"
	StatLastSyncRun   = "last_sync_run"
	StatLastDateTag   = "last_date_tag"
)

// Stat is one bookkeeping property
type Stat struct {
	Property string
	Value    string
}

// SetStat creates or overwrites a property
func (s *Store) SetStat(property, value string) error {
	_, err := s.db.Exec(s.q(`
		INSERT INTO {p}stats (property, value) VALUES (?, ?)
		ON CONFLICT(property) DO UPDATE SET value = excluded.value
	`), property, value)
	if err != nil {
		return fmt.Errorf("failed to set stat %s: %w", property, err)
	}
	return nil
}

// GetStat returns a property value; ok is false when it was never set
func (s *Store) GetStat(property string) (string, bool, error) {
	var value sql.NullString
	err := s.db.QueryRow(s.q(`SELECT value FROM {p}stats WHERE property = ?`), property).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get stat %s: %w", property, err)
	}
	return value.String, true, nil
}

// ListStats returns every property ordered by name
func (s *Store) ListStats() ([]Stat, error) {
	rows, err := s.db.Query(s.q(`SELECT property, COALESCE(value, '') FROM {p}stats ORDER BY property`))
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	var stats []Stat
	for rows.Next() {
		var st Stat
		if err := rows.Scan(&st.Property, &st.Value); err != nil {
			return nil, fmt.Errorf("failed to scan stat: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
