package database

import (
	"fmt"

	"github.com/go-while/go-nzbidx/internal/models"
)

// GetActiveReleaseRegexes returns active patterns in application order:
// (ordinal ASC, id ASC).
func (db *Database) GetActiveReleaseRegexes() ([]*models.ReleaseRegex, error) {
	rows, err := retryableQuery(db.mainDB, `
		SELECT id, group_pattern, regex, description, ordinal, active, match_count
		FROM release_regexes WHERE active = 1
		ORDER BY ordinal ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query release regexes: %w", err)
	}
	defer rows.Close()

	var regexes []*models.ReleaseRegex
	for rows.Next() {
		r := &models.ReleaseRegex{}
		if err := rows.Scan(&r.ID, &r.GroupPattern, &r.Regex, &r.Description,
			&r.Ordinal, &r.Active, &r.MatchCount); err != nil {
			return nil, err
		}
		regexes = append(regexes, r)
	}
	return regexes, rows.Err()
}

// InsertReleaseRegex seeds a new pattern.
func (db *Database) InsertReleaseRegex(r *models.ReleaseRegex) error {
	result, err := retryableExec(db.mainDB, `
		INSERT INTO release_regexes (group_pattern, regex, description, ordinal, active)
		VALUES (?, ?, ?, ?, ?)`,
		r.GroupPattern, r.Regex, r.Description, r.Ordinal, r.Active)
	if err != nil {
		return fmt.Errorf("failed to insert release regex: %w", err)
	}
	r.ID, _ = result.LastInsertId()
	return nil
}

// IncrementRegexMatchCount bumps the hit statistic for a pattern.
func (db *Database) IncrementRegexMatchCount(id int64) error {
	_, err := retryableExec(db.mainDB,
		"UPDATE release_regexes SET match_count = match_count + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to increment match_count id=%d: %w", id, err)
	}
	return nil
}

// SetReleaseRegexActive toggles a pattern.
func (db *Database) SetReleaseRegexActive(id int64, active bool) error {
	_, err := retryableExec(db.mainDB,
		"UPDATE release_regexes SET active = ? WHERE id = ?", active, id)
	if err != nil {
		return fmt.Errorf("failed to set regex active id=%d: %w", id, err)
	}
	return nil
}

// GetRegexMatchCount reads back the hit statistic for a pattern.
func (db *Database) GetRegexMatchCount(id int64) (int64, error) {
	var n int64
	err := retryableQueryRowScan(db.mainDB,
		"SELECT match_count FROM release_regexes WHERE id = ?",
		[]interface{}{id}, &n)
	if err != nil {
		return 0, fmt.Errorf("failed to get match_count id=%d: %w", id, err)
	}
	return n, nil
}
