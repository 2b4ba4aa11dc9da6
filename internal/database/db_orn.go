package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-while/go-nzbidx/internal/models"
)

// GetORNMapping looks up a cached obfuscated-name resolution by its
// normalized hash. A hit bumps use_count and last_used.
func (db *Database) GetORNMapping(hash string) (*models.ORNMapping, error) {
	m := &models.ORNMapping{}
	var lastUsed sql.NullTime
	err := retryableQueryRowScan(db.mainDB, `
		SELECT id, obfuscated_hash, real_name, source, confidence, use_count, created_at, last_used
		FROM orn_mappings WHERE obfuscated_hash = ?`,
		[]interface{}{hash},
		&m.ID, &m.ObfuscatedHash, &m.RealName, &m.Source, &m.Confidence,
		&m.UseCount, &m.CreatedAt, &lastUsed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ORN mapping '%s': %w", hash, err)
	}
	if lastUsed.Valid {
		m.LastUsed = &lastUsed.Time
	}

	now := time.Now().UTC()
	if _, err := retryableExec(db.mainDB, `
		UPDATE orn_mappings SET use_count = use_count + 1, last_used = ? WHERE id = ?`,
		now, m.ID); err != nil {
		return nil, fmt.Errorf("failed to bump ORN mapping '%s': %w", hash, err)
	}
	m.UseCount++
	m.LastUsed = &now
	return m, nil
}

// UpsertORNMapping stores a resolution. Confidence is monotone: an update
// with lower confidence than the stored row leaves the row unchanged.
func (db *Database) UpsertORNMapping(m *models.ORNMapping) error {
	return retryableTransactionExec(db.mainDB, func(tx *sql.Tx) error {
		var id int64
		var confidence float64
		err := tx.QueryRow(
			"SELECT id, confidence FROM orn_mappings WHERE obfuscated_hash = ?",
			m.ObfuscatedHash).Scan(&id, &confidence)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			result, err := tx.Exec(`
				INSERT INTO orn_mappings (obfuscated_hash, real_name, source, confidence)
				VALUES (?, ?, ?, ?)`,
				m.ObfuscatedHash, m.RealName, m.Source, m.Confidence)
			if err != nil {
				return fmt.Errorf("failed to insert ORN mapping '%s': %w", m.ObfuscatedHash, err)
			}
			m.ID, _ = result.LastInsertId()
			return nil
		case err != nil:
			return fmt.Errorf("failed to read ORN mapping '%s': %w", m.ObfuscatedHash, err)
		}

		if m.Confidence < confidence {
			m.ID = id
			return nil
		}
		if _, err := tx.Exec(`
			UPDATE orn_mappings SET real_name = ?, source = ?, confidence = ? WHERE id = ?`,
			m.RealName, m.Source, m.Confidence, id); err != nil {
			return fmt.Errorf("failed to update ORN mapping '%s': %w", m.ObfuscatedHash, err)
		}
		m.ID = id
		return nil
	})
}

// GetORNMappingsAbove returns mappings with confidence >= min, newest
// first. Serves the public sharing boundary.
func (db *Database) GetORNMappingsAbove(minConfidence float64, limit int) ([]*models.ORNMapping, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	rows, err := retryableQuery(db.mainDB, `
		SELECT id, obfuscated_hash, real_name, source, confidence, use_count, created_at, last_used
		FROM orn_mappings WHERE confidence >= ?
		ORDER BY created_at DESC LIMIT ?`, minConfidence, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ORN mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*models.ORNMapping
	for rows.Next() {
		m := &models.ORNMapping{}
		var lastUsed sql.NullTime
		if err := rows.Scan(&m.ID, &m.ObfuscatedHash, &m.RealName, &m.Source,
			&m.Confidence, &m.UseCount, &m.CreatedAt, &lastUsed); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			m.LastUsed = &lastUsed.Time
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}
