package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-while/go-nzbidx/internal/models"
)

// DefaultCategoryName is the fallback category for releases that carry no
// categorical hints.
const DefaultCategoryName = "Other"

// GetOrCreateCategory returns the category id for name, creating the row
// on demand. INSERT OR IGNORE followed by a read keeps concurrent callers
// from racing on the unique name.
func (db *Database) GetOrCreateCategory(name string) (int64, error) {
	if name == "" {
		name = DefaultCategoryName
	}
	if _, err := retryableExec(db.mainDB,
		"INSERT OR IGNORE INTO categories (name) VALUES (?)", name); err != nil {
		return 0, fmt.Errorf("failed to upsert category '%s': %w", name, err)
	}
	var id int64
	err := retryableQueryRowScan(db.mainDB,
		"SELECT id FROM categories WHERE name = ?", []interface{}{name}, &id)
	if err != nil {
		return 0, fmt.Errorf("failed to read category '%s': %w", name, err)
	}
	return id, nil
}

// GetCategoryByID returns a category row, or (nil, nil) when absent.
func (db *Database) GetCategoryByID(id int64) (*models.Category, error) {
	c := &models.Category{}
	err := retryableQueryRowScan(db.mainDB,
		"SELECT id, name, parent_id, active FROM categories WHERE id = ?",
		[]interface{}{id}, &c.ID, &c.Name, &c.ParentID, &c.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get category id=%d: %w", id, err)
	}
	return c, nil
}
