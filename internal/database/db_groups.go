package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-while/go-nzbidx/internal/models"
)

const groupColumns = `id, name, active, backfill, first_article_id, last_article_id,
	current_article_id, backfill_target, min_files, min_size, last_updated, created_at`

func scanGroup(scan func(dest ...interface{}) error) (*models.Group, error) {
	g := &models.Group{}
	var lastUpdated sql.NullTime
	err := scan(&g.ID, &g.Name, &g.Active, &g.Backfill, &g.FirstArticleID,
		&g.LastArticleID, &g.CurrentArticleID, &g.BackfillTarget,
		&g.MinFiles, &g.MinSize, &lastUpdated, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastUpdated.Valid {
		g.LastUpdated = &lastUpdated.Time
	}
	return g, nil
}

// InsertGroup creates a new tracked newsgroup.
func (db *Database) InsertGroup(g *models.Group) error {
	result, err := retryableExec(db.mainDB, `
		INSERT INTO groups (name, active, backfill, min_files, min_size)
		VALUES (?, ?, ?, ?, ?)`,
		g.Name, g.Active, g.Backfill, g.MinFiles, g.MinSize)
	if err != nil {
		return fmt.Errorf("failed to insert group '%s': %w", g.Name, err)
	}
	g.ID, _ = result.LastInsertId()
	return nil
}

// GetGroupByName returns a group row, or sql.ErrNoRows wrapped.
func (db *Database) GetGroupByName(name string) (*models.Group, error) {
	row := db.mainDB.QueryRow(
		"SELECT "+groupColumns+" FROM groups WHERE name = ?", name)
	g, err := scanGroup(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("failed to get group '%s': %w", name, err)
	}
	return g, nil
}

// GetGroupByID returns a group row by id.
func (db *Database) GetGroupByID(id int64) (*models.Group, error) {
	row := db.mainDB.QueryRow(
		"SELECT "+groupColumns+" FROM groups WHERE id = ?", id)
	g, err := scanGroup(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("failed to get group id=%d: %w", id, err)
	}
	return g, nil
}

func (db *Database) queryGroups(where string, args ...interface{}) ([]*models.Group, error) {
	rows, err := retryableQuery(db.mainDB,
		"SELECT "+groupColumns+" FROM groups "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		g, err := scanGroup(rows.Scan)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// GetActiveGroups returns groups eligible for the update loop.
func (db *Database) GetActiveGroups() ([]*models.Group, error) {
	return db.queryGroups("WHERE active = 1 ORDER BY name")
}

// GetBackfillGroups returns groups eligible for the backfill loop.
func (db *Database) GetBackfillGroups() ([]*models.Group, error) {
	return db.queryGroups("WHERE backfill = 1 ORDER BY name")
}

// GetAllGroups returns all tracked groups.
func (db *Database) GetAllGroups() ([]*models.Group, error) {
	return db.queryGroups("ORDER BY name")
}

// UpdateGroupRange stores the server-observed article range at last poll.
func (db *Database) UpdateGroupRange(groupID, first, last int64) error {
	_, err := retryableExec(db.mainDB, `
		UPDATE groups SET first_article_id = ?, last_article_id = ?, last_updated = ?
		WHERE id = ?`, first, last, time.Now().UTC(), groupID)
	if err != nil {
		return fmt.Errorf("failed to update group range id=%d: %w", groupID, err)
	}
	return nil
}

// AdvanceGroupCursor moves the forward cursor. The cursor is monotone:
// a value below the stored one is a caller bug and is rejected by the
// WHERE clause rather than silently rewinding the group.
func (db *Database) AdvanceGroupCursor(groupID, current int64) error {
	_, err := retryableExec(db.mainDB, `
		UPDATE groups SET current_article_id = ?, last_updated = ?
		WHERE id = ? AND current_article_id <= ?`,
		current, time.Now().UTC(), groupID, current)
	if err != nil {
		return fmt.Errorf("failed to advance cursor id=%d: %w", groupID, err)
	}
	return nil
}

// SetBackfillTarget stores a recomputed backfill target (cursor
// correction), bypassing the monotone guard.
func (db *Database) SetBackfillTarget(groupID, target int64) error {
	_, err := retryableExec(db.mainDB,
		"UPDATE groups SET backfill_target = ? WHERE id = ?", target, groupID)
	if err != nil {
		return fmt.Errorf("failed to set backfill target id=%d: %w", groupID, err)
	}
	return nil
}

// AdvanceBackfillTarget moves the backfill target forward (backfill
// consumes the range below the forward cursor).
func (db *Database) AdvanceBackfillTarget(groupID, target int64) error {
	_, err := retryableExec(db.mainDB, `
		UPDATE groups SET backfill_target = ? WHERE id = ? AND backfill_target <= ?`,
		target, groupID, target)
	if err != nil {
		return fmt.Errorf("failed to advance backfill target id=%d: %w", groupID, err)
	}
	return nil
}

// SetGroupActive toggles the update eligibility flag.
func (db *Database) SetGroupActive(name string, active bool) error {
	_, err := retryableExec(db.mainDB,
		"UPDATE groups SET active = ? WHERE name = ?", active, name)
	if err != nil {
		return fmt.Errorf("failed to set group '%s' active=%v: %w", name, active, err)
	}
	return nil
}

// SetGroupBackfill toggles the backfill eligibility flag.
func (db *Database) SetGroupBackfill(name string, backfill bool) error {
	_, err := retryableExec(db.mainDB,
		"UPDATE groups SET backfill = ? WHERE name = ?", backfill, name)
	if err != nil {
		return fmt.Errorf("failed to set group '%s' backfill=%v: %w", name, backfill, err)
	}
	return nil
}

// DeleteGroup removes a tracked group.
func (db *Database) DeleteGroup(name string) error {
	_, err := retryableExec(db.mainDB, "DELETE FROM groups WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete group '%s': %w", name, err)
	}
	return nil
}
