package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-while/go-nzbidx/internal/models"
)

const releaseColumns = `id, name, search_name, guid, size, files, completion,
	posted_date, status, passworded, category_id, group_id, nzb_guid, processed,
	imdb_id, tvdb_id, tmdb_id, tvmaze_id, video_codec, audio_codec, resolution,
	season, episode, year, artist, album, created_at, updated_at`

func scanRelease(scan func(dest ...interface{}) error) (*models.Release, error) {
	r := &models.Release{}
	var posted sql.NullTime
	err := scan(&r.ID, &r.Name, &r.SearchName, &r.GUID, &r.Size, &r.Files,
		&r.Completion, &posted, &r.Status, &r.Passworded, &r.CategoryID,
		&r.GroupID, &r.NZBGuid, &r.Processed,
		&r.ImdbID, &r.TvdbID, &r.TmdbID, &r.TvmazeID, &r.VideoCodec,
		&r.AudioCodec, &r.Resolution, &r.Season, &r.Episode, &r.Year,
		&r.Artist, &r.Album, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if posted.Valid {
		r.PostedDate = posted.Time
	}
	return r, nil
}

// GetReleaseByGUID returns a release or (nil, nil) when none exists.
func (db *Database) GetReleaseByGUID(guid string) (*models.Release, error) {
	row := db.mainDB.QueryRow(
		"SELECT "+releaseColumns+" FROM releases WHERE guid = ?", guid)
	r, err := scanRelease(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get release guid=%s: %w", guid, err)
	}
	return r, nil
}

// InsertRelease writes a new release row. A unique-constraint race on guid
// is resolved by re-reading the winner, keeping the operation idempotent.
func (db *Database) InsertRelease(r *models.Release) error {
	result, err := retryableExec(db.mainDB, `
		INSERT INTO releases (name, search_name, guid, size, files, completion,
			posted_date, status, passworded, category_id, group_id, nzb_guid, processed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Name, r.SearchName, r.GUID, r.Size, r.Files, r.Completion,
		r.PostedDate, r.Status, r.Passworded, r.CategoryID, r.GroupID,
		r.NZBGuid, r.Processed)
	if err != nil {
		if isUniqueViolation(err) {
			existing, gerr := db.GetReleaseByGUID(r.GUID)
			if gerr == nil && existing != nil {
				*r = *existing
				return nil
			}
		}
		return fmt.Errorf("failed to insert release guid=%s: %w", r.GUID, err)
	}
	r.ID, _ = result.LastInsertId()
	return nil
}

// ExtendRelease updates part accounting for an existing release. Only
// called when the new observation carries more files than the stored row.
func (db *Database) ExtendRelease(guid string, files int, size int64, completion float64) error {
	_, err := retryableExec(db.mainDB, `
		UPDATE releases SET files = ?, size = ?, completion = ?, updated_at = ?
		WHERE guid = ? AND files < ?`,
		files, size, completion, time.Now().UTC(), guid, files)
	if err != nil {
		return fmt.Errorf("failed to extend release guid=%s: %w", guid, err)
	}
	return nil
}

// RenameRelease applies a deobfuscated name, recomputing search_name.
func (db *Database) RenameRelease(guid, name string) error {
	_, err := retryableExec(db.mainDB, `
		UPDATE releases SET name = ?, search_name = ?, updated_at = ?
		WHERE guid = ?`,
		name, models.SearchName(name), time.Now().UTC(), guid)
	if err != nil {
		return fmt.Errorf("failed to rename release guid=%s: %w", guid, err)
	}
	return nil
}

// MarkReleaseProcessed flips the post-processing flag.
func (db *Database) MarkReleaseProcessed(guid string, processed bool) error {
	_, err := retryableExec(db.mainDB,
		"UPDATE releases SET processed = ?, updated_at = ? WHERE guid = ?",
		processed, time.Now().UTC(), guid)
	if err != nil {
		return fmt.Errorf("failed to mark release processed guid=%s: %w", guid, err)
	}
	return nil
}

// CountReleases returns the total number of releases.
func (db *Database) CountReleases() (int64, error) {
	var n int64
	err := retryableQueryRowScan(db.mainDB,
		"SELECT COUNT(*) FROM releases", nil, &n)
	if err != nil {
		return 0, fmt.Errorf("failed to count releases: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
