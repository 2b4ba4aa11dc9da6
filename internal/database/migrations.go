package database

import (
	"fmt"
	"log"
)

// schemaMigrations are applied in order; the applied set is tracked in the
// schema_migrations table so restarts are idempotent.
var schemaMigrations = []struct {
	Version int
	SQL     string
}{
	{1, `
CREATE TABLE IF NOT EXISTS groups (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	active INTEGER NOT NULL DEFAULT 0,
	backfill INTEGER NOT NULL DEFAULT 0,
	first_article_id INTEGER NOT NULL DEFAULT 0,
	last_article_id INTEGER NOT NULL DEFAULT 0,
	current_article_id INTEGER NOT NULL DEFAULT 0,
	backfill_target INTEGER NOT NULL DEFAULT 0,
	min_files INTEGER NOT NULL DEFAULT 1,
	min_size INTEGER NOT NULL DEFAULT 0,
	last_updated TIMESTAMP,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_groups_active ON groups(active);
`},
	{2, `
CREATE TABLE IF NOT EXISTS categories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	parent_id INTEGER NOT NULL DEFAULT 0,
	active INTEGER NOT NULL DEFAULT 1
);
`},
	{3, `
CREATE TABLE IF NOT EXISTS releases (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	search_name TEXT NOT NULL,
	guid TEXT NOT NULL UNIQUE,
	size INTEGER NOT NULL DEFAULT 0,
	files INTEGER NOT NULL DEFAULT 1,
	completion REAL NOT NULL DEFAULT 0,
	posted_date TIMESTAMP,
	status INTEGER NOT NULL DEFAULT 0,
	passworded INTEGER NOT NULL DEFAULT -1,
	category_id INTEGER NOT NULL DEFAULT 0,
	group_id INTEGER NOT NULL DEFAULT 0,
	nzb_guid TEXT NOT NULL DEFAULT '',
	processed INTEGER NOT NULL DEFAULT 0,
	imdb_id TEXT NOT NULL DEFAULT '',
	tvdb_id INTEGER NOT NULL DEFAULT 0,
	tmdb_id INTEGER NOT NULL DEFAULT 0,
	tvmaze_id INTEGER NOT NULL DEFAULT 0,
	video_codec TEXT NOT NULL DEFAULT '',
	audio_codec TEXT NOT NULL DEFAULT '',
	resolution TEXT NOT NULL DEFAULT '',
	season INTEGER NOT NULL DEFAULT 0,
	episode INTEGER NOT NULL DEFAULT 0,
	year INTEGER NOT NULL DEFAULT 0,
	artist TEXT NOT NULL DEFAULT '',
	album TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_releases_guid ON releases(guid);
CREATE INDEX IF NOT EXISTS idx_releases_name ON releases(name);
CREATE INDEX IF NOT EXISTS idx_releases_search_name ON releases(search_name);
`},
	{4, `
CREATE TABLE IF NOT EXISTS orn_mappings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	obfuscated_hash TEXT NOT NULL UNIQUE,
	real_name TEXT NOT NULL,
	source TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 0,
	use_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_used TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_orn_hash ON orn_mappings(obfuscated_hash);
`},
	{5, `
CREATE TABLE IF NOT EXISTS release_regexes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	group_pattern TEXT NOT NULL DEFAULT '*',
	regex TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	ordinal INTEGER NOT NULL DEFAULT 100,
	active INTEGER NOT NULL DEFAULT 1,
	match_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_release_regexes_order ON release_regexes(ordinal, id);
`},
	{6, `
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);
`},
	{7, `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	api_key TEXT NOT NULL DEFAULT '',
	is_admin INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`},
}

// Migrate brings the main database schema up to date.
func (db *Database) Migrate() error {
	if _, err := retryableExec(db.mainDB, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := retryableQuery(db.mainDB, "SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, m := range schemaMigrations {
		if applied[m.Version] {
			continue
		}
		if _, err := retryableExec(db.mainDB, m.SQL); err != nil {
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}
		if _, err := retryableExec(db.mainDB,
			"INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		log.Printf("[DATABASE] Applied migration %d", m.Version)
	}
	return nil
}
