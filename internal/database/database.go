// Package database provides the SQLite-backed store for go-nzbidx.
// It exclusively owns all persistent entities: groups, releases,
// categories, users, settings, ORN mappings and release regexes.
package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"github.com/go-while/go-nzbidx/internal/config"
)

// Database wraps the main SQLite connection.
type Database struct {
	mainDB *sql.DB
	cfg    *config.MainConfig

	StopChan chan struct{}
	WG       sync.WaitGroup
}

// OpenDatabase opens (creating if needed) the main database and applies
// all migrations. Passing nil uses the default config.
func OpenDatabase(cfg *config.MainConfig) (*Database, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}

	if err := createDirIfNotExists(filepath.Dir(cfg.MainDB)); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := createDirIfNotExists(cfg.NZBDir); err != nil {
		return nil, fmt.Errorf("failed to create nzb directory: %w", err)
	}

	mainDB, err := sql.Open("sqlite3", cfg.MainDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open main database: %w", err)
	}

	db := &Database{
		mainDB:   mainDB,
		cfg:      cfg,
		StopChan: make(chan struct{}),
	}

	if err := db.applySQLitePragmas(mainDB); err != nil {
		if cerr := mainDB.Close(); cerr != nil {
			log.Printf("[DATABASE] Failed to close mainDB during pragma error: %v", cerr)
		}
		return nil, err
	}

	if err := db.Migrate(); err != nil {
		if cerr := mainDB.Close(); cerr != nil {
			log.Printf("[DATABASE] Failed to close mainDB during migration error: %v", cerr)
		}
		return nil, fmt.Errorf("failed to migrate main database: %w", err)
	}

	return db, nil
}

// applySQLitePragmas sets the runtime pragmas used on every connection.
func (db *Database) applySQLitePragmas(sqlDB *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=30000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-16000",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}
	return nil
}

// GetDataDir returns the data directory path.
func (db *Database) GetDataDir() string {
	return db.cfg.DataDir
}

// GetNZBDir returns the NZB output directory path.
func (db *Database) GetNZBDir() string {
	return db.cfg.NZBDir
}

// Shutdown closes the database connection after signaling background
// tasks to stop.
func (db *Database) Shutdown() error {
	select {
	case <-db.StopChan:
		// already closed
	default:
		close(db.StopChan)
	}
	db.WG.Wait()

	if db.mainDB != nil {
		if err := db.mainDB.Close(); err != nil {
			return fmt.Errorf("failed to close main database: %w", err)
		}
	}
	log.Printf("[DATABASE] Main database closed")
	return nil
}

// IsDBshutdown reports whether shutdown has been requested.
func (db *Database) IsDBshutdown() bool {
	select {
	case <-db.StopChan:
		return true
	default:
		return false
	}
}

func createDirIfNotExists(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
