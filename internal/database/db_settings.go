package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-while/go-nzbidx/internal/config"
)

// Settings is an immutable snapshot of the runtime configuration handed
// to scheduler workers. Build one with LoadSettings.
type Settings struct {
	AllowRegistration  bool
	NNTPServer         string
	NNTPPort           int
	NNTPSSL            bool
	NNTPSSLPort        int
	NNTPUsername       string
	NNTPPassword       string
	UpdateThreads      int
	ReleasesThreads    int
	PostprocessThreads int
	BackfillDays       int
	RetentionDays      int
}

// GetSetting returns the stored value for key, or def when absent.
func (db *Database) GetSetting(key, def string) (string, error) {
	var value string
	err := retryableQueryRowScan(db.mainDB,
		"SELECT value FROM settings WHERE key = ?", []interface{}{key}, &value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return def, nil
		}
		return def, fmt.Errorf("failed to get setting '%s': %w", key, err)
	}
	return value, nil
}

// SetSetting stores a key/value pair.
func (db *Database) SetSetting(key, value string) error {
	_, err := retryableExec(db.mainDB,
		"INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting '%s': %w", key, err)
	}
	return nil
}

func (db *Database) settingInt(key string, def int) int {
	v, err := db.GetSetting(key, strconv.Itoa(def))
	if err != nil {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (db *Database) settingBool(key string, def bool) bool {
	v, err := db.GetSetting(key, strconv.FormatBool(def))
	if err != nil {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (db *Database) settingString(key, def string) string {
	v, err := db.GetSetting(key, def)
	if err != nil {
		return def
	}
	return v
}

// LoadSettings reads the full settings snapshot, applying defaults for
// absent keys.
func (db *Database) LoadSettings() *Settings {
	s := &Settings{
		AllowRegistration:  db.settingBool("allow_registration", false),
		NNTPServer:         db.settingString("nntp_server", ""),
		NNTPPort:           db.settingInt("nntp_port", config.DefaultNNTPPort),
		NNTPSSL:            db.settingBool("nntp_ssl", false),
		NNTPSSLPort:        db.settingInt("nntp_ssl_port", config.DefaultNNTPSSLPort),
		NNTPUsername:       db.settingString("nntp_username", ""),
		NNTPPassword:       db.settingString("nntp_password", ""),
		UpdateThreads:      db.settingInt("update_threads", 1),
		ReleasesThreads:    db.settingInt("releases_threads", 1),
		PostprocessThreads: db.settingInt("postprocess_threads", 1),
		BackfillDays:       db.settingInt("backfill_days", 3),
		RetentionDays:      db.settingInt("retention_days", 1100),
	}
	if s.UpdateThreads < 1 {
		s.UpdateThreads = 1
	}
	if s.RetentionDays < 1 {
		s.RetentionDays = 1
	}
	return s
}

// Provider materializes the NNTP provider described by the settings
// rows. Enabled is false until an nntp_server is configured.
func (s *Settings) Provider() *config.Provider {
	port := s.NNTPPort
	if s.NNTPSSL {
		port = s.NNTPSSLPort
	}
	return &config.Provider{
		Name:     s.NNTPServer,
		Host:     s.NNTPServer,
		Port:     port,
		SSL:      s.NNTPSSL,
		Username: s.NNTPUsername,
		Password: s.NNTPPassword,
		MaxConns: s.UpdateThreads,
		Enabled:  s.NNTPServer != "",
		Priority: 1,
	}
}

// BackfillThreads derives the backfill pool size from update_threads.
func (s *Settings) BackfillThreads() int {
	n := s.UpdateThreads / 2
	if n < 1 {
		n = 1
	}
	return n
}
