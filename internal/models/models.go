// Package models defines the persistent entities of go-nzbidx.
package models

import (
	"strings"
	"time"
	"unicode"
)

// Group is a tracked newsgroup.
//
// Cursor invariant: FirstArticleID <= BackfillTarget <= CurrentArticleID <= LastArticleID.
// CurrentArticleID only moves forward (update), BackfillTarget only moves
// forward toward CurrentArticleID (backfill consumes the range below it).
type Group struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	Active           bool       `json:"active"`
	Backfill         bool       `json:"backfill"`
	FirstArticleID   int64      `json:"first_article_id"`
	LastArticleID    int64      `json:"last_article_id"`
	CurrentArticleID int64      `json:"current_article_id"`
	BackfillTarget   int64      `json:"backfill_target"`
	MinFiles         int        `json:"min_files"`
	MinSize          int64      `json:"min_size"`
	LastUpdated      *time.Time `json:"last_updated"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Release status values.
const (
	ReleaseStatusUnknown  = 0
	ReleaseStatusActive   = 1
	ReleaseStatusInactive = 2
)

// Passworded tri-state.
const (
	PasswordedUnknown = -1
	PasswordedNo      = 0
	PasswordedYes     = 1
)

// Release is a materialized logical posting.
type Release struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	SearchName string    `json:"search_name"`
	GUID       string    `json:"guid"`
	Size       int64     `json:"size"`
	Files      int       `json:"files"`
	Completion float64   `json:"completion"`
	PostedDate time.Time `json:"posted_date"`
	Status     int       `json:"status"`
	Passworded int       `json:"passworded"`
	CategoryID int64     `json:"category_id"`
	GroupID    int64     `json:"group_id"`
	NZBGuid    string    `json:"nzb_guid"`
	Processed  bool      `json:"processed"`

	// Optional media metadata filled by post-processing.
	ImdbID     string `json:"imdb_id,omitempty"`
	TvdbID     int64  `json:"tvdb_id,omitempty"`
	TmdbID     int64  `json:"tmdb_id,omitempty"`
	TvmazeID   int64  `json:"tvmaze_id,omitempty"`
	VideoCodec string `json:"video_codec,omitempty"`
	AudioCodec string `json:"audio_codec,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	Season     int    `json:"season,omitempty"`
	Episode    int    `json:"episode,omitempty"`
	Year       int    `json:"year,omitempty"`
	Artist     string `json:"artist,omitempty"`
	Album      string `json:"album,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ORN mapping sources. The regex source carries the pattern id as suffix
// (regex_pattern_<id>), predb sources carry the endpoint name.
const (
	ORNSourceManual    = "manual"
	ORNSourceNewznab   = "newznab"
	ORNSourceArchive   = "archive"
	ORNSourceCommunity = "community"
	ORNSourceImported  = "imported"
)

// ORNMapping caches an obfuscated-name to real-name resolution.
type ORNMapping struct {
	ID             int64      `json:"id"`
	ObfuscatedHash string     `json:"obfuscated_hash"`
	RealName       string     `json:"real_name"`
	Source         string     `json:"source"`
	Confidence     float64    `json:"confidence"`
	UseCount       int64      `json:"use_count"`
	CreatedAt      time.Time  `json:"created_at"`
	LastUsed       *time.Time `json:"last_used"`
}

// ReleaseRegex is an ordered deobfuscation pattern. GroupPattern is a regex
// over group names or the literal "*" for all groups. The regex must yield
// a named capture (name/release/title/releasename) or carry the release
// name in its first group.
type ReleaseRegex struct {
	ID           int64  `json:"id"`
	GroupPattern string `json:"group_pattern"`
	Regex        string `json:"regex"`
	Description  string `json:"description"`
	Ordinal      int    `json:"ordinal"`
	Active       bool   `json:"active"`
	MatchCount   int64  `json:"match_count"`
}

// Category is a release category. Categories form a shallow tree via
// ParentID; the default "Other" category is created on demand.
type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID int64  `json:"parent_id"`
	Active   bool   `json:"active"`
}

// Setting is a key/value runtime configuration row.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// User is an account row. Only the store schema is owned here; the web
// login surface is an external collaborator.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	APIKey       string    `json:"api_key"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// SearchName derives the lowercased, squashed search form of a release
// name: non-alphanumerics become spaces, runs of spaces collapse.
func SearchName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	lastSpace := true
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// BinaryKey reduces a binary name to its aggregation key: lowercase with
// everything except letters and digits removed.
func BinaryKey(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
