package deobfuscate

import (
	"log"
	"regexp"
	"sync"

	"github.com/go-while/go-nzbidx/internal/database"
)

// compiledPattern is a release regex ready to apply, with the subexp
// index of the name capture resolved ahead of time.
type compiledPattern struct {
	ID      int64
	Ordinal int
	re      *regexp.Regexp
	nameIdx int
}

// nameGroups are the capture group names recognized as the release
// name, in lookup order. Falls back to capture group 1.
var nameGroups = []string{"name", "release", "title", "releasename"}

// PatternCache holds compiled release regexes keyed by group name.
// Entries are built lazily from the store and dropped on Invalidate,
// e.g. after the admin CLI changes the regex table.
type PatternCache struct {
	db *database.Database

	mu       sync.RWMutex
	byGroup  map[string][]*compiledPattern
	groupRes map[string]*regexp.Regexp
}

// NewPatternCache creates an empty cache backed by the store.
func NewPatternCache(db *database.Database) *PatternCache {
	return &PatternCache{
		db:       db,
		byGroup:  make(map[string][]*compiledPattern),
		groupRes: make(map[string]*regexp.Regexp),
	}
}

// Invalidate drops all compiled entries; the next lookup reloads from
// the store.
func (pc *PatternCache) Invalidate() {
	pc.mu.Lock()
	pc.byGroup = make(map[string][]*compiledPattern)
	pc.groupRes = make(map[string]*regexp.Regexp)
	pc.mu.Unlock()
}

// PatternsFor returns the compiled patterns applicable to a group,
// ordered by (ordinal, id).
func (pc *PatternCache) PatternsFor(groupName string) []*compiledPattern {
	pc.mu.RLock()
	patterns, ok := pc.byGroup[groupName]
	pc.mu.RUnlock()
	if ok {
		return patterns
	}
	return pc.load(groupName)
}

func (pc *PatternCache) load(groupName string) []*compiledPattern {
	rows, err := pc.db.GetActiveReleaseRegexes()
	if err != nil {
		log.Printf("[DEOBF] failed to load release regexes: %v", err)
		return nil
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()
	if patterns, ok := pc.byGroup[groupName]; ok {
		return patterns
	}

	var patterns []*compiledPattern
	for _, row := range rows {
		if !pc.groupMatchesLocked(row.GroupPattern, groupName) {
			continue
		}
		re, err := regexp.Compile(row.Regex)
		if err != nil {
			log.Printf("[DEOBF] skipping invalid regex id=%d: %v", row.ID, err)
			continue
		}
		patterns = append(patterns, &compiledPattern{
			ID:      row.ID,
			Ordinal: row.Ordinal,
			re:      re,
			nameIdx: nameSubexpIndex(re),
		})
	}
	pc.byGroup[groupName] = patterns
	return patterns
}

// groupMatchesLocked checks a regex group_pattern against a group name;
// "*" matches everything. Caller holds pc.mu.
func (pc *PatternCache) groupMatchesLocked(groupPattern, groupName string) bool {
	if groupPattern == "*" || groupPattern == "" {
		return true
	}
	re, ok := pc.groupRes[groupPattern]
	if !ok {
		var err error
		re, err = regexp.Compile(groupPattern)
		if err != nil {
			return false
		}
		pc.groupRes[groupPattern] = re
	}
	return re.MatchString(groupName)
}

// nameSubexpIndex resolves which capture group carries the name.
func nameSubexpIndex(re *regexp.Regexp) int {
	for _, want := range nameGroups {
		for i, sub := range re.SubexpNames() {
			if sub == want {
				return i
			}
		}
	}
	return 1
}

// apply runs one pattern against a subject and validates the extraction.
func (p *compiledPattern) apply(subject string) (string, bool) {
	m := p.re.FindStringSubmatch(subject)
	if m == nil || p.nameIdx >= len(m) {
		return "", false
	}
	name := m[p.nameIdx]
	if !validExtraction(name) {
		return "", false
	}
	return name, true
}

// validExtraction gates regex results: plausible length, enough
// alphanumerics, and not just the hash again.
func validExtraction(name string) bool {
	if len(name) < 5 || len(name) > 250 {
		return false
	}
	alnum := 0
	for _, r := range name {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			alnum++
		}
	}
	if alnum < 3 {
		return false
	}
	return !isBareHash(name)
}
