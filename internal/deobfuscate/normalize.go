// Package deobfuscate maps obfuscated Usenet release names back to real
// release names through a staged pipeline: local cache, regex patterns,
// archive header parsing and external lookups.
package deobfuscate

import (
	"regexp"
	"strings"
)

// suffixes stripped iteratively from the end of a name before hashing
// or obfuscation checks: archive extensions, multi-volume and part
// counters.
var reStripSuffix = regexp.MustCompile(`(?i)\.(rar|par2|zip|7z|nfo|sfv|r\d{2,3}|part\d+|vol\d+\+\d+)$`)

// NormalizeKey derives the ORN cache key for a name: lowercase, archive
// and volume suffixes stripped until none remain, trailing punctuation
// removed.
func NormalizeKey(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = stripSuffixes(key)
	key = strings.TrimRight(key, ".-_ ")
	return key
}

// stripSuffixes removes trailing archive/part/volume suffixes until the
// name stops changing.
func stripSuffixes(name string) string {
	for {
		stripped := reStripSuffix.ReplaceAllString(name, "")
		if stripped == name {
			return name
		}
		name = stripped
	}
}
