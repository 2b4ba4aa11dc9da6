// Package archive extracts inner filenames from the decoded prefix of
// archive files posted to Usenet. Only headers are parsed; the prefix
// is usually a truncated slice of the real file, so every parser
// tolerates short or malformed input by returning no result.
package archive

import (
	"path"
	"strings"
)

// ExtractFilename tries each parser in priority order and returns the
// first plausible inner filename found in the prefix.
func ExtractFilename(data []byte) (string, bool) {
	if name, ok := ParsePAR2(data); ok {
		return name, true
	}
	if name, ok := ParseRAR(data); ok {
		return name, true
	}
	if name, ok := ParseZIP(data); ok {
		return name, true
	}
	if name, ok := Parse7z(data); ok {
		return name, true
	}
	return "", false
}

// knownExtensions gates filenames recovered by heuristic scans, where a
// printable run is not proof of a real filename.
var knownExtensions = map[string]bool{
	"rar": true, "zip": true, "7z": true, "par2": true,
	"mkv": true, "avi": true, "mp4": true, "wmv": true, "mov": true,
	"mp3": true, "flac": true, "iso": true, "img": true, "nfo": true,
	"sfv": true, "srr": true, "nzb": true, "epub": true, "pdf": true,
	"ts": true, "m2ts": true, "vob": true, "wav": true, "exe": true,
	"r00": true, "r01": true, "001": true,
}

// ValidFilename reports whether a candidate string looks like a real
// filename: at least one dot, three alphabetic characters, and not a URL.
func ValidFilename(name string) bool {
	name = strings.TrimSpace(name)
	if len(name) < 5 || len(name) > 250 {
		return false
	}
	if !strings.Contains(name, ".") {
		return false
	}
	if strings.HasPrefix(strings.ToLower(name), "http") {
		return false
	}
	alpha := 0
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			alpha++
		}
	}
	return alpha >= 3
}

// hasKnownExtension applies the whitelist to heuristic scan results.
func hasKnownExtension(name string) bool {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ext == "" {
		return false
	}
	if knownExtensions[ext] {
		return true
	}
	// multi-volume suffixes like .r42 or .042
	if len(ext) == 3 && (ext[0] == 'r' || ext[0] >= '0' && ext[0] <= '9') {
		digits := 0
		for i := 1; i < 3; i++ {
			if ext[i] >= '0' && ext[i] <= '9' {
				digits++
			}
		}
		return digits == 2
	}
	return false
}

// baseName reduces a stored path to its final element, accepting both
// separator conventions.
func baseName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return path.Base(name)
}
