// Package subject extracts binary part information from raw Usenet
// subject lines. Parsing is pure: the same subject always yields the
// same result.
package subject

import (
	"regexp"
	"strconv"
	"strings"
)

// Parsed is the result of a successful subject parse.
type Parsed struct {
	Name  string
	Part  int64
	Total int64
}

var rePrefix = regexp.MustCompile(`(?i)^re:\s*`)

// Ordered parse rules, first match wins. Group 1 is the name, groups 2
// and 3 are part and total (absent on single-part rules).
var parseRules = []*regexp.Regexp{
	// name [p/t]
	regexp.MustCompile(`^(.+?)\s*\[(\d{1,6})\s*/\s*(\d{1,6})\]`),
	// name (p/t)
	regexp.MustCompile(`^(.+?)\s*\((\d{1,6})\s*/\s*(\d{1,6})\)`),
	// name - p/t
	regexp.MustCompile(`^(.+?)\s+-\s+(\d{1,6})\s*/\s*(\d{1,6})(?:\s|$)`),
	// name - Part p of t
	regexp.MustCompile(`(?i)^(.+?)\s*-?\s*part\s+(\d{1,6})\s+of\s+(\d{1,6})`),
	// name - File p of t
	regexp.MustCompile(`(?i)^(.+?)\s*-?\s*file\s+(\d{1,6})\s+of\s+(\d{1,6})`),
	// name - yEnc (p/t), name (yEnc p/t), name - yEnc - (p/t)
	regexp.MustCompile(`(?i)^(.+?)\s*-\s*yenc\s*-?\s*\((\d{1,6})\s*/\s*(\d{1,6})\)`),
	regexp.MustCompile(`(?i)^(.+?)\s*\(yenc\s+(\d{1,6})\s*/\s*(\d{1,6})\)`),
	// trailing [p/t] or (p/t) with a greedy name, for subjects where
	// earlier bracketed tokens are not part indicators
	regexp.MustCompile(`^(.+)[\s_-]+\[(\d{1,6})\s*/\s*(\d{1,6})\]\s*$`),
	regexp.MustCompile(`^(.+)[\s_-]+\((\d{1,6})\s*/\s*(\d{1,6})\)\s*$`),
}

// single-part rule: name - yEnc
var reSingleYenc = regexp.MustCompile(`(?i)^(.+?)\s*-\s*yenc\s*$`)

// Parse attempts to extract (name, part, total) from a subject line.
// Returns false when no rule matches.
func Parse(raw string) (Parsed, bool) {
	s := strings.TrimSpace(raw)
	for {
		stripped := rePrefix.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}
	if s == "" {
		return Parsed{}, false
	}

	for _, re := range parseRules {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		part, err1 := strconv.ParseInt(m[2], 10, 64)
		total, err2 := strconv.ParseInt(m[3], 10, 64)
		if err1 != nil || err2 != nil || part < 1 || total < 1 {
			continue
		}
		name := cleanName(m[1])
		if name == "" {
			continue
		}
		return Parsed{Name: name, Part: part, Total: total}, true
	}

	if m := reSingleYenc.FindStringSubmatch(s); m != nil {
		name := cleanName(m[1])
		if name != "" {
			return Parsed{Name: name, Part: 1, Total: 1}, true
		}
	}
	return Parsed{}, false
}

// cleanName trims quoting and separator debris around an extracted name.
func cleanName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Trim(name, `"'`)
	name = strings.TrimRight(name, "-_ \t")
	// drop a trailing yEnc marker left over from loose rules
	if strings.HasSuffix(strings.ToLower(name), " yenc") {
		name = strings.TrimSpace(name[:len(name)-5])
		name = strings.TrimRight(name, "-_ \t")
	}
	return strings.TrimSpace(name)
}
