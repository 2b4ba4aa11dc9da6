package deobfuscate

import "regexp"

// Hash and random-string shapes that mark a name as obfuscated. Checked
// against the name with extensions and volume suffixes stripped.
var (
	reHexHash   = regexp.MustCompile(`^[a-fA-F0-9]{32}$|^[a-fA-F0-9]{40}$|^[a-fA-F0-9]{64}$`)
	reHexLong   = regexp.MustCompile(`^[a-fA-F0-9]{16,}$`)
	reBase64ish = regexp.MustCompile(`^[A-Za-z0-9_-]{22,}$`)
	reAlnumLong = regexp.MustCompile(`^[A-Za-z0-9]{18,}$`)
	reAlphaRun3 = regexp.MustCompile(`[a-zA-Z]{3}`)
)

// IsObfuscated reports whether a name looks like a hash or random
// string rather than a human-chosen release name.
func IsObfuscated(name string) bool {
	stripped := stripSuffixes(name)
	if stripped == "" {
		return true
	}
	if reHexHash.MatchString(stripped) || reHexLong.MatchString(stripped) {
		return true
	}
	if reBase64ish.MatchString(stripped) || reAlnumLong.MatchString(stripped) {
		return true
	}
	if len(stripped) < 10 && !reAlphaRun3.MatchString(stripped) {
		return true
	}
	return false
}

// isBareHash is the stricter check used to reject regex extractions
// that merely captured the hash again.
func isBareHash(name string) bool {
	return reHexHash.MatchString(name) || reHexLong.MatchString(name)
}
