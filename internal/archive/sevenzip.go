package archive

import "bytes"

var sevenZipSig = []byte("7z\xbc\xaf\x27\x1c")

// Parse7z does not decode the compressed 7z header structure; filenames
// inside it are stored UTF-16LE, so a scan for long printable UTF-16LE
// runs recovers them from uncompressed headers.
func Parse7z(data []byte) (string, bool) {
	if !bytes.HasPrefix(data, sevenZipSig) {
		return "", false
	}

	var run []rune
	flush := func() (string, bool) {
		if len(run) >= 10 {
			name := string(run)
			if ValidFilename(name) && hasKnownExtension(name) {
				return baseName(name), true
			}
		}
		run = run[:0]
		return "", false
	}

	for i := len(sevenZipSig); i+1 < len(data); i += 2 {
		lo, hi := data[i], data[i+1]
		if hi == 0 && lo >= 0x20 && lo < 0x7f {
			run = append(run, rune(lo))
			continue
		}
		if name, ok := flush(); ok {
			return name, true
		}
	}
	return flush()
}
