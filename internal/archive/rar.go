package archive

import (
	"bytes"
	"encoding/binary"
	"unicode/utf8"

	"github.com/go-while/go-nzbidx/internal/models"
)

var (
	rar4Sig = []byte("Rar!\x1a\x07\x00")
	rar5Sig = []byte("Rar!\x1a\x07\x01\x00")
)

const (
	rar4FileBlock   = 0x74
	rar4FlagLarge   = 0x0100
	rar4FlagUnicode = 0x0200
	rar4FlagAddSize = 0x8000
)

// ParseRAR dispatches on the RAR signature version.
func ParseRAR(data []byte) (string, bool) {
	if bytes.HasPrefix(data, rar5Sig) {
		return parseRAR5(data)
	}
	if bytes.HasPrefix(data, rar4Sig) {
		return parseRAR4(data)
	}
	return "", false
}

// parseRAR4 walks v4 block headers looking for the first file block.
// Block header: CRC (2), type (1), flags LE16 (3), size LE16 (5). File
// blocks put name_size at offset 26 and the name at offset 32.
func parseRAR4(data []byte) (string, bool) {
	pos := len(rar4Sig)
	for pos+7 <= len(data) {
		blockType := data[pos+2]
		flags := binary.LittleEndian.Uint16(data[pos+3 : pos+5])
		headSize := int(binary.LittleEndian.Uint16(data[pos+5 : pos+7]))
		if headSize < 7 {
			return "", false
		}

		if blockType == rar4FileBlock {
			if name, ok := rar4Filename(data, pos, flags); ok {
				return name, true
			}
		}

		next := pos + headSize
		if flags&rar4FlagAddSize != 0 || blockType == rar4FileBlock {
			if pos+11 > len(data) {
				return "", false
			}
			next += int(binary.LittleEndian.Uint32(data[pos+7 : pos+11]))
		}
		if next <= pos {
			return "", false
		}
		pos = next
	}
	return "", false
}

func rar4Filename(data []byte, pos int, flags uint16) (string, bool) {
	if pos+28 > len(data) {
		return "", false
	}
	nameSize := int(binary.LittleEndian.Uint16(data[pos+26 : pos+28]))
	nameOff := pos + 32
	if flags&rar4FlagLarge != 0 {
		nameOff += 8
	}
	if nameSize <= 0 || nameOff+nameSize > len(data) {
		return "", false
	}
	raw := data[nameOff : nameOff+nameSize]
	// unicode names pack "name\x00encoded"; keep the plain half
	if flags&rar4FlagUnicode != 0 {
		if nul := bytes.IndexByte(raw, 0); nul >= 0 {
			raw = raw[:nul]
		}
	}
	raw = bytes.TrimRight(raw, "\x00")

	var name string
	if utf8.Valid(raw) {
		name = string(raw)
	} else {
		name = models.DecodeCP437(raw)
	}
	if !ValidFilename(name) {
		return "", false
	}
	return baseName(name), true
}

// parseRAR5 avoids the v5 vint header encoding and instead scans for
// printable ASCII runs that look like filenames with a known extension.
func parseRAR5(data []byte) (string, bool) {
	start := -1
	for i := len(rar5Sig); i <= len(data); i++ {
		var b byte
		if i < len(data) {
			b = data[i]
		}
		if i < len(data) && b >= 0x20 && b < 0x7f {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			run := string(data[start:i])
			start = -1
			if len(run) >= 5 && ValidFilename(run) && hasKnownExtension(run) {
				return baseName(run), true
			}
		}
	}
	return "", false
}
