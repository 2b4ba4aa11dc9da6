package archive

import (
	"bytes"
	"encoding/binary"
	"strings"
	"unicode/utf8"

	"github.com/go-while/go-nzbidx/internal/models"
)

var zipSig = []byte("PK\x03\x04")

// ParseZIP reads the first local file header. Filename length sits at
// offset 26, the name itself at offset 30.
func ParseZIP(data []byte) (string, bool) {
	if !bytes.HasPrefix(data, zipSig) {
		return "", false
	}
	if len(data) < 30 {
		return "", false
	}
	nameLen := int(binary.LittleEndian.Uint16(data[26:28]))
	if nameLen <= 0 || 30+nameLen > len(data) {
		return "", false
	}
	raw := data[30 : 30+nameLen]

	var name string
	if utf8.Valid(raw) {
		name = string(raw)
	} else {
		name = models.DecodeCP437(raw)
	}
	name = strings.TrimSpace(name)
	if !ValidFilename(name) {
		return "", false
	}
	return baseName(name), true
}
