package archive

import (
	"bytes"
	"encoding/binary"
	"strings"
)

var par2Magic = []byte("PAR2\x00PKT")

// ParsePAR2 walks PAR2 packets in the prefix and returns the first
// non-.par2 filename from a file-description packet. Packet layout:
// magic (8), packet length LE64 (8), hashes and set id, packet type at
// offset 48, body from offset 64. FileDesc packets carry the filename
// null padded at the start of the body.
func ParsePAR2(data []byte) (string, bool) {
	pos := 0
	for {
		idx := bytes.Index(data[pos:], par2Magic)
		if idx < 0 {
			return "", false
		}
		off := pos + idx
		if off+64 > len(data) {
			return "", false
		}
		length := int(binary.LittleEndian.Uint64(data[off+8 : off+16]))
		if length < 64 {
			pos = off + len(par2Magic)
			continue
		}
		end := off + length
		if end > len(data) {
			end = len(data)
		}
		ptype := data[off+48 : off+64]
		if bytes.Contains(ptype, []byte("FileDesc")) {
			if name, ok := par2Filename(data[off+64 : end]); ok {
				return name, true
			}
		}
		pos = off + length
		if pos <= off {
			return "", false
		}
	}
}

// par2Filename pulls the null-terminated filename out of a FileDesc body.
func par2Filename(body []byte) (string, bool) {
	if nul := bytes.IndexByte(body, 0); nul >= 0 {
		body = body[:nul]
	}
	name := strings.TrimSpace(string(body))
	if !ValidFilename(name) {
		return "", false
	}
	if strings.HasSuffix(strings.ToLower(name), ".par2") {
		return "", false
	}
	return baseName(name), true
}
