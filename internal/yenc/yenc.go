// Package yenc implements a bounded partial decoder for yEnc encoded
// article bodies. It decodes only enough of the body to expose archive
// magic bytes and the =ybegin header metadata; there is no full-body
// reconstruction and no CRC verification.
package yenc

import (
	"regexp"
	"strconv"
	"strings"
)

// Header carries the metadata extracted from an =ybegin line.
type Header struct {
	Name  string
	Part  int64
	Total int64
}

// Result is the outcome of a partial decode.
type Result struct {
	Header     Header
	HaveHeader bool
	Data       []byte
}

var (
	reYName  = regexp.MustCompile(`name=(.+)$`)
	reYPart  = regexp.MustCompile(`\bpart=(\d+)`)
	reYTotal = regexp.MustCompile(`\btotal=(\d+)`)
)

// DecodePrefix decodes yEnc data lines between =ybegin and =yend,
// stopping once maxBytes of decoded output have accumulated. Lines
// before =ybegin and the =ypart continuation line are skipped.
func DecodePrefix(lines []string, maxBytes int) *Result {
	res := &Result{}
	inData := false

	for _, line := range lines {
		if !inData {
			if strings.HasPrefix(line, "=ybegin") {
				res.Header = parseBeginLine(line)
				res.HaveHeader = true
				inData = true
			}
			continue
		}
		if strings.HasPrefix(line, "=ypart") {
			continue
		}
		if strings.HasPrefix(line, "=yend") {
			break
		}
		res.Data = append(res.Data, decodeLine(line)...)
		if len(res.Data) >= maxBytes {
			res.Data = res.Data[:maxBytes]
			break
		}
	}
	return res
}

// decodeLine decodes a single yEnc data line. Every byte has 42 added
// during encoding; critical bytes are additionally escaped with '=' and
// an extra offset of 64.
func decodeLine(line string) []byte {
	out := make([]byte, 0, len(line))
	escaped := false
	for i := 0; i < len(line); i++ {
		b := line[i]
		if escaped {
			out = append(out, b-64-42)
			escaped = false
			continue
		}
		if b == '=' {
			escaped = true
			continue
		}
		out = append(out, b-42)
	}
	return out
}

// parseBeginLine extracts name/part/total from an =ybegin line. The
// name keyword consumes the rest of the line, so it is matched last.
func parseBeginLine(line string) Header {
	h := Header{}
	if m := reYPart.FindStringSubmatch(line); m != nil {
		h.Part, _ = strconv.ParseInt(m[1], 10, 64)
	}
	if m := reYTotal.FindStringSubmatch(line); m != nil {
		h.Total, _ = strconv.ParseInt(m[1], 10, 64)
	}
	if m := reYName.FindStringSubmatch(line); m != nil {
		h.Name = strings.TrimSpace(m[1])
	}
	return h
}
