package nntp

// NNTP command implementations for the indexer: GROUP, OVER with HEAD
// fallback, and bounded BODY prefix fetching.

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/go-while/go-nzbidx/internal/models"
)

// Overview is the normalized article header tuple. The wire formats vary
// (OVER tab-tuples with 8+ fields, HEAD header blocks); everything is
// converted into this struct at the client boundary and missing fields
// stay zero/empty.
type Overview struct {
	ArticleNum int64
	Subject    string
	From       string
	Date       string
	MessageID  string
	References string
	Bytes      int64
	Lines      int64
}

// SelectGroup selects a newsgroup and returns its article range.
func (c *BackendConn) SelectGroup(groupName string) (*GroupInfo, error) {
	if !c.connected {
		return nil, ErrNotConnected
	}
	c.lastUsed = time.Now()

	id, err := c.textConn.Cmd("GROUP %s", groupName)
	if err != nil {
		return nil, fmt.Errorf("failed to send GROUP '%s' command: %w", groupName, err)
	}
	c.textConn.StartResponse(id)
	defer c.textConn.EndResponse(id)

	code, message, err := c.textConn.ReadCodeLine(GroupSelected)
	if err != nil && code == 0 {
		return nil, fmt.Errorf("failed to read GROUP '%s' response: %w", groupName, err)
	}
	if code == NoSuchGroup {
		return nil, ErrGroupNotFound
	}
	if code != GroupSelected {
		return nil, fmt.Errorf("group selection failed: expected code 211, got %d - response: %s group %s",
			code, message, groupName)
	}

	// RFC 3977: message format is "count first last group"
	parts := strings.Fields(message)
	if len(parts) < 4 {
		return nil, fmt.Errorf("malformed GROUP response (expected 'count first last group'): %s group %s",
			message, groupName)
	}
	count, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse count in GROUP '%s' response: %w", groupName, err)
	}
	first, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse first in GROUP '%s' response: %w", groupName, err)
	}
	last, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last in GROUP '%s' response: %w", groupName, err)
	}

	return &GroupInfo{
		Name:  groupName,
		Count: count,
		First: first,
		Last:  last,
	}, nil
}

// OverRange retrieves normalized overview tuples for [start,end]. It
// attempts OVER first; on any failure it falls back to per-article HEAD,
// silently skipping articles the server cannot produce. The second return
// reports whether the fallback path was taken.
func (c *BackendConn) OverRange(groupName string, start, end int64) ([]Overview, bool, error) {
	if groupName == "" {
		return nil, false, fmt.Errorf("error OverRange: group name is required")
	}
	if !c.connected {
		return nil, false, ErrNotConnected
	}
	if start > end {
		return nil, false, nil
	}

	overviews, err := c.overRange(start, end)
	if err == nil {
		return overviews, false, nil
	}
	log.Printf("[NNTP] OVER %d-%d failed on '%s', falling back to HEAD: %v", start, end, groupName, err)

	overviews, err = c.headRange(start, end)
	if err != nil {
		return nil, true, err
	}
	return overviews, true, nil
}

// overRange issues a single OVER command for the range.
func (c *BackendConn) overRange(start, end int64) ([]Overview, error) {
	c.lastUsed = time.Now()

	id, err := c.textConn.Cmd("OVER %d-%d", start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to send OVER command: %w", err)
	}
	c.textConn.StartResponse(id)
	defer c.textConn.EndResponse(id)

	code, message, err := c.textConn.ReadCodeLine(OverviewFollows)
	if err != nil && code == 0 {
		return nil, fmt.Errorf("failed to read OVER response: %w", err)
	}
	if code != OverviewFollows {
		return nil, fmt.Errorf("OVER failed: %d %s", code, message)
	}

	lines, err := c.readMultilineResponse(MaxReadLinesOverview, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to read OVER data: %w", err)
	}

	var overviews []Overview
	for _, line := range lines {
		overview, err := parseOverviewLine(line)
		if err != nil {
			continue // Skip malformed lines
		}
		overviews = append(overviews, overview)
	}
	return overviews, nil
}

// headRange walks [start,end] with HEAD per article. Missing articles
// (423/430) are skipped; transport errors abort.
func (c *BackendConn) headRange(start, end int64) ([]Overview, error) {
	var overviews []Overview
	for num := start; num <= end; num++ {
		overview, err := c.headArticle(num)
		if err != nil {
			if errors.Is(err, ErrArticleNotFound) || errors.Is(err, ErrArticleRemoved) {
				continue
			}
			return overviews, err
		}
		overviews = append(overviews, overview)
	}
	return overviews, nil
}

// headArticle issues HEAD for one article number and normalizes the
// header block into an Overview.
func (c *BackendConn) headArticle(num int64) (Overview, error) {
	c.lastUsed = time.Now()

	id, err := c.textConn.Cmd("HEAD %d", num)
	if err != nil {
		return Overview{}, fmt.Errorf("failed to send HEAD command: %w", err)
	}
	c.textConn.StartResponse(id)
	defer c.textConn.EndResponse(id)

	code, message, err := c.textConn.ReadCodeLine(HeadFollows)
	if err != nil && code == 0 {
		return Overview{}, fmt.Errorf("failed to read HEAD response: %w", err)
	}
	switch code {
	case HeadFollows:
		// fall through to the header block
	case NoSuchArticleNum, NoSuchArticle:
		return Overview{}, ErrArticleNotFound
	case DMCA:
		return Overview{}, ErrArticleRemoved
	default:
		return Overview{}, fmt.Errorf("unexpected HEAD response: %d %s", code, message)
	}

	lines, err := c.readMultilineResponse(MaxReadLinesHeaders, -1)
	if err != nil {
		return Overview{}, fmt.Errorf("failed to read headers: %w", err)
	}
	return overviewFromHeaders(num, lines), nil
}

// FetchArticlePrefix retrieves body lines for an article (by message-id
// when it starts with '<', else by number), truncated at roughly maxBytes.
// The rest of the multi-line response is drained to keep the connection
// usable.
func (c *BackendConn) FetchArticlePrefix(idOrMessageID string, maxBytes int) ([]string, error) {
	if !c.connected {
		return nil, ErrNotConnected
	}
	c.lastUsed = time.Now()

	id, err := c.textConn.Cmd("BODY %s", idOrMessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to send BODY command: %w", err)
	}
	c.textConn.StartResponse(id)
	defer c.textConn.EndResponse(id)

	code, message, err := c.textConn.ReadCodeLine(BodyFollows)
	if err != nil && code == 0 {
		return nil, fmt.Errorf("failed to read BODY response: %w", err)
	}
	switch code {
	case BodyFollows:
		// fall through
	case NoSuchArticleNum, NoSuchArticle:
		return nil, ErrArticleNotFound
	case DMCA:
		return nil, ErrArticleRemoved
	default:
		return nil, fmt.Errorf("unexpected BODY response: %d %s", code, message)
	}

	return c.readMultilineResponse(MaxReadLinesBody, maxBytes)
}

// readMultilineResponse reads a dot-terminated multi-line response. When
// maxBytes >= 0, lines beyond the cap are drained but not kept.
func (c *BackendConn) readMultilineResponse(maxReadLines, maxBytes int) ([]string, error) {
	var lines []string
	lineCount := 0
	byteCount := 0
	capped := false

	for {
		if lineCount >= maxReadLines {
			c.closeRaw() // Close connection on too many lines
			return nil, fmt.Errorf("too many lines in response (limit: %d)", maxReadLines)
		}
		line, err := c.textConn.ReadLine()
		if err != nil {
			return nil, err
		}
		if line == "." {
			break
		}
		// Handle dot-stuffing (lines starting with .. become .)
		if strings.HasPrefix(line, "..") {
			line = line[1:]
		}
		lineCount++
		if capped {
			continue
		}
		lines = append(lines, line)
		byteCount += len(line) + 2
		if maxBytes >= 0 && byteCount >= maxBytes {
			capped = true
		}
	}
	return lines, nil
}

// parseOverviewLine parses a single OVER response line.
// Format: articlenum<tab>subject<tab>from<tab>date<tab>message-id<tab>references<tab>bytes<tab>lines
func parseOverviewLine(line string) (Overview, error) {
	parts := strings.Split(line, "\t")
	if len(parts) < 7 {
		return Overview{}, fmt.Errorf("malformed OVER line: %s", line)
	}

	articleNum, _ := strconv.ParseInt(parts[0], 10, 64)
	bytes, _ := strconv.ParseInt(parts[6], 10, 64)
	lines := int64(0)
	if len(parts) > 7 {
		lines, _ = strconv.ParseInt(parts[7], 10, 64)
	}

	return Overview{
		ArticleNum: articleNum,
		Subject:    models.ScrubHeaderText(parts[1]),
		From:       models.ScrubHeaderText(parts[2]),
		Date:       models.ScrubHeaderText(parts[3]),
		MessageID:  strings.TrimSpace(parts[4]),
		References: models.ScrubHeaderText(parts[5]),
		Bytes:      bytes,
		Lines:      lines,
	}, nil
}

// overviewFromHeaders normalizes a HEAD header block. Continuation lines
// are folded; only the fields the indexer consumes are kept.
func overviewFromHeaders(num int64, headerLines []string) Overview {
	headers := make(map[string]string)
	var currentHeader string
	for _, line := range headerLines {
		if line == "" {
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			if currentHeader != "" {
				headers[currentHeader] += " " + strings.TrimSpace(line)
			}
			continue
		}
		colonPos := strings.Index(line, ":")
		if colonPos == -1 {
			continue // Skip malformed headers
		}
		name := strings.ToLower(strings.TrimSpace(line[:colonPos]))
		value := strings.TrimSpace(line[colonPos+1:])
		switch name {
		case "subject", "from", "date", "message-id", "references", "bytes", "lines":
			currentHeader = name
			headers[name] = value
		default:
			currentHeader = ""
		}
	}

	bytes, _ := strconv.ParseInt(headers["bytes"], 10, 64)
	lines, _ := strconv.ParseInt(headers["lines"], 10, 64)
	return Overview{
		ArticleNum: num,
		Subject:    models.ScrubHeaderText(headers["subject"]),
		From:       models.ScrubHeaderText(headers["from"]),
		Date:       models.ScrubHeaderText(headers["date"]),
		MessageID:  headers["message-id"],
		References: models.ScrubHeaderText(headers["references"]),
		Bytes:      bytes,
		Lines:      lines,
	}
}
