// Package assembler groups article parts into logical binaries and
// materializes finished binaries into release rows with NZB documents.
package assembler

import (
	"strconv"
	"strings"

	"github.com/go-while/go-nzbidx/internal/config"
	"github.com/go-while/go-nzbidx/internal/deobfuscate"
	"github.com/go-while/go-nzbidx/internal/models"
	"github.com/go-while/go-nzbidx/internal/nntp"
	"github.com/go-while/go-nzbidx/internal/subject"
	"github.com/go-while/go-nzbidx/internal/yenc"
)

// PrefixFetcher fetches a bounded body prefix for the yEnc fallback.
// Satisfied by nntp.BackendConn; nil disables the fallback.
type PrefixFetcher interface {
	FetchArticlePrefix(idOrMessageID string, maxBytes int) ([]string, error)
}

// Part is one observed article of a binary.
type Part struct {
	MessageID string
	Size      int64
}

// Binary aggregates the observed parts of one logical posting within a
// batch. Parts never overwrite each other and TotalParts only grows.
type Binary struct {
	Name       string
	Subject    string
	Poster     string
	Date       string
	Parts      map[int64]Part
	TotalParts int64
	SizeSum    int64

	// BodyPrefix keeps the first decoded prefix fetched during the
	// yEnc fallback so the deobfuscation pipeline can reuse it.
	BodyPrefix []byte
}

// Observed returns the number of distinct parts seen.
func (b *Binary) Observed() int64 {
	return int64(len(b.Parts))
}

// Batch is the per-scan aggregation map, keyed by the normalized
// binary key. Batches are worker-local and not safe for concurrent use.
type Batch struct {
	GroupName string
	binaries  map[string]*Binary
	order     []string
}

// NewBatch creates an empty batch for a group scan.
func NewBatch(groupName string) *Batch {
	return &Batch{
		GroupName: groupName,
		binaries:  make(map[string]*Binary),
	}
}

// Add aggregates one overview tuple. When the subject parser fails and
// the article looks like a yEnc posting, the body prefix is fetched and
// the =ybegin header supplies name and part numbers instead. Returns
// false when the article yields no usable (name, part).
func (b *Batch) Add(ov nntp.Overview, fetcher PrefixFetcher) bool {
	name, part, total := "", int64(0), int64(0)
	var prefix []byte
	fetched := false

	if parsed, ok := subject.Parse(ov.Subject); ok {
		name, part, total = parsed.Name, parsed.Part, parsed.Total
	} else if fetcher != nil && wantsYencFallback(ov) {
		fetched = true
		lines, err := fetcher.FetchArticlePrefix(articleRef(ov), config.DefaultPrefixBytes)
		if err != nil {
			return false
		}
		res := yenc.DecodePrefix(lines, config.DefaultPrefixBytes)
		if !res.HaveHeader || res.Header.Name == "" {
			return false
		}
		name, part, total = res.Header.Name, res.Header.Part, res.Header.Total
		if part == 0 {
			part = 1
		}
		prefix = res.Data
	} else {
		return false
	}

	key := models.BinaryKey(name)
	if key == "" {
		return false
	}

	bin, ok := b.binaries[key]
	if !ok {
		bin = &Binary{
			Name:    name,
			Subject: ov.Subject,
			Poster:  ov.From,
			Date:    ov.Date,
			Parts:   make(map[int64]Part),
		}
		b.binaries[key] = bin
		b.order = append(b.order, key)
	}
	// an obfuscated name can often be recovered from the archive headers
	// in the article body; fetch one bounded prefix per binary so the
	// deobfuscation pipeline has it
	if bin.BodyPrefix == nil && !fetched && fetcher != nil &&
		ov.MessageID != "" && deobfuscate.IsObfuscated(name) {
		if lines, err := fetcher.FetchArticlePrefix(ov.MessageID, config.DefaultPrefixBytes); err == nil {
			if res := yenc.DecodePrefix(lines, config.DefaultPrefixBytes); len(res.Data) > 0 {
				prefix = res.Data
			}
		}
	}
	if bin.BodyPrefix == nil && len(prefix) > 0 {
		bin.BodyPrefix = prefix
	}
	if total > bin.TotalParts {
		bin.TotalParts = total
	}
	if _, exists := bin.Parts[part]; exists {
		return true // first-seen part wins
	}
	bin.Parts[part] = Part{MessageID: ov.MessageID, Size: ov.Bytes}
	bin.SizeSum += ov.Bytes
	return true
}

// Binaries returns the aggregated binaries in first-seen order.
func (b *Batch) Binaries() []*Binary {
	out := make([]*Binary, 0, len(b.order))
	for _, key := range b.order {
		out = append(out, b.binaries[key])
	}
	return out
}

// wantsYencFallback decides whether fetching a body prefix is worth it.
func wantsYencFallback(ov nntp.Overview) bool {
	if strings.Contains(strings.ToLower(ov.Subject), "yenc") {
		return true
	}
	return ov.MessageID != ""
}

// articleRef prefers the message id over the article number.
func articleRef(ov nntp.Overview) string {
	if ov.MessageID != "" {
		return ov.MessageID
	}
	return strconv.FormatInt(ov.ArticleNum, 10)
}
