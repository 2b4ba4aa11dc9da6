package deobfuscate

import (
	"context"
	"fmt"
	"log"

	"github.com/go-while/go-nzbidx/internal/archive"
	"github.com/go-while/go-nzbidx/internal/database"
	"github.com/go-while/go-nzbidx/internal/models"
	"github.com/go-while/go-nzbidx/internal/predb"
)

// Confidence assigned per resolution stage. Community contributions
// through the public boundary are capped at ConfidenceCommunityMax.
const (
	ConfidenceRegex        = 0.80
	ConfidenceArchive      = 0.90
	ConfidencePreDB        = 0.95
	ConfidenceNewznab      = 0.85
	ConfidenceCommunityMax = 0.85
)

// Result is a successful resolution.
type Result struct {
	Name       string
	Source     string
	Confidence float64
}

// Pipeline runs the resolution stages in priority order, halting on the
// first success. Every success is written back to the ORN cache.
type Pipeline struct {
	DB       *database.Database
	Patterns *PatternCache
	PreDB    *predb.Client
	Pool     *predb.NewznabPool
}

// NewPipeline wires the pipeline against the store and the external
// clients. PreDB and Pool may be nil when no endpoints are configured.
func NewPipeline(db *database.Database, preClient *predb.Client, pool *predb.NewznabPool) *Pipeline {
	return &Pipeline{
		DB:       db,
		Patterns: NewPatternCache(db),
		PreDB:    preClient,
		Pool:     pool,
	}
}

// Resolve maps an obfuscated name to a real release name. name is the
// parsed binary name and keys the cache; subject is the raw article
// subject the curated patterns are written against (empty falls back to
// name). bodyPrefix is the decoded article prefix when one was fetched,
// else nil.
func (p *Pipeline) Resolve(ctx context.Context, name, subject, groupName string, bodyPrefix []byte) (Result, bool) {
	key := NormalizeKey(name)
	if key == "" {
		return Result{}, false
	}
	if subject == "" {
		subject = name
	}

	// stage 1: local cache
	if mapping, err := p.DB.GetORNMapping(key); err == nil && mapping != nil {
		return Result{Name: mapping.RealName, Source: mapping.Source, Confidence: mapping.Confidence}, true
	}

	// stage 2: regex patterns against the raw subject
	if res, ok := p.resolveByPattern(subject, groupName, key); ok {
		return res, true
	}

	// stage 3: archive headers from the body prefix
	if len(bodyPrefix) > 0 {
		if filename, ok := archive.ExtractFilename(bodyPrefix); ok {
			name := stripSuffixes(filename)
			if name != "" && !IsObfuscated(name) {
				res := Result{Name: name, Source: models.ORNSourceArchive, Confidence: ConfidenceArchive}
				p.storeMapping(key, res)
				return res, true
			}
		}
	}

	// stage 4: PreDB endpoints
	if p.PreDB != nil {
		if name, endpoint, ok := p.PreDB.Lookup(ctx, key); ok {
			res := Result{Name: name, Source: "predb_" + endpoint, Confidence: ConfidencePreDB}
			p.storeMapping(key, res)
			return res, true
		}
	}

	// stage 5: newznab pool / NZBHydra2
	if p.Pool != nil {
		if name, source, ok := p.Pool.LookupByHash(ctx, key); ok {
			res := Result{Name: name, Source: source, Confidence: ConfidenceNewznab}
			p.storeMapping(key, res)
			return res, true
		}
	}

	return Result{}, false
}

// resolveByPattern applies the compiled patterns for the group in
// (ordinal, id) order.
func (p *Pipeline) resolveByPattern(subject, groupName, key string) (Result, bool) {
	for _, pattern := range p.Patterns.PatternsFor(groupName) {
		name, ok := pattern.apply(subject)
		if !ok {
			continue
		}
		if err := p.DB.IncrementRegexMatchCount(pattern.ID); err != nil {
			log.Printf("[DEOBF] failed to bump match_count for regex id=%d: %v", pattern.ID, err)
		}
		res := Result{
			Name:       name,
			Source:     fmt.Sprintf("regex_pattern_%d", pattern.ID),
			Confidence: ConfidenceRegex,
		}
		p.storeMapping(key, res)
		return res, true
	}
	return Result{}, false
}

// storeMapping writes a resolution back to the ORN cache.
func (p *Pipeline) storeMapping(key string, res Result) {
	err := p.DB.UpsertORNMapping(&models.ORNMapping{
		ObfuscatedHash: key,
		RealName:       res.Name,
		Source:         res.Source,
		Confidence:     res.Confidence,
	})
	if err != nil {
		log.Printf("[DEOBF] failed to cache mapping '%s': %v", key, err)
	}
}
