package assembler

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log"
	"net/mail"
	"regexp"
	"strconv"
	"time"

	"github.com/go-while/go-nzbidx/internal/database"
	"github.com/go-while/go-nzbidx/internal/deobfuscate"
	"github.com/go-while/go-nzbidx/internal/models"
	"github.com/go-while/go-nzbidx/internal/nzb"
)

// Materializer turns finished binaries into release rows and NZB
// documents. Safe for concurrent use; all mutable state lives in the
// store.
type Materializer struct {
	DB       *database.Database
	Pipeline *deobfuscate.Pipeline
	NZBDir   string
}

// NewMaterializer wires the materializer.
func NewMaterializer(db *database.Database, pipeline *deobfuscate.Pipeline, nzbDir string) *Materializer {
	return &Materializer{DB: db, Pipeline: pipeline, NZBDir: nzbDir}
}

// ShouldMaterialize applies the trigger policy: complete binaries,
// single-part binaries without a declared total, a quarter of the
// declared parts, or five parts regardless.
func ShouldMaterialize(bin *Binary) bool {
	observed := bin.Observed()
	if bin.TotalParts > 0 && observed >= bin.TotalParts {
		return true
	}
	if bin.TotalParts == 0 && observed >= 1 {
		return true
	}
	if bin.TotalParts > 0 {
		quarter := bin.TotalParts / 4
		if quarter < 2 {
			quarter = 2
		}
		if observed >= quarter {
			return true
		}
	}
	return observed >= 5
}

// CompletionPercent computes the completion value stored on the release.
func CompletionPercent(observed, totalParts int64) float64 {
	if totalParts <= 0 {
		return 100
	}
	pct := 100 * float64(observed) / float64(totalParts)
	if pct > 100 {
		return 100
	}
	return pct
}

// GUID derives the deterministic release identifier from the final name
// and the source group. This is the idempotency key for upserts.
func GUID(name, groupName string) string {
	sum := md5.Sum([]byte(name + ":" + groupName))
	return hex.EncodeToString(sum[:])
}

// Materialize upserts the release for a binary and emits its NZB. An
// existing release with the same GUID is extended only when more parts
// are observed now than were stored.
func (m *Materializer) Materialize(ctx context.Context, bin *Binary, group *models.Group) (*models.Release, error) {
	name := bin.Name
	resolved := false
	if deobfuscate.IsObfuscated(name) && m.Pipeline != nil {
		if res, ok := m.Pipeline.Resolve(ctx, name, bin.Subject, group.Name, bin.BodyPrefix); ok {
			name = res.Name
			resolved = true
		}
	}

	observed := bin.Observed()
	guid := GUID(name, group.Name)
	completion := CompletionPercent(observed, bin.TotalParts)

	existing, err := m.DB.GetReleaseByGUID(guid)
	if err != nil {
		return nil, fmt.Errorf("failed to look up release '%s': %w", guid, err)
	}
	if existing == nil && resolved {
		// an earlier pass may have indexed this binary under its
		// obfuscated name before a mapping existed; rename that row in
		// place so the release keeps its identifier
		if prior, perr := m.renameResolved(bin, group, name); perr != nil {
			return nil, perr
		} else if prior != nil {
			existing = prior
			guid = prior.GUID
		}
	}
	if existing != nil {
		if int(observed) > existing.Files {
			if err := m.DB.ExtendRelease(guid, int(observed), bin.SizeSum, completion); err != nil {
				return nil, err
			}
			existing.Files = int(observed)
			existing.Size = bin.SizeSum
			existing.Completion = completion
		}
		m.emitNZB(guid, bin, group.Name)
		return existing, nil
	}

	categoryID, err := m.DB.GetOrCreateCategory(inferCategory(name))
	if err != nil {
		return nil, err
	}

	release := &models.Release{
		Name:       name,
		SearchName: models.SearchName(name),
		GUID:       guid,
		Size:       bin.SizeSum,
		Files:      int(observed),
		Completion: completion,
		PostedDate: parsePostDate(bin.Date),
		Status:     models.ReleaseStatusActive,
		Passworded: models.PasswordedUnknown,
		CategoryID: categoryID,
		GroupID:    group.ID,
		NZBGuid:    guid,
		Processed:  !deobfuscate.IsObfuscated(name),
	}
	fillMediaHints(release)

	if err := m.DB.InsertRelease(release); err != nil {
		return nil, err
	}
	m.emitNZB(guid, bin, group.Name)
	return release, nil
}

// renameResolved finds the release an earlier pass stored under the
// obfuscated name and renames it to the resolved one, marking it
// processed. Returns (nil, nil) when no such row exists.
func (m *Materializer) renameResolved(bin *Binary, group *models.Group, name string) (*models.Release, error) {
	priorGUID := GUID(bin.Name, group.Name)
	prior, err := m.DB.GetReleaseByGUID(priorGUID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up release '%s': %w", priorGUID, err)
	}
	if prior == nil || prior.Processed {
		return nil, nil
	}
	if err := m.DB.RenameRelease(priorGUID, name); err != nil {
		return nil, err
	}
	if err := m.DB.MarkReleaseProcessed(priorGUID, true); err != nil {
		return nil, err
	}
	prior.Name = name
	prior.SearchName = models.SearchName(name)
	prior.Processed = true
	return prior, nil
}

// emitNZB writes the NZB document; failures are logged, not fatal, so a
// release row never blocks on the filesystem.
func (m *Materializer) emitNZB(guid string, bin *Binary, groupName string) {
	doc := nzb.New()
	file := nzb.File{
		Poster:  bin.Poster,
		Date:    parsePostDate(bin.Date).Unix(),
		Subject: bin.Subject,
		Groups:  []string{groupName},
	}
	for partNum, part := range bin.Parts {
		file.Segments = append(file.Segments, nzb.Segment{
			Bytes:     part.Size,
			Number:    partNum,
			MessageID: part.MessageID,
		})
	}
	doc.Files = []nzb.File{file}

	if _, _, err := nzb.WriteFile(m.NZBDir, guid, doc); err != nil {
		log.Printf("[MATERIALIZE] failed to emit nzb '%s': %v", guid, err)
	}
}

// parsePostDate accepts RFC 5322 dates from overview headers; a raw
// unix timestamp or garbage falls back to now.
func parsePostDate(date string) time.Time {
	if date == "" {
		return time.Now().UTC()
	}
	if t, err := mail.ParseDate(date); err == nil {
		return t.UTC()
	}
	if unix, err := strconv.ParseInt(date, 10, 64); err == nil && unix > 0 {
		return time.Unix(unix, 0).UTC()
	}
	return time.Now().UTC()
}

var (
	reSeasonEp   = regexp.MustCompile(`(?i)[. _-]S(\d{1,2})[. _-]?E(\d{1,3})[. _-]`)
	reYear       = regexp.MustCompile(`[. _(-]((?:19|20)\d{2})[. _)-]`)
	reResolution = regexp.MustCompile(`(?i)\b(2160p|1080p|720p|480p)\b`)
	reVideoCodec = regexp.MustCompile(`(?i)\b(x264|x265|h\.?264|h\.?265|hevc|xvid|divx)\b`)
	reAudio      = regexp.MustCompile(`(?i)\b(flac|mp3|aac|dts|ac3)\b`)
)

// inferCategory maps name hints to a category; unknown shapes land in
// the default category.
func inferCategory(name string) string {
	padded := "." + name + "."
	if reSeasonEp.MatchString(padded) {
		return "TV"
	}
	if reAudio.MatchString(name) && !reResolution.MatchString(name) {
		return "Audio"
	}
	if reYear.MatchString(padded) && (reResolution.MatchString(name) || reVideoCodec.MatchString(name)) {
		return "Movies"
	}
	return database.DefaultCategoryName
}

// fillMediaHints extracts coarse metadata from the release name.
func fillMediaHints(r *models.Release) {
	padded := "." + r.Name + "."
	if m := reSeasonEp.FindStringSubmatch(padded); m != nil {
		r.Season, _ = strconv.Atoi(m[1])
		r.Episode, _ = strconv.Atoi(m[2])
	}
	if m := reYear.FindStringSubmatch(padded); m != nil {
		r.Year, _ = strconv.Atoi(m[1])
	}
	if m := reResolution.FindStringSubmatch(r.Name); m != nil {
		r.Resolution = m[1]
	}
	if m := reVideoCodec.FindStringSubmatch(r.Name); m != nil {
		r.VideoCodec = m[1]
	}
	if m := reAudio.FindStringSubmatch(r.Name); m != nil {
		r.AudioCodec = m[1]
	}
}
