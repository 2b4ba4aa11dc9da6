package scheduler

import (
	"context"
	"errors"
	"log"

	"github.com/go-while/go-nzbidx/internal/assembler"
	"github.com/go-while/go-nzbidx/internal/config"
	"github.com/go-while/go-nzbidx/internal/database"
	"github.com/go-while/go-nzbidx/internal/models"
	"github.com/go-while/go-nzbidx/internal/nntp"
)

// updateGroup walks [current+1, server_last] for one group and advances
// the cursor by the scanned range.
func (s *Scheduler) updateGroup(g *models.Group, settings *database.Settings) {
	conn, err := connect(settings)
	if err != nil {
		log.Printf("[UPDATE] '%s': connect failed: %v", g.Name, err)
		return
	}
	defer conn.Quit()

	info, err := selectGroupRetry(conn, settings, g.Name)
	if err != nil {
		if errors.Is(err, nntp.ErrGroupNotFound) {
			log.Printf("[UPDATE] '%s': group gone from server", g.Name)
		} else {
			log.Printf("[UPDATE] '%s': GROUP failed: %v", g.Name, err)
		}
		return
	}
	if err := s.DB.UpdateGroupRange(g.ID, info.First, info.Last); err != nil {
		log.Printf("[UPDATE] '%s': failed to store range: %v", g.Name, err)
		return
	}

	// first contact: start at the head of the group
	if g.CurrentArticleID == 0 {
		if err := s.DB.AdvanceGroupCursor(g.ID, info.Last); err != nil {
			log.Printf("[UPDATE] '%s': failed to init cursor: %v", g.Name, err)
		}
		return
	}

	lo := g.CurrentArticleID + 1
	hi := info.Last
	if lo > hi {
		return
	}

	batchSize := int64(config.DefaultBatchSize)
	processed := int64(0)
	for a := lo; a <= hi && !s.shuttingDown(); {
		b := a + batchSize - 1
		if b > hi {
			b = hi
		}
		overviews, usedFallback, err := overRangeRetry(conn, g.Name, a, b)
		if err != nil {
			log.Printf("[UPDATE] '%s': range %d-%d failed: %v", g.Name, a, b, err)
			break
		}
		s.processBatch(g, conn, overviews)
		// the cursor covers the scanned range, including ids the
		// server could not produce
		if err := s.DB.AdvanceGroupCursor(g.ID, b); err != nil {
			log.Printf("[UPDATE] '%s': failed to advance cursor: %v", g.Name, err)
			break
		}
		processed += b - a + 1
		if usedFallback {
			batchSize = config.HeadFallbackBatchSize
		}
		a = b + 1
	}
	if processed > 0 {
		log.Printf("[UPDATE] '%s': scanned %d articles up to %d", g.Name, processed, hi)
	}
}

// backfillGroup consumes [backfill_target, current-1], recomputing the
// target first when it is out of range.
func (s *Scheduler) backfillGroup(g *models.Group, settings *database.Settings) {
	if g.CurrentArticleID == 0 {
		return // update loop has not initialized the group yet
	}
	conn, err := connect(settings)
	if err != nil {
		log.Printf("[BACKFILL] '%s': connect failed: %v", g.Name, err)
		return
	}
	defer conn.Quit()

	info, err := selectGroupRetry(conn, settings, g.Name)
	if err != nil {
		log.Printf("[BACKFILL] '%s': GROUP failed: %v", g.Name, err)
		return
	}
	if err := s.DB.UpdateGroupRange(g.ID, info.First, info.Last); err != nil {
		log.Printf("[BACKFILL] '%s': failed to store range: %v", g.Name, err)
		return
	}

	target := g.BackfillTarget
	if !validBackfillTarget(target, g.CurrentArticleID) {
		target = ComputeBackfillTarget(info.First, info.Last, g.CurrentArticleID,
			settings.BackfillDays, settings.RetentionDays)
		if err := s.DB.SetBackfillTarget(g.ID, target); err != nil {
			log.Printf("[BACKFILL] '%s': failed to correct target: %v", g.Name, err)
			return
		}
		log.Printf("[BACKFILL] '%s': corrected target to %d", g.Name, target)
	}

	hi := g.CurrentArticleID - 1
	if target > hi {
		return
	}

	batchSize := int64(config.DefaultBatchSize)
	for a := target; a <= hi && !s.shuttingDown(); {
		b := a + batchSize - 1
		if b > hi {
			b = hi
		}
		overviews, usedFallback, err := overRangeRetry(conn, g.Name, a, b)
		if err != nil {
			log.Printf("[BACKFILL] '%s': range %d-%d failed: %v", g.Name, a, b, err)
			break
		}
		s.processBatch(g, conn, overviews)
		if err := s.DB.AdvanceBackfillTarget(g.ID, b+1); err != nil {
			log.Printf("[BACKFILL] '%s': failed to advance target: %v", g.Name, err)
			break
		}
		if usedFallback {
			batchSize = config.HeadFallbackBatchSize
		}
		a = b + 1
	}
}

// processBatch aggregates a batch of overviews and materializes every
// binary that clears the group's minimum thresholds and the trigger
// policy.
func (s *Scheduler) processBatch(g *models.Group, fetcher assembler.PrefixFetcher, overviews []nntp.Overview) {
	if len(overviews) == 0 {
		return
	}
	batch := assembler.NewBatch(g.Name)
	aggregated := 0
	for _, ov := range overviews {
		if batch.Add(ov, fetcher) {
			aggregated++
		}
	}
	for _, bin := range batch.Binaries() {
		if int(bin.Observed()) < g.MinFiles || bin.SizeSum < g.MinSize {
			continue
		}
		if !assembler.ShouldMaterialize(bin) {
			continue
		}
		if _, err := s.Materializer.Materialize(context.Background(), bin, g); err != nil {
			log.Printf("[SCHED] '%s': materialize '%s' failed: %v",
				g.Name, truncateName(bin.Name), err)
		}
	}
}

// selectGroupRetry retries GROUP once on a fresh connection; selection
// is idempotent.
func selectGroupRetry(conn *nntp.BackendConn, settings *database.Settings, groupName string) (*nntp.GroupInfo, error) {
	info, err := conn.SelectGroup(groupName)
	if err == nil || errors.Is(err, nntp.ErrGroupNotFound) {
		return info, err
	}
	conn.Quit()
	if err := conn.Connect(); err != nil {
		return nil, err
	}
	return conn.SelectGroup(groupName)
}

// overRangeRetry retries an overview fetch once on a fresh connection;
// OVER and the HEAD fallback are idempotent reads.
func overRangeRetry(conn *nntp.BackendConn, groupName string, start, end int64) ([]nntp.Overview, bool, error) {
	overviews, usedFallback, err := conn.OverRange(groupName, start, end)
	if err == nil {
		return overviews, usedFallback, nil
	}
	if conn.Connected() {
		conn.Quit()
	}
	if cerr := conn.Connect(); cerr != nil {
		return nil, false, cerr
	}
	if _, serr := conn.SelectGroup(groupName); serr != nil {
		return nil, false, serr
	}
	return conn.OverRange(groupName, start, end)
}

// validBackfillTarget rejects targets that are zero, not below the
// cursor, or further away than the backfill distance cap.
func validBackfillTarget(target, current int64) bool {
	if target <= 0 || target >= current {
		return false
	}
	return current-target <= config.MaxBackfillDistance
}

// ComputeBackfillTarget recomputes the target from the server range:
// estimate articles per day over the retention window, scale by the
// configured backfill days, clamp, and step back from the cursor.
func ComputeBackfillTarget(serverFirst, serverLast, current int64, backfillDays, retentionDays int) int64 {
	if retentionDays < 1 {
		retentionDays = 1
	}
	articlesPerDay := (serverLast - serverFirst) / int64(retentionDays)
	targetArticles := articlesPerDay * int64(backfillDays)
	if targetArticles < config.MinTargetArticles {
		targetArticles = config.MinTargetArticles
	}
	if targetArticles > config.MaxTargetArticles {
		targetArticles = config.MaxTargetArticles
	}
	target := current - targetArticles
	if target < serverFirst {
		target = serverFirst
	}
	return target
}

func truncateName(name string) string {
	if len(name) > 80 {
		return name[:80] + "..."
	}
	return name
}
