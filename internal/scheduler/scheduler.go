// Package scheduler runs the two long-lived indexing loops: the update
// loop walks new articles of active groups, the backfill loop consumes
// the range below each backfill group's cursor. Both dispatch per-group
// workers through bounded pools; an active-groups set guarantees that
// no two workers ever hold the same group.
package scheduler

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/go-while/go-nzbidx/internal/assembler"
	"github.com/go-while/go-nzbidx/internal/config"
	"github.com/go-while/go-nzbidx/internal/database"
	"github.com/go-while/go-nzbidx/internal/deobfuscate"
	"github.com/go-while/go-nzbidx/internal/models"
	"github.com/go-while/go-nzbidx/internal/nntp"
)

// Scheduler owns the loop state. Create with NewScheduler, run with
// Start, stop by closing the database StopChan (process shutdown).
type Scheduler struct {
	DB           *database.Database
	Materializer *assembler.Materializer
	StopChan     chan struct{}
	WG           *sync.WaitGroup

	active activeSet
}

// activeSet is the process-wide mutual exclusion gate on group ids.
type activeSet struct {
	mu  sync.Mutex
	ids map[int64]bool
}

func (s *activeSet) tryAcquire(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids == nil {
		s.ids = make(map[int64]bool)
	}
	if s.ids[id] {
		return false
	}
	s.ids[id] = true
	return true
}

func (s *activeSet) release(id int64) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}

// NewScheduler wires the scheduler against the store and materializer.
func NewScheduler(db *database.Database, pipeline *deobfuscate.Pipeline) *Scheduler {
	return &Scheduler{
		DB:           db,
		Materializer: assembler.NewMaterializer(db, pipeline, db.GetNZBDir()),
		StopChan:     db.StopChan,
		WG:           &db.WG,
	}
}

// Start launches the update and backfill loops.
func (s *Scheduler) Start() {
	s.WG.Add(2)
	go s.updateLoop()
	go s.backfillLoop()
	log.Printf("[SCHED] started update (%v) and backfill (%v) loops",
		config.UpdateTickInterval, config.BackfillTickInterval)
}

func (s *Scheduler) updateLoop() {
	defer s.WG.Done()
	ticker := time.NewTicker(config.UpdateTickInterval)
	defer ticker.Stop()
	for {
		s.updateTick()
		select {
		case <-s.StopChan:
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) backfillLoop() {
	defer s.WG.Done()
	ticker := time.NewTicker(config.BackfillTickInterval)
	defer ticker.Stop()
	for {
		s.backfillTick()
		select {
		case <-s.StopChan:
			return
		case <-ticker.C:
		}
	}
}

// updateTick snapshots settings, lists active groups and fans them out
// to update_threads workers.
func (s *Scheduler) updateTick() {
	settings := s.DB.LoadSettings()
	if settings.NNTPServer == "" {
		return
	}
	groups, err := s.DB.GetActiveGroups()
	if err != nil {
		log.Printf("[SCHED] failed to list active groups: %v", err)
		return
	}
	s.dispatch(groups, settings.UpdateThreads, func(g *models.Group) {
		s.updateGroup(g, settings)
	})
}

// backfillTick does the same for backfill groups with the derived
// smaller pool.
func (s *Scheduler) backfillTick() {
	settings := s.DB.LoadSettings()
	if settings.NNTPServer == "" {
		return
	}
	groups, err := s.DB.GetBackfillGroups()
	if err != nil {
		log.Printf("[SCHED] failed to list backfill groups: %v", err)
		return
	}
	s.dispatch(groups, settings.BackfillThreads(), func(g *models.Group) {
		s.backfillGroup(g, settings)
	})
}

// dispatch runs fn for each group through a bounded worker pool,
// skipping groups another worker already holds. Blocks until the tick's
// work is done or shutdown is signaled.
func (s *Scheduler) dispatch(groups []*models.Group, workers int, fn func(*models.Group)) {
	if workers < 1 {
		workers = 1
	}
	work := make(chan *models.Group)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for g := range work {
				if !s.active.tryAcquire(g.ID) {
					continue
				}
				fn(g)
				s.active.release(g.ID)
			}
		}()
	}
	for _, g := range groups {
		select {
		case <-s.StopChan:
			close(work)
			wg.Wait()
			return
		case work <- g:
		}
	}
	close(work)
	wg.Wait()
}

// connect builds a fresh worker-owned connection from the settings
// snapshot.
func connect(settings *database.Settings) (*nntp.BackendConn, error) {
	provider := settings.Provider()
	if !provider.Enabled {
		return nil, errors.New("no nntp server configured")
	}
	conn := nntp.NewConn(&nntp.BackendConfig{
		Host:           provider.Host,
		Port:           provider.Port,
		SSL:            provider.SSL,
		Username:       provider.Username,
		Password:       provider.Password,
		ConnectTimeout: config.DefaultConnectTimeout,
	})
	if err := conn.Connect(); err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *Scheduler) shuttingDown() bool {
	select {
	case <-s.StopChan:
		return true
	default:
		return false
	}
}
