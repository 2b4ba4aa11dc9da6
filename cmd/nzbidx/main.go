// Package main runs the go-nzbidx indexer daemon: the update/backfill
// scheduler, the public ORN sharing web boundary and the pprof helper.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	prof "github.com/go-while/go-cpu-mem-profiler"

	"github.com/go-while/go-nzbidx/internal/config"
	"github.com/go-while/go-nzbidx/internal/database"
	"github.com/go-while/go-nzbidx/internal/deobfuscate"
	"github.com/go-while/go-nzbidx/internal/predb"
	"github.com/go-while/go-nzbidx/internal/scheduler"
	"github.com/go-while/go-nzbidx/internal/web"
)

var Prof *prof.Profiler

var appVersion = "-unset-"

func main() {
	config.AppVersion = appVersion
	log.Printf("Starting go-nzbidx (version: %s)", config.AppVersion)

	var (
		dataDir   = flag.String("data", "data", "Directory for database and NZB output")
		webPort   = flag.Int("webport", 11984, "Listen port for the public mapping endpoints")
		noWeb     = flag.Bool("noweb", false, "Disable the public web boundary")
		pprofAddr = flag.String("pprofweb", "", "Optional pprof listen address (e.g. :51112)")
	)
	flag.Parse()

	Prof = prof.NewProf()
	if *pprofAddr != "" {
		go Prof.PprofWeb(*pprofAddr)
		Prof.StartMemProfile(5*time.Minute, 30*time.Second)
	}

	mainConfig := config.NewDefaultConfig()
	mainConfig.AppVersion = appVersion
	mainConfig.DataDir = *dataDir
	mainConfig.NZBDir = *dataDir + "/nzb"
	mainConfig.MainDB = *dataDir + "/nzbidx.sq3"
	mainConfig.WebPort = *webPort

	db, err := database.OpenDatabase(mainConfig)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	log.Printf("Using data directory '%s', nzb directory '%s'", db.GetDataDir(), db.GetNZBDir())

	pipeline := deobfuscate.NewPipeline(db, predbClient(db), newznabPool(db))
	sched := scheduler.NewScheduler(db, pipeline)
	sched.Start()

	if !*noWeb {
		server := web.NewServer(db, pipeline, mainConfig.WebPort)
		go func() {
			if err := server.Start(); err != nil {
				log.Printf("[WEB] server stopped: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received signal %v, shutting down", sig)

	db.Shutdown()
	log.Printf("go-nzbidx stopped")
}

// predbClient builds the PreDB client from settings; empty endpoint
// list disables the stage.
func predbClient(db *database.Database) *predb.Client {
	raw, err := db.GetSetting("predb_endpoints", "")
	if err != nil || raw == "" {
		return nil
	}
	var endpoints []predb.Endpoint
	for _, spec := range splitList(raw) {
		endpoints = append(endpoints, predb.Endpoint{
			Name: endpointName(spec),
			URL:  spec,
			Kind: "predbde",
		})
	}
	if len(endpoints) == 0 {
		return nil
	}
	return predb.NewClient(endpoints)
}

// newznabPool builds the newznab/NZBHydra2 fan-out pool from settings.
// Format: name|url|apikey, comma separated.
func newznabPool(db *database.Database) *predb.NewznabPool {
	raw, err := db.GetSetting("newznab_indexers", "")
	if err != nil || raw == "" {
		return nil
	}
	pool := &predb.NewznabPool{}
	for _, spec := range splitList(raw) {
		parts := splitPipe(spec)
		if len(parts) < 2 {
			continue
		}
		apiKey := ""
		if len(parts) > 2 {
			apiKey = parts[2]
		}
		pool.Clients = append(pool.Clients, predb.NewNewznabClient(parts[0], parts[1], apiKey))
	}
	if len(pool.Clients) == 0 {
		return nil
	}
	return pool
}
