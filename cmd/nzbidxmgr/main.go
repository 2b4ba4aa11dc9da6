// Package main provides the go-nzbidx admin CLI: group management,
// release regex seeding and runtime settings.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/go-while/go-nzbidx/internal/config"
	"github.com/go-while/go-nzbidx/internal/database"
	"github.com/go-while/go-nzbidx/internal/models"
)

var appVersion = "-unset-"

func main() {
	config.AppVersion = appVersion
	log.Printf("go-nzbidx Manager (version: %s)", config.AppVersion)

	var (
		dataDir = flag.String("data", "data", "Directory holding the database")

		addGroup   = flag.Bool("addgroup", false, "Track a newsgroup")
		delGroup   = flag.Bool("delgroup", false, "Stop tracking a newsgroup")
		listGroups = flag.Bool("listgroups", false, "List tracked newsgroups")
		groupName  = flag.String("group", "", "Newsgroup name for group operations")
		active     = flag.Bool("active", true, "Group takes part in the update loop")
		backfill   = flag.Bool("backfill", false, "Group takes part in the backfill loop")

		addRegex     = flag.Bool("addregex", false, "Add a release regex")
		listRegexes  = flag.Bool("listregexes", false, "List release regexes")
		regexPattern = flag.String("regex", "", "Release regex (must capture the name)")
		regexGroups  = flag.String("regexgroups", "*", "Group pattern the regex applies to")
		regexDesc    = flag.String("description", "", "Regex description")
		regexOrdinal = flag.Int("ordinal", 100, "Regex evaluation order (lower first)")

		setKey   = flag.String("set", "", "Set a settings key")
		setValue = flag.String("value", "", "Value for -set")
		getKey   = flag.String("get", "", "Read a settings key")
	)
	flag.Parse()

	if !*addGroup && !*delGroup && !*listGroups && !*addRegex && !*listRegexes &&
		*setKey == "" && *getKey == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -addgroup -group alt.binaries.teevee -backfill\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -addregex -regex '^(?P<name>.+?) \\[\\d+/\\d+\\]' -regexgroups 'alt\\.binaries\\..*'\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -set nntp_server -value news.example.com\n", os.Args[0])
		os.Exit(1)
	}

	mainConfig := config.NewDefaultConfig()
	mainConfig.DataDir = *dataDir
	mainConfig.NZBDir = *dataDir + "/nzb"
	mainConfig.MainDB = *dataDir + "/nzbidx.sq3"

	db, err := database.OpenDatabase(mainConfig)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Shutdown()

	switch {
	case *addGroup:
		requireArg(*groupName, "-group")
		g := &models.Group{Name: *groupName, Active: *active, Backfill: *backfill}
		if err := db.InsertGroup(g); err != nil {
			log.Fatalf("Failed to add group: %v", err)
		}
		fmt.Printf("Added group '%s' (id=%d, active=%v, backfill=%v)\n",
			g.Name, g.ID, g.Active, g.Backfill)

	case *delGroup:
		requireArg(*groupName, "-group")
		if err := db.DeleteGroup(*groupName); err != nil {
			log.Fatalf("Failed to delete group: %v", err)
		}
		fmt.Printf("Deleted group '%s'\n", *groupName)

	case *listGroups:
		groups, err := db.GetAllGroups()
		if err != nil {
			log.Fatalf("Failed to list groups: %v", err)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tACTIVE\tBACKFILL\tCURRENT\tLAST\tTARGET")
		for _, g := range groups {
			fmt.Fprintf(w, "%d\t%s\t%v\t%v\t%d\t%d\t%d\n",
				g.ID, g.Name, g.Active, g.Backfill,
				g.CurrentArticleID, g.LastArticleID, g.BackfillTarget)
		}
		w.Flush()

	case *addRegex:
		requireArg(*regexPattern, "-regex")
		r := &models.ReleaseRegex{
			GroupPattern: *regexGroups,
			Regex:        *regexPattern,
			Description:  *regexDesc,
			Ordinal:      *regexOrdinal,
			Active:       true,
		}
		if err := db.InsertReleaseRegex(r); err != nil {
			log.Fatalf("Failed to add regex: %v", err)
		}
		fmt.Printf("Added regex id=%d ordinal=%d\n", r.ID, r.Ordinal)

	case *listRegexes:
		regexes, err := db.GetActiveReleaseRegexes()
		if err != nil {
			log.Fatalf("Failed to list regexes: %v", err)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tORDINAL\tMATCHES\tGROUPS\tREGEX")
		for _, r := range regexes {
			fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\n",
				r.ID, r.Ordinal, r.MatchCount, r.GroupPattern, r.Regex)
		}
		w.Flush()

	case *setKey != "":
		if err := db.SetSetting(*setKey, *setValue); err != nil {
			log.Fatalf("Failed to set '%s': %v", *setKey, err)
		}
		fmt.Printf("Set %s=%s\n", *setKey, *setValue)

	case *getKey != "":
		value, err := db.GetSetting(*getKey, "")
		if err != nil {
			log.Fatalf("Failed to get '%s': %v", *getKey, err)
		}
		fmt.Printf("%s=%s\n", *getKey, value)
	}
}

func requireArg(value, name string) {
	if value == "" {
		log.Fatalf("Error: %s is required", name)
	}
}
