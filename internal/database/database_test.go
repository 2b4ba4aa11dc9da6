package database

import (
	"testing"
	"time"

	"github.com/go-while/go-nzbidx/internal/config"
	"github.com/go-while/go-nzbidx/internal/models"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.DataDir = dir
	cfg.NZBDir = dir + "/nzb"
	cfg.MainDB = dir + "/test.sq3"
	db, err := OpenDatabase(cfg)
	if err != nil {
		t.Fatalf("OpenDatabase: %v", err)
	}
	t.Cleanup(func() { db.Shutdown() })
	return db
}

func TestSettingsDefaults(t *testing.T) {
	db := openTestDB(t)

	s := db.LoadSettings()
	if s.NNTPServer != "" {
		t.Errorf("NNTPServer default = %q", s.NNTPServer)
	}
	if s.NNTPPort != config.DefaultNNTPPort {
		t.Errorf("NNTPPort default = %d", s.NNTPPort)
	}
	if s.UpdateThreads != 1 || s.BackfillDays != 3 || s.RetentionDays != 1100 {
		t.Errorf("defaults = %+v", s)
	}
	if s.BackfillThreads() != 1 {
		t.Errorf("BackfillThreads = %d", s.BackfillThreads())
	}
}

func TestSettingsOverridesAndClamps(t *testing.T) {
	db := openTestDB(t)

	for key, value := range map[string]string{
		"nntp_server":    "news.example.com",
		"nntp_ssl":       "true",
		"update_threads": "8",
		"retention_days": "-5",
	} {
		if err := db.SetSetting(key, value); err != nil {
			t.Fatalf("SetSetting(%s): %v", key, err)
		}
	}

	s := db.LoadSettings()
	if s.NNTPServer != "news.example.com" || !s.NNTPSSL {
		t.Errorf("overrides = %+v", s)
	}
	if s.UpdateThreads != 8 {
		t.Errorf("UpdateThreads = %d", s.UpdateThreads)
	}
	if s.RetentionDays != 1 {
		t.Errorf("negative retention_days not clamped: %d", s.RetentionDays)
	}
	if s.BackfillThreads() != 4 {
		t.Errorf("BackfillThreads = %d, want 4", s.BackfillThreads())
	}

	// garbage values fall back to the default
	if err := db.SetSetting("update_threads", "many"); err != nil {
		t.Fatal(err)
	}
	if got := db.LoadSettings().UpdateThreads; got != 1 {
		t.Errorf("unparsable update_threads = %d, want default 1", got)
	}
}

func TestSettingsProvider(t *testing.T) {
	db := openTestDB(t)

	if p := db.LoadSettings().Provider(); p.Enabled {
		t.Errorf("provider enabled without nntp_server: %+v", p)
	}

	for key, value := range map[string]string{
		"nntp_server":   "news.example.com",
		"nntp_ssl":      "true",
		"nntp_ssl_port": "563",
		"nntp_username": "reader",
	} {
		if err := db.SetSetting(key, value); err != nil {
			t.Fatal(err)
		}
	}
	p := db.LoadSettings().Provider()
	if !p.Enabled || p.Host != "news.example.com" || !p.SSL {
		t.Errorf("provider = %+v", p)
	}
	if p.Port != 563 {
		t.Errorf("ssl provider port = %d, want 563", p.Port)
	}
	if p.Username != "reader" {
		t.Errorf("username = %q", p.Username)
	}
}

func TestORNMappingConfidenceMonotone(t *testing.T) {
	db := openTestDB(t)

	first := &models.ORNMapping{
		ObfuscatedHash: "abcdef0123456789abcdef0123456789",
		RealName:       "Some.Release.S01E01.1080p-GRP",
		Source:         models.ORNSourceArchive,
		Confidence:     0.90,
	}
	if err := db.UpsertORNMapping(first); err != nil {
		t.Fatalf("UpsertORNMapping: %v", err)
	}
	if first.ID == 0 {
		t.Fatal("insert did not populate ID")
	}

	// lower confidence must not overwrite
	lower := &models.ORNMapping{
		ObfuscatedHash: first.ObfuscatedHash,
		RealName:       "Wrong.Name",
		Source:         "regex_pattern_1",
		Confidence:     0.80,
	}
	if err := db.UpsertORNMapping(lower); err != nil {
		t.Fatalf("UpsertORNMapping lower: %v", err)
	}
	if lower.ID != first.ID {
		t.Errorf("lower.ID = %d, want %d", lower.ID, first.ID)
	}
	m, err := db.GetORNMapping(first.ObfuscatedHash)
	if err != nil || m == nil {
		t.Fatalf("GetORNMapping: m=%v err=%v", m, err)
	}
	if m.RealName != first.RealName || m.Confidence != 0.90 {
		t.Errorf("row changed by lower-confidence upsert: %+v", m)
	}
	if m.UseCount != 1 {
		t.Errorf("use_count = %d, want 1 after first hit", m.UseCount)
	}

	// higher confidence replaces
	higher := &models.ORNMapping{
		ObfuscatedHash: first.ObfuscatedHash,
		RealName:       "Some.Release.S01E01.1080p.PROPER-GRP",
		Source:         "predb_predb.net",
		Confidence:     0.95,
	}
	if err := db.UpsertORNMapping(higher); err != nil {
		t.Fatalf("UpsertORNMapping higher: %v", err)
	}
	m, err = db.GetORNMapping(first.ObfuscatedHash)
	if err != nil || m == nil {
		t.Fatalf("GetORNMapping: m=%v err=%v", m, err)
	}
	if m.RealName != higher.RealName || m.Source != "predb_predb.net" || m.Confidence != 0.95 {
		t.Errorf("higher-confidence upsert not applied: %+v", m)
	}
	if m.UseCount != 2 {
		t.Errorf("use_count = %d, want 2 after second hit", m.UseCount)
	}
}

func TestORNMappingMiss(t *testing.T) {
	db := openTestDB(t)
	m, err := db.GetORNMapping("0000000000000000000000000000dead")
	if err != nil {
		t.Fatalf("GetORNMapping: %v", err)
	}
	if m != nil {
		t.Errorf("miss returned %+v", m)
	}
}

func TestORNMappingsAbove(t *testing.T) {
	db := openTestDB(t)
	for hash, conf := range map[string]float64{
		"1111111111111111": 0.80,
		"2222222222222222": 0.90,
		"3333333333333333": 0.95,
	} {
		m := &models.ORNMapping{
			ObfuscatedHash: hash,
			RealName:       "Release.For." + hash,
			Source:         models.ORNSourceManual,
			Confidence:     conf,
		}
		if err := db.UpsertORNMapping(m); err != nil {
			t.Fatal(err)
		}
	}

	mappings, err := db.GetORNMappingsAbove(0.90, 100)
	if err != nil {
		t.Fatalf("GetORNMappingsAbove: %v", err)
	}
	if len(mappings) != 2 {
		t.Fatalf("mappings = %d, want 2", len(mappings))
	}
	for _, m := range mappings {
		if m.Confidence < 0.90 {
			t.Errorf("mapping below threshold: %+v", m)
		}
	}
}

func TestInsertReleaseIdempotent(t *testing.T) {
	db := openTestDB(t)
	catID, err := db.GetOrCreateCategory("TV")
	if err != nil {
		t.Fatalf("GetOrCreateCategory: %v", err)
	}

	r := &models.Release{
		Name:       "Show.S01E01.1080p.WEB-DL-GRP",
		SearchName: models.SearchName("Show.S01E01.1080p.WEB-DL-GRP"),
		GUID:       "aaaabbbbccccddddeeeeffff00001111",
		Size:       1 << 20,
		Files:      10,
		Completion: 100,
		PostedDate: time.Now().UTC(),
		Status:     models.ReleaseStatusActive,
		Passworded: models.PasswordedUnknown,
		CategoryID: catID,
		GroupID:    1,
		NZBGuid:    "aaaabbbbccccddddeeeeffff00001111",
	}
	if err := db.InsertRelease(r); err != nil {
		t.Fatalf("InsertRelease: %v", err)
	}
	firstID := r.ID

	// duplicate guid resolves to the stored winner instead of failing
	dup := &models.Release{
		Name:       r.Name,
		SearchName: r.SearchName,
		GUID:       r.GUID,
		Size:       r.Size,
		Files:      r.Files,
		Completion: r.Completion,
		PostedDate: r.PostedDate,
		Status:     r.Status,
		Passworded: r.Passworded,
		CategoryID: r.CategoryID,
		GroupID:    r.GroupID,
		NZBGuid:    r.NZBGuid,
	}
	if err := db.InsertRelease(dup); err != nil {
		t.Fatalf("InsertRelease duplicate: %v", err)
	}
	if dup.ID != firstID {
		t.Errorf("dup.ID = %d, want %d", dup.ID, firstID)
	}

	n, err := db.CountReleases()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("releases = %d, want 1", n)
	}
}

func TestExtendReleaseOnlyGrows(t *testing.T) {
	db := openTestDB(t)
	catID, _ := db.GetOrCreateCategory("")
	r := &models.Release{
		Name:       "Part.Wise.Release",
		SearchName: models.SearchName("Part.Wise.Release"),
		GUID:       "11112222333344445555666677778888",
		Files:      5,
		Size:       5000,
		Completion: 50,
		PostedDate: time.Now().UTC(),
		Status:     models.ReleaseStatusActive,
		Passworded: models.PasswordedUnknown,
		CategoryID: catID,
		GroupID:    1,
	}
	if err := db.InsertRelease(r); err != nil {
		t.Fatal(err)
	}

	if err := db.ExtendRelease(r.GUID, 8, 8000, 80); err != nil {
		t.Fatalf("ExtendRelease: %v", err)
	}
	got, err := db.GetReleaseByGUID(r.GUID)
	if err != nil || got == nil {
		t.Fatalf("GetReleaseByGUID: r=%v err=%v", got, err)
	}
	if got.Files != 8 || got.Size != 8000 {
		t.Errorf("extend not applied: files=%d size=%d", got.Files, got.Size)
	}

	// fewer files than stored is a no-op
	if err := db.ExtendRelease(r.GUID, 3, 3000, 30); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetReleaseByGUID(r.GUID)
	if got.Files != 8 {
		t.Errorf("shrinking extend applied: files=%d", got.Files)
	}
}

func TestGroupCursorMonotone(t *testing.T) {
	db := openTestDB(t)
	g := &models.Group{Name: "alt.binaries.test", Active: true}
	if err := db.InsertGroup(g); err != nil {
		t.Fatal(err)
	}

	if err := db.AdvanceGroupCursor(g.ID, 5000); err != nil {
		t.Fatal(err)
	}
	// stale advance is rejected by the guard
	if err := db.AdvanceGroupCursor(g.ID, 4000); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetGroupByID(g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentArticleID != 5000 {
		t.Errorf("cursor = %d, want 5000", got.CurrentArticleID)
	}

	// SetBackfillTarget bypasses the monotone guard (cursor correction)
	if err := db.AdvanceBackfillTarget(g.ID, 3000); err != nil {
		t.Fatal(err)
	}
	if err := db.SetBackfillTarget(g.ID, 1000); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetGroupByID(g.ID)
	if got.BackfillTarget != 1000 {
		t.Errorf("backfill target = %d, want 1000", got.BackfillTarget)
	}
	// but AdvanceBackfillTarget never rewinds
	if err := db.AdvanceBackfillTarget(g.ID, 500); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetGroupByID(g.ID)
	if got.BackfillTarget != 1000 {
		t.Errorf("backfill target rewound to %d", got.BackfillTarget)
	}
}

func TestGetOrCreateCategory(t *testing.T) {
	db := openTestDB(t)
	id1, err := db.GetOrCreateCategory("Movies")
	if err != nil {
		t.Fatal(err)
	}
	id2, err := db.GetOrCreateCategory("Movies")
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Errorf("ids differ: %d vs %d", id1, id2)
	}
	other, err := db.GetOrCreateCategory("")
	if err != nil {
		t.Fatal(err)
	}
	c, err := db.GetCategoryByID(other)
	if err != nil || c == nil {
		t.Fatalf("GetCategoryByID: c=%v err=%v", c, err)
	}
	if c.Name != DefaultCategoryName {
		t.Errorf("empty name mapped to %q", c.Name)
	}
}

func TestUserPasswordRoundTrip(t *testing.T) {
	db := openTestDB(t)
	user, err := db.InsertUser("alice", "correct horse battery", true)
	if err != nil {
		t.Fatalf("InsertUser: %v", err)
	}
	if user.APIKey == "" || !user.IsAdmin {
		t.Errorf("user = %+v", user)
	}

	ok, err := db.CheckUserPassword("alice", "correct horse battery")
	if err != nil || !ok {
		t.Errorf("good password: ok=%v err=%v", ok, err)
	}
	ok, _ = db.CheckUserPassword("alice", "wrong")
	if ok {
		t.Error("wrong password accepted")
	}
	ok, err = db.CheckUserPassword("nobody", "x")
	if err != nil || ok {
		t.Errorf("unknown user: ok=%v err=%v", ok, err)
	}

	if err := db.UpdateUserPassword("alice", "new password here"); err != nil {
		t.Fatal(err)
	}
	ok, _ = db.CheckUserPassword("alice", "new password here")
	if !ok {
		t.Error("updated password rejected")
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	db := openTestDB(t)
	// a second run over an up-to-date schema is a no-op
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestReleaseRegexOrdering(t *testing.T) {
	db := openTestDB(t)
	specs := []struct {
		ordinal int
		regex   string
	}{
		{200, `^(?P<name>late)$`},
		{100, `^(?P<name>early)$`},
		{100, `^(?P<name>early2)$`},
	}
	for _, s := range specs {
		r := &models.ReleaseRegex{
			GroupPattern: "*",
			Regex:        s.regex,
			Ordinal:      s.ordinal,
			Active:       true,
		}
		if err := db.InsertReleaseRegex(r); err != nil {
			t.Fatal(err)
		}
	}

	regexes, err := db.GetActiveReleaseRegexes()
	if err != nil {
		t.Fatal(err)
	}
	if len(regexes) != 3 {
		t.Fatalf("regexes = %d", len(regexes))
	}
	if regexes[0].Regex != `^(?P<name>early)$` || regexes[1].Regex != `^(?P<name>early2)$` {
		t.Errorf("ordering wrong: %s, %s", regexes[0].Regex, regexes[1].Regex)
	}
	if regexes[2].Ordinal != 200 {
		t.Errorf("last ordinal = %d", regexes[2].Ordinal)
	}
}
