package scheduler

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-while/go-nzbidx/internal/assembler"
	"github.com/go-while/go-nzbidx/internal/database"
	"github.com/go-while/go-nzbidx/internal/deobfuscate"
	"github.com/go-while/go-nzbidx/internal/models"
	"github.com/go-while/go-nzbidx/internal/nntp"
)

// fakeNNTPServer is a minimal scriptable NNTP server for worker tests.
// Handlers are keyed by command verb and may drop the connection by
// returning false; unhandled commands get a 500.
type fakeNNTPServer struct {
	ln       net.Listener
	handlers map[string]func(w *bufio.Writer, args []string) bool

	mu    sync.Mutex
	conns int
}

func newFakeNNTPServer(t *testing.T) *fakeNNTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeNNTPServer{ln: ln, handlers: make(map[string]func(*bufio.Writer, []string) bool)}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *fakeNNTPServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		s.mu.Unlock()
		go s.handle(conn)
	}
}

func (s *fakeNNTPServer) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	fmt.Fprintf(w, "200 test server ready\r\n")
	w.Flush()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) == 0 {
			continue
		}
		verb := strings.ToUpper(fields[0])
		if verb == "QUIT" {
			fmt.Fprintf(w, "205 bye\r\n")
			w.Flush()
			return
		}
		keep := true
		if h, ok := s.handlers[verb]; ok {
			keep = h(w, fields[1:])
		} else {
			fmt.Fprintf(w, "500 unknown command\r\n")
		}
		w.Flush()
		if !keep {
			return
		}
	}
}

func (s *fakeNNTPServer) hostPort() (string, int) {
	tcp := s.ln.Addr().(*net.TCPAddr)
	return tcp.IP.String(), tcp.Port
}

func (s *fakeNNTPServer) connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

func serverSettings(db *database.Database, s *fakeNNTPServer) *database.Settings {
	settings := db.LoadSettings()
	settings.NNTPServer, settings.NNTPPort = s.hostPort()
	return settings
}

func workerOverview(num int64, subject string, bytes int64) nntp.Overview {
	return nntp.Overview{
		ArticleNum: num,
		Subject:    subject,
		From:       "poster@example.com (Poster)",
		Date:       "Mon, 25 Aug 2025 10:00:00 +0000",
		MessageID:  fmt.Sprintf("<a%d@example.com>", num),
		Bytes:      bytes,
	}
}

func TestProcessBatchEnforcesGroupMinimums(t *testing.T) {
	db := openTestDB(t)
	sched := NewScheduler(db, deobfuscate.NewPipeline(db, nil, nil))
	g := &models.Group{ID: 1, Name: "alt.binaries.teevee", MinFiles: 5, MinSize: 1 << 20}

	var overviews []nntp.Overview
	num := int64(0)
	add := func(subject string, bytes int64) {
		num++
		overviews = append(overviews, workerOverview(num, subject, bytes))
	}
	// complete but below min_files
	for i := 1; i <= 3; i++ {
		add(fmt.Sprintf("Tiny.Post.Name-GRP [%d/3] yEnc", i), 1<<20)
	}
	// enough parts but below min_size
	for i := 1; i <= 6; i++ {
		add(fmt.Sprintf("Small.Post.Name-GRP [%d/6] yEnc", i), 512)
	}
	// clears both thresholds
	for i := 1; i <= 6; i++ {
		add(fmt.Sprintf("Big.Release.Name-GRP [%d/6] yEnc", i), 1<<20)
	}

	sched.processBatch(g, nil, overviews)

	count, err := db.CountReleases()
	if err != nil {
		t.Fatalf("CountReleases: %v", err)
	}
	if count != 1 {
		t.Fatalf("release count = %d, want 1", count)
	}
	rel, err := db.GetReleaseByGUID(assembler.GUID("Big.Release.Name-GRP", g.Name))
	if err != nil || rel == nil {
		t.Fatalf("release above thresholds missing, err=%v", err)
	}
}

func TestUpdateGroupCursorCoversScannedRange(t *testing.T) {
	srv := newFakeNNTPServer(t)
	srv.handlers["GROUP"] = func(w *bufio.Writer, args []string) bool {
		fmt.Fprintf(w, "211 100 1001 1100 %s\r\n", args[0])
		return true
	}
	// no OVER handler: the whole range is walked via HEAD, and only 20
	// of the 100 articles exist
	srv.handlers["HEAD"] = func(w *bufio.Writer, args []string) bool {
		n, _ := strconv.ParseInt(args[0], 10, 64)
		if n < 1001 || n > 1020 {
			fmt.Fprintf(w, "423 no such article number\r\n")
			return true
		}
		fmt.Fprintf(w, "221 %d <art%d@x> head follows\r\n", n, n)
		fmt.Fprintf(w, "Subject: Fake.Show.S01E02.720p.WEB-GRP [%d/20] yEnc\r\n", n-1000)
		fmt.Fprintf(w, "From: poster@x (P)\r\n")
		fmt.Fprintf(w, "Message-ID: <art%d@x>\r\n", n)
		fmt.Fprintf(w, "Bytes: 4096\r\n")
		fmt.Fprintf(w, ".\r\n")
		return true
	}

	db := openTestDB(t)
	g := &models.Group{Name: "alt.binaries.test", Active: true}
	if err := db.InsertGroup(g); err != nil {
		t.Fatalf("InsertGroup: %v", err)
	}
	if err := db.AdvanceGroupCursor(g.ID, 1000); err != nil {
		t.Fatalf("advance: %v", err)
	}
	g, err := db.GetGroupByID(g.ID)
	if err != nil {
		t.Fatal(err)
	}

	sched := NewScheduler(db, deobfuscate.NewPipeline(db, nil, nil))
	sched.updateGroup(g, serverSettings(db, srv))

	got, err := db.GetGroupByID(g.ID)
	if err != nil {
		t.Fatal(err)
	}
	// the cursor covers the scanned range, missing articles included
	if got.CurrentArticleID != 1100 {
		t.Errorf("cursor = %d, want 1100", got.CurrentArticleID)
	}
	count, _ := db.CountReleases()
	if count != 1 {
		t.Errorf("release count = %d, want 1", count)
	}
}

func TestUpdateGroupShrinksBatchAfterFallback(t *testing.T) {
	srv := newFakeNNTPServer(t)
	var mu sync.Mutex
	var overRanges []string
	srv.handlers["GROUP"] = func(w *bufio.Writer, args []string) bool {
		fmt.Fprintf(w, "211 150 1001 1150 %s\r\n", args[0])
		return true
	}
	srv.handlers["OVER"] = func(w *bufio.Writer, args []string) bool {
		mu.Lock()
		overRanges = append(overRanges, args[0])
		mu.Unlock()
		fmt.Fprintf(w, "500 OVER not supported\r\n")
		return true
	}
	srv.handlers["HEAD"] = func(w *bufio.Writer, args []string) bool {
		fmt.Fprintf(w, "423 no such article number\r\n")
		return true
	}

	db := openTestDB(t)
	g := &models.Group{Name: "alt.binaries.test", Active: true}
	if err := db.InsertGroup(g); err != nil {
		t.Fatal(err)
	}
	if err := db.AdvanceGroupCursor(g.ID, 1000); err != nil {
		t.Fatal(err)
	}
	g, err := db.GetGroupByID(g.ID)
	if err != nil {
		t.Fatal(err)
	}

	sched := NewScheduler(db, deobfuscate.NewPipeline(db, nil, nil))
	sched.updateGroup(g, serverSettings(db, srv))

	got, _ := db.GetGroupByID(g.ID)
	if got.CurrentArticleID != 1150 {
		t.Errorf("cursor = %d, want 1150", got.CurrentArticleID)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(overRanges) != 6 {
		t.Fatalf("over ranges = %v, want 6 batches", overRanges)
	}
	if overRanges[0] != "1001-1100" {
		t.Errorf("first range = %q", overRanges[0])
	}
	// after the first fallback every batch shrinks to ten articles
	for _, r := range overRanges[1:] {
		parts := strings.SplitN(r, "-", 2)
		lo, _ := strconv.ParseInt(parts[0], 10, 64)
		hi, _ := strconv.ParseInt(parts[1], 10, 64)
		if hi-lo+1 != 10 {
			t.Errorf("range %q spans %d articles, want 10", r, hi-lo+1)
		}
	}
}

func TestOverRangeRetriesOnFreshConnection(t *testing.T) {
	srv := newFakeNNTPServer(t)
	srv.handlers["GROUP"] = func(w *bufio.Writer, args []string) bool {
		fmt.Fprintf(w, "211 2 1 2 %s\r\n", args[0])
		return true
	}
	var mu sync.Mutex
	overCalls := 0
	srv.handlers["OVER"] = func(w *bufio.Writer, args []string) bool {
		mu.Lock()
		overCalls++
		first := overCalls == 1
		mu.Unlock()
		if first {
			return false // drop the connection mid-command
		}
		fmt.Fprintf(w, "224 overview follows\r\n")
		fmt.Fprintf(w, "1\tSome.Post.Name [1/2] yEnc\tposter@x (P)\tMon, 25 Aug 2025 10:00:00 +0000\t<one@x>\t\t1000\t8\r\n")
		fmt.Fprintf(w, "2\tSome.Post.Name [2/2] yEnc\tposter@x (P)\tMon, 25 Aug 2025 10:01:00 +0000\t<two@x>\t\t2000\t16\r\n")
		fmt.Fprintf(w, ".\r\n")
		return true
	}

	host, port := srv.hostPort()
	conn := nntp.NewConn(&nntp.BackendConfig{
		Host:           host,
		Port:           port,
		ConnectTimeout: 5 * time.Second,
	})
	if err := conn.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(conn.Quit)
	if _, err := conn.SelectGroup("alt.binaries.test"); err != nil {
		t.Fatalf("SelectGroup: %v", err)
	}

	overviews, usedFallback, err := overRangeRetry(conn, "alt.binaries.test", 1, 2)
	if err != nil {
		t.Fatalf("overRangeRetry: %v", err)
	}
	if usedFallback {
		t.Error("fallback flagged on working retry")
	}
	if len(overviews) != 2 {
		t.Fatalf("overviews = %d, want 2", len(overviews))
	}
	if srv.connections() != 2 {
		t.Errorf("connections = %d, want a fresh second connection", srv.connections())
	}
}
