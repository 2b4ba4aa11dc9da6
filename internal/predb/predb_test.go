package predb

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParsePredbDE(t *testing.T) {
	body := []byte(`{"count":1,"results":[{"release":"Some.Release.S01E01.1080p-GRP"}]}`)
	name, err := parsePredbDE(body)
	if err != nil {
		t.Fatal(err)
	}
	if name != "Some.Release.S01E01.1080p-GRP" {
		t.Errorf("name = %q", name)
	}

	name, err = parsePredbDE([]byte(`{"count":0,"results":[]}`))
	if err != nil || name != "" {
		t.Errorf("empty results: name=%q err=%v", name, err)
	}

	if _, err := parsePredbDE([]byte(`not json`)); err == nil {
		t.Error("malformed body accepted")
	}
}

func TestParsePredbNet(t *testing.T) {
	body := []byte(`{"status":"success","data":[{"title":"Other.Release.2024-GRP"}]}`)
	name, err := parsePredbNet(body)
	if err != nil {
		t.Fatal(err)
	}
	if name != "Other.Release.2024-GRP" {
		t.Errorf("name = %q", name)
	}
}

func TestLookupFirstHitWins(t *testing.T) {
	var calls []string
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "broken")
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()
	working := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "working")
		fmt.Fprintf(w, `{"results":[{"release":"Resolved.Name-GRP"}]}`)
	}))
	defer working.Close()
	never := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "never")
		fmt.Fprintf(w, `{"results":[{"release":"Should.Not.Reach"}]}`)
	}))
	defer never.Close()

	client := NewClient([]Endpoint{
		{Name: "broken", URL: broken.URL + "/?q={query}", Kind: "predbde"},
		{Name: "working", URL: working.URL + "/?q={query}", Kind: "predbde"},
		{Name: "never", URL: never.URL + "/?q={query}", Kind: "predbde"},
	})

	name, endpoint, ok := client.Lookup(context.Background(), "deadbeefdeadbeefdeadbeefdeadbeef")
	if !ok {
		t.Fatal("lookup failed")
	}
	if name != "Resolved.Name-GRP" || endpoint != "working" {
		t.Errorf("name=%q endpoint=%q", name, endpoint)
	}
	if len(calls) != 2 {
		t.Errorf("calls = %v, want broken then working only", calls)
	}
}

func TestLookupRejectsEchoedQuery(t *testing.T) {
	query := "deadbeefdeadbeefdeadbeefdeadbeef"
	echo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"results":[{"release":"%s"}]}`, query)
	}))
	defer echo.Close()

	client := NewClient([]Endpoint{
		{Name: "echo", URL: echo.URL + "/?q={query}", Kind: "predbde"},
	})
	if _, _, ok := client.Lookup(context.Background(), query); ok {
		t.Error("echoed query accepted as resolution")
	}
}

func TestLookupUnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := srv.URL
	srv.Close()

	client := NewClient([]Endpoint{
		{Name: "down", URL: deadURL + "/?q={query}", Kind: "predbde"},
	})
	if _, _, ok := client.Lookup(context.Background(), "query"); ok {
		t.Error("unreachable endpoint produced a result")
	}
}

func TestLookupQuerySubstitution(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		fmt.Fprintf(w, `{"results":[]}`)
	}))
	defer srv.Close()

	client := NewClient([]Endpoint{
		{Name: "srv", URL: srv.URL + "/?q={query}", Kind: "predbde"},
	})
	client.Lookup(context.Background(), "name with spaces")
	if gotQuery != "name with spaces" {
		t.Errorf("query = %q", gotQuery)
	}
}

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:newznab="http://www.newznab.com/DTD/2010/feeds/attributes/">
  <channel>
    <item>
      <title>Found.Release.S02E03.720p-GRP</title>
      <guid>guid-1</guid>
      <newznab:attr name="size" value="734003200"/>
      <newznab:attr name="category" value="5030"/>
    </item>
    <item>
      <title>Found.Release.S02E03.720p.DUPE-GRP</title>
      <guid>guid-1</guid>
      <newznab:attr name="size" value="734003200"/>
    </item>
    <item>
      <title>Second.Release-GRP</title>
      <guid>guid-2</guid>
    </item>
  </channel>
</rss>`

func TestNewznabSearch(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		fmt.Fprint(w, sampleRSS)
	}))
	defer srv.Close()

	client := NewNewznabClient("test", srv.URL, "secretkey")
	releases, err := client.Search(context.Background(), "some query")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(releases) != 3 {
		t.Fatalf("releases = %d", len(releases))
	}
	first := releases[0]
	if first.Title != "Found.Release.S02E03.720p-GRP" || first.GUID != "guid-1" {
		t.Errorf("first = %+v", first)
	}
	if first.Size != 734003200 {
		t.Errorf("size attr not parsed: %d", first.Size)
	}
	if first.Attrs["category"] != "5030" {
		t.Errorf("category attr = %q", first.Attrs["category"])
	}
	if gotPath != "/api?t=search&q=some+query&apikey=secretkey" {
		t.Errorf("request = %q", gotPath)
	}
}

func TestNewznabLookupByHash(t *testing.T) {
	hash := "aabbccddeeff00112233445566778899"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<rss><channel>
			<item><title>%s</title><guid>g1</guid></item>
			<item><title>Real.Name.Of.Release-GRP</title><guid>g2</guid></item>
		</channel></rss>`, hash)
	}))
	defer srv.Close()

	client := NewNewznabClient("test", srv.URL, "")
	name, ok := client.LookupByHash(context.Background(), hash)
	if !ok {
		t.Fatal("lookup failed")
	}
	// the first title echoes the hash and must be skipped
	if name != "Real.Name.Of.Release-GRP" {
		t.Errorf("name = %q", name)
	}
}

func TestNewznabPoolDedupAndFanOut(t *testing.T) {
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<rss><channel></channel></rss>`)
	}))
	defer empty.Close()
	full := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sampleRSS)
	}))
	defer full.Close()

	pool := &NewznabPool{Clients: []*NewznabClient{
		NewNewznabClient("empty", empty.URL, ""),
		NewNewznabClient("full", full.URL, ""),
	}}

	releases := pool.Search(context.Background(), "query")
	// sampleRSS carries a duplicate guid-1; only the empty indexer answers
	// with nothing, so the full indexer's deduped list wins
	if len(releases) != 2 {
		t.Fatalf("releases = %d, want 2 after dedup", len(releases))
	}
	if releases[0].GUID != "guid-1" || releases[1].GUID != "guid-2" {
		t.Errorf("guids = %q, %q", releases[0].GUID, releases[1].GUID)
	}

	name, source, ok := pool.LookupByHash(context.Background(), "0123456789abcdef0123456789abcdef")
	if !ok || source != ORNSourcePool {
		t.Fatalf("pool lookup: ok=%v source=%q", ok, source)
	}
	if name != "Found.Release.S02E03.720p-GRP" {
		t.Errorf("name = %q", name)
	}
}

func TestNewznabPoolEmpty(t *testing.T) {
	pool := &NewznabPool{}
	if got := pool.Search(context.Background(), "x"); got != nil {
		t.Errorf("empty pool returned %v", got)
	}
}
