package nzb

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleDoc() *NZB {
	n := New()
	n.Files = []File{{
		Poster:  "poster@example.com (Poster)",
		Date:    1724600000,
		Subject: "Show.S01E01.1080p.WEB-DL-GRP [1/3] yEnc",
		Groups:  []string{"alt.binaries.teevee"},
		Segments: []Segment{
			{Bytes: 1048576, Number: 3, MessageID: "part3@example.com"},
			{Bytes: 1048576, Number: 1, MessageID: "part1@example.com"},
			{Bytes: 1048576, Number: 2, MessageID: "part2@example.com"},
		},
	}}
	return n
}

func TestMarshalRoundTrip(t *testing.T) {
	data, err := sampleDoc().Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), Namespace) {
		t.Error("namespace missing from output")
	}
	if !strings.HasPrefix(string(data), "<?xml") {
		t.Error("missing xml prolog")
	}

	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(parsed.Files) != 1 {
		t.Fatalf("files = %d", len(parsed.Files))
	}
	f := parsed.Files[0]
	if len(f.Groups) != 1 || f.Groups[0] != "alt.binaries.teevee" {
		t.Errorf("groups = %v", f.Groups)
	}
	if len(f.Segments) != 3 {
		t.Fatalf("segments = %d", len(f.Segments))
	}
	// Marshal sorts by part number
	for i, seg := range f.Segments {
		if seg.Number != int64(i+1) {
			t.Errorf("segment %d has number %d", i, seg.Number)
		}
		if seg.Bytes != 1048576 {
			t.Errorf("segment %d bytes = %d", i, seg.Bytes)
		}
	}
	if f.Segments[0].MessageID != "part1@example.com" {
		t.Errorf("first message id = %q", f.Segments[0].MessageID)
	}
}

func TestWriteFileAtomicAndIdempotent(t *testing.T) {
	dir := t.TempDir()
	guid := "0123456789abcdef0123456789abcdef"

	path, skipped, err := WriteFile(dir, guid, sampleDoc())
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if skipped {
		t.Fatal("first write must not be skipped")
	}
	if filepath.Base(path) != guid+".nzb" {
		t.Errorf("path = %q", path)
	}

	// second emission for the same guid is skipped
	mtimeBefore := mustStat(t, path).ModTime()
	_, skipped, err = WriteFile(dir, guid, New())
	if err != nil {
		t.Fatalf("WriteFile (second): %v", err)
	}
	if !skipped {
		t.Error("second write must be skipped")
	}
	if got := mustStat(t, path).ModTime(); !got.Equal(mtimeBefore) {
		t.Error("existing file was rewritten")
	}

	// no temp debris left behind
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("leftover files in nzb dir: %d", len(entries))
	}

	parsed, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if parsed.Xmlns != Namespace {
		t.Errorf("xmlns = %q", parsed.Xmlns)
	}
}

func mustStat(t *testing.T, path string) os.FileInfo {
	t.Helper()
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return fi
}
