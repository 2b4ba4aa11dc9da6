// Package nzb builds, writes and parses NZB index documents
// (newzbin DTD). Emission is atomic: documents are written to a temp
// file, fsynced and renamed into place, and an existing document for
// the same GUID is never overwritten.
package nzb

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Namespace is the newzbin NZB document namespace.
const Namespace = "http://www.newzbin.com/DTD/2003/nzb"

const doctype = `<!DOCTYPE nzb PUBLIC "-//newzBin//DTD NZB 1.1//EN" "http://www.newzbin.com/DTD/nzb/nzb-1.1.dtd">` + "\n"

// NZB is the document root.
type NZB struct {
	XMLName xml.Name `xml:"nzb"`
	Xmlns   string   `xml:"xmlns,attr"`
	Head    *Head    `xml:"head,omitempty"`
	Files   []File   `xml:"file"`
}

// Head carries optional meta entries.
type Head struct {
	Metas []Meta `xml:"meta"`
}

// Meta is one typed head entry.
type Meta struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

// File is one posted file with its source groups and segments.
type File struct {
	Poster   string    `xml:"poster,attr"`
	Date     int64     `xml:"date,attr"`
	Subject  string    `xml:"subject,attr"`
	Groups   []string  `xml:"groups>group"`
	Segments []Segment `xml:"segments>segment"`
}

// Segment is one article of a file.
type Segment struct {
	Bytes     int64  `xml:"bytes,attr"`
	Number    int64  `xml:"number,attr"`
	MessageID string `xml:",chardata"`
}

// New builds an empty document with the namespace set.
func New() *NZB {
	return &NZB{Xmlns: Namespace}
}

// Marshal renders the pretty-printed document with XML prolog and
// doctype. Segments of every file are ordered by part number.
func (n *NZB) Marshal() ([]byte, error) {
	for i := range n.Files {
		segs := n.Files[i].Segments
		sort.Slice(segs, func(a, b int) bool { return segs[a].Number < segs[b].Number })
	}
	body, err := xml.MarshalIndent(n, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal nzb: %w", err)
	}
	out := make([]byte, 0, len(xml.Header)+len(doctype)+len(body)+1)
	out = append(out, xml.Header...)
	out = append(out, doctype...)
	out = append(out, body...)
	out = append(out, '\n')
	return out, nil
}

// Parse reads a document back.
func Parse(data []byte) (*NZB, error) {
	n := &NZB{}
	if err := xml.Unmarshal(data, n); err != nil {
		return nil, fmt.Errorf("failed to parse nzb: %w", err)
	}
	return n, nil
}

// ReadFile parses a document from disk.
func ReadFile(path string) (*NZB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read nzb '%s': %w", path, err)
	}
	return Parse(data)
}

// guidLocks serializes concurrent emission attempts for the same GUID.
var guidLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func lockGUID(guid string) *sync.Mutex {
	guidLocks.mu.Lock()
	if guidLocks.locks == nil {
		guidLocks.locks = make(map[string]*sync.Mutex)
	}
	l, ok := guidLocks.locks[guid]
	if !ok {
		l = &sync.Mutex{}
		guidLocks.locks[guid] = l
	}
	guidLocks.mu.Unlock()
	l.Lock()
	return l
}

// WriteFile atomically emits the document as <guid>.nzb under dir.
// Returns the final path and whether emission was skipped because the
// file already exists.
func WriteFile(dir, guid string, n *NZB) (string, bool, error) {
	l := lockGUID(guid)
	defer l.Unlock()

	finalPath := filepath.Join(dir, guid+".nzb")
	if _, err := os.Stat(finalPath); err == nil {
		return finalPath, true, nil
	}

	data, err := n.Marshal()
	if err != nil {
		return "", false, err
	}

	tmp, err := os.CreateTemp(dir, ".nzb-*")
	if err != nil {
		return "", false, fmt.Errorf("failed to create temp nzb: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", false, fmt.Errorf("failed to write nzb '%s': %w", guid, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", false, fmt.Errorf("failed to sync nzb '%s': %w", guid, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", false, fmt.Errorf("failed to close nzb '%s': %w", guid, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", false, fmt.Errorf("failed to rename nzb '%s': %w", guid, err)
	}
	return finalPath, false, nil
}
