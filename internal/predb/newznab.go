package predb

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-while/go-nzbidx/internal/config"
)

// NewznabRelease is one item from a newznab search response.
type NewznabRelease struct {
	Title string
	GUID  string
	Size  int64
	Attrs map[string]string
}

// NewznabClient talks to a single newznab-compatible indexer. An
// NZBHydra2 meta-indexer uses the exact same contract, so there is no
// separate client type for it.
type NewznabClient struct {
	Name       string
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewNewznabClient builds a client with the default request timeout.
func NewNewznabClient(name, baseURL, apiKey string) *NewznabClient {
	return &NewznabClient{
		Name:       name,
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: config.DefaultHTTPTimeout},
	}
}

// rss mirrors the newznab RSS envelope, including the namespaced attr
// tags carried on each item.
type rss struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title string `xml:"title"`
	GUID  string `xml:"guid"`
	Attrs []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:"value,attr"`
	} `xml:"attr"`
}

// Search runs a free-text query and returns the parsed release list.
func (c *NewznabClient) Search(ctx context.Context, query string) ([]NewznabRelease, error) {
	u := fmt.Sprintf("%s/api?t=search&q=%s&apikey=%s",
		strings.TrimRight(c.BaseURL, "/"), url.QueryEscape(query), url.QueryEscape(c.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newznab '%s': %w", c.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newznab '%s': status %d", c.Name, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("newznab '%s': %w", c.Name, err)
	}

	var doc rss
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("newznab '%s': malformed response: %w", c.Name, err)
	}

	releases := make([]NewznabRelease, 0, len(doc.Channel.Items))
	for _, item := range doc.Channel.Items {
		rel := NewznabRelease{
			Title: strings.TrimSpace(item.Title),
			GUID:  strings.TrimSpace(item.GUID),
			Attrs: make(map[string]string, len(item.Attrs)),
		}
		for _, a := range item.Attrs {
			rel.Attrs[a.Name] = a.Value
			if a.Name == "size" {
				fmt.Sscanf(a.Value, "%d", &rel.Size)
			}
		}
		releases = append(releases, rel)
	}
	return releases, nil
}

// LookupByHash searches for an obfuscated hash and returns the first
// result title that differs from the query itself.
func (c *NewznabClient) LookupByHash(ctx context.Context, hash string) (string, bool) {
	releases, err := c.Search(ctx, hash)
	if err != nil {
		return "", false
	}
	for _, rel := range releases {
		if rel.Title != "" && !strings.EqualFold(rel.Title, hash) {
			return rel.Title, true
		}
	}
	return "", false
}

// NewznabPool fans a query out to all configured indexers in parallel.
type NewznabPool struct {
	Clients []*NewznabClient
}

// Search broadcasts the query; the first non-error, non-empty answer
// wins and results are deduped by GUID.
func (p *NewznabPool) Search(ctx context.Context, query string) []NewznabRelease {
	if len(p.Clients) == 0 {
		return nil
	}
	results := make(chan []NewznabRelease, len(p.Clients))
	var wg sync.WaitGroup
	for _, client := range p.Clients {
		wg.Add(1)
		go func(c *NewznabClient) {
			defer wg.Done()
			releases, err := c.Search(ctx, query)
			if err == nil && len(releases) > 0 {
				results <- releases
			}
		}(client)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	winner, ok := <-results
	if !ok {
		return nil
	}
	seen := make(map[string]bool, len(winner))
	deduped := winner[:0]
	for _, rel := range winner {
		if rel.GUID != "" && seen[rel.GUID] {
			continue
		}
		seen[rel.GUID] = true
		deduped = append(deduped, rel)
	}
	return deduped
}

// LookupByHash runs the hash lookup against the pool; the first title
// that differs from the hash wins.
func (p *NewznabPool) LookupByHash(ctx context.Context, hash string) (string, string, bool) {
	for _, rel := range p.Search(ctx, hash) {
		if rel.Title != "" && !strings.EqualFold(rel.Title, hash) {
			return rel.Title, ORNSourcePool, true
		}
	}
	return "", "", false
}

// ORNSourcePool labels pool-resolved cache entries.
const ORNSourcePool = "newznab"
