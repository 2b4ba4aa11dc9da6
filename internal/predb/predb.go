// Package predb implements the external deobfuscation lookup clients:
// PreDB endpoints, newznab indexers and NZBHydra2. All clients are
// stateless across calls except for HTTP connection reuse.
package predb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-while/go-nzbidx/internal/config"
)

// Endpoint is one configured PreDB API endpoint. Kind selects the
// response parser.
type Endpoint struct {
	Name string
	URL  string
	Kind string // "predbde", "predbnet", "srrdb"
}

// Client queries a list of PreDB endpoints in order and returns the
// first hit. Endpoint failures are skipped silently.
type Client struct {
	Endpoints  []Endpoint
	HTTPClient *http.Client
}

// NewClient builds a client with the default request timeout.
func NewClient(endpoints []Endpoint) *Client {
	return &Client{
		Endpoints:  endpoints,
		HTTPClient: &http.Client{Timeout: config.DefaultHTTPTimeout},
	}
}

// Lookup resolves a hash or obfuscated name against the configured
// endpoints. Returns the endpoint name alongside the release name so
// the caller can label the cache entry.
func (c *Client) Lookup(ctx context.Context, query string) (name, endpoint string, ok bool) {
	for _, ep := range c.Endpoints {
		result, err := c.queryEndpoint(ctx, ep, query)
		if err != nil {
			log.Printf("[PREDB] endpoint '%s' failed for '%s': %v", ep.Name, truncate(query), err)
			continue
		}
		if result != "" && !strings.EqualFold(result, query) {
			return result, ep.Name, true
		}
	}
	return "", "", false
}

func (c *Client) queryEndpoint(ctx context.Context, ep Endpoint, query string) (string, error) {
	u := strings.ReplaceAll(ep.URL, "{query}", url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	switch ep.Kind {
	case "predbde":
		return parsePredbDE(body)
	case "srrdb":
		return parseSrrDB(body)
	default:
		return parsePredbNet(body)
	}
}

// predb.de: {"count":N,"results":[{"release":"..."}]}
func parsePredbDE(body []byte) (string, error) {
	var doc struct {
		Results []struct {
			Release string `json:"release"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", err
	}
	if len(doc.Results) == 0 {
		return "", nil
	}
	return doc.Results[0].Release, nil
}

// predb.net style: {"status":"success","data":[{"title":"..."}]}
func parsePredbNet(body []byte) (string, error) {
	var doc struct {
		Data []struct {
			Title string `json:"title"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", err
	}
	if len(doc.Data) == 0 {
		return "", nil
	}
	return doc.Data[0].Title, nil
}

// srrdb release search: {"results":[{"release":"..."}]}
func parseSrrDB(body []byte) (string, error) {
	return parsePredbDE(body)
}

func truncate(s string) string {
	if len(s) > 64 {
		return s[:64] + "..."
	}
	return s
}
