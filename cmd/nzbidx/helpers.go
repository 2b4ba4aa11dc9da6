package main

import (
	"net/url"
	"strings"
)

// splitList splits a comma separated settings value, dropping empties.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// splitPipe splits a name|url|apikey indexer spec.
func splitPipe(spec string) []string {
	parts := strings.Split(spec, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// endpointName derives a stable label from an endpoint URL for the ORN
// source tag.
func endpointName(endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	return endpoint
}
