// Package enrichment implements the progressive enrichment engine: URL
// normalization, the canonical field vocabulary, confidence-based field
// merging and the three-layer orchestrator that drives the source
// adapters.
package enrichment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// NormalizeURL canonicalizes a user-supplied website URL. Lowercased,
// https scheme prepended when absent, path and trailing slash stripped.
// Idempotent: normalizing an already-normalized URL is a no-op.
func NormalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(strings.ToLower(raw))
	if trimmed == "" {
		return "", fmt.Errorf("empty URL")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("no host in %q", raw)
	}
	// www. is presentation, not identity: www.example.com and example.com
	// must land on the same session.
	if rest := strings.TrimPrefix(host, "www."); rest != host && strings.Contains(rest, ".") {
		host = rest
	}
	return "https://" + host, nil
}

// Domain extracts the bare domain from a raw or normalized URL.
func Domain(raw string) (string, error) {
	normalized, err := NormalizeURL(raw)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(normalized, "https://"), nil
}

// CacheKey derives the deterministic enrichment-cache key for a domain
// and the set of layers the run covers.
func CacheKey(domain string, layers []int) string {
	sorted := append([]int(nil), layers...)
	sort.Ints(sorted)
	var sb strings.Builder
	sb.WriteString(domain)
	for _, l := range sorted {
		fmt.Fprintf(&sb, "|%d", l)
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// SessionCacheKey is the key for a full three-layer run, the only layer
// set the engine currently executes.
func SessionCacheKey(domain string) string {
	return CacheKey(domain, []int{1, 2, 3})
}
