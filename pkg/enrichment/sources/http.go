package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBytes bounds how much of an upstream body is read. External
// providers are untrusted; a runaway body must not exhaust memory.
const maxResponseBytes = 2 << 20

// classifyStatus maps an HTTP status code to an ErrorKind.
func classifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrAuth
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code >= 500:
		return ErrUpstream5xx
	default:
		return ErrNetwork
	}
}

// classifyErr maps a transport error to an ErrorKind.
func classifyErr(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrNetwork
}

// getJSON issues a GET and decodes a JSON object body. The returned
// ErrorKind is zero on success.
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string) (map[string]any, ErrorKind, error) {
	body, kind, err := get(ctx, client, url, headers)
	if err != nil {
		return nil, kind, err
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, ErrParse, fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return out, "", nil
}

// get issues a GET and returns the raw body.
func get(ctx context.Context, client *http.Client, url string, headers map[string]string) ([]byte, ErrorKind, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, ErrNetwork, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "bussola-enrichment/1.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyErr(err), err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		kind := classifyStatus(resp.StatusCode)
		return nil, kind, fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyErr(err), err
	}
	return body, "", nil
}

// defaultHTTPClient builds the shared HTTP client for adapters. Redirects
// are followed up to 5 hops; the overall deadline comes from the call ctx.
func defaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 15 * time.Second, // hard ceiling; per-call ctx is tighter
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return nil
		},
	}
}
