// Package fetcher pulls snapshots of external public-health and hazard feeds
// and normalizes them into warehouse rows. Every fetcher owns one warehouse
// table and replaces it wholesale on load; record IDs are deterministic
// digests of each source's natural key so downstream joins survive reloads.
package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/civicsignal/report-pipeline/internal/adapter/warehouse"
)

const userAgent = "report-pipeline-ingest/1.0"

// Fetcher pulls one external source and normalizes it to warehouse rows.
// Fetch returns the rows, the target table's column list, and any error.
type Fetcher interface {
	Name() string
	Table() string
	Fetch(ctx context.Context) ([]warehouse.Row, []string, error)
}

// Client is the HTTP client shared by all fetchers. A token-bucket limiter
// keeps the scheduler polite toward the public endpoints.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a rate-limited fetch client. requestsPerSecond bounds the
// aggregate request rate across all fetchers sharing this client.
func NewClient(timeout time.Duration, requestsPerSecond float64) *Client {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// get fetches url and returns the response body. Non-200 statuses are errors.
func (c *Client) get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body from %s: %w", url, err)
	}
	return body, nil
}

// recordID derives a stable row identifier from a source's natural key: the
// first 16 hex characters of a SHA-256 over the joined parts.
func recordID(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:16]
}

// nullableFloat coerces a string field to float64 or SQL NULL. Upstream feeds
// routinely ship empty strings where numbers belong; those become null, never
// zero.
func nullableFloat(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return f
}

// nullableInt coerces a string field to int64 or SQL NULL.
func nullableInt(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Socrata sometimes emits integers as "2024.0".
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return nil
		}
		return int64(f)
	}
	return n
}

// canonicalDate renders a time as the warehouse's YYYY-MM-DD date string.
func canonicalDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// feedDateLayouts covers the pub-date formats seen across the RSS and Atom
// sources.
var feedDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseFeedDate tries the known feed date layouts, reporting ok=false when
// none match. Callers keep the raw string either way.
func parseFeedDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range feedDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// nullableDate renders the canonical date for a raw feed date, or SQL NULL
// when the raw value does not parse.
func nullableDate(raw string) any {
	t, ok := parseFeedDate(raw)
	if !ok {
		return nil
	}
	return canonicalDate(t)
}
