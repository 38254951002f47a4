// Package mapbox implements domain.Geocoder using the Mapbox Geocoding API,
// with optional in-process LRU or shared Redis caching.
package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/civicsignal/report-pipeline/internal/domain"
	"github.com/civicsignal/report-pipeline/internal/observability"
)

// Client calls the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a Mapbox geocoding client. metrics may be nil.
func NewClient(token string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.mapbox.com/geocoding/v5/mapbox.places",
		logger:  logger,
		metrics: metrics,
	}
}

// ForwardGeocode resolves a free-text location into structured fields. An
// empty result (no error) means the query matched nothing.
func (c *Client) ForwardGeocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(query))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {"address,postcode,place,locality"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+params.Encode(), nil)
	if err != nil {
		c.countRequest("error")
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.countRequest("error")
		return domain.GeocodingResult{}, fmt.Errorf("forward geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.countRequest("error")
		return domain.GeocodingResult{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		c.countRequest("error")
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}

	if len(mapboxResp.Features) == 0 {
		c.countRequest("empty")
		return domain.GeocodingResult{}, nil
	}
	c.countRequest("success")
	return mapResult(mapboxResp.Features[0]), nil
}

func (c *Client) countRequest(outcome string) {
	if c.metrics != nil {
		c.metrics.GeocodeRequests.WithLabelValues(outcome).Inc()
	}
}

// mapResult flattens a Mapbox feature and its context chain into the domain
// result. Context entry IDs are "<layer>.<number>"; the layer identifies what
// the entry describes.
func mapResult(f feature) domain.GeocodingResult {
	result := domain.GeocodingResult{
		FormattedAddress: f.PlaceName,
		Confidence:       f.Relevance,
	}
	if len(f.Center) == 2 {
		result.Lon = f.Center[0]
		result.Lat = f.Center[1]
	}

	if hasPlaceType(f.PlaceType, "place") || hasPlaceType(f.PlaceType, "locality") {
		result.City = f.Text
	}

	for _, entry := range f.Context {
		layer, _, _ := strings.Cut(entry.ID, ".")
		switch layer {
		case "place", "locality":
			if result.City == "" {
				result.City = entry.Text
			}
		case "region":
			result.State = entry.Text
		case "district":
			result.County = entry.Text
		case "postcode":
			result.ZipCode = entry.Text
		case "country":
			result.Country = strings.ToUpper(entry.ShortCode)
		}
	}
	return result
}

func hasPlaceType(placeTypes []string, want string) bool {
	for _, pt := range placeTypes {
		if pt == want {
			return true
		}
	}
	return false
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64      `json:"center"` // [lon, lat]
	PlaceName string         `json:"place_name"`
	PlaceType []string       `json:"place_type"`
	Text      string         `json:"text"`
	Relevance float64        `json:"relevance"`
	Context   []contextEntry `json:"context"`
}

type contextEntry struct {
	ID        string `json:"id"` // e.g. "region.419", "country.8"
	Text      string `json:"text"`
	ShortCode string `json:"short_code"`
}
