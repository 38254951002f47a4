package mapbox

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsignal/report-pipeline/internal/observability"
)

const sanJoseResponse = `{
  "type": "FeatureCollection",
  "features": [
    {
      "id": "place.29384",
      "type": "Feature",
      "place_type": ["place"],
      "relevance": 0.98,
      "text": "San Jose",
      "place_name": "San Jose, California, United States",
      "center": [-121.8863, 37.3382],
      "context": [
        {"id": "district.211", "text": "Santa Clara County"},
        {"id": "postcode.9412", "text": "95113"},
        {"id": "region.419", "text": "California", "short_code": "US-CA"},
        {"id": "country.8", "text": "United States", "short_code": "us"}
      ]
    }
  ]
}`

const torontoResponse = `{
  "type": "FeatureCollection",
  "features": [
    {
      "id": "place.1022",
      "type": "Feature",
      "place_type": ["place"],
      "relevance": 1,
      "text": "Toronto",
      "place_name": "Toronto, Ontario, Canada",
      "center": [-79.3832, 43.6532],
      "context": [
        {"id": "region.2036", "text": "Ontario", "short_code": "CA-ON"},
        {"id": "country.3", "text": "Canada", "short_code": "ca"}
      ]
    }
  ]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient("test-token", 5*time.Second, discardLogger(), observability.NewMetricsForTesting())
	client.baseURL = server.URL
	return client, server
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestForwardGeocode(t *testing.T) {
	var gotPath string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "test-token", r.URL.Query().Get("access_token"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, sanJoseResponse)
	})

	result, err := client.ForwardGeocode(context.Background(), "San Jose, CA")
	require.NoError(t, err)

	assert.Equal(t, "/San Jose, CA.json", gotPath)
	assert.Equal(t, "San Jose", result.City)
	assert.Equal(t, "California", result.State)
	assert.Equal(t, "Santa Clara County", result.County)
	assert.Equal(t, "95113", result.ZipCode)
	assert.Equal(t, "US", result.Country)
	assert.InDelta(t, 37.3382, result.Lat, 0.0001)
	assert.InDelta(t, -121.8863, result.Lon, 0.0001)
	assert.Equal(t, "San Jose, California, United States", result.FormattedAddress)
	assert.InDelta(t, 0.98, result.Confidence, 0.001)
}

func TestForwardGeocodeForeignCountry(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, torontoResponse)
	})

	result, err := client.ForwardGeocode(context.Background(), "Toronto")
	require.NoError(t, err)
	assert.Equal(t, "CA", result.Country)
}

func TestForwardGeocodeNoMatch(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"type":"FeatureCollection","features":[]}`)
	})

	result, err := client.ForwardGeocode(context.Background(), "xyzzy")
	require.NoError(t, err)
	assert.Empty(t, result.City)
	assert.Empty(t, result.Country)
}

func TestForwardGeocodeAPIError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"message":"Not Authorized"}`)
	})

	_, err := client.ForwardGeocode(context.Background(), "San Jose, CA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}
