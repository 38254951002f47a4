package fetcher

import (
	"context"
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/civicsignal/report-pipeline/internal/adapter/warehouse"
	"github.com/civicsignal/report-pipeline/internal/domain"
)

const earthquakeURL = "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/2.5_week.atom"

var earthquakeColumns = []string{
	"record_id", "title", "magnitude", "latitude", "longitude",
	"depth_km", "updated_raw", "event_date", "load_timestamp",
}

// Earthquake ingests the USGS significant-earthquake Atom feed.
type Earthquake struct {
	client *Client
	url    string
}

// NewEarthquake creates the earthquake event fetcher.
func NewEarthquake(client *Client) *Earthquake {
	return &Earthquake{client: client, url: earthquakeURL}
}

func (f *Earthquake) Name() string  { return "earthquake" }
func (f *Earthquake) Table() string { return warehouse.TableEarthquake }

type earthquakeFeed struct {
	Entries []earthquakeEntry `xml:"entry"`
}

type earthquakeEntry struct {
	ID      string `xml:"id"`
	Title   string `xml:"title"`
	Updated string `xml:"updated"`
	Point   string `xml:"point"` // georss "lat lon"
	Elev    string `xml:"elev"`  // georss, meters below surface
}

func (f *Earthquake) Fetch(ctx context.Context) ([]warehouse.Row, []string, error) {
	body, err := f.client.get(ctx, f.url, nil)
	if err != nil {
		return nil, nil, err
	}

	var feed earthquakeFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, nil, fmt.Errorf("parse earthquake Atom: %w", err)
	}

	loadedAt := domain.Now()
	rows := make([]warehouse.Row, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		lat, lon := parseGeoRSSPoint(entry.Point)
		rows = append(rows, warehouse.Row{
			"record_id":      recordID("earthquake", entry.ID),
			"title":          strings.TrimSpace(entry.Title),
			"magnitude":      parseMagnitude(entry.Title),
			"latitude":       lat,
			"longitude":      lon,
			"depth_km":       parseDepthKm(entry.Elev),
			"updated_raw":    entry.Updated,
			"event_date":     nullableDate(entry.Updated),
			"load_timestamp": loadedAt,
		})
	}
	return rows, earthquakeColumns, nil
}

// parseMagnitude reads the "M X.Y" prefix USGS puts on event titles, null
// when the title has no magnitude (e.g. "M ? - ..." review entries).
func parseMagnitude(title string) any {
	title = strings.TrimSpace(title)
	if !strings.HasPrefix(title, "M ") {
		return nil
	}
	rest := strings.TrimPrefix(title, "M ")
	mag, _, _ := strings.Cut(rest, " ")
	return nullableFloat(mag)
}

// parseGeoRSSPoint splits a georss:point into latitude and longitude.
func parseGeoRSSPoint(point string) (lat, lon any) {
	fields := strings.Fields(point)
	if len(fields) != 2 {
		return nil, nil
	}
	latF, err1 := strconv.ParseFloat(fields[0], 64)
	lonF, err2 := strconv.ParseFloat(fields[1], 64)
	if err1 != nil || err2 != nil {
		return nil, nil
	}
	return latF, lonF
}

// parseDepthKm converts the georss elevation (meters, negative below
// surface) to a positive depth in kilometers.
func parseDepthKm(elev string) any {
	meters := nullableFloat(elev)
	if meters == nil {
		return nil
	}
	return math.Abs(meters.(float64)) / 1000
}
