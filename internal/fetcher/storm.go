package fetcher

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/civicsignal/report-pipeline/internal/adapter/warehouse"
	"github.com/civicsignal/report-pipeline/internal/domain"
)

const stormURL = "https://www.spc.noaa.gov/products/spcrss.xml"

const stormDescriptionLimit = 500

var stormColumns = []string{
	"record_id", "event_type", "title", "description",
	"published_raw", "report_date", "load_timestamp",
}

// Storm ingests the NWS Storm Prediction Center RSS feed.
type Storm struct {
	client *Client
	url    string
}

// NewStorm creates the storm report fetcher.
func NewStorm(client *Client) *Storm {
	return &Storm{client: client, url: stormURL}
}

func (f *Storm) Name() string  { return "storm" }
func (f *Storm) Table() string { return warehouse.TableStorm }

type stormRSS struct {
	Channel struct {
		Items []stormItem `xml:"item"`
	} `xml:"channel"`
}

type stormItem struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

func (f *Storm) Fetch(ctx context.Context) ([]warehouse.Row, []string, error) {
	body, err := f.client.get(ctx, f.url, nil)
	if err != nil {
		return nil, nil, err
	}

	var feed stormRSS
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, nil, fmt.Errorf("parse storm RSS: %w", err)
	}

	loadedAt := domain.Now()
	rows := make([]warehouse.Row, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		rows = append(rows, warehouse.Row{
			"record_id":      recordID("storm", item.Title, item.PubDate),
			"event_type":     classifyStormEvent(item.Title),
			"title":          strings.TrimSpace(item.Title),
			"description":    truncate(item.Description, stormDescriptionLimit),
			"published_raw":  item.PubDate,
			"report_date":    nullableDate(item.PubDate),
			"load_timestamp": loadedAt,
		})
	}
	return rows, stormColumns, nil
}

// classifyStormEvent buckets a report title by keyword. Tornado wins over the
// other keywords when a title mentions several hazards.
func classifyStormEvent(title string) string {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "tornado"):
		return "Tornado"
	case strings.Contains(t, "hail"):
		return "Hail"
	case strings.Contains(t, "severe thunderstorm"):
		return "Severe Thunderstorm"
	case strings.Contains(t, "wind"):
		return "Wind"
	default:
		return "Severe Weather"
	}
}

// truncate cuts s to at most limit bytes, backing off so the cut never splits
// a multi-byte rune. The warehouse rejects rows with invalid UTF-8 text.
func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
