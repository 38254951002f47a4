package fetcher

import (
	"context"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/civicsignal/report-pipeline/internal/adapter/warehouse"
	"github.com/civicsignal/report-pipeline/internal/domain"
)

const wildfireURL = "https://inciweb.wildfire.gov/incidents/rss.xml"

var wildfireColumns = []string{
	"record_id", "incident_name", "state", "latitude", "longitude",
	"published_raw", "published_date", "load_timestamp",
}

// dmsPattern matches a degree/minute/second coordinate with a hemisphere
// suffix, as InciWeb embeds them in incident summaries.
var dmsPattern = regexp.MustCompile(
	`(?i)(\d+)\s*(?:degrees|deg|°)\s*(\d+)\s*(?:minutes|min|')\s*(\d+(?:\.\d+)?)\s*(?:seconds|sec|")?\s*(North|South|East|West|N|S|E|W)`)

// statePattern pulls the state name from the "State: X" line in the summary.
var statePattern = regexp.MustCompile(`(?im)^\s*State:\s*(.+?)\s*$`)

// Wildfire ingests the InciWeb active-incident RSS feed.
type Wildfire struct {
	client *Client
	url    string
}

// NewWildfire creates the wildfire incident fetcher.
func NewWildfire(client *Client) *Wildfire {
	return &Wildfire{client: client, url: wildfireURL}
}

func (f *Wildfire) Name() string  { return "wildfire" }
func (f *Wildfire) Table() string { return warehouse.TableWildfire }

type wildfireRSS struct {
	Channel struct {
		Items []wildfireItem `xml:"item"`
	} `xml:"channel"`
}

type wildfireItem struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	GUID        string `xml:"guid"`
}

func (f *Wildfire) Fetch(ctx context.Context) ([]warehouse.Row, []string, error) {
	body, err := f.client.get(ctx, f.url, nil)
	if err != nil {
		return nil, nil, err
	}

	var feed wildfireRSS
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, nil, fmt.Errorf("parse wildfire RSS: %w", err)
	}

	loadedAt := domain.Now()
	rows := make([]warehouse.Row, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		lat, lon := parseDMSCoordinates(item.Description)
		rows = append(rows, warehouse.Row{
			"record_id":      recordID("wildfire", item.Title, item.PubDate),
			"incident_name":  strings.TrimSpace(item.Title),
			"state":          scrapeState(item.Description),
			"latitude":       lat,
			"longitude":      lon,
			"published_raw":  item.PubDate,
			"published_date": nullableDate(item.PubDate),
			"load_timestamp": loadedAt,
		})
	}
	return rows, wildfireColumns, nil
}

// scrapeState extracts the state name from the summary text, null when the
// line is absent.
func scrapeState(description string) any {
	m := statePattern.FindStringSubmatch(description)
	if m == nil {
		return nil
	}
	return m[1]
}

// parseDMSCoordinates finds the first latitude/longitude pair expressed in
// degrees, minutes, and seconds. Southern and western hemispheres carry a
// negative sign in decimal form.
func parseDMSCoordinates(text string) (lat, lon any) {
	matches := dmsPattern.FindAllStringSubmatch(text, -1)
	for _, m := range matches {
		decimal, hemi, ok := dmsToDecimal(m)
		if !ok {
			continue
		}
		switch hemi {
		case "n", "s", "north", "south":
			if lat == nil {
				lat = decimal
			}
		case "e", "w", "east", "west":
			if lon == nil {
				lon = decimal
			}
		}
		if lat != nil && lon != nil {
			break
		}
	}
	return lat, lon
}

func dmsToDecimal(m []string) (float64, string, bool) {
	deg, err1 := strconv.ParseFloat(m[1], 64)
	minutes, err2 := strconv.ParseFloat(m[2], 64)
	seconds, err3 := strconv.ParseFloat(m[3], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, "", false
	}
	decimal := deg + minutes/60 + seconds/3600
	hemi := strings.ToLower(m[4])
	if hemi == "s" || hemi == "south" || hemi == "w" || hemi == "west" {
		decimal = -decimal
	}
	return decimal, hemi, true
}
