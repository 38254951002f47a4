package fetcher

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wildfireFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>InciWeb Incidents</title>
<item>
<title>Creek Fire (Wildfire)</title>
<description>
The Creek Fire is burning in the Sierra National Forest.
State: California
Coordinates: 37 degrees 12 minutes 30 seconds North, 119 degrees 18 minutes 45 seconds West
</description>
<pubDate>Mon, 06 Jan 2025 08:30:00 -0700</pubDate>
<guid>https://inciweb.wildfire.gov/incident/7001/</guid>
</item>
<item>
<title>Unnamed Incident</title>
<description>No location details yet.</description>
<pubDate>not a date</pubDate>
</item>
</channel>
</rss>`

func TestWildfireFetch(t *testing.T) {
	client, server := newFixtureServer(t, "application/rss+xml", wildfireFixture)
	f := NewWildfire(client)
	f.url = server.URL

	rows, columns, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wildfireColumns, columns)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, "Creek Fire (Wildfire)", first["incident_name"])
	assert.Equal(t, "California", first["state"])
	assert.InDelta(t, 37.2083, first["latitude"].(float64), 0.001)
	assert.InDelta(t, -119.3125, first["longitude"].(float64), 0.001)
	assert.Equal(t, "2025-01-06", first["published_date"])

	second := rows[1]
	assert.Nil(t, second["state"])
	assert.Nil(t, second["latitude"])
	assert.Nil(t, second["published_date"])
	assert.Equal(t, "not a date", second["published_raw"])
}

const earthquakeFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:georss="http://www.georss.org/georss">
<title>USGS Earthquakes</title>
<entry>
<id>urn:earthquake-usgs-gov:us:7000abcd</id>
<title>M 4.6 - 12 km NE of Ridgecrest, CA</title>
<updated>2025-01-06T14:22:10.000Z</updated>
<georss:point>35.714 -117.503</georss:point>
<georss:elev>-8200</georss:elev>
</entry>
<entry>
<id>urn:earthquake-usgs-gov:us:7000abce</id>
<title>M ? - offshore review pending</title>
<updated>2025-01-06T15:00:00.000Z</updated>
<georss:point>bad point</georss:point>
<georss:elev></georss:elev>
</entry>
</feed>`

func TestEarthquakeFetch(t *testing.T) {
	client, server := newFixtureServer(t, "application/atom+xml", earthquakeFixture)
	f := NewEarthquake(client)
	f.url = server.URL

	rows, columns, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, earthquakeColumns, columns)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, 4.6, first["magnitude"])
	assert.Equal(t, 35.714, first["latitude"])
	assert.Equal(t, -117.503, first["longitude"])
	assert.Equal(t, 8.2, first["depth_km"])
	assert.Equal(t, "2025-01-06", first["event_date"])

	second := rows[1]
	assert.Nil(t, second["magnitude"])
	assert.Nil(t, second["latitude"])
	assert.Nil(t, second["depth_km"])
}

func TestEarthquakeFetchIdempotentRecordIDs(t *testing.T) {
	client, server := newFixtureServer(t, "application/atom+xml", earthquakeFixture)
	f := NewEarthquake(client)
	f.url = server.URL

	first, _, err := f.Fetch(context.Background())
	require.NoError(t, err)
	second, _, err := f.Fetch(context.Background())
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i]["record_id"], second[i]["record_id"])
	}
}

var stormFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<item>
<title>Tornado Warning issued for Tulsa County</title>
<description>A confirmed tornado was observed near Sand Springs moving east at 30 mph.</description>
<pubDate>Mon, 06 Jan 2025 18:05:00 -0600</pubDate>
</item>
<item>
<title>Quarter size hail reported in Wichita</title>
<description>` + strings.Repeat("Hail damage reported across the metro. ", 20) + `</description>
<pubDate>Mon, 06 Jan 2025 18:40:00 -0600</pubDate>
</item>
<item>
<title>Damaging wind gusts to 70 mph</title>
<description>Trees down on Highway 54.</description>
<pubDate>Mon, 06 Jan 2025 19:10:00 -0600</pubDate>
</item>
<item>
<title>Special weather statement</title>
<description>Conditions favor strong storms overnight.</description>
<pubDate>Mon, 06 Jan 2025 20:00:00 -0600</pubDate>
</item>
</channel>
</rss>`

func TestStormFetch(t *testing.T) {
	client, server := newFixtureServer(t, "application/rss+xml", stormFixture)
	f := NewStorm(client)
	f.url = server.URL

	rows, columns, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stormColumns, columns)
	require.Len(t, rows, 4)

	assert.Equal(t, "Tornado", rows[0]["event_type"])
	assert.Equal(t, "Hail", rows[1]["event_type"])
	assert.Equal(t, "Wind", rows[2]["event_type"])
	assert.Equal(t, "Severe Weather", rows[3]["event_type"])

	assert.LessOrEqual(t, len(rows[1]["description"].(string)), stormDescriptionLimit)
	assert.Equal(t, "2025-01-07", rows[3]["report_date"], "late CST evening is the next UTC day")
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "under limit untouched",
			in:   "short",
			want: "short",
		},
		{
			name: "ascii cut at limit",
			in:   strings.Repeat("a", 501),
			want: strings.Repeat("a", 500),
		},
		{
			// The degree sign is two bytes; the limit falls on its second
			// byte, so the cut backs off to keep the string valid UTF-8.
			name: "multi-byte rune straddles limit",
			in:   strings.Repeat("a", 499) + "°F and falling",
			want: strings.Repeat("a", 499),
		},
		{
			name: "rune ends exactly at limit",
			in:   strings.Repeat("a", 498) + "°F and falling",
			want: strings.Repeat("a", 498) + "°",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, stormDescriptionLimit)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestClassifyStormEvent(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{title: "Tornado emergency with large hail", want: "Tornado"},
		{title: "Severe Thunderstorm Watch 112", want: "Severe Thunderstorm"},
		{title: "High wind advisory", want: "Wind"},
		{title: "Mesoscale discussion", want: "Severe Weather"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyStormEvent(tt.title))
		})
	}
}

const drugFixture = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"name": "Valley Health Clinic", "address": "200 W Main St", "city": "Fresno", "state": "CA"},
      "geometry": {"type": "Point", "coordinates": [-119.7726, 36.7468]}
    },
    {
      "type": "Feature",
      "properties": {"name": "Harm Reduction Center", "address": "14 2nd Ave", "city": "Oakland", "state": "CA"},
      "geometry": {"type": "Point", "coordinates": []}
    }
  ]
}`

func TestDrugFetch(t *testing.T) {
	client, server := newFixtureServer(t, "application/geo+json", drugFixture)
	f := NewDrug(client)
	f.url = server.URL

	rows, columns, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, drugColumns, columns)
	require.Len(t, rows, 2)

	assert.Equal(t, "Valley Health Clinic", rows[0]["name"])
	assert.Equal(t, 36.7468, rows[0]["latitude"])
	assert.Equal(t, -119.7726, rows[0]["longitude"])
	assert.Nil(t, rows[1]["latitude"])
}

const cdcCovidFixture = `[
  {"jurisdiction": "California", "_weekenddate": "2025-01-04T00:00:00.000Z", "weekly_rate": "4.7", "cumulative_rate": "112.3"},
  {"jurisdiction": "Texas", "_weekenddate": "2025-01-04T00:00:00.000Z", "weekly_rate": "", "cumulative_rate": "98.1"}
]`

func TestCDCCovidFetch(t *testing.T) {
	client, server := newFixtureServer(t, "application/json", cdcCovidFixture)
	f := NewCDCCovid(client, "")
	f.url = server.URL

	rows, columns, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cdcCovidColumns, columns)
	require.Len(t, rows, 2)

	assert.Equal(t, "California", rows[0]["jurisdiction"])
	assert.Equal(t, 4.7, rows[0]["weekly_rate"])
	assert.Equal(t, "2025-01-04", rows[0]["week_end_date"])
	assert.Nil(t, rows[1]["weekly_rate"], "empty rate is null, not zero")
}

const respiratoryFixture = `[
  {"surveillance_network": "RSV-NET", "season": "2024-25", "mmwr_year": "2025", "mmwr_week": "1",
   "age_group": "0-4 years", "site": "California", "weekly_rate": "12.5", "cumulative_rate": "44.0",
   "_weekenddate": "2025-01-04T00:00:00.000Z"}
]`

func TestRespiratoryFetch(t *testing.T) {
	client, server := newFixtureServer(t, "application/json", respiratoryFixture)
	f := NewRespiratory(client, "")
	f.url = server.URL

	rows, columns, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, respiratoryColumns, columns)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, int64(2025), row["year"])
	assert.Equal(t, int64(1), row["week"])
	want := recordID("respiratory", "RSV-NET", "2024-25", "2025", "1", "0-4 years", "California")
	assert.Equal(t, want, row["record_id"])
}

const nrevssFixture = `[
  {"level": "National", "region": "National", "pathogen": "RSV", "repweekdate": "04Jan2025",
   "number_tested": "2400", "number_positive": "312"},
  {"level": "Regional", "region": "Region 9", "pathogen": "RSV", "repweekdate": "04Jan2025",
   "number_tested": "0", "number_positive": "0"},
  {"level": "Regional", "region": "Region 4", "pathogen": "RSV", "repweekdate": "bogus",
   "number_tested": "", "number_positive": ""}
]`

func TestNREVSSFetch(t *testing.T) {
	client, server := newFixtureServer(t, "application/json", nrevssFixture)
	f := NewNREVSS(client, "")
	f.url = server.URL

	rows, columns, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, nrevssColumns, columns)
	require.Len(t, rows, 3)

	assert.Equal(t, "2025-01-04", rows[0]["repweekdate_iso"])
	assert.Equal(t, "04Jan2025", rows[0]["repweekdate_raw"])
	assert.Equal(t, 13.0, rows[0]["positivity_rate"])

	assert.Equal(t, 0.0, rows[1]["positivity_rate"], "zero tests means zero rate, not NaN")
	assert.Nil(t, rows[2]["repweekdate_iso"])
	assert.Equal(t, 0.0, rows[2]["positivity_rate"])
}
