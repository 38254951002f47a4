package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/civicsignal/report-pipeline/internal/adapter/warehouse"
	"github.com/civicsignal/report-pipeline/internal/domain"
)

const cdcCovidURL = "https://data.cdc.gov/resource/aemt-mg7g.json"

var cdcCovidColumns = []string{
	"record_id", "jurisdiction", "week_end_raw", "week_end_date",
	"weekly_rate", "cumulative_rate", "load_timestamp",
}

// CDCCovid ingests weekly COVID-19 hospitalization rates from the CDC
// Socrata API.
type CDCCovid struct {
	client   *Client
	url      string
	appToken string
}

// NewCDCCovid creates the COVID hospitalization fetcher. appToken may be
// empty; Socrata then applies anonymous throttling.
func NewCDCCovid(client *Client, appToken string) *CDCCovid {
	return &CDCCovid{client: client, url: cdcCovidURL, appToken: appToken}
}

func (f *CDCCovid) Name() string  { return "cdc_covid" }
func (f *CDCCovid) Table() string { return warehouse.TableCDCCovid }

type cdcCovidRecord struct {
	Jurisdiction   string `json:"jurisdiction"`
	WeekEndDate    string `json:"_weekenddate"`
	WeeklyRate     string `json:"weekly_rate"`
	CumulativeRate string `json:"cumulative_rate"`
}

func (f *CDCCovid) Fetch(ctx context.Context) ([]warehouse.Row, []string, error) {
	body, err := f.client.get(ctx, socrataURL(f.url, "_weekenddate DESC", 15000), socrataHeaders(f.appToken))
	if err != nil {
		return nil, nil, err
	}

	var records []cdcCovidRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, nil, fmt.Errorf("parse CDC COVID response: %w", err)
	}

	loadedAt := domain.Now()
	rows := make([]warehouse.Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, warehouse.Row{
			"record_id":       recordID("cdc_covid", rec.Jurisdiction, rec.WeekEndDate),
			"jurisdiction":    rec.Jurisdiction,
			"week_end_raw":    rec.WeekEndDate,
			"week_end_date":   nullableDate(rec.WeekEndDate),
			"weekly_rate":     nullableFloat(rec.WeeklyRate),
			"cumulative_rate": nullableFloat(rec.CumulativeRate),
			"load_timestamp":  loadedAt,
		})
	}
	return rows, cdcCovidColumns, nil
}

// socrataURL appends the SoQL order and limit parameters to a dataset URL.
func socrataURL(base, order string, limit int) string {
	params := url.Values{
		"$order": {order},
		"$limit": {fmt.Sprintf("%d", limit)},
	}
	return base + "?" + params.Encode()
}

// socrataHeaders builds the request headers for a Socrata pull, including
// the app token when one is configured.
func socrataHeaders(appToken string) map[string]string {
	if appToken == "" {
		return nil
	}
	return map[string]string{"X-App-Token": appToken}
}
