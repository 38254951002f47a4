package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/civicsignal/report-pipeline/internal/adapter/warehouse"
	"github.com/civicsignal/report-pipeline/internal/domain"
)

const nrevssURL = "https://data.cdc.gov/resource/3cxc-4k8q.json"

// nrevssLimit is the pull-API maximum page size.
const nrevssLimit = 50000

// nrevssDateLayout parses NREVSS's ddMONyyyy report week dates ("04Oct2025").
const nrevssDateLayout = "02Jan2006"

var nrevssColumns = []string{
	"record_id", "level", "region", "pathogen", "repweekdate_raw",
	"repweekdate_iso", "tests_total", "tests_positive", "positivity_rate",
	"load_timestamp",
}

// NREVSS ingests respiratory virus surveillance test data from the NREVSS
// Socrata API.
type NREVSS struct {
	client   *Client
	url      string
	appToken string
}

// NewNREVSS creates the NREVSS fetcher.
func NewNREVSS(client *Client, appToken string) *NREVSS {
	return &NREVSS{client: client, url: nrevssURL, appToken: appToken}
}

func (f *NREVSS) Name() string  { return "nrevss" }
func (f *NREVSS) Table() string { return warehouse.TableNREVSS }

type nrevssRecord struct {
	Level       string `json:"level"`
	Region      string `json:"region"`
	Pathogen    string `json:"pathogen"`
	RepWeekDate string `json:"repweekdate"`
	Tests       string `json:"number_tested"`
	Positive    string `json:"number_positive"`
}

func (f *NREVSS) Fetch(ctx context.Context) ([]warehouse.Row, []string, error) {
	body, err := f.client.get(ctx, socrataURL(f.url, "repweekdate DESC", nrevssLimit), socrataHeaders(f.appToken))
	if err != nil {
		return nil, nil, err
	}

	var records []nrevssRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, nil, fmt.Errorf("parse NREVSS response: %w", err)
	}

	loadedAt := domain.Now()
	rows := make([]warehouse.Row, 0, len(records))
	for _, rec := range records {
		tests := nullableFloat(rec.Tests)
		positive := nullableFloat(rec.Positive)
		rows = append(rows, warehouse.Row{
			"record_id":       recordID("nrevss", rec.Level, rec.Region, rec.Pathogen, rec.RepWeekDate),
			"level":           rec.Level,
			"region":          rec.Region,
			"pathogen":        rec.Pathogen,
			"repweekdate_raw": rec.RepWeekDate,
			"repweekdate_iso": nrevssISODate(rec.RepWeekDate),
			"tests_total":     tests,
			"tests_positive":  positive,
			"positivity_rate": positivityRate(tests, positive),
			"load_timestamp":  loadedAt,
		})
	}
	return rows, nrevssColumns, nil
}

// nrevssISODate converts a ddMONyyyy report week date to YYYY-MM-DD, null
// when the raw value does not parse.
func nrevssISODate(raw string) any {
	t, err := time.Parse(nrevssDateLayout, raw)
	if err != nil {
		return nil
	}
	return canonicalDate(t)
}

// positivityRate is 100 * positive / tests when tests > 0, otherwise 0.
func positivityRate(tests, positive any) float64 {
	t, ok := tests.(float64)
	if !ok || t <= 0 {
		return 0
	}
	p, ok := positive.(float64)
	if !ok {
		return 0
	}
	return 100 * p / t
}
