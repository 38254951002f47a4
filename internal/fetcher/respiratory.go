package fetcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/civicsignal/report-pipeline/internal/adapter/warehouse"
	"github.com/civicsignal/report-pipeline/internal/domain"
)

const respiratoryURL = "https://data.cdc.gov/resource/kvib-3txy.json"

var respiratoryColumns = []string{
	"record_id", "network", "season", "year", "week", "age_group", "site",
	"weekly_rate", "cumulative_rate", "week_end_raw", "week_end_date",
	"load_timestamp",
}

// Respiratory ingests RESP-NET hospitalization rates from the CDC Socrata
// API.
type Respiratory struct {
	client   *Client
	url      string
	appToken string
}

// NewRespiratory creates the respiratory disease rate fetcher.
func NewRespiratory(client *Client, appToken string) *Respiratory {
	return &Respiratory{client: client, url: respiratoryURL, appToken: appToken}
}

func (f *Respiratory) Name() string  { return "respiratory" }
func (f *Respiratory) Table() string { return warehouse.TableRespiratory }

type respiratoryRecord struct {
	Network        string `json:"surveillance_network"`
	Season         string `json:"season"`
	Year           string `json:"mmwr_year"`
	Week           string `json:"mmwr_week"`
	AgeGroup       string `json:"age_group"`
	Site           string `json:"site"`
	WeeklyRate     string `json:"weekly_rate"`
	CumulativeRate string `json:"cumulative_rate"`
	WeekEndDate    string `json:"_weekenddate"`
}

func (f *Respiratory) Fetch(ctx context.Context) ([]warehouse.Row, []string, error) {
	body, err := f.client.get(ctx, socrataURL(f.url, "_weekenddate DESC", 15000), socrataHeaders(f.appToken))
	if err != nil {
		return nil, nil, err
	}

	var records []respiratoryRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, nil, fmt.Errorf("parse respiratory rates response: %w", err)
	}

	loadedAt := domain.Now()
	rows := make([]warehouse.Row, 0, len(records))
	for _, rec := range records {
		// The dataset has no row identifier; the natural key is the full
		// surveillance stratum.
		id := recordID("respiratory", rec.Network, rec.Season, rec.Year, rec.Week, rec.AgeGroup, rec.Site)
		rows = append(rows, warehouse.Row{
			"record_id":       id,
			"network":         rec.Network,
			"season":          rec.Season,
			"year":            nullableInt(rec.Year),
			"week":            nullableInt(rec.Week),
			"age_group":       rec.AgeGroup,
			"site":            rec.Site,
			"weekly_rate":     nullableFloat(rec.WeeklyRate),
			"cumulative_rate": nullableFloat(rec.CumulativeRate),
			"week_end_raw":    rec.WeekEndDate,
			"week_end_date":   nullableDate(rec.WeekEndDate),
			"load_timestamp":  loadedAt,
		})
	}
	return rows, respiratoryColumns, nil
}
