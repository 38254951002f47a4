package fetcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/civicsignal/report-pipeline/internal/adapter/warehouse"
	"github.com/civicsignal/report-pipeline/internal/domain"
)

const drugURL = "https://findtreatment.gov/locator/exportsAsJson/v2?limit=200&format=geojson"

// drugFeatureCap bounds a load; the upstream dataset is large and only the
// nearest sites matter for the dashboard.
const drugFeatureCap = 200

var drugColumns = []string{
	"record_id", "name", "address", "city", "state",
	"latitude", "longitude", "load_timestamp",
}

// Drug ingests the treatment-and-medication availability GeoJSON feed.
type Drug struct {
	client *Client
	url    string
}

// NewDrug creates the drug availability fetcher.
func NewDrug(client *Client) *Drug {
	return &Drug{client: client, url: drugURL}
}

func (f *Drug) Name() string  { return "drug" }
func (f *Drug) Table() string { return warehouse.TableDrug }

type drugGeoJSON struct {
	Features []drugFeature `json:"features"`
}

type drugFeature struct {
	Properties struct {
		Name    string `json:"name"`
		Address string `json:"address"`
		City    string `json:"city"`
		State   string `json:"state"`
	} `json:"properties"`
	Geometry struct {
		Coordinates []float64 `json:"coordinates"` // [lon, lat]
	} `json:"geometry"`
}

func (f *Drug) Fetch(ctx context.Context) ([]warehouse.Row, []string, error) {
	body, err := f.client.get(ctx, f.url, nil)
	if err != nil {
		return nil, nil, err
	}

	var feed drugGeoJSON
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, nil, fmt.Errorf("parse drug availability GeoJSON: %w", err)
	}

	features := feed.Features
	if len(features) > drugFeatureCap {
		features = features[:drugFeatureCap]
	}

	loadedAt := domain.Now()
	rows := make([]warehouse.Row, 0, len(features))
	for _, feat := range features {
		var lat, lon any
		if len(feat.Geometry.Coordinates) == 2 {
			lon = feat.Geometry.Coordinates[0]
			lat = feat.Geometry.Coordinates[1]
		}
		rows = append(rows, warehouse.Row{
			"record_id":      recordID("drug", feat.Properties.Name, feat.Properties.Address),
			"name":           feat.Properties.Name,
			"address":        feat.Properties.Address,
			"city":           feat.Properties.City,
			"state":          feat.Properties.State,
			"latitude":       lat,
			"longitude":      lon,
			"load_timestamp": loadedAt,
		})
	}
	return rows, drugColumns, nil
}
