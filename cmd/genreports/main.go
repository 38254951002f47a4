// Command genreports generates reproducible citizen-report fixtures for the
// test suites and for local load testing. It runs each generated submission
// through the real normalization path so fixtures match pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genreports \
//	  -count 200 \
//	  -seed 42 \
//	  -out data/mock/reports_fixture.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/civicsignal/report-pipeline/internal/domain"
)

var fixtureClock = time.Date(2025, time.March, 14, 9, 0, 0, 0, time.UTC)

var sampleDescriptions = []struct {
	text       string
	reportType string
}{
	{"Strong chemical odor coming from the storm drain on Elm St", "environmental"},
	{"Several neighbors sick with the same stomach illness this week", "health"},
	{"Street flooding after last night's storm, water entering garages", "weather"},
	{"Gas leak smell near the elementary school, area evacuated", "emergency"},
	{"Green discoloration in the creek behind the park", "environmental"},
	{"Persistent cough going around the apartment complex", "health"},
	{"Downed power line sparking on Oak Ave", "emergency"},
	{"Smoke visible from the hills east of town", "weather"},
}

var sampleSeverities = []string{"", "low", "minor", "moderate", "medium", "high", "severe", "critical", "urgent"}

var sampleTimeframes = []string{"", "now", "today", "yesterday", "this week", "ongoing"}

var sampleCities = []struct {
	city, state, county string
	lat, lon            float64
}{
	{"San Jose", "California", "Santa Clara County", 37.3382, -121.8863},
	{"Fresno", "California", "Fresno County", 36.7468, -119.7726},
	{"Oakland", "California", "Alameda County", 37.8044, -122.2712},
	{"Sacramento", "California", "Sacramento County", 38.5816, -121.4944},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	count := flag.Int("count", 100, "number of reports to generate")
	seed := flag.Int64("seed", 1, "random seed for reproducible output")
	out := flag.String("out", "", "output path for the report fixture JSON")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	// Fixed clock so timestamps and validation are reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(fixtureClock))
	defer domain.SetClock(nil)

	rng := rand.New(rand.NewSource(*seed))
	uuid.SetRand(rng)
	defer uuid.SetRand(nil)

	reports := make([]domain.Report, 0, *count)
	for i := 0; i < *count; i++ {
		r := generate(rng)
		if err := domain.ValidateReport(r); err != nil {
			return fmt.Errorf("generated invalid report %d: %w", i, err)
		}
		reports = append(reports, r)
	}

	if err := writeJSON(*out, reports); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote %d reports: %s", len(reports), *out)

	printStats(reports)
	return nil
}

// generate builds one report the way the producer would: loose submitter
// vocabulary folded onto the canonical enums.
func generate(rng *rand.Rand) domain.Report {
	sample := sampleDescriptions[rng.Intn(len(sampleDescriptions))]
	place := sampleCities[rng.Intn(len(sampleCities))]
	anonymous := rng.Intn(3) == 0

	r := domain.Report{
		ReportID:     uuid.NewString(),
		ReportType:   domain.NormalizeType(sample.reportType),
		SpecificType: domain.NormalizeSpecificType(""),
		Severity:     domain.NormalizeSeverity(sampleSeverities[rng.Intn(len(sampleSeverities))], sample.text),
		Timestamp:    domain.Now().Add(-time.Duration(rng.Intn(72)) * time.Hour),
		Timeframe:    domain.NormalizeTimeframe(sampleTimeframes[rng.Intn(len(sampleTimeframes))]),
		Description:  sample.text,
		IsAnonymous:  anonymous,
		Status:       domain.StatusPending,
	}

	r.City = &place.city
	r.State = &place.state
	r.County = &place.county
	lat, lon := place.lat, place.lon
	r.Latitude = &lat
	r.Longitude = &lon

	if !anonymous {
		name := "Resident " + fmt.Sprint(rng.Intn(1000))
		r.ContactName = &name
	}

	if rng.Intn(4) == 0 {
		r.MediaURLs = []string{fmt.Sprintf("https://cdn.example.com/%s.jpg", uuid.NewString())}
	}
	r.MediaCount = len(r.MediaURLs)
	r.AttachmentURLs = domain.AttachmentCopy(r.MediaURLs)

	return domain.ScrubContacts(r)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func printStats(reports []domain.Report) {
	typeCounts := map[string]int{}
	severityCounts := map[string]int{}
	var anonymous, withMedia int
	for i := range reports {
		r := &reports[i]
		typeCounts[r.ReportType]++
		severityCounts[r.Severity]++
		if r.IsAnonymous {
			anonymous++
		}
		if r.MediaCount > 0 {
			withMedia++
		}
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total: %d\n", len(reports))
	fmt.Printf("By type: health=%d, environmental=%d, weather=%d, emergency=%d\n",
		typeCounts["health"], typeCounts["environmental"], typeCounts["weather"], typeCounts["emergency"])
	fmt.Printf("By severity: low=%d, moderate=%d, high=%d, critical=%d\n",
		severityCounts["low"], severityCounts["moderate"], severityCounts["high"], severityCounts["critical"])
	fmt.Printf("Anonymous: %d\n", anonymous)
	fmt.Printf("With media: %d\n", withMedia)
}
