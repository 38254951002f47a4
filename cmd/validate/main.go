// Command validate performs integrity checks on a citizen-report fixture:
// every record must pass domain validation, survive a serialization
// round-trip unchanged, and keep its media columns consistent.
//
// Usage:
//
//	go run ./cmd/validate -reports data/mock/reports_fixture.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/civicsignal/report-pipeline/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	reportsPath := flag.String("reports", "", "path to the report fixture JSON")
	flag.Parse()

	if *reportsPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*reportsPath))
}

func run(path string) int {
	// Fixture timestamps are frozen; pin the clock past them so the
	// future-skew check is deterministic.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2025, time.March, 14, 9, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read fixture: %v\n", err)
		return 1
	}
	var reports []domain.Report
	if err := json.Unmarshal(data, &reports); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: parse fixture: %v\n", err)
		return 1
	}

	fmt.Println("=== Report Fixture Validation ===")
	phases := []*phase{
		validateDomainRules(reports),
		validateRoundTrip(reports),
		validateMediaColumns(reports),
		validateUniqueIDs(reports),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-40s %s\n", p.name, status)
	}
	fmt.Printf("\nRecords: %d\n", len(reports))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func validateDomainRules(reports []domain.Report) *phase {
	p := &phase{name: "Phase 1: Domain rules"}
	for i := range reports {
		if err := domain.ValidateReport(reports[i]); err != nil {
			p.errorf("record %d (%s): %v", i, reports[i].ReportID, err)
		}
	}
	return p
}

// validateRoundTrip checks that serialize-then-deserialize is lossless, the
// property the broker hop depends on.
func validateRoundTrip(reports []domain.Report) *phase {
	p := &phase{name: "Phase 2: Serialization round-trip"}
	for i := range reports {
		data, err := domain.SerializeReport(reports[i])
		if err != nil {
			p.errorf("record %d: serialize: %v", i, err)
			continue
		}
		decoded, err := domain.DeserializeReport(data)
		if err != nil {
			p.errorf("record %d: deserialize: %v", i, err)
			continue
		}
		redone, err := domain.SerializeReport(decoded)
		if err != nil {
			p.errorf("record %d: re-serialize: %v", i, err)
			continue
		}
		if string(data) != string(redone) {
			p.errorf("record %d (%s): round-trip changed the payload", i, reports[i].ReportID)
		}
	}
	return p
}

func validateMediaColumns(reports []domain.Report) *phase {
	p := &phase{name: "Phase 3: Media column consistency"}
	for i := range reports {
		r := &reports[i]
		if r.MediaCount != len(r.MediaURLs) {
			p.errorf("record %d (%s): media_count=%d but %d media_urls", i, r.ReportID, r.MediaCount, len(r.MediaURLs))
		}
		if want := domain.AttachmentCopy(r.MediaURLs); r.AttachmentURLs != want {
			p.errorf("record %d (%s): attachment_urls %q does not match media_urls", i, r.ReportID, r.AttachmentURLs)
		}
		if r.IsAnonymous && (r.ContactName != nil || r.ContactEmail != nil || r.ContactPhone != nil) {
			p.errorf("record %d (%s): anonymous report carries contact fields", i, r.ReportID)
		}
	}
	return p
}

func validateUniqueIDs(reports []domain.Report) *phase {
	p := &phase{name: "Phase 4: Unique report IDs"}
	seen := map[string]int{}
	for i := range reports {
		if prev, ok := seen[reports[i].ReportID]; ok {
			p.errorf("record %d duplicates report_id of record %d (%s)", i, prev, reports[i].ReportID)
			continue
		}
		seen[reports[i].ReportID] = i
	}
	return p
}
