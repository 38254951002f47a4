// Package producer accepts citizen report submissions over HTTP, normalizes
// and enriches them, and hands them off for warehousing. Delivery mode is
// fixed at startup: publish to the reports topic for the worker fleet, or
// insert directly into the warehouse when the broker is bypassed.
package producer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/civicsignal/report-pipeline/internal/adapter/warehouse"
	"github.com/civicsignal/report-pipeline/internal/domain"
	"github.com/civicsignal/report-pipeline/internal/observability"
)

// Mode selects how accepted reports reach the warehouse.
type Mode string

const (
	// ModeAsync publishes to the reports topic; the worker fleet writes the
	// warehouse row.
	ModeAsync Mode = "async"
	// ModeSync writes the warehouse row inline before responding.
	ModeSync Mode = "sync"
)

// Publisher is the slice of the broker binding the producer needs.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte, attrs map[string]string) error
}

// Submission is the inbound HTTP payload. Fields arrive in whatever
// vocabulary the submitting client uses; Submit folds them onto the canonical
// enums.
type Submission struct {
	// ReportID and Timestamp are assigned when absent. A client retrying a
	// failed submission resends its original values so the retry does not
	// mint a second report.
	ReportID  string `json:"report_id"`
	Timestamp string `json:"timestamp"` // RFC 3339

	ReportType   string `json:"report_type"`
	SpecificType string `json:"specific_type"`
	Severity     string `json:"severity"`
	Timeframe    string `json:"timeframe"`

	// Location is free text ("San Jose, CA", an intersection, a landmark).
	// It is geocoded only when no structured location fields are given.
	Location  string   `json:"location"`
	Address   string   `json:"address"`
	ZipCode   string   `json:"zip_code"`
	City      string   `json:"city"`
	State     string   `json:"state"`
	County    string   `json:"county"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	Description    string `json:"description"`
	PeopleAffected string `json:"people_affected"`

	IsAnonymous  bool   `json:"is_anonymous"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`

	MediaURLs []string `json:"media_urls"`
}

// Service turns submissions into accepted reports.
type Service struct {
	mode         Mode
	publisher    Publisher
	writer       warehouse.Writer
	reportsTable string
	geocoder     domain.Geocoder
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewService creates a producer service. In ModeAsync publisher must be
// non-nil; in ModeSync writer must be non-nil. geocoder may be nil, which
// disables location enrichment.
func NewService(mode Mode, publisher Publisher, writer warehouse.Writer, reportsTable string,
	geocoder domain.Geocoder, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		mode:         mode,
		publisher:    publisher,
		writer:       writer,
		reportsTable: reportsTable,
		geocoder:     geocoder,
		logger:       logger,
		metrics:      metrics,
	}
}

// Mode reports the delivery mode the service was built with.
func (s *Service) Mode() Mode {
	return s.mode
}

// Submit normalizes, enriches, validates, and delivers one submission. On
// success it returns the accepted report with its assigned ID. A
// *domain.InvalidReportError means the submission itself was bad; any other
// error means delivery failed and the client should retry.
func (s *Service) Submit(ctx context.Context, sub Submission) (domain.Report, error) {
	r, err := s.buildReport(sub)
	if err != nil {
		s.metrics.ReportsRejected.Inc()
		return domain.Report{}, err
	}
	r = domain.EnrichLocation(ctx, r, sub.Location, s.geocoder, s.logger)
	r = domain.ScrubContacts(r)

	if err := domain.ValidateReport(r); err != nil {
		s.metrics.ReportsRejected.Inc()
		return domain.Report{}, err
	}

	if err := s.deliver(ctx, r); err != nil {
		return domain.Report{}, err
	}

	s.metrics.ReportsAccepted.WithLabelValues(string(s.mode)).Inc()
	s.logger.Info("report accepted",
		"report_id", r.ReportID,
		"report_type", r.ReportType,
		"severity", r.Severity,
		"mode", string(s.mode),
	)
	return r, nil
}

// buildReport maps the loose submission onto the canonical report shape.
// Client-supplied report_id and timestamp are kept when present and valid.
func (s *Service) buildReport(sub Submission) (domain.Report, error) {
	reportID := sub.ReportID
	if reportID == "" {
		reportID = uuid.NewString()
	} else if _, err := uuid.Parse(reportID); err != nil {
		return domain.Report{}, &domain.InvalidReportError{Field: "report_id", Reason: "not a valid UUID"}
	}

	timestamp := domain.Now()
	if sub.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, sub.Timestamp)
		if err != nil {
			return domain.Report{}, &domain.InvalidReportError{Field: "timestamp", Reason: "not an RFC 3339 time"}
		}
		timestamp = parsed.UTC()
	}

	r := domain.Report{
		ReportID:     reportID,
		ReportType:   domain.NormalizeType(sub.ReportType),
		SpecificType: domain.NormalizeSpecificType(sub.SpecificType),
		Severity:     domain.NormalizeSeverity(sub.Severity, sub.Description),
		Timestamp:    timestamp,
		Timeframe:    domain.NormalizeTimeframe(sub.Timeframe),

		Address: optString(sub.Address),
		ZipCode: optString(sub.ZipCode),
		City:    optString(sub.City),
		State:   optString(sub.State),
		County:  optString(sub.County),

		Description:    sub.Description,
		PeopleAffected: optString(sub.PeopleAffected),

		IsAnonymous:  sub.IsAnonymous,
		ContactName:  optString(sub.ContactName),
		ContactEmail: optString(sub.ContactEmail),
		ContactPhone: optString(sub.ContactPhone),

		MediaURLs:      sub.MediaURLs,
		MediaCount:     len(sub.MediaURLs),
		AttachmentURLs: domain.AttachmentCopy(sub.MediaURLs),

		Status: domain.StatusPending,
	}
	if sub.Latitude != nil && sub.Longitude != nil {
		lat, lon := *sub.Latitude, *sub.Longitude
		r.Latitude = &lat
		r.Longitude = &lon
	}
	return r, nil
}

func (s *Service) deliver(ctx context.Context, r domain.Report) error {
	switch s.mode {
	case ModeAsync:
		return s.publish(ctx, r)
	case ModeSync:
		return s.insert(ctx, r)
	default:
		return fmt.Errorf("unknown delivery mode %q", s.mode)
	}
}

func (s *Service) publish(ctx context.Context, r domain.Report) error {
	data, err := domain.SerializeReport(r)
	if err != nil {
		return err
	}
	attrs := map[string]string{
		"report_id":   r.ReportID,
		"report_type": r.ReportType,
		"severity":    r.Severity,
	}

	start := time.Now()
	err = s.publisher.Publish(ctx, []byte(r.ReportID), data, attrs)
	s.metrics.PublishDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.PublishErrors.Inc()
		s.logger.Error("publish failed", "report_id", r.ReportID, "error", err)
		return err
	}
	return nil
}

func (s *Service) insert(ctx context.Context, r domain.Report) error {
	start := time.Now()
	result, err := s.writer.InsertRows(ctx, s.reportsTable, []warehouse.Row{r.WarehouseRow()})
	s.metrics.InsertDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error("warehouse insert failed", "report_id", r.ReportID, "error", err)
		return err
	}
	if len(result.RowErrors) > 0 {
		return fmt.Errorf("warehouse rejected report %s: %s", r.ReportID, result.RowErrors[0].Reason)
	}
	return nil
}

func optString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
