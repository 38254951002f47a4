package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Canonical report_type values.
const (
	TypeHealth        = "health"
	TypeEnvironmental = "environmental"
	TypeWeather       = "weather"
	TypeEmergency     = "emergency"
)

// Canonical severity values.
const (
	SeverityLow      = "low"
	SeverityModerate = "moderate"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Canonical timeframe values.
const (
	TimeframeNow       = "now"
	TimeframeHour      = "1hour"
	TimeframeToday     = "today"
	TimeframeYesterday = "yesterday"
	TimeframeWeek      = "week"
	TimeframeOngoing   = "ongoing"
)

// Workflow status values. New reports always start as pending; the review
// workflow mutates status outside the pipeline.
const (
	StatusPending  = "pending"
	StatusReviewed = "reviewed"
	StatusValid    = "valid"
	StatusInvalid  = "invalid"
)

// maxTimestampSkew bounds how far in the future a submission timestamp may be.
const maxTimestampSkew = 5 * time.Minute

// ErrMalformedPayload indicates a message that cannot be decoded into a
// Report. The worker acks such messages to avoid poison loops.
var ErrMalformedPayload = errors.New("malformed report payload")

// InvalidReportError identifies the field that failed validation. The producer
// surfaces it to the HTTP caller as a 400.
type InvalidReportError struct {
	Field  string
	Reason string
}

func (e *InvalidReportError) Error() string {
	return fmt.Sprintf("invalid report: field %q: %s", e.Field, e.Reason)
}

// Report is the canonical record for one citizen observation. It is the wire
// format between producer, broker, and warehouse. Nullable warehouse columns
// are pointers; JSON serialization emits explicit nulls.
type Report struct {
	ReportID     string    `json:"report_id"`
	ReportType   string    `json:"report_type"`
	SpecificType string    `json:"specific_type"`
	Severity     string    `json:"severity"`
	Timestamp    time.Time `json:"timestamp"`
	Timeframe    string    `json:"timeframe"`

	Address   *string  `json:"address"`
	ZipCode   *string  `json:"zip_code"`
	City      *string  `json:"city"`
	State     *string  `json:"state"`
	County    *string  `json:"county"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	Description    string  `json:"description"`
	PeopleAffected *string `json:"people_affected"`

	IsAnonymous  bool    `json:"is_anonymous"`
	ContactName  *string `json:"contact_name"`
	ContactEmail *string `json:"contact_email"`
	ContactPhone *string `json:"contact_phone"`

	MediaURLs      []string `json:"media_urls"`
	MediaCount     int      `json:"media_count"`
	AttachmentURLs string   `json:"attachment_urls"`

	AIMediaSummary   *string    `json:"ai_media_summary"`
	AIOverallSummary *string    `json:"ai_overall_summary"`
	AITags           []string   `json:"ai_tags"`
	AIConfidence     *float64   `json:"ai_confidence"`
	AIAnalyzedAt     *time.Time `json:"ai_analyzed_at"`

	Status              string     `json:"status"`
	ReviewedBy          *string    `json:"reviewed_by"`
	ReviewedAt          *time.Time `json:"reviewed_at"`
	Notes               *string    `json:"notes"`
	ExcludeFromAnalysis bool       `json:"exclude_from_analysis"`
	ExclusionReason     *string    `json:"exclusion_reason"`
	ManualTags          []string   `json:"manual_tags"`
}

// SerializeReport encodes a report as UTF-8 JSON. Null fields are emitted as
// null, never omitted, so the message key set is stable.
func SerializeReport(r Report) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("serialize report: %w", err)
	}
	return data, nil
}

// DeserializeReport decodes message bytes into a Report. Bad JSON, missing
// required fields, and enum violations all surface as ErrMalformedPayload so
// the worker can make a single ack-and-count decision.
func DeserializeReport(data []byte) (Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := ValidateReport(r); err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return r, nil
}

// ValidateReport checks the report invariants. It returns an
// *InvalidReportError naming the first offending field.
func ValidateReport(r Report) error {
	if r.ReportID == "" {
		return &InvalidReportError{Field: "report_id", Reason: "required"}
	}
	if r.Description == "" {
		return &InvalidReportError{Field: "description", Reason: "required"}
	}
	if r.Timestamp.IsZero() {
		return &InvalidReportError{Field: "timestamp", Reason: "required"}
	}
	if r.Timestamp.After(clock.Now().Add(maxTimestampSkew)) {
		return &InvalidReportError{Field: "timestamp", Reason: "in the future"}
	}
	if !validReportType(r.ReportType) {
		return &InvalidReportError{Field: "report_type", Reason: fmt.Sprintf("unknown value %q", r.ReportType)}
	}
	if !validSeverity(r.Severity) {
		return &InvalidReportError{Field: "severity", Reason: fmt.Sprintf("unknown value %q", r.Severity)}
	}
	if !validTimeframe(r.Timeframe) {
		return &InvalidReportError{Field: "timeframe", Reason: fmt.Sprintf("unknown value %q", r.Timeframe)}
	}
	if !validStatus(r.Status) {
		return &InvalidReportError{Field: "status", Reason: fmt.Sprintf("unknown value %q", r.Status)}
	}
	if r.MediaCount != len(r.MediaURLs) {
		return &InvalidReportError{
			Field:  "media_count",
			Reason: fmt.Sprintf("media_count %d does not match %d media_urls", r.MediaCount, len(r.MediaURLs)),
		}
	}
	if r.IsAnonymous && (r.ContactName != nil || r.ContactEmail != nil || r.ContactPhone != nil) {
		return &InvalidReportError{Field: "is_anonymous", Reason: "anonymous report carries contact fields"}
	}
	if r.AIConfidence != nil && (*r.AIConfidence < 0 || *r.AIConfidence > 1) {
		return &InvalidReportError{Field: "ai_confidence", Reason: "outside [0,1]"}
	}
	return nil
}

// WarehouseRow maps the report onto warehouse column names. media_urls stays a
// repeated column; attachment_urls is its string-typed copy.
func (r Report) WarehouseRow() map[string]any {
	return map[string]any{
		"report_id":     r.ReportID,
		"report_type":   r.ReportType,
		"specific_type": r.SpecificType,
		"severity":      r.Severity,
		"timestamp":     r.Timestamp.UTC(),
		"timeframe":     r.Timeframe,

		"address":   r.Address,
		"zip_code":  r.ZipCode,
		"city":      r.City,
		"state":     r.State,
		"county":    r.County,
		"latitude":  r.Latitude,
		"longitude": r.Longitude,

		"description":     r.Description,
		"people_affected": r.PeopleAffected,

		"is_anonymous":  r.IsAnonymous,
		"contact_name":  r.ContactName,
		"contact_email": r.ContactEmail,
		"contact_phone": r.ContactPhone,

		"media_urls":      r.MediaURLs,
		"media_count":     r.MediaCount,
		"attachment_urls": r.AttachmentURLs,

		"ai_media_summary":   r.AIMediaSummary,
		"ai_overall_summary": r.AIOverallSummary,
		"ai_tags":            r.AITags,
		"ai_confidence":      r.AIConfidence,
		"ai_analyzed_at":     r.AIAnalyzedAt,

		"status":                r.Status,
		"reviewed_by":           r.ReviewedBy,
		"reviewed_at":           r.ReviewedAt,
		"notes":                 r.Notes,
		"exclude_from_analysis": r.ExcludeFromAnalysis,
		"exclusion_reason":      r.ExclusionReason,
		"manual_tags":           r.ManualTags,
	}
}

// ScrubContacts nulls the contact fields of an anonymous report.
func ScrubContacts(r Report) Report {
	if !r.IsAnonymous {
		return r
	}
	r.ContactName = nil
	r.ContactEmail = nil
	r.ContactPhone = nil
	return r
}

// AttachmentCopy returns media_urls re-encoded as a JSON string for the
// warehouse's string-typed attachment_urls column. An empty list encodes as
// "[]" so the column is never null.
func AttachmentCopy(mediaURLs []string) string {
	if len(mediaURLs) == 0 {
		return "[]"
	}
	data, err := json.Marshal(mediaURLs)
	if err != nil {
		// []string cannot fail to marshal; keep the column well-formed anyway.
		return "[]"
	}
	return string(data)
}

func validReportType(v string) bool {
	switch v {
	case TypeHealth, TypeEnvironmental, TypeWeather, TypeEmergency:
		return true
	}
	return false
}

func validSeverity(v string) bool {
	switch v {
	case SeverityLow, SeverityModerate, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

func validTimeframe(v string) bool {
	switch v {
	case TimeframeNow, TimeframeHour, TimeframeToday, TimeframeYesterday, TimeframeWeek, TimeframeOngoing:
		return true
	}
	return false
}

func validStatus(v string) bool {
	switch v {
	case StatusPending, StatusReviewed, StatusValid, StatusInvalid:
		return true
	}
	return false
}
