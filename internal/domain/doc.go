// Package domain models citizen-submitted community health and environmental
// reports.
//
// # Data Flow
//
// Reports enter through the submission HTTP endpoint, are canonicalized and
// validated by the producer, and travel as UTF-8 JSON messages over the
// community-reports-submitted topic to the warehouse writer worker. Every
// other component of the pipeline is polymorphic over [Report].
//
// # Canonical Values
//
// Report classification uses closed enumerations:
//
//	report_type: health, environmental, weather, emergency
//	severity:    low, moderate, high, critical
//	timeframe:   now, 1hour, today, yesterday, week, ongoing
//	status:      pending, reviewed, valid, invalid
//
// Submitters use looser vocabulary, so [NormalizeSeverity], [NormalizeType],
// and [NormalizeTimeframe] fold common synonyms onto the canonical sets
// ("severe" → "high", "env" → "environmental"). When no severity is supplied
// at all, [InferSeverity] derives one from keywords in the description;
// the fallback is "moderate".
//
// # Nullability
//
// The warehouse schema distinguishes null from empty for location, contact,
// review, and AI-annotation columns, so those fields are pointers. Serialized
// JSON emits explicit nulls rather than omitting keys, since downstream
// consumers rely on a fixed key set.
//
// # Anonymity
//
// is_anonymous == true implies contact_name, contact_email, and contact_phone
// are null. [ScrubContacts] enforces this before publication and
// [ValidateReport] rejects any payload that violates it.
//
// # Media
//
// media_urls is the ordered list of durable object-store URLs attached to a
// report; media_count must equal its length. attachment_urls carries a
// JSON-encoded string copy of the same list for warehouse columns that cannot
// hold repeated values. Both are kept until downstream readers settle on one.
package domain
