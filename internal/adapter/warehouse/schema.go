package warehouse

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Feed table names. Each feed fetcher owns exactly one table and replaces it
// wholesale on every load.
const (
	TableWildfire    = "wildfire_incidents"
	TableEarthquake  = "earthquake_events"
	TableStorm       = "storm_reports"
	TableDrug        = "drug_availability"
	TableCDCCovid    = "cdc_covid_hospitalizations"
	TableRespiratory = "respiratory_disease_rates"
	TableNREVSS      = "nrevss_respiratory_data"
)

// reportsDDL is the column list for the citizen reports table. The table name
// is configurable, so the DDL is a template over it.
const reportsDDL = `(
	report_id TEXT NOT NULL,
	report_type TEXT NOT NULL,
	specific_type TEXT,
	severity TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	timeframe TEXT NOT NULL,
	address TEXT,
	zip_code TEXT,
	city TEXT,
	state TEXT,
	county TEXT,
	latitude DOUBLE PRECISION,
	longitude DOUBLE PRECISION,
	description TEXT NOT NULL,
	people_affected TEXT,
	is_anonymous BOOLEAN NOT NULL DEFAULT FALSE,
	contact_name TEXT,
	contact_email TEXT,
	contact_phone TEXT,
	media_urls TEXT[],
	media_count INTEGER NOT NULL DEFAULT 0,
	attachment_urls TEXT,
	ai_media_summary TEXT,
	ai_overall_summary TEXT,
	ai_tags TEXT[],
	ai_confidence DOUBLE PRECISION,
	ai_analyzed_at TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'pending',
	reviewed_by TEXT,
	reviewed_at TIMESTAMPTZ,
	notes TEXT,
	exclude_from_analysis BOOLEAN NOT NULL DEFAULT FALSE,
	exclusion_reason TEXT,
	manual_tags TEXT[]
)`

// feedDDL maps each feed table to its column definitions. Feed record_ids are
// deterministic digests, intentionally not unique-constrained: the tables are
// truncate-loaded, and duplicates within one upstream snapshot are the
// source's problem, not ours.
var feedDDL = map[string]string{
	TableWildfire: `(
	record_id TEXT NOT NULL,
	incident_name TEXT,
	state TEXT,
	latitude DOUBLE PRECISION,
	longitude DOUBLE PRECISION,
	published_raw TEXT,
	published_date TEXT,
	load_timestamp TIMESTAMPTZ NOT NULL
)`,
	TableEarthquake: `(
	record_id TEXT NOT NULL,
	title TEXT,
	magnitude DOUBLE PRECISION,
	latitude DOUBLE PRECISION,
	longitude DOUBLE PRECISION,
	depth_km DOUBLE PRECISION,
	updated_raw TEXT,
	event_date TEXT,
	load_timestamp TIMESTAMPTZ NOT NULL
)`,
	TableStorm: `(
	record_id TEXT NOT NULL,
	event_type TEXT,
	title TEXT,
	description TEXT,
	published_raw TEXT,
	report_date TEXT,
	load_timestamp TIMESTAMPTZ NOT NULL
)`,
	TableDrug: `(
	record_id TEXT NOT NULL,
	name TEXT,
	address TEXT,
	city TEXT,
	state TEXT,
	latitude DOUBLE PRECISION,
	longitude DOUBLE PRECISION,
	load_timestamp TIMESTAMPTZ NOT NULL
)`,
	TableCDCCovid: `(
	record_id TEXT NOT NULL,
	jurisdiction TEXT,
	week_end_raw TEXT,
	week_end_date TEXT,
	weekly_rate DOUBLE PRECISION,
	cumulative_rate DOUBLE PRECISION,
	load_timestamp TIMESTAMPTZ NOT NULL
)`,
	TableRespiratory: `(
	record_id TEXT NOT NULL,
	network TEXT,
	season TEXT,
	year INTEGER,
	week INTEGER,
	age_group TEXT,
	site TEXT,
	weekly_rate DOUBLE PRECISION,
	cumulative_rate DOUBLE PRECISION,
	week_end_raw TEXT,
	week_end_date TEXT,
	load_timestamp TIMESTAMPTZ NOT NULL
)`,
	TableNREVSS: `(
	record_id TEXT NOT NULL,
	level TEXT,
	region TEXT,
	pathogen TEXT,
	repweekdate_raw TEXT,
	repweekdate_iso TEXT,
	tests_total DOUBLE PRECISION,
	tests_positive DOUBLE PRECISION,
	positivity_rate DOUBLE PRECISION,
	load_timestamp TIMESTAMPTZ NOT NULL
)`,
}

// EnsureSchema provisions the warehouse schema and every pipeline table,
// idempotently. All DDL lives here so warehouse shape and code version
// together; no other component creates tables.
func (p *Postgres) EnsureSchema(ctx context.Context, reportsTable string) error {
	if _, err := p.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{p.schema}.Sanitize()); err != nil {
		return fmt.Errorf("create schema %s: %w", p.schema, err)
	}

	if err := p.createTable(ctx, reportsTable, reportsDDL); err != nil {
		return err
	}
	for table, ddl := range feedDDL {
		if err := p.createTable(ctx, table, ddl); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) createTable(ctx context.Context, table, ddl string) error {
	stmt := "CREATE TABLE IF NOT EXISTS " + pgx.Identifier{p.schema, table}.Sanitize() + " " + ddl
	if _, err := p.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}
