package warehouse

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertStatement(t *testing.T) {
	stmt := insertStatement("crowdsource_data", "crowdsource_reports", []string{"report_id", "severity"})
	assert.Equal(
		t,
		`INSERT INTO "crowdsource_data"."crowdsource_reports" ("report_id", "severity") VALUES ($1, $2)`,
		stmt,
	)
}

func TestSortedColumns(t *testing.T) {
	row := Row{"severity": "high", "report_id": "r-1", "city": nil}
	assert.Equal(t, []string{"city", "report_id", "severity"}, sortedColumns(row))
}

func TestIsRowError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"integrity violation", &pgconn.PgError{Code: "23505"}, true},
		{"data exception", &pgconn.PgError{Code: "22001"}, true},
		{"undefined column", &pgconn.PgError{Code: "42703"}, true},
		{"connection failure", &pgconn.PgError{Code: "08006"}, false},
		{"insufficient resources", &pgconn.PgError{Code: "53300"}, false},
		{"plain error", errors.New("network down"), false},
		{"wrapped pg error", errors.Join(errors.New("insert"), &pgconn.PgError{Code: "23502"}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRowError(tt.err))
		})
	}
}

func TestMemory_InsertRows(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts all rows", func(t *testing.T) {
		m := NewMemory()
		result, err := m.InsertRows(ctx, "t", []Row{{"id": "a"}, {"id": "b"}})

		require.NoError(t, err)
		assert.Equal(t, 2, result.Inserted)
		assert.Empty(t, result.RowErrors)
		assert.Len(t, m.Rows("t"), 2)
	})

	t.Run("row errors are inline, not transport", func(t *testing.T) {
		m := NewMemory()
		m.RejectRow = func(_ string, row Row) (string, bool) {
			if row["id"] == "bad" {
				return "enum violation", true
			}
			return "", false
		}

		result, err := m.InsertRows(ctx, "t", []Row{{"id": "ok"}, {"id": "bad"}})

		require.NoError(t, err)
		assert.Equal(t, 1, result.Inserted)
		require.Len(t, result.RowErrors, 1)
		assert.Equal(t, 1, result.RowErrors[0].Index)
		assert.Equal(t, "enum violation", result.RowErrors[0].Reason)
	})

	t.Run("transport error surfaces", func(t *testing.T) {
		m := NewMemory()
		m.FailTransport = errors.New("connection refused")

		_, err := m.InsertRows(ctx, "t", []Row{{"id": "a"}})
		require.Error(t, err)
	})
}

func TestMemory_LoadTable_TruncateSemantics(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	columns := []string{"record_id"}

	require.NoError(t, m.LoadTable(ctx, "feed", columns, []Row{{"record_id": "old-1"}, {"record_id": "old-2"}}, LoadTruncate))
	require.Len(t, m.Rows("feed"), 2)

	// Reload replaces, pre-load rows are absent.
	require.NoError(t, m.LoadTable(ctx, "feed", columns, []Row{{"record_id": "new-1"}}, LoadTruncate))
	rows := m.Rows("feed")
	require.Len(t, rows, 1)
	assert.Equal(t, "new-1", rows[0]["record_id"])

	// Append keeps existing rows.
	require.NoError(t, m.LoadTable(ctx, "feed", columns, []Row{{"record_id": "new-2"}}, LoadAppend))
	assert.Len(t, m.Rows("feed"), 2)
}

func TestMemory_LoadTable_MissingColumn(t *testing.T) {
	m := NewMemory()
	err := m.LoadTable(context.Background(), "feed", []string{"record_id", "state"}, []Row{{"record_id": "x"}}, LoadTruncate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state")
}
