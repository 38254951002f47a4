package warehouse

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory Writer used by tests and local development. It
// preserves the contract semantics: per-row errors via the RejectRow hook,
// atomic truncate loads, and typed transport errors via FailTransport.
type Memory struct {
	mu     sync.Mutex
	tables map[string][]Row

	// RejectRow, when set, marks matching rows as row-level failures.
	RejectRow func(table string, row Row) (reason string, reject bool)
	// FailTransport, when set, makes every call fail with this error.
	FailTransport error
}

// NewMemory creates an empty in-memory warehouse.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string][]Row)}
}

func (m *Memory) InsertRows(_ context.Context, table string, rows []Row) (InsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailTransport != nil {
		return InsertResult{}, m.FailTransport
	}

	var result InsertResult
	for i, row := range rows {
		if m.RejectRow != nil {
			if reason, reject := m.RejectRow(table, row); reject {
				result.RowErrors = append(result.RowErrors, RowError{Index: i, Reason: reason})
				continue
			}
		}
		m.tables[table] = append(m.tables[table], row)
		result.Inserted++
	}
	return result, nil
}

func (m *Memory) LoadTable(_ context.Context, table string, columns []string, rows []Row, mode LoadMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailTransport != nil {
		return m.FailTransport
	}
	for _, row := range rows {
		for _, col := range columns {
			if _, ok := row[col]; !ok {
				return fmt.Errorf("row missing column %q for table %s", col, table)
			}
		}
	}

	if mode == LoadTruncate {
		m.tables[table] = nil
	}
	m.tables[table] = append(m.tables[table], rows...)
	return nil
}

// Rows returns a copy of the named table's contents.
func (m *Memory) Rows(table string) []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Row(nil), m.tables[table]...)
}
