// Package audit persists one NDJSON line per executed query.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/choibumgyu/HYU-CDW/internal/core/port"
)

// fileEntry is the NDJSON-serializable form of an audit record.
type fileEntry struct {
	Timestamp       string  `json:"ts"`
	QueryID         string  `json:"query_id"`
	Tool            string  `json:"tool"`
	SQL             string  `json:"sql"`
	RowsReturned    int     `json:"rows_returned"`
	ColumnsSurfaced int     `json:"columns_surfaced"`
	ColumnsHidden   int     `json:"columns_hidden"`
	DurationMS      int64   `json:"duration_ms"`
	Error           *string `json:"error"`
}

// FileAuditor writes audit entries as NDJSON to an append-only file.
type FileAuditor struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	now  func() time.Time
}

// NewFileAuditor opens (or creates) the file at path for append-only writing.
func NewFileAuditor(path string) (*FileAuditor, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	return &FileAuditor{file: f, enc: enc, now: time.Now}, nil
}

func (a *FileAuditor) Record(_ context.Context, entry port.AuditEntry) {
	fe := fileEntry{
		Timestamp:       a.now().UTC().Format(time.RFC3339Nano),
		QueryID:         entry.QueryID,
		Tool:            entry.Tool,
		SQL:             entry.SQL,
		RowsReturned:    entry.RowsReturned,
		ColumnsSurfaced: entry.ColumnsSurfaced,
		ColumnsHidden:   entry.ColumnsHidden,
		DurationMS:      entry.DurationMS,
	}
	if entry.Err != nil {
		s := entry.Err.Error()
		fe.Error = &s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.enc.Encode(fe) // best-effort; don't fail the request for audit I/O
}

func (a *FileAuditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
