package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
	"github.com/choibumgyu/HYU-CDW/internal/core/port"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- mock QueryExecutor ---

type mockExecutor struct {
	executeCalled bool
	lastSQL       string
	columns       []string
	rows          []domain.Row
	truncated     bool
	err           error
}

func (m *mockExecutor) Execute(_ context.Context, sql string) (*domain.ResultSet, error) {
	m.executeCalled = true
	m.lastSQL = sql
	if m.err != nil {
		return nil, m.err
	}
	rs := domain.NewResultSet(m.columns, m.rows)
	rs.Truncated = m.truncated
	return rs, nil
}

// --- recording auditor ---

type recordingAuditor struct {
	mu      sync.Mutex
	entries []port.AuditEntry
}

func (a *recordingAuditor) Record(_ context.Context, e port.AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recordingAuditor) Close() error { return nil }

// --- recording instrumentation ---

type recordingInst struct {
	port.NoopInstrumentation
	queries, errors, hidden int
}

func (r *recordingInst) IncrementQueryCount(context.Context)       { r.queries++ }
func (r *recordingInst) IncrementQueryErrors(context.Context)      { r.errors++ }
func (r *recordingInst) AddHiddenColumns(_ context.Context, n int) { r.hidden += n }

func newTestService(exec port.QueryExecutor, auditor port.QueryAuditor, masks map[string]domain.MaskType) *QueryService {
	return NewQueryService(domain.NewPgQueryValidator(), exec, nil, auditor, testLogger(), masks, nil, nil)
}

// --- tests ---

func TestQueryService_ValidSelect(t *testing.T) {
	exec := &mockExecutor{
		columns: []string{"dept", "cnt"},
		rows: []domain.Row{
			{"dept": "Cardiology", "cnt": 12},
			{"dept": "Neurology", "cnt": 7},
			{"dept": "Oncology", "cnt": 3},
		},
	}
	svc := newTestService(exec, nil, nil)

	sql := "SELECT dept_name AS dept, COUNT(*) AS cnt FROM visit GROUP BY dept_name"
	res, err := svc.Execute(context.Background(), sql)
	require.NoError(t, err)

	assert.True(t, exec.executeCalled)
	assert.Equal(t, sql, exec.lastSQL)
	_, err = uuid.Parse(res.QueryID)
	assert.NoError(t, err)
	assert.Equal(t, []string{"dept", "cnt"}, res.Columns)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, "Cardiology", res.Rows[0]["dept"])

	require.NotNil(t, res.Report)
	require.NotNil(t, res.Report.ChartSpec)
	assert.Equal(t, domain.OriginPreAggregated, res.Report.ChartSpec.Origin)
	assert.Equal(t, "dept_name", res.Report.AliasMap.Resolve("dept"))
}

func TestQueryService_RejectsWrites(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"insert", "INSERT INTO person (person_id) VALUES (1)"},
		{"drop", "DROP TABLE person"},
		{"delete", "DELETE FROM person WHERE person_id = 1"},
		{"update", "UPDATE person SET year_of_birth = 1900"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &mockExecutor{}
			inst := &recordingInst{}
			svc := NewQueryService(domain.NewPgQueryValidator(), exec, nil, nil, testLogger(), nil, nil, inst)

			_, err := svc.Execute(context.Background(), tt.sql)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrNotAllowed)
			assert.False(t, exec.executeCalled, "executor should not be called for rejected queries")
			assert.Equal(t, 1, inst.errors)
		})
	}
}

func TestQueryService_RejectsEmptyAndMulti(t *testing.T) {
	svc := newTestService(&mockExecutor{}, nil, nil)

	_, err := svc.Execute(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)

	_, err = svc.Execute(context.Background(), "SELECT 1; SELECT 2")
	assert.ErrorIs(t, err, domain.ErrMultiStatement)
}

func TestQueryService_ExecutorError(t *testing.T) {
	exec := &mockExecutor{err: fmt.Errorf("connection refused")}
	auditor := &recordingAuditor{}
	inst := &recordingInst{}
	svc := NewQueryService(domain.NewPgQueryValidator(), exec, nil, auditor, testLogger(), nil, nil, inst)

	ctx := WithToolName(context.Background(), "query")
	_, err := svc.Execute(ctx, "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	require.Len(t, auditor.entries, 1)
	entry := auditor.entries[0]
	assert.Equal(t, "query", entry.Tool)
	assert.Equal(t, "SELECT 1", entry.SQL)
	assert.Error(t, entry.Err)
	assert.Zero(t, entry.RowsReturned)
	assert.Equal(t, 1, inst.errors)
	assert.Zero(t, inst.queries)
}

func TestQueryService_AuditCarriesQueryIDAndColumns(t *testing.T) {
	exec := &mockExecutor{
		columns: []string{"mrn", "gender"},
		rows: []domain.Row{
			{"mrn": "A-1001", "gender": "M"},
			{"mrn": "A-1002", "gender": "F"},
		},
	}
	auditor := &recordingAuditor{}
	inst := &recordingInst{}
	svc := NewQueryService(domain.NewPgQueryValidator(), exec, nil, auditor, testLogger(), nil, nil, inst)

	res, err := svc.Execute(WithToolName(context.Background(), "query"), "SELECT mrn, gender FROM person")
	require.NoError(t, err)

	require.Len(t, auditor.entries, 1)
	entry := auditor.entries[0]
	assert.Equal(t, res.QueryID, entry.QueryID)
	assert.Equal(t, 2, entry.RowsReturned)
	assert.Equal(t, 1, entry.ColumnsSurfaced)
	assert.Equal(t, 1, entry.ColumnsHidden)
	assert.NoError(t, entry.Err)
	assert.Equal(t, 1, inst.queries)
	assert.Equal(t, 1, inst.hidden)
}

func TestQueryService_RedactsSensitiveColumnsThroughAliases(t *testing.T) {
	exec := &mockExecutor{
		columns: []string{"hospital_no", "gender"},
		rows: []domain.Row{
			{"hospital_no": "A-1001", "gender": "M"},
			{"hospital_no": "A-1002", "gender": "F"},
		},
	}
	svc := newTestService(exec, nil, nil)

	res, err := svc.Execute(context.Background(), "SELECT mrn AS hospital_no, gender_source_value AS gender FROM patients")
	require.NoError(t, err)

	for _, row := range res.Rows {
		assert.Equal(t, "***", row["hospital_no"])
	}
	assert.Equal(t, "M", res.Rows[0]["gender"])
	assert.NotContains(t, res.Report.Summaries, "hospital_no")
	assert.Contains(t, res.Report.Summaries, "gender")
}

func TestQueryService_PolicyMasksApplyBeforeInterpretation(t *testing.T) {
	exec := &mockExecutor{
		columns: []string{"race", "n"},
		rows: []domain.Row{
			{"race": "Asian", "n": 40},
			{"race": "White", "n": 25},
		},
	}
	masks := map[string]domain.MaskType{"race_source_value": domain.MaskNull}
	svc := newTestService(exec, nil, masks)

	res, err := svc.Execute(context.Background(), "SELECT race_source_value AS race, COUNT(*) AS n FROM person GROUP BY 1")
	require.NoError(t, err)

	for _, row := range res.Rows {
		assert.Nil(t, row["race"])
	}
	assert.NotContains(t, res.Report.Summaries, "race")
}

func TestQueryService_Explain(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		analyze bool
		want    string
	}{
		{"plain", "SELECT person_id FROM person", false, "EXPLAIN SELECT person_id FROM person"},
		{"analyze", "SELECT person_id FROM person", true, "EXPLAIN ANALYZE SELECT person_id FROM person"},
		{"already explain", "EXPLAIN SELECT 1", true, "EXPLAIN SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &mockExecutor{
				columns: []string{"QUERY PLAN"},
				rows:    []domain.Row{{"QUERY PLAN": "Seq Scan on person"}},
			}
			auditor := &recordingAuditor{}
			svc := newTestService(exec, auditor, nil)

			rs, err := svc.Explain(WithToolName(context.Background(), "explain_query"), tt.sql, tt.analyze)
			require.NoError(t, err)
			assert.Equal(t, tt.want, exec.lastSQL)
			assert.Equal(t, 1, rs.Len())

			require.Len(t, auditor.entries, 1)
			assert.Equal(t, "explain_query", auditor.entries[0].Tool)
			assert.Equal(t, tt.want, auditor.entries[0].SQL)
		})
	}
}

func TestQueryService_ExplainRejectsWrites(t *testing.T) {
	exec := &mockExecutor{}
	svc := newTestService(exec, nil, nil)

	_, err := svc.Explain(context.Background(), "DELETE FROM person", true)
	assert.ErrorIs(t, err, domain.ErrNotAllowed)
	assert.False(t, exec.executeCalled)
}

func TestToolNameFromCtx(t *testing.T) {
	t.Parallel()

	assert.Empty(t, toolNameFromCtx(context.Background()))
	assert.Equal(t, "query", toolNameFromCtx(WithToolName(context.Background(), "query")))
}

func TestQueryService_ValidatorErrorWrapped(t *testing.T) {
	refused := fmt.Errorf("table %q is not allowed", "note")
	var seen string
	validator := port.ValidatorFunc(func(sql string) error {
		seen = sql
		return refused
	})
	exec := &mockExecutor{}
	svc := NewQueryService(validator, exec, nil, nil, testLogger(), nil, nil, nil)

	_, err := svc.Explain(context.Background(), "SELECT * FROM note", true)
	require.Error(t, err)
	assert.ErrorIs(t, err, refused)
	assert.Contains(t, err.Error(), "validation:")
	assert.Equal(t, "SELECT * FROM note", seen)
	assert.False(t, exec.executeCalled)
}

func TestQueryService_ReportsTruncation(t *testing.T) {
	exec := &mockExecutor{
		columns:   []string{"dept", "cnt"},
		rows:      []domain.Row{{"dept": "IM", "cnt": 12}, {"dept": "GS", "cnt": 7}},
		truncated: true,
	}
	svc := newTestService(exec, nil, nil)

	result, err := svc.Execute(context.Background(), "SELECT dept, count(*) AS cnt FROM visits GROUP BY dept")
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.Len(t, result.Rows, 2)
}
