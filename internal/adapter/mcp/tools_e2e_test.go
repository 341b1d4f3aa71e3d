package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/choibumgyu/HYU-CDW/internal/adapter/policy"
	"github.com/choibumgyu/HYU-CDW/internal/adapter/postgres"
	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
	"github.com/choibumgyu/HYU-CDW/internal/core/port"
	"github.com/choibumgyu/HYU-CDW/internal/core/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const e2eSchema = `
	CREATE SCHEMA cdm;

	CREATE TABLE cdm.person (
		person_id           BIGINT PRIMARY KEY,
		gender_concept_id   INTEGER NOT NULL,
		year_of_birth       INTEGER NOT NULL,
		person_source_value VARCHAR(50),
		race_source_value   VARCHAR(50)
	);
	COMMENT ON TABLE cdm.person IS 'Patients';

	CREATE TABLE cdm.visit_occurrence (
		visit_occurrence_id BIGINT PRIMARY KEY,
		person_id           BIGINT NOT NULL REFERENCES cdm.person(person_id),
		visit_concept_id    INTEGER NOT NULL,
		visit_start_date    DATE NOT NULL
	);

	CREATE VIEW cdm.inpatient_visits AS
		SELECT visit_occurrence_id, person_id FROM cdm.visit_occurrence WHERE visit_concept_id = 9201;

	INSERT INTO cdm.person (person_id, gender_concept_id, year_of_birth, person_source_value, race_source_value)
	SELECT
		i,
		CASE WHEN i % 2 = 0 THEN 8507 ELSE 8532 END,
		1940 + (i % 60),
		'P' || lpad(i::text, 8, '0'),
		CASE (i % 3) WHEN 0 THEN 'Asian' WHEN 1 THEN 'White' ELSE 'Black' END
	FROM generate_series(1, 300) AS i;

	INSERT INTO cdm.visit_occurrence (visit_occurrence_id, person_id, visit_concept_id, visit_start_date)
	SELECT i, (i % 300) + 1, CASE (i % 3) WHEN 0 THEN 9201 WHEN 1 THEN 9202 ELSE 9203 END, DATE '2023-01-01' + (i % 365)
	FROM generate_series(1, 1200) AS i;
`

const e2ePolicy = `
display_names:
  gender_concept_id: 성별
  race: 인종
context:
  tables:
    cdm.person:
      description: Patients registered at the hospital
      columns:
        person_source_value:
          description: Hospital registration number
          mask: hash
`

// setupE2E starts a Postgres testcontainer with the CDM fixture and returns
// a fully wired MCP server backed by real adapters.
func setupE2E(t *testing.T) *server.MCPServer {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping E2E test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	seed, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	_, err = seed.Exec(ctx, e2eSchema)
	require.NoError(t, err)
	_, err = seed.Exec(ctx, "ANALYZE")
	require.NoError(t, err)
	seed.Close()

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DatabaseURL: connStr,
		SearchPath:  "cdm,public",
		MaxConns:    4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	pol, err := policy.Parse([]byte(e2ePolicy))
	require.NoError(t, err)
	rules, err := pol.ExtendRules(domain.DefaultRules())
	require.NoError(t, err)

	// Real adapters.
	explorer := policy.NewPolicyExplorer(postgres.NewExplorer(pool, nil), pol)
	sampler := policy.NewMaskingSampler(postgres.NewSampler(pool, nil), pol)
	executor := postgres.NewExecutor(pool, true, 100, 10*time.Second)

	// Real services.
	logger := discardLogger()
	analysis := service.NewAnalysisService(domain.NewEngine(rules), domain.InterpretOptions{TopN: 2, DisplayNames: pol.Names()}, logger, nil, nil)
	svc := Services{
		Catalog:  service.NewCatalogService(explorer, rules, pol.Names()),
		Profiler: service.NewProfilerService(sampler, analysis, 500),
		Query:    service.NewQueryService(domain.NewPgQueryValidator(), executor, analysis, port.NoopAuditor{}, logger, policy.MaskSpec(pol.Context), nil, nil),
		Analysis: analysis,
	}

	// Real MCP server.
	s := server.NewMCPServer("test-e2e", "0.0.1", server.WithToolCapabilities(true))
	RegisterTools(s, svc, logger)
	return s
}

func TestE2E_MCPTools(t *testing.T) {
	s := setupE2E(t)

	t.Run("list_schemas", func(t *testing.T) {
		result := callToolE2E(t, s, "list_schemas", nil)
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))

		var schemas []port.SchemaInfo
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &schemas))

		names := make(map[string]bool)
		for _, s := range schemas {
			names[s.Name] = true
		}
		assert.True(t, names["cdm"], "should contain 'cdm' schema")
		assert.False(t, names["pg_catalog"], "should exclude pg_catalog")
		assert.False(t, names["information_schema"], "should exclude information_schema")
	})

	t.Run("list_tables", func(t *testing.T) {
		result := callToolE2E(t, s, "list_tables", nil)
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))

		var tables []port.TableInfo
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &tables))

		tableMap := make(map[string]port.TableInfo)
		for _, tbl := range tables {
			tableMap[tbl.Name] = tbl
		}
		assert.Len(t, tables, 3, "expected 2 tables + 1 view")

		person := tableMap["person"]
		assert.Equal(t, "table", person.Type)
		assert.Greater(t, person.RowEstimate, int64(0))
		assert.Equal(t, 5, person.ColumnCount)
		assert.Equal(t, "Patients", person.Comment)

		assert.Equal(t, "view", tableMap["inpatient_visits"].Type)
	})

	t.Run("describe_table", func(t *testing.T) {
		result := callToolE2E(t, s, "describe_table", map[string]any{"table_name": "person", "schema": "cdm"})
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))

		var detail port.TableDetail
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &detail))
		assert.Equal(t, "cdm", detail.Schema)
		assert.Equal(t, "Patients", detail.Comment)
		require.Len(t, detail.Columns, 5)

		colMap := make(map[string]port.ColumnInfo)
		for _, c := range detail.Columns {
			colMap[c.Name] = c
		}
		assert.True(t, colMap["person_id"].IsPrimaryKey)

		gender := colMap["gender_concept_id"]
		assert.Equal(t, "성별", gender.DisplayName)
		assert.False(t, gender.Hidden)
		require.NotNil(t, gender.Stats)
		assert.Equal(t, domain.CardinalityEnumLike, gender.Stats.Cardinality)

		source := colMap["person_source_value"]
		assert.True(t, source.Hidden)
		assert.Equal(t, domain.MaskHash, source.Mask)
		assert.Equal(t, "Hospital registration number", source.Comment)
	})

	t.Run("describe_table/foreign_keys", func(t *testing.T) {
		result := callToolE2E(t, s, "describe_table", map[string]any{"table_name": "visit_occurrence"})
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))

		var detail port.TableDetail
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &detail))
		require.NotEmpty(t, detail.ForeignKeys)
		assert.Equal(t, "person_id", detail.ForeignKeys[0].ColumnName)
		assert.Equal(t, "person_id", detail.ForeignKeys[0].ReferencedColumn)
	})

	t.Run("describe_table/not_found", func(t *testing.T) {
		result := callToolE2E(t, s, "describe_table", map[string]any{"table_name": "note"})
		assert.True(t, result.IsError)
		assert.Contains(t, toolText(result), "note")
	})

	t.Run("profile_table", func(t *testing.T) {
		result := callToolE2E(t, s, "profile_table", map[string]any{"table_name": "person"})
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))

		var profile port.TableProfile
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &profile))
		assert.Equal(t, 300, profile.SampledRows)
		require.NotNil(t, profile.Report)
		assert.Contains(t, profile.Report.Summaries, "gender_concept_id")
		assert.Contains(t, profile.Report.Summaries, "race_source_value")
		assert.NotContains(t, profile.Report.Summaries, "person_id")
		assert.NotContains(t, profile.Report.Summaries, "person_source_value")
	})

	t.Run("query/pre_aggregated", func(t *testing.T) {
		result := callToolE2E(t, s, "query", map[string]any{
			"sql": "SELECT race_source_value AS race, COUNT(*) AS cnt FROM person GROUP BY race_source_value",
		})
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))

		var res service.QueryResult
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &res))
		assert.Equal(t, []string{"race", "cnt"}, res.Columns)
		require.Len(t, res.Rows, 3)

		report := res.Report
		require.NotNil(t, report)
		assert.Equal(t, domain.AliasParser, report.AliasMethod)
		assert.Equal(t, "race_source_value", report.AliasMap.Resolve("race"))
		require.NotNil(t, report.ChartSpec)
		assert.Equal(t, domain.OriginPreAggregated, report.ChartSpec.Origin)
		assert.Equal(t, "race", report.ChartSpec.LabelKey)
		require.NotNil(t, report.TopN)
		assert.Len(t, report.TopN.Top, 2)
		assert.InDelta(t, 300, report.TopN.Total, 1e-9)
		assert.Equal(t, "인종", report.Labels["race"])
	})

	t.Run("query/masks_policy_columns", func(t *testing.T) {
		result := callToolE2E(t, s, "query", map[string]any{
			"sql": "SELECT person_source_value AS pid FROM person ORDER BY person_id LIMIT 3",
		})
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))

		text := toolText(result)
		assert.NotContains(t, text, "P00000001")

		var res service.QueryResult
		require.NoError(t, json.Unmarshal([]byte(text), &res))
		require.Len(t, res.Rows, 3)
		assert.NotEmpty(t, res.Rows[0]["pid"])
		assert.Empty(t, res.Report.Summaries)
	})

	t.Run("query/table_format", func(t *testing.T) {
		result := callToolE2E(t, s, "query", map[string]any{
			"sql":    "SELECT gender_concept_id, COUNT(*) AS cnt FROM person GROUP BY gender_concept_id",
			"format": "table",
		})
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))
		assert.Contains(t, toolText(result), "성별")
	})

	t.Run("query/rejects_insert", func(t *testing.T) {
		result := callToolE2E(t, s, "query", map[string]any{
			"sql": "INSERT INTO person (person_id, gender_concept_id, year_of_birth) VALUES (9999, 8507, 1990)",
		})
		assert.True(t, result.IsError)
		assert.Contains(t, toolText(result), "only SELECT queries are allowed")
	})

	t.Run("explain_query", func(t *testing.T) {
		result := callToolE2E(t, s, "explain_query", map[string]any{
			"sql": "SELECT person_id FROM visit_occurrence WHERE visit_concept_id = 9201",
		})
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))

		var rows []map[string]any
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &rows))
		require.NotEmpty(t, rows)
		assert.Contains(t, rows[0], "QUERY PLAN")
	})

	t.Run("explain_query/analyze", func(t *testing.T) {
		result := callToolE2E(t, s, "explain_query", map[string]any{
			"sql":     "SELECT person_id FROM visit_occurrence WHERE visit_concept_id = 9201",
			"analyze": true,
		})
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))

		var rows []map[string]any
		require.NoError(t, json.Unmarshal([]byte(toolText(result)), &rows))
		require.NotEmpty(t, rows)
		planText, _ := rows[0]["QUERY PLAN"].(string)
		assert.Contains(t, planText, "actual", "EXPLAIN ANALYZE should include actual timing")
	})

	t.Run("analyze_result", func(t *testing.T) {
		result := callToolE2E(t, s, "analyze_result", map[string]any{
			"rows": `{"data": [{"race": "Asian", "cnt": 120}, {"race": "White", "cnt": 100}, {"race": "Black", "cnt": 80}]}`,
		})
		require.False(t, result.IsError, "unexpected error: %s", toolText(result))
		assert.True(t, strings.Contains(toolText(result), `"pre_aggregated"`))
	})
}

var e2eSessionCounter atomic.Int64

// callToolE2E is like callTool but uses a unique session ID per call,
// allowing multiple calls against the same MCP server without "session already exists" errors.
func callToolE2E(t *testing.T, s *server.MCPServer, toolName string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	sessionID := fmt.Sprintf("e2e-%d", e2eSessionCounter.Add(1))
	session := server.NewInProcessSession(sessionID, nil)
	require.NoError(t, s.RegisterSession(ctx, session))
	sessionCtx := s.WithContext(ctx, session)

	// Initialize session.
	initBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "init", "method": "initialize",
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "test-e2e", "version": "1.0"},
		},
	})
	s.HandleMessage(sessionCtx, initBytes)

	// Call tool.
	reqBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "call-1", "method": "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": args,
		},
	})
	resp := s.HandleMessage(sessionCtx, reqBytes)
	respBytes, _ := json.Marshal(resp)

	var rpc struct {
		Result *mcp.CallToolResult       `json:"result"`
		Error  *struct{ Message string } `json:"error,omitempty"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpc))
	require.Nil(t, rpc.Error, "unexpected RPC error: %v", rpc.Error)
	require.NotNil(t, rpc.Result)
	return rpc.Result
}
