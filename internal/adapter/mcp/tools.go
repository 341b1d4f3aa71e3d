package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/choibumgyu/HYU-CDW/internal/adapter/render"
	"github.com/choibumgyu/HYU-CDW/internal/adapter/resultfile"
	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
	"github.com/choibumgyu/HYU-CDW/internal/core/service"
)

// Server metadata
const serverName = "cdwviz"

const serverInstructions = "Clinical data warehouse (OMOP CDM) query server. " +
	"Every query result comes back with a report that says which columns are safe to show, " +
	"how each shown column is distributed, and which (label, count) pair drives the Top-N chart. " +
	"Patient identifiers, dates and free text are never summarized."

// Output formats for result-bearing tools.
const (
	formatJSON  = "json"
	formatTable = "table"
)

// rowsInTable bounds the rows drawn by format=table.
const rowsInTable = 20

// Tool descriptions
const (
	descListSchemas = "List the warehouse schemas (for example cdm, vocab). " +
		"Call this first to discover where the OMOP tables live."

	descListTables = "List tables and views with schema, type, estimated row count, column count and description. " +
		"Row estimates tell you which tables are large (person, visit_occurrence, measurement) " +
		"so you can aggregate instead of selecting raw rows."

	descDescribeTable = "Describe a table: columns with types, nullability, comments and display labels; " +
		"pg_stats cardinality, null rates and frequent values; primary and foreign keys. " +
		"Each column also says whether result summaries will hide it (hidden, hidden_by) " +
		"and whether its values are masked before leaving the server. " +
		"Prefer *_concept_id and low-cardinality columns for GROUP BY."

	descProfileTable = "Sample rows of a table (TABLESAMPLE when large) and interpret them as a query result: " +
		"which columns are summarizable, their value counts or histograms, and the best Top-N chart pairing. " +
		"Sampled rows are masked and are not returned."

	descQuery = "Execute a read-only SQL query and return its rows with an interpretation report. " +
		"The report lists surfaced and hidden columns with reasons, categorical counts or numeric histograms, " +
		"a pre-aggregated (label, count) pair when the query already grouped, the chart pairing, and a Top-N split. " +
		"A server-side row limit and timeout are enforced; identifying columns are masked. " +
		"Aggregate with GROUP BY and alias counts (AS cnt) to get a pre-aggregated chart."

	descExplainQuery = "Show the execution plan for a SELECT query (PostgreSQL only). " +
		"Supports ANALYZE to include actual execution statistics (the query WILL be executed)."

	descAnalyzeResult = "Interpret rows you already have, without touching the database. " +
		"Pass the execution layer's result as JSON ({\"data\": [...]} or a bare array of objects) " +
		"and optionally the SQL that produced it so aliases resolve to source columns."

	descFormatSQL = "Pretty-print a SQL statement for display: one clause per line, one select item per line " +
		"with the source column of each alias noted in a comment."

	descFormat = "Output format: json (default) or table"
)

func RegisterTools(s *server.MCPServer, svc Services, logger *slog.Logger) {
	if svc.Catalog != nil {
		s.AddTool(
			mcp.NewTool("list_schemas",
				mcp.WithDescription(descListSchemas),
			),
			listSchemasHandler(svc.Catalog, logger),
		)

		s.AddTool(
			mcp.NewTool("list_tables",
				mcp.WithDescription(descListTables),
			),
			listTablesHandler(svc.Catalog, logger),
		)

		s.AddTool(
			mcp.NewTool("describe_table",
				mcp.WithDescription(descDescribeTable),
				mcp.WithString("table_name",
					mcp.Required(),
					mcp.Description("Name of the table to describe"),
				),
				mcp.WithString("schema",
					mcp.Description("Schema name (optional, resolves automatically if omitted)"),
				),
			),
			describeTableHandler(svc.Catalog, logger),
		)
	}

	if svc.Profiler != nil {
		s.AddTool(
			mcp.NewTool("profile_table",
				mcp.WithDescription(descProfileTable),
				mcp.WithString("table_name",
					mcp.Required(),
					mcp.Description("Name of the table to profile"),
				),
				mcp.WithString("schema",
					mcp.Description("Schema name (optional, resolves automatically if omitted)"),
				),
			),
			profileTableHandler(svc.Profiler, logger),
		)
	}

	if svc.Query != nil {
		s.AddTool(
			mcp.NewTool("query",
				mcp.WithDescription(descQuery),
				mcp.WithString("sql",
					mcp.Required(),
					mcp.Description("SQL query to execute (SELECT statements only)"),
				),
				mcp.WithString("format",
					mcp.Description(descFormat),
					mcp.Enum(formatJSON, formatTable),
				),
			),
			queryHandler(svc.Query, svc.Analysis, logger),
		)

		s.AddTool(
			mcp.NewTool("explain_query",
				mcp.WithDescription(descExplainQuery),
				mcp.WithString("sql",
					mcp.Required(),
					mcp.Description("The SELECT query to explain (without the EXPLAIN keyword)"),
				),
				mcp.WithBoolean("analyze",
					mcp.Description("Include actual execution statistics (executes the query). Defaults to false."),
				),
			),
			explainQueryHandler(svc.Query, logger),
		)
	}

	if svc.Analysis != nil {
		s.AddTool(
			mcp.NewTool("analyze_result",
				mcp.WithDescription(descAnalyzeResult),
				mcp.WithString("rows",
					mcp.Required(),
					mcp.Description("Result rows as JSON: {\"data\": [...]} or [...]"),
				),
				mcp.WithString("sql",
					mcp.Description("SQL that produced the rows (optional, used to resolve aliases)"),
				),
				mcp.WithNumber("top_n",
					mcp.Description("Entries in the Top-N split (defaults to the server setting)"),
				),
				mcp.WithString("format",
					mcp.Description(descFormat),
					mcp.Enum(formatJSON, formatTable),
				),
			),
			analyzeResultHandler(svc.Analysis, logger),
		)
	}

	s.AddTool(
		mcp.NewTool("format_sql",
			mcp.WithDescription(descFormatSQL),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description("SQL statement to format"),
			),
		),
		formatSQLHandler(),
	)
}

func listSchemasHandler(catalog *service.CatalogService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		schemas, err := catalog.ListSchemas(ctx)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "list schemas")), nil
		}
		return jsonResult(schemas)
	}
}

func listTablesHandler(catalog *service.CatalogService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tables, err := catalog.ListTables(ctx)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "list tables")), nil
		}
		return jsonResult(tables)
	}
}

func describeTableHandler(catalog *service.CatalogService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tableName, ok := request.GetArguments()["table_name"].(string)
		if !ok || tableName == "" {
			return mcp.NewToolResultError("table_name is required"), nil
		}

		schema, _ := request.GetArguments()["schema"].(string)

		detail, err := catalog.DescribeTable(ctx, schema, tableName)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "describe table")), nil
		}
		return jsonResult(detail)
	}
}

func profileTableHandler(profiler *service.ProfilerService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tableName, ok := request.GetArguments()["table_name"].(string)
		if !ok || tableName == "" {
			return mcp.NewToolResultError("table_name is required"), nil
		}

		schema, _ := request.GetArguments()["schema"].(string)

		profile, err := profiler.ProfileTable(ctx, schema, tableName)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "profile table")), nil
		}
		return jsonResult(profile)
	}
}

func queryHandler(query *service.QueryService, analysis *service.AnalysisService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}
		format, err := formatArg(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ctx = service.WithToolName(ctx, "query")
		result, err := query.Execute(ctx, sql)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "run query")), nil
		}

		if format == formatTable {
			var names domain.DisplayNames
			if analysis != nil {
				names = analysis.Options().DisplayNames
			}
			header := "query " + result.QueryID
			if result.Truncated {
				header += " (truncated)"
			}
			rows := render.Rows(domain.FromMaps(result.Columns, result.Rows), names, rowsInTable)
			return tableResult(result.Report, header+"\n"+rows+"\n\n")
		}
		return jsonResult(result)
	}
}

func explainQueryHandler(query *service.QueryService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		analyze, _ := request.GetArguments()["analyze"].(bool)

		ctx = service.WithToolName(ctx, "explain_query")
		plan, err := query.Explain(ctx, sql, analyze)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "explain query")), nil
		}
		return jsonResult(plan.Maps())
	}
}

func analyzeResultHandler(analysis *service.AnalysisService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		raw, err := rowsArg(args["rows"])
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		format, err := formatArg(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		rs, err := resultfile.DecodeBytes(raw)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "decode rows")), nil
		}

		sql, _ := args["sql"].(string)
		opts := analysis.Options()
		if n, ok := args["top_n"].(float64); ok && n >= 1 {
			opts.TopN = int(n)
		}

		report := analysis.InterpretWith(ctx, rs, sql, opts)
		if format == formatTable {
			return tableResult(report, "")
		}
		return jsonResult(report)
	}
}

func formatSQLHandler() server.ToolHandlerFunc {
	return func(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || strings.TrimSpace(sql) == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}
		return mcp.NewToolResultText(domain.FormatSQLForDisplay(sql)), nil
	}
}

// rowsArg accepts the rows either as a JSON string or as an already
// decoded JSON value.
func rowsArg(v any) ([]byte, error) {
	switch r := v.(type) {
	case nil:
		return nil, fmt.Errorf("rows is required")
	case string:
		if strings.TrimSpace(r) == "" {
			return nil, fmt.Errorf("rows is required")
		}
		return []byte(r), nil
	default:
		data, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("rows: %w", err)
		}
		return data, nil
	}
}

func formatArg(request mcp.CallToolRequest) (string, error) {
	format, _ := request.GetArguments()["format"].(string)
	switch format {
	case "", formatJSON:
		return formatJSON, nil
	case formatTable:
		return formatTable, nil
	default:
		return "", fmt.Errorf("invalid format %q: must be json or table", format)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func tableResult(report *domain.Report, prefix string) (*mcp.CallToolResult, error) {
	var b strings.Builder
	b.WriteString(prefix)
	if err := render.Report(&b, report); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to render report: %v", err)), nil
	}
	return mcp.NewToolResultText(b.String()), nil
}
