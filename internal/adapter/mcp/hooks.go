package mcp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/choibumgyu/HYU-CDW/internal/core/port"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxStatementAttr bounds the SQL copied onto tool spans.
const maxStatementAttr = 2048

// callState holds per-request timing and span data.
type callState struct {
	tool  string
	start time.Time
	span  trace.Span
}

// ToolCallHooks creates MCP hooks that log every tool call, trace it as an
// mcp.tool.call span and record its duration.
func ToolCallHooks(logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.Hooks {
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	hooks := &server.Hooks{}
	var calls sync.Map // request id -> *callState

	finish := func(ctx context.Context, id any, tool string, err error) {
		state := &callState{tool: tool, start: time.Now()}
		if v, ok := calls.LoadAndDelete(id); ok {
			state = v.(*callState)
		}
		duration := time.Since(state.start)

		attrs := []slog.Attr{
			slog.String("rpc.method", "tools/call"),
			slog.String("mcp.tool", state.tool),
			slog.Float64("duration_ms", float64(duration.Microseconds())/1000),
			slog.Bool("error", err != nil),
		}
		level := slog.LevelInfo
		if err != nil {
			level = slog.LevelError
			attrs = append(attrs, slog.String("error.message", err.Error()))
		}
		logger.LogAttrs(ctx, level, "tool call", attrs...)

		inst.RecordToolDuration(ctx, float64(duration.Microseconds())/1000)

		if state.span != nil {
			if err != nil {
				state.span.RecordError(err)
				state.span.SetStatus(codes.Error, err.Error())
			}
			state.span.End()
		}
	}

	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		state := &callState{tool: req.Params.Name, start: time.Now()}
		if tracer != nil {
			_, state.span = tracer.Start(ctx, "mcp.tool.call",
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(toolAttributes(req)...),
			)
		}
		calls.Store(id, state)
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, result any) {
		var err error
		if r, ok := result.(*mcp.CallToolResult); ok && r.IsError {
			err = toolError{tool: req.Params.Name, text: resultText(r)}
		}
		finish(ctx, id, req.Params.Name, err)
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		req, ok := message.(*mcp.CallToolRequest)
		if !ok {
			return
		}
		finish(ctx, id, req.Params.Name, err)
	})

	return hooks
}

// toolError is the error recorded for a tool that answered with IsError.
type toolError struct {
	tool string
	text string
}

func (e toolError) Error() string {
	if e.text == "" {
		return "tool " + e.tool + " returned error"
	}
	return "tool " + e.tool + ": " + e.text
}

func toolAttributes(req *mcp.CallToolRequest) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("mcp.tool", req.Params.Name)}
	args := req.GetArguments()
	if sql, ok := args["sql"].(string); ok && sql != "" {
		if len(sql) > maxStatementAttr {
			sql = sql[:maxStatementAttr]
		}
		attrs = append(attrs, attribute.String("db.statement", sql))
	}
	if format, ok := args["format"].(string); ok && format != "" {
		attrs = append(attrs, attribute.String("mcp.tool.format", format))
	}
	return attrs
}

func resultText(r *mcp.CallToolResult) string {
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
