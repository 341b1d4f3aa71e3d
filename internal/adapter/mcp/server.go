package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"

	"github.com/choibumgyu/HYU-CDW/internal/core/port"
	"github.com/choibumgyu/HYU-CDW/internal/core/service"
)

// Services bundles what the tools call into. Catalog and Profiler are
// optional: databases without a catalog adapter expose query tools only.
type Services struct {
	Catalog  *service.CatalogService
	Profiler *service.ProfilerService
	Query    *service.QueryService
	Analysis *service.AnalysisService
}

// NewServer creates an MCPServer with tools and logging hooks.
func NewServer(version string, svc Services, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
		server.WithHooks(ToolCallHooks(logger, tracer, inst)),
		server.WithInstructions(serverInstructions),
	)

	RegisterTools(s, svc, logger)

	return s
}
