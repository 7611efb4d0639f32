// Package tools exposes the forum operations to MCP clients.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/forum-client/pkg/forum"
	"github.com/Sternrassler/forum-client/pkg/logging"
)

// ServerName is reported to MCP clients during initialization.
const ServerName = "forum-mcp"

const instructions = `Read-only access to a Discourse forum: discovery (hot, new, top topics,
search, categories), topic reading with pagination, and user profiles.
Notifications, bookmarks and subscriptions need a logged-in session; call
login first. create_topic and create_post are only listed when writes are
enabled on the server.`

var (
	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_tool_calls_total",
		Help: "MCP tool invocations by tool and outcome",
	}, []string{"tool", "outcome"})

	toolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forum_tool_call_duration_seconds",
		Help:    "MCP tool latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})
)

// Server adapts a Forum to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	forum     *forum.Forum
	logger    zerolog.Logger
	tools     []string
}

// NewServer registers tools, resources and prompts for f.
func NewServer(f *forum.Forum, version string, logger zerolog.Logger) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			ServerName,
			version,
			server.WithToolCapabilities(true),
			server.WithResourceCapabilities(false, true),
			server.WithPromptCapabilities(true),
			server.WithRecovery(),
			server.WithInstructions(instructions),
		),
		forum:  f,
		logger: logging.NewLogger("mcp", &logger),
	}
	s.registerDiscoveryTools()
	s.registerReadingTools()
	s.registerUserTools()
	s.registerAuthTools()
	if f.WriteEnabled() {
		s.registerWriteTools()
	}
	s.registerResources()
	s.registerPrompts()
	return s
}

// MCPServer returns the underlying server for transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Tools lists the registered tool names in registration order.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// ServeStdio serves MCP on stdin and stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

type toolHandler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// addTool registers h under the tool's name, wrapped with logging and metrics.
func (s *Server) addTool(tool mcp.Tool, h toolHandler) {
	name := tool.Name
	s.tools = append(s.tools, name)
	s.mcpServer.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := h(ctx, req)
		toolDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

		outcome := "ok"
		switch {
		case err != nil:
			outcome = "error"
		case res != nil && res.IsError:
			outcome = "tool_error"
		}
		toolCalls.WithLabelValues(name, outcome).Inc()
		s.logger.Debug().
			Str("tool", name).
			Str("outcome", outcome).
			Dur("duration", time.Since(start)).
			Msg("Tool call")
		return res, err
	})
}

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult reports a failed forum call as a tool-level error.
func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

// result is the common tail of every handler.
func result(v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(v)
}

func requiredString(req mcp.CallToolRequest, key string) (string, *mcp.CallToolResult) {
	v := mcp.ParseString(req, key, "")
	if v == "" {
		return "", mcp.NewToolResultError(key + " is required")
	}
	return v, nil
}

func requiredID(req mcp.CallToolRequest, key string) (int64, *mcp.CallToolResult) {
	v := mcp.ParseInt64(req, key, 0)
	if v <= 0 {
		return 0, mcp.NewToolResultError(key + " must be a positive integer")
	}
	return v, nil
}

// int64Slice reads a JSON array of numbers.
func int64Slice(req mcp.CallToolRequest, key string) ([]int64, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array of numbers", key)
	}
	out := make([]int64, 0, len(list))
	for _, v := range list {
		n, ok := v.(float64)
		if !ok || n <= 0 || n != float64(int64(n)) {
			return nil, fmt.Errorf("%s must contain positive integers, got %v", key, v)
		}
		out = append(out, int64(n))
	}
	return out, nil
}

// stringSlice reads a JSON array of strings.
func stringSlice(req mcp.CallToolRequest, key string) ([]string, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s must contain strings, got %v", key, v)
		}
		out = append(out, str)
	}
	return out, nil
}
