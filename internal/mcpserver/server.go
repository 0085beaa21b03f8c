// Package mcpserver exposes one authoring session's adventure tools over the
// Model Context Protocol, so an external agent can drive the pipeline.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"forge/internal/apperr"
	"forge/internal/snapshot"
	"forge/internal/tools"
)

// Session is the slice of an authoring session the server needs.
type Session interface {
	ID() string
	View() snapshot.Snapshot
	Busy() bool
	Registry() *tools.Registry
}

// SnapshotURI returns the resource URI of a session snapshot.
func SnapshotURI(id string) string {
	return "forge://sessions/" + id + "/snapshot"
}

// New 构建 MCP 服务器
// New builds an MCP server with one tool per adventure tool and a readable
// snapshot resource for s.
func New(s Session, version string, logger *log.Logger) *mcp.Server {
	if logger == nil {
		logger = log.Default()
	}
	server := mcp.NewServer(&mcp.Implementation{Name: "forge", Version: version}, nil)

	reg := s.Registry()
	for _, def := range reg.Definitions() {
		name := def.Function.Name
		schema := def.Function.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		server.AddTool(&mcp.Tool{
			Name:        name,
			Description: def.Function.Description,
			InputSchema: schema,
		}, toolHandler(s, name, logger))
	}

	uri := SnapshotURI(s.ID())
	server.AddResource(&mcp.Resource{
		Name:        "session_snapshot",
		Title:       "Session Snapshot",
		Description: "Stage, dials and pipeline state of the authoring session",
		MIMEType:    "application/json",
		URI:         uri,
	}, snapshotHandler(s, uri))
	return server
}

func toolHandler(s Session, name string, logger *log.Logger) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if s.Busy() {
			return failure(apperr.New(apperr.KindBusy, "a chat turn is running for this session")), nil
		}
		var args json.RawMessage
		if req != nil && req.Params != nil {
			args = req.Params.Arguments
		}
		out, err := s.Registry().Execute(ctx, name, args)
		if err != nil {
			logger.Printf("mcp tool %s: %v", name, err)
			return failure(err), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: out}},
		}, nil
	}
}

func failure(err error) *mcp.CallToolResult {
	data, _ := json.Marshal(map[string]any{
		"ok":    false,
		"code":  apperr.KindOf(err),
		"error": err.Error(),
	})
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		IsError: true,
	}
}

func snapshotHandler(s Session, uri string) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		data, err := snapshot.Encode(s.View())
		if err != nil {
			return nil, fmt.Errorf("encode snapshot: %w", err)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/json",
					Text:     string(data),
				},
			},
		}, nil
	}
}

// Run serves server over stdio until ctx is cancelled or the client hangs up.
func Run(ctx context.Context, server *mcp.Server) error {
	return RunWithTransport(ctx, server, &mcp.StdioTransport{})
}

// RunWithTransport serves server over t.
func RunWithTransport(ctx context.Context, server *mcp.Server, t mcp.Transport) error {
	if err := server.Run(ctx, t); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
