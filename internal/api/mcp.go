package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Retriever Searcher
	DefaultK  int
	MaxK      int
	Version   string
}

// NewMCPServer creates an MCP server exposing case retrieval as a tool and
// corpus statistics as a resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.DefaultK <= 0 {
		deps.DefaultK = 10
	}
	if deps.MaxK <= 0 {
		deps.MaxK = DefaultMaxK
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	s := server.NewMCPServer(
		"scr",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("scr: similar case retrieval over a corpus of legal cases."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("retrieve_similar_cases",
			mcp.WithDescription("Find the legal cases most similar to a free-text description. Returns at most k distinct cases, best first, each with case_id, score and a short text sample."),
			mcp.WithString("query", mcp.Description("Description of the facts or legal question"), mcp.Required()),
			mcp.WithNumber("k", mcp.Description(fmt.Sprintf("Maximum number of cases to return (default %d)", deps.DefaultK))),
		),
		mcpRetrieve(deps),
	)

	s.AddTool(
		mcp.NewTool("get_case_row",
			mcp.WithDescription("Return the stored metadata and text for one embedding row."),
			mcp.WithNumber("row", mcp.Description("Zero-based row index"), mcp.Required()),
		),
		mcpRow(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"corpus://stats",
			"Corpus Statistics",
			mcp.WithResourceDescription("Row and case counts, embedding dimension, metric and encoder"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

func mcpRetrieve(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		k := req.GetInt("k", deps.DefaultK)
		if k > deps.MaxK {
			return mcpError(fmt.Sprintf("k must be at most %d", deps.MaxK)), nil
		}

		results, err := deps.Retriever.Retrieve(ctx, query, k)
		if err != nil {
			return mcpError(fmt.Sprintf("retrieve failed: %v", err)), nil
		}
		if len(results) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRow(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		row, err := req.RequireInt("row")
		if err != nil {
			return mcpError("row is required"), nil
		}
		d, err := deps.Retriever.Row(row)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		b, err := json.Marshal(d)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal row: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Retriever.Stats())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stats: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
