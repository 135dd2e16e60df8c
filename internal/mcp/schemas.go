package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexDirectoryTool returns the tool definition for index_directory
func indexDirectoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_directory",
		Description: "Analyze every file under a directory, deduplicate by content and copy unique files into the library",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the directory to index",
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, re-analyze files whose content is already indexed",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// getIndexStatusTool returns the tool definition for get_index_status
func getIndexStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_index_status",
		Description: "Report the number of indexed files and the most recent run",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// listRunsTool returns the tool definition for list_runs
func listRunsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_runs",
		Description: "List recent index runs, newest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of runs to return (1-100)",
					"default":     defaultRunsLimit,
					"minimum":     1,
					"maximum":     100,
				},
			},
		},
	}
}

// getFileTool returns the tool definition for get_file
func getFileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_file",
		Description: "Look up the metadata stored for a content hash",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"content_hash": map[string]interface{}{
					"type":        "string",
					"description": "Lowercase hex SHA-256 of the file content",
				},
			},
			Required: []string{"content_hash"},
		},
	}
}
