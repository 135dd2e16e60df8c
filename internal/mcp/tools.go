package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/shareandimprove/archivist/internal/indexer"
	"github.com/shareandimprove/archivist/internal/storage"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotIndexed         = -32003 // Content hash not indexed
)

const (
	defaultRunsLimit = 10
	maxRunsLimit     = 100
	maxErrorsShown   = 5
)

var contentHashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// handleIndexDirectory handles the index_directory tool invocation
func (s *Server) handleIndexDirectory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	force := getBoolDefault(args, "force", false)

	stats, err := s.runner.Run(ctx, indexer.Options{InputDir: path, Force: force})
	if errors.Is(err, indexer.ErrRunInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "an index run is already in progress", nil)
	}
	if err != nil && stats == nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"run_id":        stats.RunID,
		"files_seen":    stats.FilesSeen,
		"files_indexed": stats.FilesIndexed,
		"files_skipped": stats.FilesSkipped,
		"files_failed":  stats.FilesFailed,
		"type_stats":    stats.TypeStats,
		"duration_ms":   stats.Duration.Milliseconds(),
		"completed":     err == nil,
	}
	if err != nil {
		// The walk was interrupted but the run row is finalized.
		response["error"] = err.Error()
	}

	if len(stats.ErrorMessages) > 0 {
		errorCount := len(stats.ErrorMessages)
		if errorCount > maxErrorsShown {
			response["errors"] = stats.ErrorMessages[:maxErrorsShown]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	s.logger.Info("index_directory finished",
		zap.String("path", path),
		zap.Int64("run_id", stats.RunID),
		zap.Bool("force", force))

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetIndexStatus handles the get_index_status tool invocation
func (s *Server) handleGetIndexStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	count, err := s.storage.CountFiles(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to count files", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed_files": count,
	}

	latest, err := s.storage.LatestRun(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		response["latest_run"] = nil
		response["message"] = "No index runs yet. Use index_directory to index a directory."
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "failed to get latest run", map[string]interface{}{
			"error": err.Error(),
		})
	default:
		response["latest_run"] = runJSON(latest)
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListRuns handles the list_runs tool invocation
func (s *Server) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	limit := getIntDefault(args, "limit", defaultRunsLimit)
	if limit < 1 || limit > maxRunsLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	runs, err := s.storage.ListRuns(ctx, limit)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list runs", map[string]interface{}{
			"error": err.Error(),
		})
	}

	items := make([]map[string]interface{}, len(runs))
	for i, run := range runs {
		items[i] = runJSON(run)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"runs":  items,
		"count": len(items),
	})), nil
}

// handleGetFile handles the get_file tool invocation
func (s *Server) handleGetFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	hash := getStringDefault(args, "content_hash", "")
	if !contentHashPattern.MatchString(hash) {
		return nil, newMCPError(ErrorCodeInvalidParams, "content_hash must be 64 lowercase hex characters", map[string]interface{}{
			"param": "content_hash",
			"value": hash,
		})
	}

	file, err := s.storage.GetFile(ctx, hash)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeNotIndexed, "content not indexed", map[string]interface{}{
			"content_hash": hash,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get file", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"content_hash":      file.ContentHash,
		"display_name":      file.DisplayName,
		"type":              file.TypeTag,
		"size_bytes":        file.SizeBytes,
		"modified_at":       time.Unix(file.ModifiedAt, 0).UTC().Format(time.RFC3339),
		"description":       file.Description,
		"short_description": file.ShortDescription,
		"subject":           file.Subject,
		"year":              file.Year,
		"keywords":          file.Keywords,
		"embedding_dims":    len(file.Embedding),
		"indexed_at":        file.IndexedAt.Format(time.RFC3339),
	})), nil
}

// Helper functions

func runJSON(run *storage.IndexRun) map[string]interface{} {
	out := map[string]interface{}{
		"id":         run.ID,
		"started_at": run.StartedAt.Format(time.RFC3339),
		"running":    run.Running(),
		"total_seen": run.TotalSeen,
		"success":    run.SuccessCount,
		"failed":     run.FailedCount,
		"skipped":    run.SkippedCount,
		"type_stats": run.TypeStats,
	}
	if run.EndedAt != nil {
		out["ended_at"] = run.EndedAt.Format(time.RFC3339)
	}
	return out
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks if a path is an absolute, readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
