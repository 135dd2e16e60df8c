package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shareandimprove/archivist/internal/indexer"
	"github.com/shareandimprove/archivist/internal/storage"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []indexer.Options
	stats *indexer.Statistics
	err   error
}

func (f *fakeRunner) Run(_ context.Context, opts indexer.Options) (*indexer.Statistics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, opts)
	return f.stats, f.err
}

func setupServer(t *testing.T, runner Runner) (*Server, *storage.SQLiteStorage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewServer(store, runner, zaptest.NewLogger(t)), store
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func decodeResult(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)

	var text string
	switch c := result.Content[0].(type) {
	case mcp.TextContent:
		text = c.Text
	case *mcp.TextContent:
		text = c.Text
	default:
		t.Fatalf("unexpected content type %T", c)
	}

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	return out
}

func requireMCPError(t *testing.T, err error, code int) *MCPError {
	t.Helper()
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "expected *MCPError, got %v", err)
	assert.Equal(t, code, mcpErr.Code)
	return mcpErr
}

func TestHandleIndexDirectory(t *testing.T) {
	runner := &fakeRunner{stats: &indexer.Statistics{
		RunID:         7,
		FilesSeen:     9,
		FilesIndexed:  2,
		FilesSkipped:  6,
		FilesFailed:   1,
		TypeStats:     map[string]int{"pdf": 5, "txt": 4},
		Duration:      1500 * time.Millisecond,
		ErrorMessages: []string{"a", "b", "c", "d", "e", "f"},
	}}
	s, _ := setupServer(t, runner)
	dir := t.TempDir()

	result, err := s.handleIndexDirectory(context.Background(), callRequest("index_directory", map[string]interface{}{
		"path":  dir,
		"force": true,
	}))
	require.NoError(t, err)

	out := decodeResult(t, result)
	assert.EqualValues(t, 7, out["run_id"])
	assert.EqualValues(t, 9, out["files_seen"])
	assert.EqualValues(t, 2, out["files_indexed"])
	assert.EqualValues(t, 6, out["files_skipped"])
	assert.EqualValues(t, 1, out["files_failed"])
	assert.EqualValues(t, 1500, out["duration_ms"])
	assert.Equal(t, true, out["completed"])
	assert.Len(t, out["errors"], maxErrorsShown)
	assert.EqualValues(t, 6, out["error_count"])

	require.Len(t, runner.calls, 1)
	assert.Equal(t, indexer.Options{InputDir: dir, Force: true}, runner.calls[0])
}

func TestHandleIndexDirectory_InvalidPath(t *testing.T) {
	runner := &fakeRunner{stats: &indexer.Statistics{}}
	s, _ := setupServer(t, runner)
	ctx := context.Background()

	_, err := s.handleIndexDirectory(ctx, callRequest("index_directory", map[string]interface{}{}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleIndexDirectory(ctx, callRequest("index_directory", map[string]interface{}{"path": "relative/dir"}))
	mcpErr := requireMCPError(t, err, ErrorCodeInvalidParams)
	assert.Equal(t, ErrPathNotAbsolute.Error(), mcpErr.Data.(map[string]interface{})["reason"])

	_, err = s.handleIndexDirectory(ctx, callRequest("index_directory", map[string]interface{}{"path": "/definitely/not/here"}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	assert.Empty(t, runner.calls)
}

func TestHandleIndexDirectory_RunErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, _ := setupServer(t, &fakeRunner{err: indexer.ErrRunInProgress})
	_, err := s.handleIndexDirectory(ctx, callRequest("index_directory", map[string]interface{}{"path": dir}))
	requireMCPError(t, err, ErrorCodeIndexingInProgress)

	s, _ = setupServer(t, &fakeRunner{err: errors.New("disk full")})
	_, err = s.handleIndexDirectory(ctx, callRequest("index_directory", map[string]interface{}{"path": dir}))
	requireMCPError(t, err, ErrorCodeInternalError)

	s, _ = setupServer(t, &fakeRunner{
		stats: &indexer.Statistics{RunID: 3, FilesSeen: 1},
		err:   context.Canceled,
	})
	result, err := s.handleIndexDirectory(ctx, callRequest("index_directory", map[string]interface{}{"path": dir}))
	require.NoError(t, err)
	out := decodeResult(t, result)
	assert.Equal(t, false, out["completed"])
	assert.Contains(t, out["error"], "canceled")
}

func TestHandleGetIndexStatus(t *testing.T) {
	s, store := setupServer(t, &fakeRunner{})
	ctx := context.Background()

	result, err := s.handleGetIndexStatus(ctx, callRequest("get_index_status", nil))
	require.NoError(t, err)
	out := decodeResult(t, result)
	assert.EqualValues(t, 0, out["indexed_files"])
	assert.Nil(t, out["latest_run"])

	require.NoError(t, store.UpsertFile(ctx, &storage.IndexedFile{
		ContentHash: strings.Repeat("a", 64),
		DisplayName: "notes",
		TypeTag:     "txt",
		Description: "Notes",
		Embedding:   []float32{0.1},
	}))
	ended := time.Now().UTC()
	run := &storage.IndexRun{
		EndedAt:      &ended,
		TotalSeen:    1,
		SuccessCount: 1,
		TypeStats:    map[string]int{"txt": 1},
	}
	require.NoError(t, store.CreateRun(ctx, run))

	result, err = s.handleGetIndexStatus(ctx, callRequest("get_index_status", nil))
	require.NoError(t, err)
	out = decodeResult(t, result)
	assert.EqualValues(t, 1, out["indexed_files"])

	latest, ok := out["latest_run"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, run.ID, latest["id"])
	assert.Equal(t, false, latest["running"])
	assert.EqualValues(t, 1, latest["success"])
	assert.NotEmpty(t, latest["ended_at"])
}

func TestHandleListRuns(t *testing.T) {
	s, store := setupServer(t, &fakeRunner{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.CreateRun(ctx, &storage.IndexRun{TotalSeen: i}))
	}

	result, err := s.handleListRuns(ctx, callRequest("list_runs", map[string]interface{}{"limit": float64(2)}))
	require.NoError(t, err)
	out := decodeResult(t, result)
	assert.EqualValues(t, 2, out["count"])

	runs := out["runs"].([]interface{})
	require.Len(t, runs, 2)
	assert.EqualValues(t, 2, runs[0].(map[string]interface{})["total_seen"], "newest first")
	assert.Equal(t, true, runs[0].(map[string]interface{})["running"])

	result, err = s.handleListRuns(ctx, callRequest("list_runs", nil))
	require.NoError(t, err)
	assert.EqualValues(t, 3, decodeResult(t, result)["count"])

	_, err = s.handleListRuns(ctx, callRequest("list_runs", map[string]interface{}{"limit": float64(0)}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleGetFile(t *testing.T) {
	s, store := setupServer(t, &fakeRunner{})
	ctx := context.Background()
	hash := strings.Repeat("b", 64)

	_, err := s.handleGetFile(ctx, callRequest("get_file", map[string]interface{}{"content_hash": "xyz"}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleGetFile(ctx, callRequest("get_file", map[string]interface{}{"content_hash": hash}))
	requireMCPError(t, err, ErrorCodeNotIndexed)

	require.NoError(t, store.UpsertFile(ctx, &storage.IndexedFile{
		ContentHash: hash,
		DisplayName: "Optics_Notes_2023",
		TypeTag:     "pdf",
		SizeBytes:   2048,
		Description: "Lecture notes on geometric optics.",
		Subject:     "Physics",
		Year:        "2023",
		Embedding:   []float32{0.1, 0.2, 0.3},
	}))

	result, err := s.handleGetFile(ctx, callRequest("get_file", map[string]interface{}{"content_hash": hash}))
	require.NoError(t, err)
	out := decodeResult(t, result)
	assert.Equal(t, "Optics_Notes_2023", out["display_name"])
	assert.Equal(t, "pdf", out["type"])
	assert.Equal(t, "Physics", out["subject"])
	assert.EqualValues(t, 3, out["embedding_dims"])
}

func TestNewServer_ListsTools(t *testing.T) {
	s, _ := setupServer(t, &fakeRunner{})

	resp := s.mcp.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	for _, name := range []string{"index_directory", "get_index_status", "list_runs", "get_file"} {
		assert.Contains(t, string(data), `"name":"`+name+`"`)
	}
}

func TestValidatePath(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, validatePath(dir))
	assert.ErrorIs(t, validatePath(""), ErrPathRequired)
	assert.ErrorIs(t, validatePath("docs"), ErrPathNotAbsolute)
	assert.ErrorIs(t, validatePath(dir+"/missing"), ErrPathNotFound)
}
