// Package mcp exposes the archive over the Model Context Protocol.
//
// The server speaks JSON-RPC 2.0 on stdio and offers four tools:
//   - index_directory: run the indexing pipeline over a directory
//   - get_index_status: count indexed files and show the latest run
//   - list_runs: list recent run audit records
//   - get_file: look up stored metadata by content hash
//
// Start it with:
//
//	archivist mcp --db library/index.db --output library
//
// Logs go to stderr; stdout carries protocol traffic only.
//
// Tool errors are returned as *MCPError values carrying a JSON-RPC code:
// -32602 for invalid parameters, -32603 for internal failures, -32002 when
// a run is already in progress and -32003 for unknown content hashes.
package mcp
