// Package logging configures slog for amanmem: JSON records written to a
// size-rotated file under ~/.amanmem/logs, optionally mirrored to stderr.
//
// The MCP server must never write to stdout, so it logs to file only.
package logging
