// Package server exposes finpal over HTTP.
//
// The JSON API under /api is what the web frontend talks to: health,
// connect, tool listing and invocation, chat, provider status and the
// receipts sink. The aggregated tools are also re-exported as a single MCP
// endpoint at /mcp (streamable HTTP), so other MCP clients can use every
// started provider through one connection.
//
// The server holds explicit handles to its backends; there is no package
// level state.
package server
