// Package provider manages one tool-provider subprocess speaking MCP over
// stdio.
//
// A Connection owns the child process, its pipes, the mcp-go client layered
// on them and a table of in-flight calls. Its lifecycle is
//
//	Uninitialized -> Initializing -> Ready -> Closed
//	Uninitialized|Initializing -> Failed -> Closed
//
// Initialize never leaves a half-open process behind: every failure path
// runs Cleanup before returning. Cleanup is idempotent and safe to call from
// any state, including concurrently with an Initialize that is still waiting
// for the handshake.
//
// Teardown closes stdin first and gives the provider a grace period to exit
// on its own, then signals the whole process group (SIGTERM, then SIGKILL)
// so that wrappers such as npx do not leave their children running.
package provider
