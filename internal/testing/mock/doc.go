// Package mock provides a scriptable MCP tool provider for tests.
//
// A provider is described by a YAML file:
//
//	name: receipts
//	tools:
//	  - name: lookup
//	    description: Find a receipt by merchant
//	    input_schema:
//	      $schema: http://json-schema.org/draft-07/schema#
//	      properties:
//	        merchant: {type: string}
//	    responses:
//	      - condition: {merchant: acme}
//	        response: {total: 12.5}
//	      - error: "no receipt for {{ .merchant }}"
//	behavior:
//	  pid_file: /tmp/receipts.pid
//
// Well-behaved providers are served by the mcp-go stdio server. The
// behavior switches (hang_on_initialize, hang_on_list, ignore_shutdown,
// exit_immediately) select a minimal hand-driven JSON-RPC loop instead, so
// tests can model providers that hang or refuse to exit.
//
// Test binaries become providers by calling RunIfRequested from TestMain;
// Definition builds a ServerDefinition that re-executes the test binary in
// that mode. The same server backs the hidden `finpal mock-provider` command.
package mock
