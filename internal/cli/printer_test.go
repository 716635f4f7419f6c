package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"finpal/internal/orchestrator"
	"finpal/internal/provider"
	"finpal/internal/tools"
)

var sampleTools = []tools.Tool{
	{Name: "save_receipt", Description: "Store a receipt\nfor later", Provider: "receipts"},
	{Name: "search", Description: "Search the web", Provider: "brave-search"},
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputFormatTable, false},
		{"table", OutputFormatTable, false},
		{"JSON", OutputFormatJSON, false},
		{"yml", OutputFormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOutputFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrinter_ToolsTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, Options{}).Tools(sampleTools))

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "save_receipt")
	assert.Contains(t, out, "Store a receipt for later")
	assert.Contains(t, out, "brave-search")
	assert.Contains(t, out, "Total:")
}

func TestPrinter_ToolsNoHeadersQuiet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, Options{NoHeaders: true, Quiet: true}).Tools(sampleTools))

	out := buf.String()
	assert.NotContains(t, out, "DESCRIPTION")
	assert.NotContains(t, out, "Total:")
	assert.Contains(t, out, "search")
}

func TestPrinter_ToolsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, Options{}).Tools(nil))
	assert.Contains(t, buf.String(), "No tools available")

	buf.Reset()
	require.NoError(t, NewPrinter(&buf, Options{Format: OutputFormatJSON}).Tools(nil))
	assert.JSONEq(t, "[]", buf.String())
}

func TestPrinter_ToolsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, Options{Format: OutputFormatJSON}).Tools(sampleTools[:1]))

	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "save_receipt", got[0]["name"])
	assert.Equal(t, "receipts", got[0]["provider"])
}

func TestPrinter_ProvidersYAML(t *testing.T) {
	var buf bytes.Buffer
	statuses := []orchestrator.ProviderStatus{{
		Name:    "memory",
		Outcome: orchestrator.OutcomeReady,
		State:   provider.StateReady,
		PID:     42,
		Tools:   3,
	}}
	require.NoError(t, NewPrinter(&buf, Options{Format: OutputFormatYAML}).Providers(statuses))

	var got []map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "memory", got[0]["name"])
	assert.Equal(t, "ready", got[0]["outcome"])
	assert.Equal(t, 42, got[0]["pid"])
}

func TestPrinter_ProvidersTable(t *testing.T) {
	var buf bytes.Buffer
	statuses := []orchestrator.ProviderStatus{
		{Name: "memory", Outcome: orchestrator.OutcomeReady, PID: 42, Tools: 3},
		{Name: "yfinance", Outcome: orchestrator.OutcomeDeferred},
		{Name: "maps", Outcome: orchestrator.OutcomeFailed, LastError: "command not found"},
	}
	require.NoError(t, NewPrinter(&buf, Options{}).Providers(statuses))

	out := buf.String()
	assert.Contains(t, out, "memory")
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "deferred")
	assert.Contains(t, out, "command not found")
}

func TestPrinter_Result(t *testing.T) {
	var buf bytes.Buffer
	res := &tools.Result{Text: "saved 1 receipt"}
	require.NoError(t, NewPrinter(&buf, Options{}).Result(res))
	assert.Equal(t, "saved 1 receipt\n", buf.String())

	buf.Reset()
	require.NoError(t, NewPrinter(&buf, Options{Format: OutputFormatJSON}).Result(res))
	assert.JSONEq(t, `{"text":"saved 1 receipt"}`, buf.String())
}
