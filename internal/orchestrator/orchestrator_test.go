package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finpal/internal/config"
	"finpal/internal/provider"
	"finpal/internal/testing/mock"
	"finpal/internal/tools"
)

var testOptions = Options{
	Concurrency:         4,
	InitTimeout:         10 * time.Second,
	DiscoveryTimeout:    5 * time.Second,
	CallTimeout:         5 * time.Second,
	ShutdownGracePeriod: 300 * time.Millisecond,
	ClientVersion:       "test",
}

// providerConfig returns a mock provider whose tools answer
// "<provider>:<tool>".
func providerConfig(name string, behavior mock.Behavior, toolNames ...string) mock.Config {
	cfg := mock.Config{Name: name, Behavior: behavior}
	for _, tool := range toolNames {
		cfg.Tools = append(cfg.Tools, mock.ToolConfig{
			Name:        tool,
			Description: tool + " from " + name,
			Responses:   []mock.ToolResponse{{Response: name + ":" + tool}},
		})
	}
	return cfg
}

func essential(t *testing.T, cfg mock.Config) config.ServerDefinition {
	t.Helper()
	def := definition(t, cfg)
	def.Priority = config.PriorityEssential
	def.Essential = true
	return def
}

func definition(t *testing.T, cfg mock.Config) config.ServerDefinition {
	t.Helper()
	path, err := mock.WriteConfig(t.TempDir(), cfg)
	require.NoError(t, err)
	return mock.Definition(cfg.Name, path)
}

func newOrchestrator(t *testing.T, opts Options, defs ...config.ServerDefinition) *Orchestrator {
	t.Helper()
	o := New(opts)
	require.NoError(t, o.SetDefinitions(defs))
	t.Cleanup(o.Shutdown)
	return o
}

func toolNames(list []tools.Tool) []string {
	names := make([]string, 0, len(list))
	for _, tool := range list {
		names = append(names, tool.Name)
	}
	return names
}

func statusOf(t *testing.T, o *Orchestrator, name string) ProviderStatus {
	t.Helper()
	for _, status := range o.Providers() {
		if status.Name == name {
			return status
		}
	}
	t.Fatalf("no status for provider %s", name)
	return ProviderStatus{}
}

func waitForPIDFile(t *testing.T, path string) int {
	t.Helper()
	var pid int
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
		return err == nil
	}, 10*time.Second, 10*time.Millisecond)
	return pid
}

func TestStart_OnlyEssentialOrAutostartProvidersSpawn(t *testing.T) {
	dir := t.TempDir()
	deferredPID := filepath.Join(dir, "deferred.pid")
	importantPID := filepath.Join(dir, "important.pid")

	auto := definition(t, providerConfig("auto", mock.Behavior{}, "remember"))
	auto.Autostart = true

	deferred := definition(t, providerConfig("deferred", mock.Behavior{PIDFile: deferredPID}, "never"))

	important := definition(t, providerConfig("important", mock.Behavior{PIDFile: importantPID}, "later"))
	important.Priority = config.PriorityImportant

	o := newOrchestrator(t, testOptions,
		essential(t, providerConfig("core", mock.Behavior{}, "search")),
		auto, deferred, important,
	)

	list, err := o.Start(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"search", "remember"}, toolNames(list))

	assert.NoFileExists(t, deferredPID)
	assert.NoFileExists(t, importantPID)

	for _, name := range []string{"deferred", "important"} {
		status := statusOf(t, o, name)
		assert.Equal(t, OutcomeDeferred, status.Outcome, name)
		assert.Equal(t, provider.StateUninitialized, status.State, name)
	}
	assert.Equal(t, OutcomeReady, statusOf(t, o, "auto").Outcome)
	assert.Equal(t, 1, statusOf(t, o, "core").Tools)
}

func TestStart_OneFailingProviderDoesNotAbortBatch(t *testing.T) {
	broken := config.ServerDefinition{
		Name:      "broken",
		Command:   "finpal-no-such-command",
		Priority:  config.PriorityEssential,
		Essential: true,
	}

	o := newOrchestrator(t, testOptions,
		essential(t, providerConfig("alpha", mock.Behavior{}, "alpha_tool")),
		broken,
		essential(t, providerConfig("beta", mock.Behavior{}, "beta_tool")),
	)

	list, err := o.Start(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha_tool", "beta_tool"}, toolNames(list))

	status := statusOf(t, o, "broken")
	assert.Equal(t, OutcomeFailed, status.Outcome)
	assert.Equal(t, provider.StateClosed, status.State)
	assert.Contains(t, status.LastError, provider.ErrCommandNotFound.Error())

	res, err := o.Invoke(context.Background(), "beta_tool", nil)
	require.NoError(t, err)
	assert.Equal(t, "beta:beta_tool", res.Text)
}

func TestStart_EssentialValidAndOptionalInvalid(t *testing.T) {
	invalid := config.ServerDefinition{
		Name:     "B",
		Command:  "finpal-no-such-command",
		Priority: config.PriorityOptional,
	}

	o := newOrchestrator(t, testOptions,
		essential(t, providerConfig("A", mock.Behavior{}, "lookup", "summarize")),
		invalid,
	)

	list, err := o.Start(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"lookup", "summarize"}, toolNames(list))
	for _, tool := range list {
		assert.Equal(t, "A", tool.Provider)
	}

	status := statusOf(t, o, "B")
	assert.Equal(t, OutcomeDeferred, status.Outcome)
	assert.Equal(t, provider.StateUninitialized, status.State)
	assert.Empty(t, status.LastError)
}

func TestStart_DuplicateToolNamesFirstProviderWins(t *testing.T) {
	opts := testOptions
	opts.Concurrency = 1

	o := newOrchestrator(t, opts,
		essential(t, providerConfig("first", mock.Behavior{}, "quote")),
		essential(t, providerConfig("second", mock.Behavior{}, "quote", "history")),
	)

	list, err := o.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"quote", "history"}, toolNames(list))

	res, err := o.Invoke(context.Background(), "quote", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "first:quote", res.Text)

	assert.Equal(t, 1, statusOf(t, o, "first").Tools)
	assert.Equal(t, 1, statusOf(t, o, "second").Tools)
}

func TestStart_DiscoveryTimeoutTearsProviderDown(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "a.pid")
	opts := testOptions
	opts.DiscoveryTimeout = 500 * time.Millisecond

	o := newOrchestrator(t, opts,
		essential(t, providerConfig("A", mock.Behavior{HangOnList: true, PIDFile: pidFile}, "lookup")),
	)

	list, err := o.Start(context.Background())
	require.NoError(t, err, "zero tools is degraded, not failed")
	assert.Empty(t, list)

	pid := waitForPIDFile(t, pidFile)
	status := statusOf(t, o, "A")
	assert.Equal(t, OutcomeFailed, status.Outcome)
	assert.Equal(t, provider.StateClosed, status.State)
	assert.Contains(t, status.LastError, provider.ErrDiscoveryFailed.Error())

	o.Shutdown()
	assertProcessGone(t, pid)
}

func TestStart_IsIdempotent(t *testing.T) {
	o := newOrchestrator(t, testOptions,
		essential(t, providerConfig("core", mock.Behavior{}, "search")),
	)

	first, err := o.Start(context.Background())
	require.NoError(t, err)
	pid := statusOf(t, o, "core").PID
	require.NotZero(t, pid)

	second, err := o.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, toolNames(first), toolNames(second))
	assert.Equal(t, pid, statusOf(t, o, "core").PID)

	err = o.SetDefinitions(nil)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestStart_NoProvidersIsDegraded(t *testing.T) {
	o := newOrchestrator(t, testOptions)

	list, err := o.Start(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, o.Providers())
}

func TestStart_CancelTearsDownEveryStartedProvider(t *testing.T) {
	dir := t.TempDir()
	hangPID := filepath.Join(dir, "hang.pid")
	healthyPID := filepath.Join(dir, "healthy.pid")

	o := newOrchestrator(t, testOptions,
		essential(t, providerConfig("hang", mock.Behavior{HangOnInitialize: true, PIDFile: hangPID}, "never")),
		essential(t, providerConfig("healthy", mock.Behavior{PIDFile: healthyPID}, "search")),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		waitForPIDFile(t, hangPID)
		waitForPIDFile(t, healthyPID)
		cancel()
	}()

	list, err := o.Start(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, list)
	assert.Empty(t, o.Tools())

	for _, name := range []string{"hang", "healthy"} {
		status := statusOf(t, o, name)
		assert.Equal(t, provider.StateClosed, status.State, name)
		assert.Equal(t, OutcomeCancelled, status.Outcome, name)
	}
	assertProcessGone(t, waitForPIDFile(t, hangPID))
	assertProcessGone(t, waitForPIDFile(t, healthyPID))
}

func TestStart_RetriesAfterCancellation(t *testing.T) {
	dir := t.TempDir()
	hangPID := filepath.Join(dir, "hang.pid")
	healthyPID := filepath.Join(dir, "healthy.pid")
	opts := testOptions
	opts.InitTimeout = 3 * time.Second

	o := newOrchestrator(t, opts,
		essential(t, providerConfig("hang", mock.Behavior{HangOnInitialize: true, PIDFile: hangPID}, "never")),
		essential(t, providerConfig("healthy", mock.Behavior{PIDFile: healthyPID}, "search")),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		waitForPIDFile(t, hangPID)
		waitForPIDFile(t, healthyPID)
		cancel()
	}()
	_, err := o.Start(ctx)
	require.ErrorIs(t, err, context.Canceled)
	firstPID := waitForPIDFile(t, healthyPID)
	require.NoError(t, os.Remove(healthyPID))

	list, err := o.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"search"}, toolNames(list))

	res, err := o.Invoke(context.Background(), "search", nil)
	require.NoError(t, err)
	assert.Equal(t, "healthy:search", res.Text)

	status := statusOf(t, o, "healthy")
	assert.Equal(t, OutcomeReady, status.Outcome)
	assert.Equal(t, provider.StateReady, status.State)
	assert.NotEqual(t, firstPID, waitForPIDFile(t, healthyPID))
	assert.Equal(t, OutcomeFailed, statusOf(t, o, "hang").Outcome)
	assertProcessGone(t, firstPID)

	again, err := o.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, toolNames(list), toolNames(again))
}

func TestStart_SkipsProviderWithMissingScript(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake interpreter is a shell script")
	}
	bin := t.TempDir()
	marker := filepath.Join(t.TempDir(), "spawned")
	script := "#!/bin/sh\ntouch " + marker + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(bin, "node"), []byte(script), 0o755))
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))

	brave := config.ServerDefinition{
		Name:      "brave",
		Command:   "node",
		Args:      []string{filepath.Join(t.TempDir(), "dist", "index.js")},
		Priority:  config.PriorityEssential,
		Essential: true,
	}

	o := newOrchestrator(t, testOptions,
		essential(t, providerConfig("alpha", mock.Behavior{}, "alpha_tool")),
		brave,
		essential(t, providerConfig("beta", mock.Behavior{}, "beta_tool")),
	)

	list, err := o.Start(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha_tool", "beta_tool"}, toolNames(list))

	status := statusOf(t, o, "brave")
	assert.Equal(t, OutcomeFailed, status.Outcome)
	assert.Equal(t, provider.StateClosed, status.State)
	assert.Zero(t, status.PID)
	assert.Contains(t, status.LastError, provider.ErrModuleNotFound.Error())
	assert.NoFileExists(t, marker)
}

func TestShutdown_CancelsRunningStart(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "hang.pid")
	o := newOrchestrator(t, testOptions,
		essential(t, providerConfig("hang", mock.Behavior{HangOnInitialize: true, PIDFile: pidFile}, "never")),
	)

	errCh := make(chan error, 1)
	go func() {
		_, err := o.Start(context.Background())
		errCh <- err
	}()

	pid := waitForPIDFile(t, pidFile)
	o.Shutdown()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Shutdown")
	}
	assert.Equal(t, provider.StateClosed, statusOf(t, o, "hang").State)
	assertProcessGone(t, pid)
}

func TestShutdown_Twice(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "core.pid")
	o := newOrchestrator(t, testOptions,
		essential(t, providerConfig("core", mock.Behavior{PIDFile: pidFile}, "search")),
	)

	_, err := o.Start(context.Background())
	require.NoError(t, err)
	pid := waitForPIDFile(t, pidFile)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Shutdown()
		}()
	}
	wg.Wait()
	o.Shutdown()

	assertProcessGone(t, pid)
	assert.Equal(t, provider.StateClosed, statusOf(t, o, "core").State)
	assert.Empty(t, o.Tools())

	_, err = o.Start(context.Background())
	assert.ErrorIs(t, err, ErrShutdown)
	_, err = o.Invoke(context.Background(), "search", nil)
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestInvoke_UnknownTool(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "core.pid")
	o := newOrchestrator(t, testOptions,
		essential(t, providerConfig("core", mock.Behavior{PIDFile: pidFile}, "search")),
	)

	_, err := o.Invoke(context.Background(), "nonexistent_tool", map[string]interface{}{})
	require.Error(t, err)
	assert.True(t, IsUnknownTool(err))
	assert.NoFileExists(t, pidFile, "lookup must not spawn anything")

	_, err = o.Start(context.Background())
	require.NoError(t, err)

	_, err = o.Invoke(context.Background(), "nonexistent_tool", map[string]interface{}{})
	var unknown *UnknownToolError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nonexistent_tool", unknown.Name)
}

func TestInvoke_ProviderErrorSurfaces(t *testing.T) {
	cfg := mock.Config{
		Name: "receipts",
		Tools: []mock.ToolConfig{{
			Name:      "lookup",
			Responses: []mock.ToolResponse{{Error: "no receipt for {{ .merchant }}"}},
		}},
	}
	o := newOrchestrator(t, testOptions, essential(t, cfg))

	_, err := o.Start(context.Background())
	require.NoError(t, err)

	_, err = o.Invoke(context.Background(), "lookup", map[string]interface{}{"merchant": "acme"})
	var invErr *provider.InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, "no receipt for acme", invErr.Payload)
	assert.Equal(t, "receipts", invErr.Provider)
}

func TestLoadDefinitions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp_config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "mcpServers": {
    "memory": {"command": "npx", "args": ["-y", "@modelcontextprotocol/server-memory"]},
    "maps": {"command": "npx", "priority": "essential"},
    "yfinance": {"command": "uvx", "autostart": true}
  },
  "serverPriorities": {"essential": ["memory"]},
  "settings": {"concurrency": 2, "callTimeout": "3s"}
}`), 0o600))

	o := New(Options{ClientVersion: "v1.2.3"})
	t.Cleanup(o.Shutdown)

	file, err := o.LoadDefinitions(path)
	require.NoError(t, err)
	assert.Equal(t, path, file.Path)

	var names []string
	for _, status := range o.Providers() {
		names = append(names, status.Name)
		assert.Equal(t, OutcomePending, status.Outcome)
		assert.Equal(t, provider.StateUninitialized, status.State)
	}
	assert.Equal(t, []string{"maps", "memory", "yfinance"}, names)
	assert.True(t, statusOf(t, o, "memory").Essential)
	assert.True(t, statusOf(t, o, "yfinance").Autostart)

	assert.Equal(t, 2, o.opts.Concurrency)
	assert.Equal(t, 3*time.Second, o.opts.CallTimeout)
	assert.Equal(t, config.DefaultInitTimeout, o.opts.InitTimeout)
	assert.Equal(t, "v1.2.3", o.opts.ClientVersion)
}

func TestLoadDefinitions_Errors(t *testing.T) {
	o := New(testOptions)
	t.Cleanup(o.Shutdown)

	_, err := o.LoadDefinitions(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, config.ErrConfigNotFound)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"mcpServers": [`), 0o600))
	_, err = o.LoadDefinitions(bad)
	assert.True(t, config.IsParseError(err), "got %v", err)
}

func TestLoadDefinitions_AfterStartKeepsOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp_config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "mcpServers": {"memory": {"command": "npx"}},
  "settings": {"concurrency": 1, "callTimeout": "1s"}
}`), 0o600))

	o := newOrchestrator(t, testOptions)
	_, err := o.Start(context.Background())
	require.NoError(t, err)

	_, err = o.LoadDefinitions(path)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.Equal(t, testOptions.Concurrency, o.opts.Concurrency)
	assert.Equal(t, testOptions.CallTimeout, o.opts.CallTimeout)
	assert.Empty(t, o.Providers())

	o.Shutdown()
	_, err = o.LoadDefinitions(path)
	assert.ErrorIs(t, err, ErrShutdown)
	assert.Equal(t, testOptions.Concurrency, o.opts.Concurrency)
}

func TestSetDefinitions_RejectsDuplicateNames(t *testing.T) {
	o := New(testOptions)
	t.Cleanup(o.Shutdown)

	def := config.ServerDefinition{Name: "memory", Command: "npx"}
	err := o.SetDefinitions([]config.ServerDefinition{def, def})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory")
}
