// Package orchestrator owns the configured set of tool providers.
//
// An Orchestrator is built from server definitions, starts the providers
// that are essential or marked for autostart, aggregates their tools into a
// single name-indexed registry and routes invocations to the owning
// provider. Shutdown tears down every provider regardless of its state.
//
// Providers start concurrently, bounded by Options.Concurrency. A provider
// that fails to start or to list its tools is torn down and skipped; the
// others are unaffected. An orchestrator with zero tools is degraded, not
// failed.
//
// Typical use:
//
//	orch := orchestrator.New(orchestrator.Options{})
//	if _, err := orch.LoadDefinitions(path); err != nil {
//		return err
//	}
//	toolList, err := orch.Start(ctx)
//	defer orch.Shutdown()
//	res, err := orch.Invoke(ctx, "search", map[string]interface{}{"q": "coffee"})
package orchestrator
