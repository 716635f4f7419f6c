// Package app wires the finpal process together.
//
// It owns the pieces that live for the whole process: the Hub that holds the
// current provider orchestrator, the receipt and chat store, the chat agent
// and the HTTP server. Run starts them in that order and tears them down in
// reverse when its context ends.
//
// A Hub can swap its orchestrator at runtime. When Settings.Watch is set,
// a ConfigWatcher reloads the provider file after it changes on disk:
//
//	hub := app.NewHub(path, orchestrator.Options{})
//	if err := hub.Load(); err != nil {
//		return err
//	}
//	defer hub.Shutdown()
//	tools, err := hub.Start(ctx)
package app
