// Package logging is the process-wide, subsystem-tagged logger used by finpal.
//
// Every record carries a subsystem attribute naming the component that
// emitted it (for example "Orchestrator" or "Provider-memory"), so that
// interleaved output from concurrently starting providers stays readable:
//
//	logging.Info("Orchestrator", "Starting %d of %d providers", n, total)
//	logging.Error("Provider-memory", err, "Handshake failed")
//
// Init should be called once by the application before any goroutines start
// logging. Until then records at Info and above go to stderr as text.
package logging
