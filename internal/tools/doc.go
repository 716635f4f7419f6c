// Package tools holds the uniform tool representation handed to the agent
// and the adapter that produces it from provider-published descriptors.
//
// Adapt is pure: it sanitizes the parameter schema and binds the tool to its
// owning provider through the Invoker interface, using the provider-local
// tool name. It performs no I/O.
package tools
