// Package store is the document-store boundary: an opaque
// Put(collection, document) sink plus the chat history the agent keeps per
// session. It is backed by SQLite through the pure-Go modernc driver.
package store
