package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"finpal/pkg/logging"

	_ "modernc.org/sqlite"
)

// CollectionReceipts holds receipts posted to the HTTP API.
const CollectionReceipts = "receipts"

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	collection TEXT NOT NULL,
	body BLOB NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_collection
ON documents(collection, seq);

CREATE TABLE IF NOT EXISTS messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_session
ON messages(session_id, seq);`

// ErrNotFound is returned by Get for a missing document.
var ErrNotFound = errors.New("document not found")

// Document is one stored JSON document.
type Document struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Body       json.RawMessage `json:"body"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Message is one turn of a chat session.
type Message struct {
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists documents and chat history in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store open: %w", err)
	}
	// ":memory:" databases are per connection.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store set WAL mode: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store create schema: %w", err)
	}

	logging.Debug("Store", "Opened database %s", path)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores document, which must marshal to JSON, in collection and
// returns the new document id.
func (s *Store) Put(ctx context.Context, collection string, document interface{}) (string, error) {
	if collection == "" {
		return "", errors.New("collection is required")
	}

	var body []byte
	switch v := document.(type) {
	case json.RawMessage:
		if !json.Valid(v) {
			return "", errors.New("document is not valid JSON")
		}
		body = v
	default:
		var err error
		if body, err = json.Marshal(document); err != nil {
			return "", fmt.Errorf("encode document: %w", err)
		}
	}

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO documents (id, collection, body, created_at) VALUES (?, ?, ?, ?)",
		id, collection, body, formatTime(time.Now()),
	)
	if err != nil {
		return "", fmt.Errorf("insert document into %s: %w", collection, err)
	}
	return id, nil
}

// Get returns the document with id from collection.
func (s *Store) Get(ctx context.Context, collection, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, collection, body, created_at FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return doc, err
}

// List returns up to limit documents of collection, newest first. A limit
// of zero or less returns all of them.
func (s *Store) List(ctx context.Context, collection string, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, collection, body, created_at FROM documents WHERE collection = ? ORDER BY seq DESC LIMIT ?",
		collection, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// AppendMessage adds one turn to a chat session.
func (s *Store) AppendMessage(ctx context.Context, sessionID, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)",
		sessionID, role, content, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("append message to session %s: %w", sessionID, err)
	}
	return nil
}

// Messages returns the last limit turns of a session in chronological
// order.
func (s *Store) Messages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, role, content, created_at FROM (
	SELECT seq, session_id, role, content, created_at FROM messages
	WHERE session_id = ? ORDER BY seq DESC LIMIT ?
) ORDER BY seq ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", sessionID, err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var (
			m       Message
			created string
		)
		if err := rows.Scan(&m.SessionID, &m.Role, &m.Content, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(created)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row scanner) (*Document, error) {
	var (
		doc     Document
		body    []byte
		created string
	)
	if err := row.Scan(&doc.ID, &doc.Collection, &body, &created); err != nil {
		return nil, err
	}
	doc.Body = json.RawMessage(body)
	doc.CreatedAt = parseTime(created)
	return &doc, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
