package lesson

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/whiteboard-app/whiteboard-go/internal/rag"
)

// StoredLesson is one persisted row from the lessons table.
type StoredLesson struct {
	// ID is the row identifier.
	ID int64 `json:"id"`
	// Topic is the topic the lesson covers.
	Topic string `json:"topic"`
	// Lesson is the generated lesson text.
	Lesson string `json:"lesson"`
	// Quiz holds the parsed quiz questions.
	Quiz Quiz `json:"quiz"`
	// Chunks are the retrieved chunks the lesson was grounded on.
	Chunks []rag.RetrievedChunk `json:"retrieved_chunks"`
	// CreatedAt is when the lesson was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// Store persists generated lessons. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save persists a generated lesson and returns its row ID.
	Save(ctx context.Context, content *Content) (int64, error)
	// List returns the most recent n lessons, newest first. A non-empty
	// topic restricts the result to that topic.
	List(ctx context.Context, topic string, n int) ([]StoredLesson, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the lessons database.
// It resolves to ~/.whiteboard/lessons.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("lesson: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".whiteboard")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("lesson: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "lessons.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("lesson: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS lessons (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    topic        TEXT    NOT NULL,
    lesson       TEXT    NOT NULL,
    quiz         TEXT    NOT NULL,  -- JSON-encoded Quiz
    chunks       TEXT    NOT NULL,  -- JSON-encoded retrieved chunks
    created_at   INTEGER NOT NULL   -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_lessons_topic_created
    ON lessons (topic, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("lesson: migrate: %w", err)
	}
	return nil
}

// Save persists a generated lesson and returns its row ID.
func (s *SQLiteStore) Save(ctx context.Context, content *Content) (int64, error) {
	if content.Topic == "" || content.Lesson == "" {
		return 0, fmt.Errorf("lesson: save requires a topic and lesson text")
	}

	quizJSON, err := json.Marshal(content.Quiz)
	if err != nil {
		return 0, fmt.Errorf("lesson: encode quiz: %w", err)
	}
	chunksJSON, err := json.Marshal(content.Chunks)
	if err != nil {
		return 0, fmt.Errorf("lesson: encode chunks: %w", err)
	}

	const q = `INSERT INTO lessons (topic, lesson, quiz, chunks, created_at) VALUES (?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q, content.Topic, content.Lesson, string(quizJSON), string(chunksJSON), time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("lesson: save: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("lesson: save id: %w", err)
	}
	return id, nil
}

// List returns the most recent n lessons, newest first. A non-empty topic
// restricts the result to that topic.
func (s *SQLiteStore) List(ctx context.Context, topic string, n int) ([]StoredLesson, error) {
	const base = `SELECT id, topic, lesson, quiz, chunks, created_at FROM lessons`

	var rows *sql.Rows
	var err error
	if topic != "" {
		rows, err = s.db.QueryContext(ctx, base+` WHERE topic = ? ORDER BY created_at DESC, id DESC LIMIT ?`, topic, n)
	} else {
		rows, err = s.db.QueryContext(ctx, base+` ORDER BY created_at DESC, id DESC LIMIT ?`, n)
	}
	if err != nil {
		return nil, fmt.Errorf("lesson: list: %w", err)
	}
	defer rows.Close()

	var lessons []StoredLesson
	for rows.Next() {
		var l StoredLesson
		var quizJSON, chunksJSON string
		var ts int64
		if err := rows.Scan(&l.ID, &l.Topic, &l.Lesson, &quizJSON, &chunksJSON, &ts); err != nil {
			return nil, fmt.Errorf("lesson: list scan: %w", err)
		}
		if err := json.Unmarshal([]byte(quizJSON), &l.Quiz); err != nil {
			return nil, fmt.Errorf("lesson: decode quiz for row %d: %w", l.ID, err)
		}
		if err := json.Unmarshal([]byte(chunksJSON), &l.Chunks); err != nil {
			return nil, fmt.Errorf("lesson: decode chunks for row %d: %w", l.ID, err)
		}
		l.CreatedAt = time.Unix(ts, 0)
		lessons = append(lessons, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lesson: list rows: %w", err)
	}
	return lessons, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("lesson: close: %w", err)
	}
	return nil
}
