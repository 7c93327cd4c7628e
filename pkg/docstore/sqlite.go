package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite is a Store on a local SQLite database. Change notifications are
// in-process only.
type SQLite struct {
	db     *sql.DB
	hub    *hub
	closed atomic.Bool
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaTodos); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &SQLite{db: db}
	s.hub = newHub(s.List)
	return s, nil
}

// Create implements Store
func (s *SQLite) Create(ctx context.Context, todo NewTodo) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO todos (id, text, created_at, time_string, uid) VALUES (?, ?, ?, ?, ?)`,
		id, todo.Text, todo.CreatedAt, todo.TimeString, todo.UID)
	if err != nil {
		return "", fmt.Errorf("insert todo: %w", err)
	}
	s.hub.notify(todo.UID)
	return id, nil
}

// Delete implements Store
func (s *SQLite) Delete(ctx context.Context, owner, id string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE id = ? AND uid = ?`, id, owner)
	if err != nil {
		return fmt.Errorf("delete todo %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.hub.notify(owner)
	}
	return nil
}

// List implements Store
func (s *SQLite) List(ctx context.Context, owner string) ([]Todo, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, created_at, time_string, uid FROM todos WHERE uid = ? ORDER BY created_at, id`, owner)
	if err != nil {
		return nil, fmt.Errorf("query todos: %w", err)
	}
	defer rows.Close()

	todos := []Todo{}
	for rows.Next() {
		var t Todo
		if err := rows.Scan(&t.ID, &t.Text, &t.CreatedAt, &t.TimeString, &t.UID); err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		todos = append(todos, t)
	}
	return todos, rows.Err()
}

// Subscribe implements Store
func (s *SQLite) Subscribe(ctx context.Context, owner string, onChange func([]Todo), onError func(error)) (func(), error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return s.hub.subscribe(ctx, owner, onChange, onError)
}

// Ping implements Store
func (s *SQLite) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

// Close implements Store
func (s *SQLite) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.hub.close()
	return s.db.Close()
}

// DB returns the underlying database
func (s *SQLite) DB() *sql.DB {
	return s.db
}
