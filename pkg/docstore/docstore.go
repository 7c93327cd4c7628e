// Package docstore persists to-do documents and streams per-owner result
// sets to subscribers.
//
// Every subscriber receives the full current set of its owner's documents
// once on subscribe and again after every change touching that owner.
// Deliveries are coalesced: a burst of writes may produce a single delivery
// carrying the latest state.
package docstore

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("docstore: closed")

// Todo is a stored to-do document
type Todo struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	CreatedAt  int64  `json:"createdAt"`
	TimeString string `json:"timeString"`
	UID        string `json:"uid"`
}

// NewTodo is the payload of a create
type NewTodo struct {
	Text       string
	CreatedAt  int64
	TimeString string
	UID        string
}

// Store is a document store scoped by owner uid
type Store interface {
	// Create stores a document and returns its assigned id
	Create(ctx context.Context, todo NewTodo) (string, error)

	// Delete removes the owner's document. Deleting a missing document is
	// not an error.
	Delete(ctx context.Context, owner, id string) error

	// List returns the owner's documents, oldest first
	List(ctx context.Context, owner string) ([]Todo, error)

	// Subscribe streams the owner's result set until cancel is called or ctx
	// ends. onError receives query failures; the subscription stays open.
	Subscribe(ctx context.Context, owner string, onChange func([]Todo), onError func(error)) (cancel func(), err error)

	// Ping checks connectivity
	Ping(ctx context.Context) error

	// Close releases resources and ends all subscriptions
	Close() error
}

const schemaTodos = `
CREATE TABLE IF NOT EXISTS todos (
	id          TEXT PRIMARY KEY,
	text        TEXT NOT NULL,
	created_at  BIGINT NOT NULL,
	time_string TEXT NOT NULL,
	uid         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_todos_uid_created ON todos(uid, created_at);
`
