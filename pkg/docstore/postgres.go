package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// NotifyChannel is the LISTEN/NOTIFY channel carrying the uid of every owner
// whose documents changed
const NotifyChannel = "todos_changed"

// Postgres is a Store on PostgreSQL. Queries go through a pgx pool; a lib/pq
// listener receives change notifications from every process sharing the
// database.
type Postgres struct {
	pool     *pgxpool.Pool
	listener *pq.Listener
	hub      *hub
	closed   atomic.Bool
	done     chan struct{}
	wg       sync.WaitGroup
}

// OpenPostgres connects to dsn, applies the schema and starts listening
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaTodos); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	listener := pq.NewListener(dsn, 100*time.Millisecond, 10*time.Second, nil)
	if err := listener.Listen(NotifyChannel); err != nil {
		listener.Close()
		pool.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", NotifyChannel, err)
	}

	p := &Postgres{
		pool:     pool,
		listener: listener,
		done:     make(chan struct{}),
	}
	p.hub = newHub(p.List)

	p.wg.Add(1)
	go p.listen()
	return p, nil
}

func (p *Postgres) listen() {
	defer p.wg.Done()
	keepalive := time.NewTicker(90 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-p.done:
			return
		case n, ok := <-p.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// reconnected: notifications may have been lost
				p.hub.notifyAll()
				continue
			}
			p.hub.notify(n.Extra)
		case <-keepalive.C:
			go func() { _ = p.listener.Ping() }()
		}
	}
}

// Create implements Store
func (p *Postgres) Create(ctx context.Context, todo NewTodo) (string, error) {
	if p.closed.Load() {
		return "", ErrClosed
	}
	id := uuid.NewString()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO todos (id, text, created_at, time_string, uid) VALUES ($1, $2, $3, $4, $5)`,
		id, todo.Text, todo.CreatedAt, todo.TimeString, todo.UID)
	if err != nil {
		return "", fmt.Errorf("insert todo: %w", err)
	}
	p.changed(ctx, todo.UID)
	return id, nil
}

// Delete implements Store
func (p *Postgres) Delete(ctx context.Context, owner, id string) error {
	if p.closed.Load() {
		return ErrClosed
	}
	tag, err := p.pool.Exec(ctx, `DELETE FROM todos WHERE id = $1 AND uid = $2`, id, owner)
	if err != nil {
		return fmt.Errorf("delete todo %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		p.changed(ctx, owner)
	}
	return nil
}

// changed refreshes local subscribers and tells other processes
func (p *Postgres) changed(ctx context.Context, owner string) {
	p.hub.notify(owner)
	_, _ = p.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, owner)
}

// List implements Store
func (p *Postgres) List(ctx context.Context, owner string) ([]Todo, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, text, created_at, time_string, uid FROM todos WHERE uid = $1 ORDER BY created_at, id`, owner)
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
func (p *Postgres) Subscribe(ctx context.Context, owner string, onChange func([]Todo), onError func(error)) (func(), error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	return p.hub.subscribe(ctx, owner, onChange, onError)
}

// Ping implements Store
func (p *Postgres) Ping(ctx context.Context) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return errors.Join(p.pool.Ping(ctx), p.listener.Ping())
}

// Close implements Store
func (p *Postgres) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.done)
	p.hub.close()
	err := p.listener.Close()
	p.wg.Wait()
	p.pool.Close()
	return err
}
