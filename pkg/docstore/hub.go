package docstore

import (
	"context"
	"sync"
)

type queryFunc func(ctx context.Context, owner string) ([]Todo, error)

// hub fans change signals out to per-owner subscriptions. Each subscription
// runs its own goroutine re-querying the owner's documents on signal, so a
// slow subscriber never blocks writers.
type hub struct {
	query queryFunc

	mu     sync.Mutex
	subs   map[string]map[uint64]*subscription
	nextID uint64
	closed bool
}

type subscription struct {
	id       uint64
	owner    string
	signal   chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	onChange func([]Todo)
	onError  func(error)
}

func newHub(query queryFunc) *hub {
	return &hub{
		query: query,
		subs:  make(map[string]map[uint64]*subscription),
	}
}

func (h *hub) subscribe(ctx context.Context, owner string, onChange func([]Todo), onError func(error)) (func(), error) {
	if onChange == nil {
		onChange = func([]Todo) {}
	}
	if onError == nil {
		onError = func(error) {}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.nextID++
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		id:       h.nextID,
		owner:    owner,
		signal:   make(chan struct{}, 1),
		ctx:      subCtx,
		cancel:   cancel,
		onChange: onChange,
		onError:  onError,
	}
	if h.subs[owner] == nil {
		h.subs[owner] = make(map[uint64]*subscription)
	}
	h.subs[owner][sub.id] = sub
	h.mu.Unlock()

	sub.signal <- struct{}{} // initial snapshot
	go h.run(sub)

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(sub) })
	}, nil
}

func (h *hub) run(sub *subscription) {
	defer h.remove(sub)
	for {
		select {
		case <-sub.ctx.Done():
			return
		case <-sub.signal:
			todos, err := h.query(sub.ctx, sub.owner)
			if sub.ctx.Err() != nil {
				return
			}
			if err != nil {
				sub.onError(err)
				continue
			}
			sub.onChange(todos)
		}
	}
}

func (h *hub) remove(sub *subscription) {
	sub.cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	if owned, ok := h.subs[sub.owner]; ok {
		delete(owned, sub.id)
		if len(owned) == 0 {
			delete(h.subs, sub.owner)
		}
	}
}

// notify signals every subscription of owner
func (h *hub) notify(owner string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs[owner] {
		select {
		case sub.signal <- struct{}{}:
		default: // a refresh is already pending
		}
	}
}

// notifyAll signals every subscription
func (h *hub) notifyAll() {
	h.mu.Lock()
	owners := make([]string, 0, len(h.subs))
	for owner := range h.subs {
		owners = append(owners, owner)
	}
	h.mu.Unlock()
	for _, owner := range owners {
		h.notify(owner)
	}
}

// count returns the number of live subscriptions
func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, owned := range h.subs {
		n += len(owned)
	}
	return n
}

func (h *hub) close() {
	h.mu.Lock()
	h.closed = true
	var all []*subscription
	for _, owned := range h.subs {
		for _, sub := range owned {
			all = append(all, sub)
		}
	}
	h.mu.Unlock()
	for _, sub := range all {
		sub.cancel()
	}
}
