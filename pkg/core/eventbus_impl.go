package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/fluxorio/todochaos/pkg/core/concurrency"
)

// defaultMailboxSize bounds how far a slow consumer may lag before it drops
const defaultMailboxSize = 100

// eventBus implements EventBus
type eventBus struct {
	consumers map[string][]*consumer
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	vertx     Vertx // used to build the FluxorContext handed to handlers
	logger    Logger
	closed    bool
}

// NewEventBus creates a new event bus
func NewEventBus(ctx context.Context, vertx Vertx) EventBus {
	ctx, cancel := context.WithCancel(ctx)
	return &eventBus{
		consumers: make(map[string][]*consumer),
		ctx:       ctx,
		cancel:    cancel,
		vertx:     vertx,
		logger:    NewDefaultLogger().WithFields(map[string]interface{}{"component": "eventbus"}),
	}
}

func (eb *eventBus) Publish(address string, body interface{}) error {
	return eb.PublishContext(context.Background(), address, body)
}

func (eb *eventBus) PublishContext(ctx context.Context, address string, body interface{}) error {
	if err := ValidateAddress(address); err != nil {
		return err
	}

	// []byte bodies are sent as-is, anything else is JSON encoded
	jsonBody, err := eb.encodeBody(body)
	if err != nil {
		return fmt.Errorf("encode body failed: %w", err)
	}

	eb.mu.RLock()
	if eb.closed {
		eb.mu.RUnlock()
		return ErrBusClosed
	}
	consumers := append([]*consumer(nil), eb.consumers[address]...)
	eb.mu.RUnlock()

	headers := map[string]string{HeaderAddress: address}
	if id := GetRequestID(ctx); id != "" {
		headers[HeaderRequestID] = id
	}
	msg := newMessage(jsonBody, headers)

	for _, c := range consumers {
		if err := c.mailbox.Send(msg); err != nil {
			// Non-blocking: a busy or closing consumer misses this message
			continue
		}
	}

	return nil
}

func (eb *eventBus) Consumer(address string) Consumer {
	// Fail-fast: validate address immediately
	if err := ValidateAddress(address); err != nil {
		FailFast(err)
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	var fluxorCtx FluxorContext
	if eb.vertx != nil {
		fluxorCtx = newContext(eb.ctx, eb.vertx)
	}

	c := &consumer{
		address:  address,
		mailbox:  concurrency.NewBoundedMailbox(defaultMailboxSize),
		eventBus: eb,
		ctx:      fluxorCtx,
	}

	if eb.closed {
		c.mailbox.Close()
		return c
	}
	eb.consumers[address] = append(eb.consumers[address], c)
	return c
}

func (eb *eventBus) Close() error {
	eb.cancel()
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, consumers := range eb.consumers {
		for _, c := range consumers {
			c.mailbox.Close()
		}
	}
	eb.consumers = make(map[string][]*consumer)
	eb.closed = true
	return nil
}

// consumer implements Consumer
type consumer struct {
	address  string
	mailbox  concurrency.Mailbox
	handler  MessageHandler
	eventBus *eventBus
	ctx      FluxorContext
	started  bool
	mu       sync.Mutex
}

func (c *consumer) Handler(handler MessageHandler) Consumer {
	// Fail-fast: handler cannot be nil
	if handler == nil {
		FailFast(&Error{Code: "INVALID_HANDLER", Message: "handler cannot be nil"})
	}

	c.mu.Lock()
	c.handler = handler
	start := !c.started
	c.started = true
	c.mu.Unlock()

	if start {
		go c.processMessages()
	}
	return c
}

func (c *consumer) Address() string {
	return c.address
}

func (c *consumer) processMessages() {
	for {
		msg, err := c.mailbox.Receive(c.eventBus.ctx)
		if err != nil {
			// Mailbox closed or bus context cancelled
			return
		}

		message, ok := msg.(Message)
		if !ok {
			continue
		}

		c.mu.Lock()
		handler := c.handler
		c.mu.Unlock()

		c.dispatch(handler, message)
	}
}

// dispatch runs one handler call with panic isolation so a bad message
// cannot stop the delivery loop
func (c *consumer) dispatch(handler MessageHandler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			c.eventBus.logger.Error(fmt.Sprintf("handler panic for address %s (isolated): %v", c.address, r))
		}
	}()

	ctx := c.ctx
	if id := msg.Headers()[HeaderRequestID]; id != "" {
		ctx = newContext(WithRequestID(c.ctx.Context(), id), c.ctx.Vertx())
	}
	if err := handler(ctx, msg); err != nil {
		c.eventBus.logger.Debug(fmt.Sprintf("handler error for address %s: %v", c.address, err))
	}
}

func (c *consumer) Unregister() error {
	c.eventBus.mu.Lock()
	defer c.eventBus.mu.Unlock()

	consumers := c.eventBus.consumers[c.address]
	for i, cons := range consumers {
		if cons == c {
			c.eventBus.consumers[c.address] = append(consumers[:i:i], consumers[i+1:]...)
			break
		}
	}
	if len(c.eventBus.consumers[c.address]) == 0 {
		delete(c.eventBus.consumers, c.address)
	}

	c.mailbox.Close()
	return nil
}

// encodeBody encodes body to JSON if needed - fail-fast
func (eb *eventBus) encodeBody(body interface{}) (interface{}, error) {
	if err := ValidateBody(body); err != nil {
		return nil, err
	}

	if data, ok := body.([]byte); ok {
		return data, nil
	}

	return JSONEncode(body)
}
