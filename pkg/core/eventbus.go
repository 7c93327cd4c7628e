package core

import (
	"context"
	"fmt"
	"sync"
)

// Message headers set by the bus
const (
	HeaderAddress   = "address"
	HeaderRequestID = "request_id"
)

// Message represents a message on the event bus
type Message interface {
	// Body returns the message body (JSON encoded bytes)
	Body() interface{}

	// Headers returns a copy of the message headers
	Headers() map[string]string

	// DecodeBody decodes the message body into v
	DecodeBody(v interface{}) error
}

// message implements Message
type message struct {
	body    interface{}
	headers map[string]string
	mu      sync.RWMutex
}

func newMessage(body interface{}, headers map[string]string) Message {
	if headers == nil {
		headers = make(map[string]string)
	}
	return &message{
		body:    body,
		headers: headers,
	}
}

func (m *message) Body() interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.body
}

func (m *message) Headers() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]string, len(m.headers))
	for k, v := range m.headers {
		result[k] = v
	}
	return result
}

func (m *message) DecodeBody(v interface{}) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if data, ok := m.body.([]byte); ok {
		return JSONDecode(data, v)
	}
	return fmt.Errorf("body is not []byte, got %T", m.body)
}

// EventBus provides publish-subscribe messaging between components.
// Default data format is JSON.
//
// Thread-safety: All methods are safe for concurrent use.
//
// Error handling patterns:
//   - Publish: returns errors for invalid inputs or encoding failures
//   - Consumer: PANICS on invalid address (fail-fast for programmer errors)
//
// Delivery is best-effort: a consumer whose mailbox is full misses the
// message. Subscribers that need a consistent view should treat messages as
// change signals and re-read the source of truth.
type EventBus interface {
	// Publish publishes a message to all handlers registered for the address.
	// Body is automatically JSON encoded if not already []byte.
	// Publishing to an address without consumers is not an error.
	Publish(address string, body interface{}) error

	// PublishContext is Publish carrying the request id of ctx, if any, to
	// the handlers' FluxorContext
	PublishContext(ctx context.Context, address string, body interface{}) error

	// Consumer creates a consumer for the given address.
	//
	// IMPORTANT: This method PANICS if address is invalid (empty or too long).
	//
	// Usage pattern:
	//   consumer := eb.Consumer("my.address").Handler(func(ctx FluxorContext, msg Message) error {
	//       // handle message
	//       return nil
	//   })
	//   defer consumer.Unregister()
	Consumer(address string) Consumer

	// Close closes the event bus and releases all resources.
	// After Close, Publish fails and consumers stop receiving.
	Close() error
}

// Consumer represents a message consumer
type Consumer interface {
	// Handler sets the message handler and starts delivery
	Handler(handler MessageHandler) Consumer

	// Address returns the address the consumer listens on
	Address() string

	// Unregister unregisters the consumer
	Unregister() error
}

// MessageHandler handles incoming messages
type MessageHandler func(ctx FluxorContext, msg Message) error

// Errors
var (
	ErrBusClosed = &Error{Code: "BUS_CLOSED", Message: "event bus is closed"}
)

// Error represents a runtime error with a stable code
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
