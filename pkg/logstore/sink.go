package logstore

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
)

// Sink receives every recorded entry together with its JSON encoding.
// Implementations must not block; errors are ignored by the store.
type Sink interface {
	Emit(entry LogEntry, encoded []byte) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(entry LogEntry, encoded []byte) error

// Emit calls f
func (f SinkFunc) Emit(entry LogEntry, encoded []byte) error {
	return f(entry, encoded)
}

// ConsoleSink writes one JSON line per entry; ERROR entries go to the error
// stream, everything else to the standard stream
type ConsoleSink struct {
	out    io.Writer
	errOut io.Writer
	mu     sync.Mutex
}

// NewConsoleSink writes to out and errOut, defaulting to stdout and stderr
func NewConsoleSink(out, errOut io.Writer) *ConsoleSink {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &ConsoleSink{out: out, errOut: errOut}
}

// Emit writes the encoded entry
func (c *ConsoleSink) Emit(entry LogEntry, encoded []byte) error {
	w := c.out
	if entry.Level == LevelError {
		w = c.errOut
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(w, "[SRE-LOG] %s\n", encoded)
	return err
}

// DefaultSubject is the NATS subject prefix for forwarded entries
const DefaultSubject = "sre.logs"

// NATSSink forwards entries to NATS on "<subject>.<level>", e.g.
// sre.logs.error. nats.Conn.Publish only buffers, so Emit never blocks on
// the network.
type NATSSink struct {
	conn    *nats.Conn
	subject string
	owned   bool
}

// NewNATSSink connects to url and forwards entries under subject
func NewNATSSink(url, subject string, opts ...nats.Option) (*NATSSink, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	opts = append([]nats.Option{nats.Name("todochaos-logstore")}, opts...)
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NATSSink{conn: conn, subject: subject, owned: true}, nil
}

// NewNATSSinkWithConn forwards entries over an existing connection
func NewNATSSinkWithConn(conn *nats.Conn, subject string) *NATSSink {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSink{conn: conn, subject: subject}
}

// Subject returns the subject entries of the given level are published on
func (n *NATSSink) Subject(level Level) string {
	return n.subject + "." + strings.ToLower(string(level))
}

// Emit publishes the encoded entry
func (n *NATSSink) Emit(entry LogEntry, encoded []byte) error {
	return n.conn.Publish(n.Subject(entry.Level), encoded)
}

// Close drains the connection if the sink opened it
func (n *NATSSink) Close() error {
	if !n.owned {
		return nil
	}
	return n.conn.Drain()
}
