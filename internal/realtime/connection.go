package realtime

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrConnectionClosed is returned by enqueue once a connection has been
// marked closed or its outbound buffer is full. Either way the connection
// is treated as gone.
var ErrConnectionClosed = errors.New("realtime: connection closed")

// Connection is one live client stream. A user may hold several at once
// (one per tab or device). The outbound channel is the only write path to
// the underlying transport; the serve loop that owns the HTTP response is
// its sole reader.
type Connection struct {
	ID     string
	UserID string

	mu     sync.RWMutex
	topics map[string]struct{}

	send   chan []byte
	done   chan struct{}
	closed atomic.Bool
}

func newConnection(id, userID string, buf int, topics []string) *Connection {
	c := &Connection{
		ID:     id,
		UserID: userID,
		topics: make(map[string]struct{}, len(topics)),
		send:   make(chan []byte, buf),
		done:   make(chan struct{}),
	}
	for _, t := range topics {
		if t != "" {
			c.topics[t] = struct{}{}
		}
	}
	return c
}

// Outbound returns the channel of framed messages ready to be written to
// the wire.
func (c *Connection) Outbound() <-chan []byte { return c.send }

// Done is closed exactly once when the connection is shut down.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Topics returns a copy of the current subscription set.
func (c *Connection) Topics() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	return out
}

func (c *Connection) subscribedTo(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.topics[topic]
	return ok
}

func (c *Connection) addTopic(topic string) {
	c.mu.Lock()
	c.topics[topic] = struct{}{}
	c.mu.Unlock()
}

func (c *Connection) removeTopic(topic string) {
	c.mu.Lock()
	delete(c.topics, topic)
	c.mu.Unlock()
}

// enqueue hands a frame to the serve loop without blocking. A full buffer
// means the client has stopped draining; the caller treats that the same
// as a closed transport.
func (c *Connection) enqueue(frame []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrConnectionClosed
	}
}

// close marks the connection closed. The send channel is left open so a
// concurrent enqueue can never panic; pending frames are simply dropped
// when the serve loop exits.
func (c *Connection) close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.done)
	}
}
