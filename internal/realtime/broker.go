// Package realtime implements the workspace event fan-out layer: an
// in-process registry of live client streams with per-project topic
// routing, best-effort delivery, and heartbeat-based liveness.
//
// Events exist only in flight. There is no replay and no cross-process
// fan-out; each server process routes only the events emitted on it.
package realtime

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Jim-devENG/ispora-engine-sub008/internal/metrics"
)

// ErrDuplicateConnection indicates a register call reused a live
// connection id. Connection ids are random, so this points at a bug in
// the caller rather than a runtime condition.
var ErrDuplicateConnection = errors.New("realtime: connection id already registered")

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultSendBuffer        = 64
)

// Options tune the broker. Zero values select the defaults.
type Options struct {
	// HeartbeatInterval is the period between keep-alive frames written
	// to every open connection. Negative disables the heartbeat loop
	// (used by tests that drive ticks manually).
	HeartbeatInterval time.Duration
	// SendBuffer is the per-connection outbound frame buffer.
	SendBuffer int
}

// Broker owns the process-wide connection registry and fans events out to
// subscribed streams. All methods are safe for concurrent use; request
// handlers across many goroutines emit through one shared instance.
type Broker struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	buf     int

	mu    sync.RWMutex
	conns map[string]*Connection

	nextID atomic.Uint64

	interval  time.Duration
	stop      chan struct{}
	closeOnce sync.Once
}

// New creates a broker and starts its heartbeat loop.
func New(log *slog.Logger, m *metrics.Metrics, opts Options) *Broker {
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	b := &Broker{
		log:      log,
		metrics:  m,
		buf:      opts.SendBuffer,
		conns:    make(map[string]*Connection),
		interval: opts.HeartbeatInterval,
		stop:     make(chan struct{}),
	}
	if b.interval > 0 {
		go b.heartbeatLoop()
	}
	return b
}

// Register adds a new connection for userID with its initial topic set and
// returns the handle the transport serve loop reads from. The empty topic
// set means the connection receives only global events.
func (b *Broker) Register(connID, userID string, topics []string) (*Connection, error) {
	c := newConnection(connID, userID, b.buf, topics)

	b.mu.Lock()
	if _, exists := b.conns[connID]; exists {
		b.mu.Unlock()
		return nil, ErrDuplicateConnection
	}
	b.conns[connID] = c
	total := len(b.conns)
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.ConnectionsActive.Set(float64(total))
	}
	b.log.Debug("stream connected",
		slog.String("connection_id", connID),
		slog.String("user_id", userID),
		slog.Int("total", total))
	return c, nil
}

// Unregister removes a connection and marks it closed. It is idempotent:
// the explicit disconnect path and the failed-write path race to clean up
// and either order is fine.
func (b *Broker) Unregister(connID string) {
	b.mu.Lock()
	c, ok := b.conns[connID]
	if ok {
		// Closing under the lock keeps a concurrent emitter from
		// observing a registered-but-closed handle.
		c.close()
		delete(b.conns, connID)
	}
	total := len(b.conns)
	b.mu.Unlock()

	if !ok {
		return
	}
	if b.metrics != nil {
		b.metrics.ConnectionsActive.Set(float64(total))
	}
	b.log.Debug("stream disconnected",
		slog.String("connection_id", connID),
		slog.Int("total", total))
}

// Subscribe adds topic to the connection's subscription set. Unknown
// connection ids are ignored; the client may have just disconnected.
func (b *Broker) Subscribe(connID, topic string) {
	if c := b.get(connID); c != nil && topic != "" {
		c.addTopic(topic)
	}
}

// Unsubscribe removes topic from the connection's subscription set.
// Unknown connection ids are ignored.
func (b *Broker) Unsubscribe(connID, topic string) {
	if c := b.get(connID); c != nil {
		c.removeTopic(topic)
	}
}

// ConnectionsForTopic returns the connections an event with the given
// topic routes to: subscribers of that topic, or every live connection
// when topic is empty (global broadcast). Order is unspecified.
func (b *Broker) ConnectionsForTopic(topic string) []*Connection {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Connection, 0, len(b.conns))
	for _, c := range b.conns {
		if topic == "" || c.subscribedTo(topic) {
			out = append(out, c)
		}
	}
	return out
}

// ConnectionsForUser returns the user's live connections. Used by the
// status endpoint, not for routing.
func (b *Broker) ConnectionsForUser(userID string) []*Connection {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*Connection
	for _, c := range b.conns {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

// Count reports the number of live connections.
func (b *Broker) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns)
}

// Emit fans an event out to every connection subscribed to topic, or to
// all connections when topic is empty. It never blocks on a slow client
// and never returns an error: delivery failures are isolated to the
// affected connection, which is unregistered on the spot. Mutation
// handlers call Emit after the write committed, exactly once.
func (b *Broker) Emit(eventType, topic string, data any) {
	ev := b.newEvent(eventType, topic, data)
	frame, err := encodeFrame(ev)
	if err != nil {
		b.log.Error("encode event", slog.String("type", eventType), slog.String("err", err.Error()))
		return
	}
	if b.metrics != nil {
		b.metrics.EventsEmitted.WithLabelValues(eventType).Inc()
	}

	targets := b.ConnectionsForTopic(topic)
	for _, c := range targets {
		b.deliver(c, frame)
	}
	b.log.Debug("event emitted",
		slog.String("type", eventType),
		slog.String("topic", topic),
		slog.Int("targets", len(targets)))
}

// SendTo writes one event to a single connection, bypassing topic
// routing. The lifecycle handshake (connected) and the subscribe and
// unsubscribe acknowledgements use it. Reports whether the frame was
// accepted.
func (b *Broker) SendTo(connID, eventType string, data any) bool {
	c := b.get(connID)
	if c == nil {
		return false
	}
	frame, err := encodeFrame(b.newEvent(eventType, "", data))
	if err != nil {
		b.log.Error("encode event", slog.String("type", eventType), slog.String("err", err.Error()))
		return false
	}
	return b.deliver(c, frame)
}

// Close shuts the broker down: the heartbeat loop stops, every live
// connection is closed, and the registry is cleared.
func (b *Broker) Close() {
	b.closeOnce.Do(func() { close(b.stop) })

	b.mu.Lock()
	for id, c := range b.conns {
		c.close()
		delete(b.conns, id)
	}
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.ConnectionsActive.Set(0)
	}
}

func (b *Broker) get(connID string) *Connection {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.conns[connID]
}

func (b *Broker) newEvent(eventType, topic string, data any) Event {
	return Event{
		ID:        b.nextID.Add(1),
		Type:      eventType,
		Topic:     topic,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// deliver hands a frame to one connection. Heartbeats and domain events
// share this path so a failed write always ends the same way: the
// connection is unregistered and nothing propagates to the emitter.
func (b *Broker) deliver(c *Connection, frame []byte) bool {
	if err := c.enqueue(frame); err != nil {
		if b.metrics != nil {
			b.metrics.Deliveries.WithLabelValues("failed").Inc()
		}
		b.log.Debug("delivery failed, dropping connection",
			slog.String("connection_id", c.ID),
			slog.String("user_id", c.UserID))
		b.Unregister(c.ID)
		return false
	}
	if b.metrics != nil {
		b.metrics.Deliveries.WithLabelValues("ok").Inc()
	}
	return true
}

func (b *Broker) heartbeatLoop() {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.heartbeatTick()
		}
	}
}

// heartbeatTick writes a keep-alive frame to every connection. Its only
// purpose is to stop intermediaries from idle-closing quiet streams;
// clients do not surface it.
func (b *Broker) heartbeatTick() {
	frame, err := encodeFrame(b.newEvent(EventHeartbeat, "", nil))
	if err != nil {
		return
	}
	for _, c := range b.ConnectionsForTopic("") {
		b.deliver(c, frame)
	}
}
