package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// encodeFrame renders an event as one complete Server-Sent Events message.
// The frame carries the event id, the type label, and the JSON payload;
// building it up front keeps wire writes atomic per message.
func encodeFrame(ev Event) ([]byte, error) {
	body, err := json.Marshal(struct {
		Data      any    `json:"data,omitempty"`
		Timestamp string `json:"timestamp"`
	}{
		Data:      ev.Data,
		Timestamp: ev.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, body)), nil
}

// SetStreamHeaders prepares a response for a long-lived SSE stream.
// X-Accel-Buffering stops nginx from buffering the push channel.
func SetStreamHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// ServeStream pumps the connection's outbound frames onto w until the
// client goes away, a write fails, or the connection is closed. The
// caller must have registered c and sent response headers; ServeStream
// unregisters c on every exit path.
func (b *Broker) ServeStream(r *http.Request, w http.ResponseWriter, flusher http.Flusher, c *Connection) {
	defer b.Unregister(c.ID)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.Done():
			return
		case frame := <-c.Outbound():
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
