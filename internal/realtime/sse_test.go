package realtime

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrame(t *testing.T) {
	ev := Event{
		ID:        42,
		Type:      EventTaskCreated,
		Topic:     "proj-1",
		Data:      map[string]string{"title": "draft survey"},
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	frame, err := encodeFrame(ev)
	require.NoError(t, err)

	s := string(frame)
	assert.Contains(t, s, "id: 42\n")
	assert.Contains(t, s, "event: task_created\n")
	assert.Contains(t, s, `"title":"draft survey"`)
	assert.Contains(t, s, `"timestamp":"2024-05-01T12:00:00.000Z"`)
	assert.True(t, len(s) > 4 && s[len(s)-2:] == "\n\n", "frame must end with a blank line")
}

func TestEncodeFrame_NilData(t *testing.T) {
	frame, err := encodeFrame(Event{ID: 1, Type: EventHeartbeat, Timestamp: time.Now().UTC()})
	require.NoError(t, err)
	assert.Contains(t, string(frame), "event: heartbeat\n")
}

func TestEncodeFrame_UnmarshalableData(t *testing.T) {
	_, err := encodeFrame(Event{ID: 1, Type: EventTaskCreated, Data: make(chan int)})
	require.Error(t, err)
}

func TestSetStreamHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetStreamHeaders(rec)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
}

// streamWriter is an in-process transport: every wire write lands on a
// channel, and writes can be made to fail on demand.
type streamWriter struct {
	frames chan string
	fail   bool
}

func newStreamWriter() *streamWriter {
	return &streamWriter{frames: make(chan string, 16)}
}

func (w *streamWriter) Header() http.Header { return http.Header{} }
func (w *streamWriter) WriteHeader(int)     {}
func (w *streamWriter) Flush()              {}

func (w *streamWriter) Write(p []byte) (int, error) {
	if w.fail {
		return 0, errors.New("client gone")
	}
	w.frames <- string(p)
	return len(p), nil
}

func TestServeStream_WritesFramesUntilClosed(t *testing.T) {
	b := newTestBroker(t, Options{})
	c, err := b.Register("conn-1", "u1", []string{"proj-1"})
	require.NoError(t, err)

	w := newStreamWriter()
	done := make(chan struct{})
	go func() {
		b.ServeStream(httptest.NewRequest(http.MethodGet, "/api/sse/workspace/proj-1", nil), w, w, c)
		close(done)
	}()

	b.Emit(EventTaskCreated, "proj-1", map[string]string{"title": "t"})
	select {
	case frame := <-w.frames:
		assert.Contains(t, frame, "event: task_created")
	case <-time.After(time.Second):
		t.Fatal("frame never reached the wire")
	}

	b.Unregister("conn-1")
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("serve loop did not exit after unregister")
	}
}

func TestServeStream_WriteFailureUnregisters(t *testing.T) {
	b := newTestBroker(t, Options{})
	c, err := b.Register("conn-1", "u1", []string{"proj-1"})
	require.NoError(t, err)

	w := newStreamWriter()
	w.fail = true
	done := make(chan struct{})
	go func() {
		b.ServeStream(httptest.NewRequest(http.MethodGet, "/api/sse/workspace/proj-1", nil), w, w, c)
		close(done)
	}()

	b.Emit(EventTaskCreated, "proj-1", nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("serve loop did not exit on write failure")
	}
	assert.Equal(t, 0, b.Count())
	assert.Empty(t, b.ConnectionsForTopic("proj-1"))
}
