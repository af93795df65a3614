package web

import (
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"
)

// StatusEvent represents a single status message for SSE.
// Tick events carry the control loop telemetry in Data.
type StatusEvent struct {
	Time  string          `json:"t"`
	Level string          `json:"l,omitempty"`
	Msg   string          `json:"msg"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// historySize is the number of log events replayed to a new subscriber.
const historySize = 32

// StatusBroadcaster distributes status messages to multiple SSE clients.
// Log events are kept in a short history so a dashboard opened mid-session
// shows recent context. Tick events are not kept: the next tick replaces
// them within a frame.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
	history []string
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast messages, primed with
// the recent log history, and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	for _, msg := range b.history {
		ch <- msg
	}
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.clients, ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsub
}

// Broadcast sends a log message to all subscribed clients.
// Messages are sent as JSON: {"t":"...","l":"info","msg":"..."}
// Slow clients may miss messages (non-blocking, buffered).
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.send(StatusEvent{Level: level, Msg: msg}, true)
}

// BroadcastData sends a message with a JSON payload attached. It is not
// added to the history.
func (b *StatusBroadcaster) BroadcastData(level, msg string, data json.RawMessage) {
	b.send(StatusEvent{Level: level, Msg: msg, Data: data}, false)
}

func (b *StatusBroadcaster) send(evt StatusEvent, keep bool) {
	evt.Time = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	if keep {
		b.mu.Lock()
		b.history = append(b.history, payload)
		if len(b.history) > historySize {
			b.history = b.history[len(b.history)-historySize:]
		}
		b.mu.Unlock()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// BroadcastWriter returns an io.Writer that broadcasts each debug line,
// with the event level taken from the line's tag.
func BroadcastWriter(b *StatusBroadcaster) io.Writer {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

// debugTags maps debug line tags to event levels.
var debugTags = []struct{ tag, level string }{
	{"[ERROR]", "error"},
	{"[LIVE]", "live"},
	{"[VERBOSE]", "verbose"},
	{"[TRACE]", "trace"},
	{"[GPIO]", "trace"},
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}
	level := "info"
	for _, t := range debugTags {
		if strings.Contains(msg, t.tag) {
			level = t.level
			break
		}
	}
	w.b.Broadcast(level, msg)
	return len(p), nil
}
