// Package sse streams session changes to browser renderers as Server-Sent
// Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tasour/wikipedia-graph/internal/session"
)

const (
	clientBuffer     = 64
	defaultKeepAlive = 15 * time.Second
	// retryMillis is the reconnect delay suggested to EventSource clients.
	retryMillis = 3000
)

// Broker fans session events out to connected SSE clients.
//
// One goroutine owns the client set, the event sequence and the graph
// throttle. graph.changed events go out at most once per interval; a change
// arriving inside the interval is held and delivered when it ends, so the
// last graph state always reaches clients.
type Broker struct {
	throttle  time.Duration
	keepAlive time.Duration

	join   chan chan []byte
	leave  chan chan []byte
	events chan session.Event

	clients atomic.Int64
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

var _ session.Observer = (*Broker)(nil)

// Option configures a Broker.
type Option func(*Broker)

// WithKeepAlive sets how often an idle stream receives a comment line.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) { b.keepAlive = d }
}

// NewBroker starts a broker. A non-positive throttle means 250ms.
func NewBroker(throttle time.Duration, opts ...Option) *Broker {
	if throttle <= 0 {
		throttle = 250 * time.Millisecond
	}
	b := &Broker{
		throttle:  throttle,
		keepAlive: defaultKeepAlive,
		join:      make(chan chan []byte),
		leave:     make(chan chan []byte),
		events:    make(chan session.Event, 256),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.loop()
	return b
}

// frame renders one event in the text/event-stream format.
func frame(id uint64, ev session.Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", id, ev.Kind, data), nil
}

func (b *Broker) loop() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq       uint64
		lastGraph time.Time
		held      *session.Event
		flush     <-chan time.Time
	)
	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	send := func(msg []byte) {
		for ch := range clients {
			select {
			case ch <- msg:
			default:
				// slow client, drop
			}
		}
	}
	deliver := func(ev session.Event) {
		seq++
		msg, err := frame(seq, ev)
		if err != nil {
			return
		}
		send(msg)
	}

	for {
		select {
		case <-b.quit:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.join:
			clients[ch] = struct{}{}

		case ch := <-b.leave:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ev := <-b.events:
			if ev.Kind != session.EventGraphChanged {
				deliver(ev)
				continue
			}
			since := time.Since(lastGraph)
			if flush == nil && since >= b.throttle {
				lastGraph = time.Now()
				deliver(ev)
				continue
			}
			if flush == nil {
				flush = time.After(b.throttle - since)
			}
			held = &ev

		case <-flush:
			flush = nil
			if held != nil {
				lastGraph = time.Now()
				deliver(*held)
				held = nil
			}

		case <-ping.C:
			send([]byte(": ping\n\n"))
		}
	}
}

// Close stops the broker and closes every client stream. It is safe to call
// more than once.
func (b *Broker) Close() {
	b.once.Do(func() { close(b.quit) })
	<-b.stopped
	b.clients.Store(0)
}

// subscribe registers a client. The returned channel is closed when the
// broker stops.
func (b *Broker) subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	select {
	case b.join <- ch:
		b.clients.Add(1)
	case <-b.stopped:
		close(ch)
	}
	return ch
}

func (b *Broker) unsubscribe(ch chan []byte) {
	select {
	case b.leave <- ch:
		b.clients.Add(-1)
	case <-b.stopped:
	}
}

// Clients returns the number of connected streams.
func (b *Broker) Clients() int {
	return int(b.clients.Load())
}

// Notify queues a session event for delivery. Events after Close are dropped.
func (b *Broker) Notify(ev session.Event) {
	select {
	case <-b.stopped:
	case b.events <- ev:
	}
}

// ServeHTTP streams events to one client (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", retryMillis)
	flusher.Flush()

	ch := b.subscribe()
	defer b.unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
