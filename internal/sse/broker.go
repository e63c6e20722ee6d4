// Package sse implements a Server-Sent Events broker that pushes reference
// panel updates to connected clients.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Document event kinds accepted by PublishDocumentEvent.
const (
	KindCreated           = "created"
	KindReferencesChanged = "references"
	KindDeleted           = "deleted"
)

// DocumentEvent is the payload of the document and reference events.
type DocumentEvent struct {
	Path      string `json:"path"`
	Signature string `json:"signature,omitempty"`
}

var documentEventTypes = map[string]string{
	KindCreated:           "document.created",
	KindReferencesChanged: "references.changed",
	KindDeleted:           "document.deleted",
}

type documentEventReq struct {
	kind      string
	path      string
	signature string
}

// Broker manages SSE client connections and broadcasts events.
//
// A single goroutine owns the client set, the event sequence and the
// vault.updated schedule. Public methods talk to it over channels.
type Broker struct {
	vaultMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	docEventCh    chan documentEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. vault.updated is sent at most once per
// vaultThrottle; changes inside the window are announced once it closes.
func NewBroker(vaultThrottle time.Duration) *Broker {
	if vaultThrottle <= 0 {
		vaultThrottle = 2 * time.Second
	}

	b := &Broker{
		vaultMin:      vaultThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		docEventCh:    make(chan documentEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

// fanout is the state owned by the broker goroutine.
type fanout struct {
	clients   map[chan []byte]struct{}
	seq       uint64
	lastVault time.Time
}

// send frames event with the next sequence id and offers it to every client.
// A client whose buffer is full misses the frame.
func (f *fanout) send(event Event) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return
	}
	f.seq++
	frame := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", f.seq, event.Type, payload))
	for ch := range f.clients {
		select {
		case ch <- frame:
		default:
		}
	}
}

func (f *fanout) vaultUpdated(now time.Time) {
	f.lastVault = now
	f.send(Event{Type: "vault.updated", Data: struct{}{}})
}

func (b *Broker) run() {
	defer close(b.stopped)

	f := &fanout{clients: make(map[chan []byte]struct{})}

	// trailing is armed while a vault.updated is owed but throttled.
	var trailing *time.Timer
	var trailingC <-chan time.Time

	for {
		select {
		case <-b.stopCh:
			if trailing != nil {
				trailing.Stop()
			}
			for ch := range f.clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			f.clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := f.clients[ch]; ok {
				delete(f.clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			f.send(event)

		case req := <-b.docEventCh:
			typ, ok := documentEventTypes[req.kind]
			if !ok {
				continue
			}
			data := DocumentEvent{Path: req.path}
			if req.kind == KindReferencesChanged {
				data.Signature = req.signature
			}
			f.send(Event{Type: typ, Data: data})

			if trailingC != nil {
				continue
			}
			now := time.Now()
			if wait := b.vaultMin - now.Sub(f.lastVault); wait > 0 {
				trailing = time.NewTimer(wait)
				trailingC = trailing.C
			} else {
				f.vaultUpdated(now)
			}

		case now := <-trailingC:
			trailing, trailingC = nil, nil
			f.vaultUpdated(now)

		case resp := <-b.countReqCh:
			resp <- len(f.clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishDocumentEvent publishes a document change and a throttled
// vault.updated event. signature is only sent with KindReferencesChanged.
func (b *Broker) PublishDocumentEvent(kind, path, signature string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.docEventCh <- documentEventReq{kind: kind, path: path, signature: signature}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
