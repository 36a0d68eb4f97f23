package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flight-control/mixerd/internal/mixer"
)

// Options configures a Hub.
type Options struct {
	// Decimation publishes every Nth tick. Zero or one publishes every tick.
	Decimation int
	// MaxOutputs sizes the pending output buffer.
	MaxOutputs int
	// BufferSize is the number of events kept for Last-Event-ID replay.
	BufferSize int
	// HeartbeatInterval between heartbeat events while clients are connected.
	HeartbeatInterval time.Duration
}

// Event is one server-sent event.
type Event struct {
	ID   int64                  `json:"id,omitempty"`
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// Client represents an SSE client connection.
type Client struct {
	ID      string
	Writer  http.ResponseWriter
	Context context.Context
	Cancel  context.CancelFunc
	LastID  int64
	Events  chan Event
	once    sync.Once
	mu      sync.Mutex
}

// Hub fans mixer outputs out to SSE clients. It implements the control
// loop's Sink: WriteOutputs copies into a fixed buffer and signals the
// broadcaster without blocking.
type Hub struct {
	opts Options

	mu      sync.RWMutex
	clients map[string]*Client
	nextID  int64
	buffer  *EventBuffer

	pendingMu  sync.Mutex
	pending    []float32
	pendingN   int
	pendingRes mixer.MixResult
	signal     chan struct{}
	ticks      atomic.Uint64
	dropped    atomic.Uint64

	done chan struct{}
	wg   sync.WaitGroup
}

// NewHub creates a hub. Call Start to run the broadcaster.
func NewHub(opts Options) *Hub {
	if opts.Decimation <= 0 {
		opts.Decimation = 1
	}
	if opts.MaxOutputs <= 0 {
		opts.MaxOutputs = mixer.DefaultMaxOutputs
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 50
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 15 * time.Second
	}
	return &Hub{
		opts:    opts,
		clients: make(map[string]*Client),
		buffer:  NewEventBuffer(opts.BufferSize),
		pending: make([]float32, opts.MaxOutputs),
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// WriteOutputs records the outputs of one tick. Only every Decimation-th
// tick is published.
func (h *Hub) WriteOutputs(outputs []float32, res mixer.MixResult) {
	if h.ticks.Add(1)%uint64(h.opts.Decimation) != 0 {
		return
	}
	if !h.pendingMu.TryLock() {
		h.dropped.Add(1)
		return
	}
	h.pendingN = copy(h.pending, outputs)
	h.pendingRes = res
	h.pendingMu.Unlock()

	select {
	case h.signal <- struct{}{}:
	default:
	}
}

// Dropped returns the number of decimated ticks skipped because the
// broadcaster was reading the previous one.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Start runs the broadcaster and heartbeat until Stop.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.broadcast()
}

func (h *Hub) broadcast() {
	defer h.wg.Done()
	heartbeat := time.NewTicker(h.opts.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-heartbeat.C:
			h.Publish(Event{
				Type: "heartbeat",
				Data: map[string]interface{}{"ts": time.Now().UTC().Format(time.RFC3339)},
			})
		case <-h.signal:
			h.pendingMu.Lock()
			outputs := make([]float32, h.pendingN)
			copy(outputs, h.pending[:h.pendingN])
			res := h.pendingRes
			h.pendingMu.Unlock()

			h.Publish(Event{
				Type: "outputs",
				Data: map[string]interface{}{
					"tick":      h.ticks.Load(),
					"outputs":   outputs,
					"written":   res.Written,
					"attempted": res.Attempted,
					"failsafe":  res.Failsafe,
				},
			})
		}
	}
}

// Publish assigns the next event ID, buffers the event and queues it for
// every connected client. Slow clients drop events.
func (h *Hub) Publish(event Event) {
	if event.ID == 0 {
		event.ID = atomic.AddInt64(&h.nextID, 1)
	}
	h.buffer.AddEvent(event)

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case <-client.Context.Done():
		case client.Events <- event:
		default:
		}
	}
}

// ServeHTTP subscribes the request as an SSE client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.Subscribe(r.Context(), w, r); err != nil {
		log.Printf("Telemetry subscribe failed: %v", err)
	}
}

// Subscribe streams events to w until the client disconnects or the hub
// stops. A Last-Event-ID header replays buffered events after that ID.
func (h *Hub) Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientCtx, cancel := context.WithCancel(ctx)
	client := &Client{
		ID:      fmt.Sprintf("client_%d", time.Now().UnixNano()),
		Writer:  w,
		Context: clientCtx,
		Cancel:  cancel,
		Events:  make(chan Event, 100),
	}
	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if id, err := strconv.ParseInt(lastIDStr, 10, 64); err == nil {
			client.LastID = id
		}
	}

	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		cancel()
		return fmt.Errorf("hub stopped")
	default:
	}
	h.clients[client.ID] = client
	h.mu.Unlock()
	defer h.unregisterClient(client.ID)

	ready := Event{
		Type: "ready",
		Data: map[string]interface{}{"decimation": h.opts.Decimation},
	}
	if err := h.sendEventToClient(client, ready); err != nil {
		return fmt.Errorf("failed to send ready event: %w", err)
	}
	if client.LastID > 0 {
		for _, event := range h.buffer.GetEventsAfter(client.LastID) {
			if err := h.sendEventToClient(client, event); err != nil {
				return fmt.Errorf("failed to replay events: %w", err)
			}
		}
	}

	for {
		select {
		case <-client.Context.Done():
			return nil
		case <-h.done:
			return nil
		case event := <-client.Events:
			if err := h.sendEventToClient(client, event); err != nil {
				return err
			}
		}
	}
}

func (h *Hub) sendEventToClient(client *Client, event Event) error {
	client.mu.Lock()
	defer client.mu.Unlock()

	if event.ID > 0 {
		if _, err := fmt.Fprintf(client.Writer, "id: %d\n", event.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}
	if _, err := fmt.Fprintf(client.Writer, "event: %s\n", event.Type); err != nil {
		return fmt.Errorf("failed to write event type: %w", err)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	if _, err := fmt.Fprintf(client.Writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write event data: %w", err)
	}

	if flusher, ok := client.Writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

func (h *Hub) unregisterClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, exists := h.clients[clientID]; exists {
		client.Cancel()
		delete(h.clients, clientID)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop ends the broadcaster and disconnects every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		return
	default:
	}
	close(h.done)
	for _, client := range h.clients {
		client.Cancel()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
}

// EventBuffer keeps the most recent events for replay.
type EventBuffer struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
}

// NewEventBuffer creates a buffer holding at most capacity events.
func NewEventBuffer(capacity int) *EventBuffer {
	return &EventBuffer{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
	}
}

// AddEvent appends event, dropping the oldest when full.
func (b *EventBuffer) AddEvent(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == b.capacity {
		copy(b.events, b.events[1:])
		b.events = b.events[:len(b.events)-1]
	}
	b.events = append(b.events, event)
}

// GetEventsAfter returns buffered events with ID greater than lastID.
func (b *EventBuffer) GetEventsAfter(lastID int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var result []Event
	for _, event := range b.events {
		if event.ID > lastID {
			result = append(result, event)
		}
	}
	return result
}

// GetSize returns the number of buffered events.
func (b *EventBuffer) GetSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
