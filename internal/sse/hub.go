// Package sse fans runtime events out to event-stream subscribers.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/autarch-dev/autarch/internal/metrics"
)

const (
	// RetryMs is the reconnect delay advertised to clients.
	RetryMs = 5000
	// HeartbeatInterval paces the keep-alive comment frames.
	HeartbeatInterval = 30 * time.Second

	// clientBuffer is the per-client frame queue. A client that falls
	// this far behind is dropped.
	clientBuffer = 64
)

var heartbeatFrame = []byte(": heartbeat\n\n")

type client struct {
	ch     chan []byte
	closed bool
}

// Hub is the SSE broadcast hub. It implements http.Handler for the
// event-stream endpoint.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	done    chan struct{}
	once    sync.Once
	log     zerolog.Logger

	heartbeatEvery time.Duration
}

// NewHub creates a Hub. Call Start to begin heartbeating and Close to
// shut the hub down.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:        make(map[*client]struct{}),
		done:           make(chan struct{}),
		log:            log.With().Str("component", "sse").Logger(),
		heartbeatEvery: HeartbeatInterval,
	}
}

// Start launches the heartbeat loop.
func (h *Hub) Start() {
	go func() {
		ticker := time.NewTicker(h.heartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-h.done:
				return
			case <-ticker.C:
				h.send(heartbeatFrame)
			}
		}
	}()
}

// Close stops the heartbeat and disconnects every client. Idempotent.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.done) })

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends one named event with a JSON payload to every client.
// Clients that cannot keep up are dropped; a dropped client never
// fails the broadcast.
func (h *Hub) Broadcast(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("Dropping unmarshalable broadcast")
		return
	}
	metrics.SSEBroadcastsTotal.WithLabelValues(event).Inc()
	h.send([]byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)))
}

func (h *Hub) send(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.ch <- frame:
		default:
			h.log.Warn().Msg("Dropping slow SSE client")
			h.dropLocked(c)
		}
	}
}

// dropLocked removes a client. Caller holds mu.
func (h *Hub) dropLocked(c *client) {
	if c.closed {
		return
	}
	c.closed = true
	delete(h.clients, c)
	close(c.ch)
	metrics.SSEClients.Set(float64(len(h.clients)))
}

func (h *Hub) register() *client {
	c := &client{ch: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SSEClients.Set(float64(n))
	h.log.Debug().Int("clients", n).Msg("SSE client connected")
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	h.dropLocked(c)
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug().Int("clients", n).Msg("SSE client disconnected")
}

// ServeHTTP streams events to one client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "retry: %d\n\n", RetryMs)
	flusher.Flush()

	c := h.register()
	defer h.unregister(c)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case frame, ok := <-c.ch:
			if !ok {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
