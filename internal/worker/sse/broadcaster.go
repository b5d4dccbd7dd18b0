// Package sse provides Server-Sent Events broadcasting of trainer events.
package sse

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/tastetrainer/internal/metrics"
)

const (
	// clientBuffer is the number of pending messages per client before it
	// is considered too slow and dropped.
	clientBuffer = 32

	// DefaultKeepAlive is the interval between comment frames on idle streams.
	DefaultKeepAlive = 25 * time.Second
)

// Client represents a connected SSE client.
type Client struct {
	ID   string
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// Broadcaster manages SSE client connections and message broadcasting.
type Broadcaster struct {
	clients   map[string]*Client
	mu        sync.RWMutex
	nextID    int
	keepAlive time.Duration
}

// NewBroadcaster creates a new SSE broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients:   make(map[string]*Client),
		keepAlive: DefaultKeepAlive,
	}
}

// SetKeepAlive changes the idle keep-alive interval.
func (b *Broadcaster) SetKeepAlive(d time.Duration) {
	b.mu.Lock()
	b.keepAlive = d
	b.mu.Unlock()
}

// AddClient registers a new client.
func (b *Broadcaster) AddClient() *Client {
	b.mu.Lock()
	b.nextID++
	id := fmt.Sprintf("client-%d", b.nextID)
	client := &Client{
		ID:   id,
		send: make(chan []byte, clientBuffer),
		done: make(chan struct{}),
	}
	b.clients[id] = client
	count := len(b.clients)
	b.mu.Unlock()

	metrics.SSEClients.Inc()
	log.Debug().
		Str("clientId", id).
		Int("totalClients", count).
		Msg("SSE client connected")

	return client
}

// RemoveClient removes a client connection.
func (b *Broadcaster) RemoveClient(client *Client) {
	b.mu.Lock()
	_, exists := b.clients[client.ID]
	delete(b.clients, client.ID)
	count := len(b.clients)
	b.mu.Unlock()

	client.close()
	if !exists {
		return
	}

	metrics.SSEClients.Dec()
	log.Debug().
		Str("clientId", client.ID).
		Int("totalClients", count).
		Msg("SSE client disconnected")
}

// Broadcast queues a message for every connected client. Clients whose
// buffer is full are disconnected.
func (b *Broadcaster) Broadcast(data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal SSE data")
		return
	}
	message := fmt.Appendf(nil, "data: %s\n\n", payload)

	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for _, client := range b.clients {
		clients = append(clients, client)
	}
	b.mu.RUnlock()

	var slow []*Client
	for _, client := range clients {
		select {
		case <-client.done:
		case client.send <- message:
		default:
			slow = append(slow, client)
		}
	}

	for _, client := range slow {
		log.Debug().Str("clientId", client.ID).Msg("SSE client too slow, dropping")
		b.RemoveClient(client)
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// CloseAll disconnects every client.
func (b *Broadcaster) CloseAll() {
	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for _, client := range b.clients {
		clients = append(clients, client)
	}
	b.mu.RUnlock()

	for _, client := range clients {
		b.RemoveClient(client)
	}
}

// HandleSSE streams broadcast messages to one client until it disconnects.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := b.AddClient()
	defer b.RemoveClient(client)

	fmt.Fprintf(w, "data: {\"type\":\"connected\",\"client_id\":\"%s\"}\n\n", client.ID)
	flusher.Flush()

	b.mu.RLock()
	interval := b.keepAlive
	b.mu.RUnlock()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.done:
			return
		case msg := <-client.send:
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
