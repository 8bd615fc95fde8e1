package ws

import (
	"context"
	"sync"
	"time"

	"github.com/lofichat/internal/logger"
	"github.com/lofichat/internal/metrics"
	"github.com/lofichat/internal/model"
	"github.com/lofichat/internal/storage"
)

// Hub ретранслирует события коллекции из шины всем подписанным WebSocket-клиентам этого инстанса.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	total       int
	maxConns    int
	sendBufSize int
	bus         storage.EventBus
	channel     string
	register    chan *Client
	unregister  chan *Client
	ready       chan struct{}
	done        chan struct{}
}

// NewHub создаёт хаб для канала коллекции channel.
func NewHub(bus storage.EventBus, channel string, maxConns, sendBufSize int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		clients:     make(map[*Client]struct{}),
		maxConns:    maxConns,
		sendBufSize: sendBufSize,
		bus:         bus,
		channel:     channel,
		register:    make(chan *Client, 64),
		unregister:  make(chan *Client, 64),
		ready:       make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Ready закрывается, когда хаб подписан на шину.
func (h *Hub) Ready() <-chan struct{} { return h.ready }

func (h *Hub) Run(ctx context.Context) {
	events, unsubscribe, err := h.bus.Subscribe(ctx, h.channel)
	if err != nil {
		logger.Errorf("ws hub subscribe %s: %v", h.channel, err)
	} else {
		defer unsubscribe()
	}
	close(h.ready)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case ev, ok := <-events:
			if !ok {
				logger.Errorf("ws hub: event stream %s closed", h.channel)
				events = nil
				continue
			}
			h.broadcast(ev)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for c := range h.clients {
		allClients = append(allClients, c)
	}
	h.clients = make(map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()
	metrics.RealtimeConnections.Set(0)
	// Unregister из readPump больше не ждёт Run.
	close(h.done)

	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting conn=%s", h.maxConns, c.id)
		c.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.total++
	h.mu.Unlock()
	metrics.RealtimeConnections.Inc()

	h.sendToClient(c, OutgoingMessage{Type: EventConnected, Payload: ConnectedPayload{
		ConnectionID: c.id,
		Channels:     c.Channels(),
	}})
	logger.Debugf("ws subscribed conn=%s participant=%s", c.id, c.participant)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, exists := h.clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.total--
	h.mu.Unlock()
	metrics.RealtimeConnections.Dec()

	// Network I/O outside the lock.
	c.Close()
}

// HandleMessage dispatches control frames from a subscriber.
func (h *Hub) HandleMessage(c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventPing:
		h.sendToClient(c, OutgoingMessage{Type: EventPong, Payload: time.Now().UTC().Format(time.RFC3339Nano)})
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "unknown event type"})
	}
}

func (h *Hub) broadcast(ev model.RealtimeEvent) {
	defer logger.DeferLogDuration("ws.broadcast", time.Now())()
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c.wants(ev.Channels) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	out := EventFrame(ev)
	for _, c := range targets {
		h.sendToClient(c, out)
	}
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
		if msg.Type == EventEvent {
			metrics.RealtimeEventsSent.Inc()
		}
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client conn=%s", c.id)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
