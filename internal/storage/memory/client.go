package memory

import (
	"context"
	"sync"
	"time"

	"github.com/lofichat/internal/model"
)

const subscriberBuffer = 64

// Client реализует storage.EventBus в памяти процесса (режим -dev, тесты).
type Client struct {
	mu     sync.RWMutex
	subs   map[string]map[chan model.RealtimeEvent]struct{}
	limit  map[string][]time.Time
	closed bool
}

func New() *Client {
	return &Client{
		subs:  make(map[string]map[chan model.RealtimeEvent]struct{}),
		limit: make(map[string][]time.Time),
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, set := range c.subs {
		for ch := range set {
			close(ch)
		}
	}
	c.subs = make(map[string]map[chan model.RealtimeEvent]struct{})
	return nil
}

// Publish рассылает событие подписчикам канала. Медленный подписчик теряет событие.
func (c *Client) Publish(ctx context.Context, channel string, ev model.RealtimeEvent) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for ch := range c.subs[channel] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (c *Client) Subscribe(ctx context.Context, channel string) (<-chan model.RealtimeEvent, func(), error) {
	ch := make(chan model.RealtimeEvent, subscriberBuffer)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}, nil
	}
	if _, ok := c.subs[channel]; !ok {
		c.subs[channel] = make(map[chan model.RealtimeEvent]struct{})
	}
	c.subs[channel][ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if set, ok := c.subs[channel]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(c.subs, channel)
				}
			}
		})
	}
	return ch, unsubscribe, nil
}

func (c *Client) CheckRateLimit(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	cut := now.Add(-window)
	var kept []time.Time
	for _, t := range c.limit[key] {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= max {
		c.limit[key] = kept
		return false, nil
	}
	c.limit[key] = append(kept, now)
	return true, nil
}
