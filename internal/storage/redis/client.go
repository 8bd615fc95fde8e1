package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lofichat/internal/logger"
	"github.com/lofichat/internal/model"
)

const (
	keyPrefixChannel   = "realtime:"
	keyPrefixRateLimit = "rate:"
	subscriberBuffer   = 64
)

// Client реализует storage.EventBus поверх Redis Pub/Sub — события доходят до клиентов
// любого инстанса API.
type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// Ping проверяет соединение (для /health).
func (c *Client) Ping(ctx context.Context) error {
	return c.cli.Ping(ctx).Err()
}

// Publish публикует событие в канал realtime:{channel}.
func (c *Client) Publish(ctx context.Context, channel string, ev model.RealtimeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis publish marshal: %w", err)
	}
	if err := c.cli.Publish(ctx, keyPrefixChannel+channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe подписывается на realtime:{channel}. Поток закрывается после отписки или отмены ctx.
func (c *Client) Subscribe(ctx context.Context, channel string) (<-chan model.RealtimeEvent, func(), error) {
	ps := c.cli.Subscribe(ctx, keyPrefixChannel+channel)
	// Дожидаемся подтверждения подписки, иначе ранние Publish теряются
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan model.RealtimeEvent, subscriberBuffer)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var ev model.RealtimeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Errorf("redis subscribe %s: bad payload: %v", channel, err)
				continue
			}
			select {
			case out <- ev:
			default:
				logger.Errorf("redis subscribe %s: buffer full, event %s dropped", channel, ev.Payload.ID)
			}
		}
	}()
	return out, func() { ps.Close() }, nil
}

// CheckRateLimit считает вызовы в rate:{key}: макс. max за окно window.
func (c *Client) CheckRateLimit(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	k := keyPrefixRateLimit + key
	n, err := c.cli.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		c.cli.Expire(ctx, k, window)
	}
	return n <= int64(max), nil
}
