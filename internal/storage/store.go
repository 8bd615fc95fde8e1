package storage

import (
	"context"
	"time"

	"github.com/lofichat/internal/model"
)

// EventBus — шина realtime-событий коллекции и лимиты отправки.
// Реализации: redis.Client (несколько инстансов API), memory.Client (-dev без Redis).
type EventBus interface {
	Publish(ctx context.Context, channel string, ev model.RealtimeEvent) error
	// Subscribe возвращает поток событий канала и функцию отписки.
	Subscribe(ctx context.Context, channel string) (<-chan model.RealtimeEvent, func(), error)
	// CheckRateLimit: не более max вызовов по key за window.
	CheckRateLimit(ctx context.Context, key string, max int, window time.Duration) (allowed bool, err error)
	Close() error
}
