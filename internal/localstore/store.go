// Package localstore — локальное key/value-хранилище клиента (аналог localStorage браузера).
package localstore

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound — ключа нет в хранилище.
var ErrNotFound = errors.New("localstore: key not found")

// Store хранит строковые значения по ключу между запусками клиента.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Memory — хранилище в памяти процесса (тесты и fallback, когда диск недоступен).
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Close() error { return nil }
