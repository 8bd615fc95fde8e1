package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/lofichat/internal/logger"
	"github.com/lofichat/internal/model"
)

var ErrNotFound = errors.New("not found")

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Create сохраняет документ. При пустом ID или "unique()" ID генерирует сервер (ULID).
func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	if m.ID == "" || m.ID == model.UniqueID {
		m.ID = ulid.Make().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, sender_id, sender_name, message_content, timestamp, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.SenderID, m.SenderName, m.MessageContent, m.Timestamp, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.Message{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, sender_id, sender_name, message_content, timestamp, created_at
		 FROM messages
		 WHERE id = $1`, id,
	).Scan(&m.ID, &m.SenderID, &m.SenderName, &m.MessageContent, &m.Timestamp, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, nil
}

// ListRecent возвращает последние limit сообщений, от новых к старым (ORDER BY timestamp DESC).
func (r *MessageRepository) ListRecent(ctx context.Context, limit, offset int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListRecent", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, sender_id, sender_name, message_content, timestamp, created_at
		 FROM messages
		 ORDER BY timestamp DESC, created_at DESC
		 LIMIT $1 OFFSET $2`, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListRecent query: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, limit)
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.SenderName, &m.MessageContent, &m.Timestamp, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("msgRepo.ListRecent scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.ListRecent rows: %w", err)
	}
	return messages, nil
}

// Count возвращает общее число документов коллекции (поле total в списке).
func (r *MessageRepository) Count(ctx context.Context) (int, error) {
	defer logger.DeferLogDuration("msg.Count", time.Now())()
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("msgRepo.Count: %w", err)
	}
	return n, nil
}

// Ping проверяет соединение с БД (для /health).
func (r *MessageRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
