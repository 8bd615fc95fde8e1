package model

import "time"

type NotificationType string

const (
	NotificationMusic NotificationType = "music"
	NotificationTimer NotificationType = "timer"
	NotificationInfo  NotificationType = "info"
	NotificationChat  NotificationType = "chat"
)

// Notification — элемент ленты уведомлений и тоста.
type Notification struct {
	ID        string           `json:"id"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
	Type      NotificationType `json:"type,omitempty"`
}
