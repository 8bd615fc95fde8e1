// Package notify — лента уведомлений компаньона и текущий всплывающий toast.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lofichat/internal/model"
)

// MaxItems — сколько уведомлений хранится в ленте.
const MaxItems = 50

type Center struct {
	mu            sync.Mutex
	items         []model.Notification
	toast         *model.Notification
	toastTimer    *time.Timer
	toastDuration time.Duration
	now           func() time.Time
	onChange      func()
}

// NewCenter создаёт центр уведомлений; toast скрывается через toastDuration.
func NewCenter(toastDuration time.Duration) *Center {
	if toastDuration <= 0 {
		toastDuration = 4 * time.Second
	}
	return &Center{toastDuration: toastDuration, now: time.Now}
}

// OnChange задаёт колбэк на любое изменение ленты или toast.
func (c *Center) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *Center) changed() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Add добавляет уведомление в начало ленты и показывает его как toast.
func (c *Center) Add(typ model.NotificationType, message string) model.Notification {
	n := model.Notification{
		ID:        uuid.NewString(),
		Message:   message,
		Timestamp: c.now(),
		Type:      typ,
	}

	c.mu.Lock()
	c.items = append([]model.Notification{n}, c.items...)
	if len(c.items) > MaxItems {
		c.items = c.items[:MaxItems]
	}
	toast := n
	c.toast = &toast
	if c.toastTimer != nil {
		c.toastTimer.Stop()
	}
	id := n.ID
	c.toastTimer = time.AfterFunc(c.toastDuration, func() { c.expire(id) })
	c.mu.Unlock()

	c.changed()
	return n
}

// Notify вызывает Add без результата.
func (c *Center) Notify(typ model.NotificationType, message string) {
	c.Add(typ, message)
}

func (c *Center) expire(id string) {
	c.mu.Lock()
	if c.toast == nil || c.toast.ID != id {
		c.mu.Unlock()
		return
	}
	c.toast = nil
	c.mu.Unlock()
	c.changed()
}

// Toast возвращает текущий toast, если он ещё виден.
func (c *Center) Toast() (model.Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.toast == nil {
		return model.Notification{}, false
	}
	return *c.toast, true
}

// DismissToast скрывает toast досрочно.
func (c *Center) DismissToast() {
	c.mu.Lock()
	if c.toastTimer != nil {
		c.toastTimer.Stop()
	}
	c.toast = nil
	c.mu.Unlock()
	c.changed()
}

// Items возвращает ленту, новые первыми.
func (c *Center) Items() []model.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Notification, len(c.items))
	copy(out, c.items)
	return out
}

// Clear очищает ленту. Текущий toast досматривается до истечения.
func (c *Center) Clear() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
	c.changed()
}
