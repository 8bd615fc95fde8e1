// Package feed сводит историю и realtime-поток коллекции сообщений в одну ленту без дублей
// и решает, какие новые сообщения заслуживают уведомления.
//
// Лента только дописывается в хвост в порядке прихода; сортировка по timestamp не выполняется.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lofichat/internal/logger"
	"github.com/lofichat/internal/model"
)

// ErrEmptyMessage — после trim отправлять нечего.
var ErrEmptyMessage = errors.New("feed: empty message")

// Store — удалённая коллекция сообщений.
type Store interface {
	// ListRecent возвращает до limit последних документов, новые первыми.
	ListRecent(ctx context.Context, limit int) ([]model.Message, error)
	Create(ctx context.Context, data model.MessageData) (*model.Message, error)
}

// Subscriber открывает realtime-поток событий коллекции.
type Subscriber interface {
	Subscribe(ctx context.Context, participantID string) (<-chan model.RealtimeEvent, func(), error)
}

// Notifier показывает всплывающее уведомление.
type Notifier interface {
	Notify(typ model.NotificationType, message string)
}

type Options struct {
	HistoryLimit     int
	MaxMessageLength int
	PreviewLength    int
	Now              func() time.Time
}

func (o Options) withDefaults() Options {
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 50
	}
	if o.MaxMessageLength <= 0 {
		o.MaxMessageLength = 500
	}
	if o.PreviewLength <= 0 {
		o.PreviewLength = 50
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Synchronizer — лента чата одного участника.
type Synchronizer struct {
	store    Store
	sub      Subscriber
	notifier Notifier
	opts     Options

	mu          sync.Mutex
	participant model.Participant
	messages    []model.Message
	// seen — id, уже попавшие в ленту; не очищается до конца сессии.
	seen map[string]struct{}
	// notified — id, по которым уже был toast; очищается при открытии чата.
	notified map[string]struct{}
	unread   int
	open     bool
	onChange func()
	stop     func()
}

// New создаёт ленту для участника p. notifier может быть nil.
func New(p model.Participant, store Store, sub Subscriber, notifier Notifier, opts Options) *Synchronizer {
	return &Synchronizer{
		store:       store,
		sub:         sub,
		notifier:    notifier,
		opts:        opts.withDefaults(),
		participant: p,
		seen:        make(map[string]struct{}),
		notified:    make(map[string]struct{}),
	}
}

// OnChange задаёт колбэк, вызываемый после каждого изменения ленты или счётчика.
// Колбэк выполняется в goroutine доставки событий и не должен надолго блокироваться.
func (s *Synchronizer) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Synchronizer) changed() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Start подписывается на realtime-поток, затем загружает историю и только после этого
// начинает обрабатывать события: id из истории попадают в seen раньше любого события.
// Ошибка загрузки истории не фатальна.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return errors.New("feed: already started")
	}
	participantID := s.participant.ID
	s.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	events, unsubscribe, err := s.sub.Subscribe(subCtx, participantID)
	if err != nil {
		cancel()
		return fmt.Errorf("feed.Start: %w", err)
	}
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		cancel()
		unsubscribe()
		return errors.New("feed: already started")
	}
	s.stop = func() {
		cancel()
		unsubscribe()
	}
	s.mu.Unlock()

	if err := s.LoadHistory(ctx); err != nil {
		logger.Errorf("feed: history: %v", err)
	}

	go func() {
		for {
			select {
			case <-subCtx.Done():
				return
			case ev, ok := <-events:
				if !ok || subCtx.Err() != nil {
					return
				}
				s.Deliver(ev)
			}
		}
	}()
	logger.Debugf("feed: subscribed participant=%s", participantID)
	return nil
}

// Stop закрывает подписку и не ждёт goroutine доставки, поэтому его можно вызывать из OnChange.
// Загрузка истории, если идёт, не прерывается.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// SetParticipant меняет участника. Смена id переоткрывает подписку; смена имени влияет только на отправку.
func (s *Synchronizer) SetParticipant(ctx context.Context, p model.Participant) error {
	s.mu.Lock()
	prev := s.participant
	s.participant = p
	running := s.stop != nil
	s.mu.Unlock()
	if !running || prev.ID == p.ID {
		return nil
	}
	s.Stop()
	return s.Start(ctx)
}

// Participant возвращает текущего участника.
func (s *Synchronizer) Participant() model.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participant
}

// LoadHistory загружает последние сообщения. Ответ приходит новыми первыми и просто
// разворачивается; ещё не виденные документы дописываются в хвост, лента только растёт.
func (s *Synchronizer) LoadHistory(ctx context.Context) error {
	docs, err := s.store.ListRecent(ctx, s.opts.HistoryLimit)
	if err != nil {
		return fmt.Errorf("feed.LoadHistory: %w", err)
	}

	s.mu.Lock()
	history := make([]model.Message, 0, len(docs))
	for i := len(docs) - 1; i >= 0; i-- {
		m := docs[i]
		if _, ok := s.seen[m.ID]; ok {
			continue
		}
		s.seen[m.ID] = struct{}{}
		history = append(history, m)
	}
	s.messages = append(s.messages, history...)
	s.mu.Unlock()

	s.changed()
	return nil
}

// Deliver обрабатывает realtime-событие. Возвращает true, если сообщение добавлено в ленту.
func (s *Synchronizer) Deliver(ev model.RealtimeEvent) bool {
	if !ev.Has(model.EventDocumentCreate) {
		return false
	}
	m := ev.Payload
	if m.ID == "" {
		return false
	}

	s.mu.Lock()
	if _, ok := s.seen[m.ID]; ok {
		s.mu.Unlock()
		logger.Debugf("feed: duplicate %s skipped", m.ID)
		return false
	}
	s.seen[m.ID] = struct{}{}
	for _, existing := range s.messages {
		if existing.ID == m.ID {
			s.mu.Unlock()
			return false
		}
	}

	toast := ""
	if m.SenderID != s.participant.ID && !s.open {
		s.unread++
		if _, ok := s.notified[m.ID]; !ok {
			s.notified[m.ID] = struct{}{}
			toast = m.SenderName + ": " + model.Preview(m.MessageContent, s.opts.PreviewLength)
		}
	}
	s.messages = append(s.messages, m)
	s.mu.Unlock()

	if toast != "" && s.notifier != nil {
		s.notifier.Notify(model.NotificationChat, toast)
	}
	s.changed()
	return true
}

// Send отправляет черновик. Возвращает новое значение черновика: "" после успешной отправки,
// исходный draft при пустом сообщении или ошибке. Сообщение в ленту не добавляется:
// оно вернётся через realtime-поток.
func (s *Synchronizer) Send(ctx context.Context, draft string) (string, error) {
	text := draft
	if r := []rune(text); len(r) > s.opts.MaxMessageLength {
		text = string(r[:s.opts.MaxMessageLength])
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return draft, ErrEmptyMessage
	}

	p := s.Participant()
	_, err := s.store.Create(ctx, model.MessageData{
		SenderID:       p.ID,
		SenderName:     p.Name,
		MessageContent: text,
		Timestamp:      model.FormatTimestamp(s.opts.Now()),
	})
	if err != nil {
		logger.Errorf("feed: send: %v", err)
		return draft, fmt.Errorf("feed.Send: %w", err)
	}
	return "", nil
}

// Open отмечает чат открытым: сбрасывает счётчик непрочитанных и набор показанных toast.
// seen не очищается.
func (s *Synchronizer) Open() {
	s.mu.Lock()
	s.open = true
	s.unread = 0
	s.notified = make(map[string]struct{})
	s.mu.Unlock()
	s.changed()
}

func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()
	s.changed()
}

func (s *Synchronizer) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *Synchronizer) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Messages возвращает копию ленты, старые первыми.
func (s *Synchronizer) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}
