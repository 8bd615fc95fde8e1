package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lofichat/internal/model"
)

var me = model.Participant{ID: "user_me", Name: "CozyCat1"}

type fakeStore struct {
	mu       sync.Mutex
	history  []model.Message
	listErr  error
	createEr error
	created  []model.MessageData
	// beforeReturn вызывается внутри ListRecent, до возврата истории.
	beforeReturn func()
}

func (f *fakeStore) ListRecent(ctx context.Context, limit int) ([]model.Message, error) {
	if f.beforeReturn != nil {
		f.beforeReturn()
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.history) > limit {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func (f *fakeStore) Create(ctx context.Context, data model.MessageData) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createEr != nil {
		return nil, f.createEr
	}
	f.created = append(f.created, data)
	return &model.Message{ID: fmt.Sprintf("srv%d", len(f.created))}, nil
}

type fakeSub struct {
	mu           sync.Mutex
	ch           chan model.RealtimeEvent
	participants []string
	unsubscribed int
}

func newFakeSub() *fakeSub { return &fakeSub{ch: make(chan model.RealtimeEvent, 16)} }

func (f *fakeSub) Subscribe(ctx context.Context, participantID string) (<-chan model.RealtimeEvent, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.participants = append(f.participants, participantID)
	return f.ch, func() {
		f.mu.Lock()
		f.unsubscribed++
		f.mu.Unlock()
	}, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	toasts []string
}

func (f *fakeNotifier) Notify(typ model.NotificationType, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toasts = append(f.toasts, message)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.toasts)
}

func created(id, sender, content, ts string) model.RealtimeEvent {
	return model.RealtimeEvent{
		Events:  model.CreateEvents("lofi", "messages", id),
		Payload: model.Message{ID: id, SenderID: sender, SenderName: "Other", MessageContent: content, Timestamp: ts},
	}
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestHistoryIsPureReversal(t *testing.T) {
	store := &fakeStore{}
	// Новые первыми, timestamp намеренно не монотонен.
	for i := 50; i >= 1; i-- {
		ts := fmt.Sprintf("2024-01-01T10:%02d:00.000Z", (i*7)%60)
		store.history = append(store.history, model.Message{ID: fmt.Sprintf("m%d", i), Timestamp: ts})
	}
	s := New(me, store, newFakeSub(), nil, Options{})
	require.NoError(t, s.LoadHistory(context.Background()))

	got := ids(s.Messages())
	require.Len(t, got, 50)
	for i, id := range got {
		assert.Equal(t, fmt.Sprintf("m%d", i+1), id)
	}
}

func TestDuplicatesRenderedOnce(t *testing.T) {
	store := &fakeStore{history: []model.Message{{ID: "m2"}, {ID: "m1"}}}
	n := &fakeNotifier{}
	s := New(me, store, newFakeSub(), n, Options{})
	require.NoError(t, s.LoadHistory(context.Background()))

	for _, id := range []string{"m1", "m3", "m2", "m3", "m4", "m1", "m4"} {
		s.Deliver(created(id, "user_other", "hi", "t"))
	}
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, ids(s.Messages()))
	assert.Equal(t, 2, s.Unread())
	assert.Equal(t, 2, n.count())
}

func TestOwnMessagesNeverNotify(t *testing.T) {
	n := &fakeNotifier{}
	s := New(me, &fakeStore{}, newFakeSub(), n, Options{})

	assert.True(t, s.Deliver(created("a", me.ID, "mine", "t")))
	s.Open()
	s.Close()
	assert.True(t, s.Deliver(created("b", me.ID, "mine again", "t")))

	assert.Equal(t, 0, s.Unread())
	assert.Equal(t, 0, n.count())
	assert.Len(t, s.Messages(), 2)
}

func TestArrivalOrderKept(t *testing.T) {
	s := New(me, &fakeStore{}, newFakeSub(), nil, Options{})
	s.Deliver(created("late", "u", "x", "2024-01-01T10:05:00.000Z"))
	s.Deliver(created("early", "u", "x", "2024-01-01T10:00:00.000Z"))
	assert.Equal(t, []string{"late", "early"}, ids(s.Messages()))
}

func TestOnlyCreateEventsActedOn(t *testing.T) {
	s := New(me, &fakeStore{}, newFakeSub(), nil, Options{})
	ev := created("a", "u", "x", "t")
	ev.Events = []string{"databases.*.collections.*.documents.*.update"}
	assert.False(t, s.Deliver(ev))
	assert.Empty(t, s.Messages())
}

func TestOpenResetsUnreadAndToastDedup(t *testing.T) {
	n := &fakeNotifier{}
	s := New(me, &fakeStore{}, newFakeSub(), n, Options{})
	for i := 0; i < 3; i++ {
		s.Deliver(created(fmt.Sprintf("m%d", i), "user_other", "hi", "t"))
	}
	require.Equal(t, 3, s.Unread())
	require.Equal(t, 3, n.count())

	s.Open()
	assert.Equal(t, 0, s.Unread())

	// Повторная доставка при закрытом чате: notified очищен, но seen остаётся.
	s.Close()
	for i := 0; i < 3; i++ {
		assert.False(t, s.Deliver(created(fmt.Sprintf("m%d", i), "user_other", "hi", "t")))
	}
	assert.Equal(t, 3, n.count())
	assert.Equal(t, 0, s.Unread())
	assert.Len(t, s.Messages(), 3)

	// Пока чат открыт, новые сообщения не считаются непрочитанными.
	s.Open()
	s.Deliver(created("m9", "user_other", "hi", "t"))
	assert.Equal(t, 0, s.Unread())
	assert.Equal(t, 3, n.count())

	s.Close()
	s.Deliver(created("m10", "user_other", "hi", "t"))
	assert.Equal(t, 1, s.Unread())
	assert.Equal(t, 4, n.count())
}

func TestToastPreviewTruncated(t *testing.T) {
	n := &fakeNotifier{}
	s := New(me, &fakeStore{}, newFakeSub(), n, Options{})
	s.Deliver(created("a", "user_other", strings.Repeat("x", 80), "t"))
	require.Equal(t, 1, n.count())
	assert.Equal(t, "Other: "+strings.Repeat("x", 50)+"...", n.toasts[0])
}

func TestSendEmptyIsNoop(t *testing.T) {
	store := &fakeStore{}
	s := New(me, store, newFakeSub(), nil, Options{})
	for _, draft := range []string{"", "   ", "\n\t "} {
		got, err := s.Send(context.Background(), draft)
		assert.ErrorIs(t, err, ErrEmptyMessage)
		assert.Equal(t, draft, got)
	}
	assert.Empty(t, store.created)
}

func TestSendTruncatesAndClearsDraft(t *testing.T) {
	store := &fakeStore{}
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	s := New(me, store, newFakeSub(), nil, Options{Now: func() time.Time { return now }})

	got, err := s.Send(context.Background(), strings.Repeat("я", 501))
	require.NoError(t, err)
	assert.Empty(t, got)
	require.Len(t, store.created, 1)
	data := store.created[0]
	assert.Equal(t, 500, len([]rune(data.MessageContent)))
	assert.Equal(t, me.ID, data.SenderID)
	assert.Equal(t, me.Name, data.SenderName)
	assert.Equal(t, "2024-01-01T10:00:00.000Z", data.Timestamp)

	_, err = s.Send(context.Background(), "  padded  ")
	require.NoError(t, err)
	assert.Equal(t, "padded", store.created[1].MessageContent)
	assert.Empty(t, s.Messages(), "no optimistic append")
}

func TestSendFailureKeepsDraft(t *testing.T) {
	store := &fakeStore{createEr: errors.New("offline")}
	s := New(me, store, newFakeSub(), nil, Options{})
	got, err := s.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, "hello", got)
}

func TestScenarioHistoryThenLive(t *testing.T) {
	store := &fakeStore{history: []model.Message{{ID: "m1", Timestamp: "10:00"}}}
	n := &fakeNotifier{}
	s := New(me, store, newFakeSub(), n, Options{})
	require.NoError(t, s.LoadHistory(context.Background()))

	s.Deliver(created("m1", "user_other", "hi", "10:00"))
	assert.Len(t, s.Messages(), 1)

	s.Deliver(created("m2", "user_other", "hey", "10:01"))
	assert.Len(t, s.Messages(), 2)
	assert.Equal(t, 1, s.Unread())
	assert.Equal(t, 1, n.count())
}

func TestStartBuffersEventsUntilHistoryLoaded(t *testing.T) {
	sub := newFakeSub()
	n := &fakeNotifier{}
	store := &fakeStore{history: []model.Message{{ID: "m1", SenderID: "user_other"}}}
	// Событие для m1 приходит, пока история ещё грузится.
	store.beforeReturn = func() { sub.ch <- created("m1", "user_other", "hi", "t") }
	s := New(me, store, sub, n, Options{})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	sub.ch <- created("m2", "user_other", "hi", "t")

	require.Eventually(t, func() bool { return n.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"m1", "m2"}, ids(s.Messages()))
}

func TestHistoryFailureKeepsSessionUsable(t *testing.T) {
	sub := newFakeSub()
	store := &fakeStore{listErr: errors.New("down")}
	s := New(me, store, sub, nil, Options{})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.Empty(t, s.Messages())

	sub.ch <- created("m1", "user_other", "hi", "t")
	require.Eventually(t, func() bool { return len(s.Messages()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestHistoryAfterLiveAppendsAtTail(t *testing.T) {
	store := &fakeStore{history: []model.Message{{ID: "h2"}, {ID: "live"}, {ID: "h1"}}}
	s := New(me, store, newFakeSub(), nil, Options{})
	s.Deliver(created("live", "user_other", "x", "t"))
	require.NoError(t, s.LoadHistory(context.Background()))
	assert.Equal(t, []string{"live", "h1", "h2"}, ids(s.Messages()))
}

func TestResubscribeKeepsFeedAppendOnly(t *testing.T) {
	sub := newFakeSub()
	store := &fakeStore{history: []model.Message{{ID: "m2"}, {ID: "m1"}}}
	s := New(me, store, sub, nil, Options{})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	sub.ch <- created("m3", "user_other", "hi", "t")
	require.Eventually(t, func() bool { return len(s.Messages()) == 3 }, time.Second, 5*time.Millisecond)

	// m4 создан, пока участник переключался.
	store.history = []model.Message{{ID: "m4"}, {ID: "m3"}, {ID: "m2"}, {ID: "m1"}}
	require.NoError(t, s.SetParticipant(context.Background(), model.Participant{ID: "user_new", Name: "MistyFox3"}))

	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, ids(s.Messages()))
}

func TestStopFromOnChangeDoesNotBlock(t *testing.T) {
	sub := newFakeSub()
	s := New(me, &fakeStore{}, sub, nil, Options{})
	stopped := make(chan struct{})
	var once sync.Once
	s.OnChange(func() {
		if len(s.Messages()) > 0 {
			once.Do(func() {
				s.Stop()
				close(stopped)
			})
		}
	})
	require.NoError(t, s.Start(context.Background()))

	sub.ch <- created("m1", "user_other", "hi", "t")
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop inside OnChange blocked")
	}
	sub.mu.Lock()
	assert.Equal(t, 1, sub.unsubscribed)
	sub.mu.Unlock()

	sub.ch <- created("m2", "user_other", "hi", "t")
	assert.Never(t, func() bool { return len(s.Messages()) > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestSetParticipantResubscribes(t *testing.T) {
	sub := newFakeSub()
	s := New(me, &fakeStore{}, sub, nil, Options{})
	require.NoError(t, s.Start(context.Background()))

	renamed := model.Participant{ID: me.ID, Name: "SleepyOwl9"}
	require.NoError(t, s.SetParticipant(context.Background(), renamed))
	assert.Equal(t, []string{me.ID}, sub.participants)

	other := model.Participant{ID: "user_new", Name: "MistyFox3"}
	require.NoError(t, s.SetParticipant(context.Background(), other))
	assert.Equal(t, []string{me.ID, "user_new"}, sub.participants)
	assert.Equal(t, 1, sub.unsubscribed)

	s.Stop()
	assert.Equal(t, 2, sub.unsubscribed)

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	s.Stop()
}
