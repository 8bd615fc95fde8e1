package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lofichat/internal/feed"
	"github.com/lofichat/internal/focus"
	"github.com/lofichat/internal/identity"
	"github.com/lofichat/internal/localstore"
	"github.com/lofichat/internal/model"
	"github.com/lofichat/internal/notify"
)

const visibleMessages = 15

type refreshMsg struct{}

type statusMsg string

type sentMsg struct {
	draft string
	err   error
}

type renamedMsg struct {
	participant model.Participant
	err         error
}

// app — модель bubbletea поверх ленты, таймера и уведомлений.
type app struct {
	ctx      context.Context
	chat     *feed.Synchronizer
	center   *notify.Center
	timer    *focus.Timer
	local    localstore.Store
	maxInput int

	input             []rune
	status            string
	showNotifications bool
}

func newApp(ctx context.Context, chat *feed.Synchronizer, center *notify.Center, timer *focus.Timer, local localstore.Store, maxInput int) *app {
	if maxInput <= 0 {
		maxInput = 500
	}
	return &app{ctx: ctx, chat: chat, center: center, timer: timer, local: local, maxInput: maxInput}
}

func (a *app) Init() tea.Cmd { return nil }

func (a *app) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)
	case refreshMsg:
		return a, nil
	case statusMsg:
		a.status = string(msg)
		return a, nil
	case sentMsg:
		switch {
		case msg.err == nil:
			a.input = []rune(msg.draft)
			a.status = ""
		case errors.Is(msg.err, feed.ErrEmptyMessage):
		default:
			a.status = "not sent, try again"
		}
		return a, nil
	case renamedMsg:
		if msg.err != nil {
			a.status = "name changed for this session only"
		} else {
			a.status = "you are now " + msg.participant.Name
		}
		return a, nil
	}
	return a, nil
}

func (a *app) handleKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.Type {
	case tea.KeyCtrlC:
		return a, tea.Quit
	case tea.KeyEnter:
		return a, a.submit()
	case tea.KeyBackspace:
		if len(a.input) > 0 {
			a.input = a.input[:len(a.input)-1]
		}
	case tea.KeySpace:
		a.appendInput(' ')
	case tea.KeyRunes:
		a.appendInput(k.Runes...)
	}
	return a, nil
}

// appendInput ограничивает черновик длиной сообщения, как поле ввода с maxLength.
func (a *app) appendInput(r ...rune) {
	for _, c := range r {
		if len(a.input) >= a.maxInput {
			return
		}
		a.input = append(a.input, c)
	}
}

func (a *app) submit() tea.Cmd {
	line := string(a.input)
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "/") {
		a.input = a.input[:0]
		return a.command(strings.Fields(trimmed))
	}
	ctx, chat := a.ctx, a.chat
	return func() tea.Msg {
		draft, err := chat.Send(ctx, line)
		return sentMsg{draft: draft, err: err}
	}
}

func (a *app) command(args []string) tea.Cmd {
	a.status = ""
	switch args[0] {
	case "/open":
		a.chat.Open()
	case "/close":
		a.chat.Close()
	case "/name":
		ctx, local, chat := a.ctx, a.local, a.chat
		return func() tea.Msg {
			p, err := identity.Regenerate(ctx, local, chat.Participant())
			if subErr := chat.SetParticipant(ctx, p); subErr != nil {
				return statusMsg("chat unavailable: " + subErr.Error())
			}
			return renamedMsg{participant: p, err: err}
		}
	case "/timer":
		sub := ""
		if len(args) > 1 {
			sub = args[1]
		}
		switch sub {
		case "start":
			a.timer.Start()
		case "stop":
			a.timer.Stop()
		case "reset":
			a.timer.Reset()
		case "work", "break":
			n := 0
			if len(args) > 2 {
				n, _ = strconv.Atoi(args[2])
			}
			if n < 1 {
				a.status = "usage: /timer " + sub + " <minutes>"
				break
			}
			if sub == "work" {
				a.timer.SetDurations(n, 0)
			} else {
				a.timer.SetDurations(0, n)
			}
			work, brk := a.timer.Durations()
			a.status = fmt.Sprintf("work %d min, break %d min", work, brk)
		case "":
			a.timer.Toggle()
		default:
			a.status = "usage: /timer start|stop|reset|work N|break N"
		}
	case "/notifications":
		a.showNotifications = !a.showNotifications
	case "/clear":
		a.center.Clear()
	case "/quit":
		return tea.Quit
	default:
		a.status = "unknown command " + args[0]
	}
	return nil
}

func (a *app) View() string {
	var b strings.Builder
	p := a.chat.Participant()
	st := a.timer.State()
	run := "paused"
	if st.Running {
		run = "running"
	}
	fmt.Fprintf(&b, "lofichat | %s | %s %s (%s) | unread %d\n", p.Name, st.Mode, st, run, a.chat.Unread())
	b.WriteString(strings.Repeat("-", 60) + "\n")

	if a.chat.IsOpen() {
		msgs := a.chat.Messages()
		if len(msgs) > visibleMessages {
			msgs = msgs[len(msgs)-visibleMessages:]
		}
		if len(msgs) == 0 {
			b.WriteString("  no messages yet, say hi\n")
		}
		for _, m := range msgs {
			who := m.SenderName
			if m.SenderID == p.ID {
				who = "you"
			}
			fmt.Fprintf(&b, "  %s %s: %s\n", clock(m.Timestamp), who, m.MessageContent)
		}
	} else {
		b.WriteString("  chat closed, /open to read\n")
	}

	if a.showNotifications {
		b.WriteString(strings.Repeat("-", 60) + "\n")
		items := a.center.Items()
		if len(items) == 0 {
			b.WriteString("  no notifications\n")
		}
		for _, n := range items {
			fmt.Fprintf(&b, "  [%s] %s %s\n", n.Type, n.Timestamp.Format("15:04"), n.Message)
		}
	}

	b.WriteString(strings.Repeat("-", 60) + "\n")
	if toast, ok := a.center.Toast(); ok {
		fmt.Fprintf(&b, "* %s\n", toast.Message)
	}
	fmt.Fprintf(&b, "> %s\n", string(a.input))
	if a.status != "" {
		b.WriteString(a.status + "\n")
	}
	b.WriteString("/open /close /name /timer [start|stop|reset|work N|break N] /notifications /clear /quit\n")
	return b.String()
}

// clock показывает HH:MM из ISO-8601 timestamp в локальном времени.
func clock(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return "--:--"
	}
	return t.Local().Format("15:04")
}
