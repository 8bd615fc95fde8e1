// Package focus — Pomodoro-таймер компаньона: работа и перерыв по очереди.
package focus

import (
	"fmt"
	"sync"
	"time"

	"github.com/lofichat/internal/logger"
	"github.com/lofichat/internal/model"
)

type Mode string

const (
	ModeWork  Mode = "work"
	ModeBreak Mode = "break"
)

// Notifier получает уведомление об окончании периода.
type Notifier interface {
	Notify(typ model.NotificationType, message string)
}

// State — снимок таймера.
type State struct {
	Mode    Mode
	Minutes int
	Seconds int
	Running bool
}

// String форматирует остаток как MM:SS.
func (s State) String() string {
	return fmt.Sprintf("%02d:%02d", s.Minutes, s.Seconds)
}

type Timer struct {
	mu           sync.Mutex
	workMinutes  int
	breakMinutes int
	interval     time.Duration
	notifier     Notifier
	onChange     func()
	state        State
	stop         chan struct{}
}

// New создаёт таймер в режиме работы. notifier может быть nil.
func New(workMinutes, breakMinutes int, notifier Notifier) *Timer {
	if workMinutes <= 0 {
		workMinutes = 25
	}
	if breakMinutes <= 0 {
		breakMinutes = 5
	}
	return &Timer{
		workMinutes:  workMinutes,
		breakMinutes: breakMinutes,
		interval:     time.Second,
		notifier:     notifier,
		state:        State{Mode: ModeWork, Minutes: workMinutes},
	}
}

const (
	MaxWorkMinutes  = 60
	MaxBreakMinutes = 30
)

// Durations возвращает длительность работы и перерыва в минутах.
func (t *Timer) Durations() (work, brk int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.workMinutes, t.breakMinutes
}

// SetDurations меняет длительности периодов. Значения меньше 1 оставляют прежнюю длительность,
// большие обрезаются до MaxWorkMinutes и MaxBreakMinutes. Остановленный таймер сразу получает
// новый период текущего режима; идущий отсчёт дорабатывает старый.
func (t *Timer) SetDurations(work, brk int) {
	t.mu.Lock()
	if work >= 1 {
		t.workMinutes = min(work, MaxWorkMinutes)
	}
	if brk >= 1 {
		t.breakMinutes = min(brk, MaxBreakMinutes)
	}
	if !t.state.Running {
		t.state = State{Mode: t.state.Mode, Minutes: t.period(t.state.Mode)}
	}
	t.mu.Unlock()
	t.changed()
}

// period вызывается под mu.
func (t *Timer) period(m Mode) int {
	if m == ModeBreak {
		return t.breakMinutes
	}
	return t.workMinutes
}

func (t *Timer) OnChange(fn func()) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

func (t *Timer) changed() {
	t.mu.Lock()
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Toggle запускает или останавливает отсчёт.
func (t *Timer) Toggle() {
	if t.State().Running {
		t.Stop()
		return
	}
	t.Start()
}

func (t *Timer) Start() {
	t.mu.Lock()
	if t.state.Running {
		t.mu.Unlock()
		return
	}
	t.state.Running = true
	stop := make(chan struct{})
	t.stop = stop
	interval := t.interval
	t.mu.Unlock()

	if interval > 0 {
		go t.loop(interval, stop)
	}
	t.changed()
}

func (t *Timer) loop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}

// Stop приостанавливает отсчёт, остаток сохраняется.
func (t *Timer) Stop() {
	t.mu.Lock()
	if !t.state.Running {
		t.mu.Unlock()
		return
	}
	t.halt()
	t.mu.Unlock()
	t.changed()
}

// halt вызывается под mu.
func (t *Timer) halt() {
	t.state.Running = false
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

// Reset останавливает таймер и возвращает рабочий период.
func (t *Timer) Reset() {
	t.mu.Lock()
	t.halt()
	t.state = State{Mode: ModeWork, Minutes: t.workMinutes}
	t.mu.Unlock()
	t.changed()
}

// Tick уменьшает остаток на секунду. На 00:00 таймер останавливается, режим меняется,
// загружается следующий период и отправляется уведомление. Возвращает true, если период завершён.
func (t *Timer) Tick() bool {
	t.mu.Lock()
	if !t.state.Running {
		t.mu.Unlock()
		return false
	}
	switch {
	case t.state.Seconds > 0:
		t.state.Seconds--
	case t.state.Minutes > 0:
		t.state.Minutes--
		t.state.Seconds = 59
	}
	if t.state.Minutes > 0 || t.state.Seconds > 0 {
		t.mu.Unlock()
		t.changed()
		return false
	}

	t.halt()
	var msg string
	if t.state.Mode == ModeWork {
		t.state = State{Mode: ModeBreak, Minutes: t.breakMinutes}
		msg = fmt.Sprintf("Focus session complete! Take a %d minute break.", t.breakMinutes)
	} else {
		t.state = State{Mode: ModeWork, Minutes: t.workMinutes}
		msg = "Break is over. Back to focus!"
	}
	t.mu.Unlock()

	logger.Infof("focus: %s", msg)
	if t.notifier != nil {
		t.notifier.Notify(model.NotificationTimer, msg)
	}
	t.changed()
	return true
}
