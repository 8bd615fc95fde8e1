// Package logger предоставляет логирование с именем сервиса и асинхронной записью,
// чтобы не блокировать ленту чата и HTTP-обработчики. Записи уходят в zerolog.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const asyncBufferSize = 8192

type level int

const (
	levelDebug level = iota
	levelInfo
	levelError
)

type entry struct {
	lvl level
	msg string
	fn  string
	dur time.Duration
}

var (
	mu       sync.RWMutex
	service  string
	out      io.Writer = os.Stderr
	logLevel           = levelInfo
	ch       chan entry
	once     sync.Once
)

func initLevel() {
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "trace":
		logLevel = levelDebug
	default:
		logLevel = levelInfo
	}
}

// sink пишет в текущий out, поэтому SetOutput действует и после старта воркера.
type sink struct{}

func (sink) Write(p []byte) (int, error) {
	mu.RLock()
	w := out
	mu.RUnlock()
	return w.Write(p)
}

func newZerolog() zerolog.Logger {
	mu.RLock()
	svc := service
	mu.RUnlock()
	var w io.Writer = sink{}
	if os.Getenv("LOG_FORMAT") == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Str("service", svc).Logger()
}

func initWorker() {
	initLevel()
	ch = make(chan entry, asyncBufferSize)
	zl := newZerolog()
	go func() {
		for e := range ch {
			switch {
			case e.fn != "":
				zl.Info().Str("fn", e.fn).Int64("duration_ms", e.dur.Milliseconds()).Msg("timing")
			case e.lvl == levelError:
				zl.Error().Msg(e.msg)
			case e.lvl == levelDebug:
				zl.Debug().Msg(e.msg)
			default:
				zl.Info().Msg(e.msg)
			}
		}
	}()
}

func enqueue(e entry) {
	once.Do(initWorker)
	select {
	case ch <- e:
	default:
		// Буфер полон — не блокируем, теряем лог
	}
}

// SetPrefix задаёт имя сервиса для всех логов ("api", "push", "companion").
// Вызывать до первой записи.
func SetPrefix(p string) {
	mu.Lock()
	service = p
	mu.Unlock()
}

// SetOutput перенаправляет вывод (терминальный клиент пишет лог в файл, а не в терминал).
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

// Info пишет информационное сообщение (асинхронно).
func Info(v ...any) {
	enqueue(entry{lvl: levelInfo, msg: fmt.Sprint(v...)})
}

// Infof форматирует и пишет информационное сообщение (асинхронно).
func Infof(format string, v ...any) {
	enqueue(entry{lvl: levelInfo, msg: fmt.Sprintf(format, v...)})
}

// Debugf пишет только при LOG_LEVEL=debug.
func Debugf(format string, v ...any) {
	once.Do(initWorker)
	if logLevel != levelDebug {
		return
	}
	enqueue(entry{lvl: levelDebug, msg: fmt.Sprintf(format, v...)})
}

// Error пишет ошибку (асинхронно).
func Error(v ...any) {
	enqueue(entry{lvl: levelError, msg: fmt.Sprint(v...)})
}

// Errorf форматирует ошибку (асинхронно).
func Errorf(format string, v ...any) {
	enqueue(entry{lvl: levelError, msg: fmt.Sprintf(format, v...)})
}

// LogDuration логирует имя функции и время выполнения в миллисекундах (асинхронно).
// При LOG_LEVEL=info логирует только вызовы дольше 100ms; при LOG_LEVEL=debug — все.
func LogDuration(fn string, start time.Time) {
	once.Do(initWorker)
	elapsed := time.Since(start)
	if logLevel == levelDebug || elapsed >= 100*time.Millisecond {
		enqueue(entry{fn: fn, dur: elapsed})
	}
}

// DeferLogDuration возвращает функцию для вызова в defer: defer logger.DeferLogDuration("HandlerName", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
