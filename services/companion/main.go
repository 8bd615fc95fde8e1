// Терминальный компаньон: мировой чат, Pomodoro-таймер и лента уведомлений.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lofichat/internal/config"
	"github.com/lofichat/internal/docstore"
	"github.com/lofichat/internal/feed"
	"github.com/lofichat/internal/focus"
	"github.com/lofichat/internal/identity"
	"github.com/lofichat/internal/localstore"
	"github.com/lofichat/internal/logger"
	"github.com/lofichat/internal/notify"
)

func main() {
	logger.SetPrefix("companion")
	apiURL := flag.String("api", "", "API base URL (overrides API_BASE_URL)")
	flag.Parse()

	cfg := config.Load()
	if *apiURL != "" {
		cfg.Companion.APIBaseURL = *apiURL
	}
	logFile := cfg.Companion.LogFile
	if logFile == "" {
		logFile = filepath.Join(filepath.Dir(cfg.Companion.LocalStorePath), "companion.log")
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err == nil {
		if f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			defer f.Close()
			logger.SetOutput(f)
		}
	}
	logger.Infof("starting companion api=%s", cfg.Companion.APIBaseURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var local localstore.Store
	if s, err := localstore.OpenSQLite(ctx, cfg.Companion.LocalStorePath); err != nil {
		logger.Errorf("local store: %v (идентичность только в памяти)", err)
		local = localstore.NewMemory()
	} else {
		local = s
	}
	defer local.Close()

	me := identity.Load(ctx, local)
	center := notify.NewCenter(cfg.Companion.ToastDuration)
	timer := focus.New(cfg.Companion.WorkMinutes, cfg.Companion.BreakMinutes, center)
	docs := docstore.New(cfg.Companion.APIBaseURL, cfg.Collection)
	chat := feed.New(me, docs, docs, center, feed.Options{
		HistoryLimit:     cfg.Chat.HistoryLimit,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		PreviewLength:    cfg.Chat.PreviewLength,
	})

	a := newApp(ctx, chat, center, timer, local, cfg.Chat.MaxMessageLength)
	p := tea.NewProgram(a, tea.WithAltScreen())
	// Колбэки приходят и из Update, поэтому Send не должен блокировать цикл программы.
	refresh := func() { go p.Send(refreshMsg{}) }
	chat.OnChange(refresh)
	center.OnChange(refresh)
	timer.OnChange(refresh)

	// Подписка и история загружаются в фоне, чтобы интерфейс открылся сразу.
	go func() {
		if err := chat.Start(ctx); err != nil {
			logger.Errorf("feed start: %v", err)
			p.Send(statusMsg("chat unavailable: " + err.Error()))
		}
	}()

	if _, err := p.Run(); err != nil {
		logger.Errorf("companion: %v", err)
	}
	timer.Stop()
	chat.Stop()
	logger.Info("companion stopped")
	// Даём асинхронному логгеру дописать хвост.
	time.Sleep(50 * time.Millisecond)
}
