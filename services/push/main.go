// Микросервис пуш-уведомлений (Web Push): подписки участников в Redis, рассылка о новых сообщениях через VAPID.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/lofichat/internal/logger"
	"github.com/lofichat/internal/middleware"
	"github.com/lofichat/internal/push"
)

const (
	subsKeyPrefix   = "push:subs:"
	participantsKey = "push:participants"
	maxSubsPerUser  = 10
	subscriptionTTL = 30 * 24 * time.Hour
)

type Config struct {
	ServerAddr     string
	RedisURL       string
	VAPIDKeysFile  string
	VAPIDSubscribe string
}

func loadConfig() *Config {
	return &Config{
		ServerAddr:     getEnv("SERVER_ADDR", ":8082"),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379"),
		VAPIDKeysFile:  os.Getenv("VAPID_KEYS_FILE"),
		VAPIDSubscribe: getEnv("VAPID_SUBSCRIBER", "lofichat-push"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type Server struct {
	redis *redis.Client
	keys  *push.VAPIDKeys
	opts  *webpush.Options
}

func main() {
	logger.SetPrefix("push")
	genVAPID := flag.Bool("gen-vapid", false, "generate VAPID keys and exit")
	flag.Parse()
	if *genVAPID {
		priv, pub, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			logger.Errorf("generate VAPID: %v", err)
			os.Exit(1)
		}
		logger.Infof("VAPID_PUBLIC_KEY=%s", pub)
		logger.Infof("VAPID_PRIVATE_KEY=%s", priv)
		return
	}
	logger.Info("starting push service")
	cfg := loadConfig()

	s := &Server{}
	if pub, priv := os.Getenv("VAPID_PUBLIC_KEY"), os.Getenv("VAPID_PRIVATE_KEY"); pub != "" && priv != "" {
		s.keys = &push.VAPIDKeys{PublicKey: pub, PrivateKey: priv}
	} else if keys, err := push.EnsureVAPIDKeys(cfg.VAPIDKeysFile); err == nil {
		s.keys = keys
	} else {
		logger.Infof("VAPID: не удалось загрузить/сгенерировать ключи: %v — отправка отключена", err)
	}
	if s.keys != nil {
		s.opts = s.keys.Options(cfg.VAPIDSubscribe, 30)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Errorf("redis url: %v", err)
		os.Exit(1)
	}
	s.redis = redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := s.redis.Ping(ctx).Err(); err != nil {
		cancel()
		logger.Errorf("redis ping: %v", err)
		os.Exit(1)
	}
	cancel()
	defer s.redis.Close()
	logger.Info("redis connected")

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(middleware.RecoverJSON)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/api/vapid-public", s.handleVAPIDPublic)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.InternalOnly)
		r.Post("/subscribe", s.handleSubscribe)
		r.Delete("/subscribe", s.handleUnsubscribe)
		r.Post("/broadcast", s.handleBroadcast)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("push server listening on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("push server: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	logger.Info("push server stopped")
}

func (s *Server) handleVAPIDPublic(w http.ResponseWriter, r *http.Request) {
	if s.keys == nil {
		http.Error(w, "push not configured", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(s.keys.PublicKey))
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req push.SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	req.ParticipantID = strings.TrimSpace(req.ParticipantID)
	sub := req.Subscription
	if req.ParticipantID == "" || sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		http.Error(w, "participant_id and subscription (endpoint, keys.p256dh, keys.auth) required", http.StatusBadRequest)
		return
	}
	raw, err := json.Marshal(sub)
	if err != nil {
		http.Error(w, "subscription encode", http.StatusInternalServerError)
		return
	}
	key := subsKeyPrefix + req.ParticipantID
	ctx := r.Context()
	pipe := s.redis.Pipeline()
	pipe.RPush(ctx, key, string(raw))
	pipe.LTrim(ctx, key, -maxSubsPerUser, -1)
	pipe.Expire(ctx, key, subscriptionTTL)
	pipe.SAdd(ctx, participantsKey, req.ParticipantID)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Errorf("subscribe redis: %v", err)
		http.Error(w, "failed to save subscription", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req push.UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	req.ParticipantID = strings.TrimSpace(req.ParticipantID)
	if req.ParticipantID == "" || req.Endpoint == "" {
		http.Error(w, "participant_id and endpoint required", http.StatusBadRequest)
		return
	}
	if err := s.removeSubscription(r.Context(), req.ParticipantID, req.Endpoint); err != nil {
		logger.Errorf("unsubscribe redis: %v", err)
		http.Error(w, "failed to remove subscription", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBroadcast отправляет уведомление всем участникам с подписками, кроме автора.
func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req push.BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()

	participants, err := s.redis.SMembers(ctx, participantsKey).Result()
	if err != nil {
		logger.Errorf("broadcast redis: %v", err)
		http.Error(w, "failed to get participants", http.StatusInternalServerError)
		return
	}
	if s.opts == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	payload, _ := json.Marshal(map[string]any{"title": req.Title, "body": req.Body, "data": req.Data})

	sent := 0
	for _, participantID := range participants {
		if participantID == req.ExceptID {
			continue
		}
		subs, err := s.subscriptions(ctx, participantID)
		if err != nil {
			logger.Errorf("broadcast subs %s: %v", participantID, err)
			continue
		}
		if len(subs) == 0 {
			s.redis.SRem(ctx, participantsKey, participantID)
			continue
		}
		for _, sub := range subs {
			wpSub := &webpush.Subscription{
				Endpoint: sub.Endpoint,
				Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
			}
			resp, err := webpush.SendNotificationWithContext(ctx, payload, wpSub, s.opts)
			if err != nil {
				logger.Errorf("send %s: %v", sub.Endpoint[:min(50, len(sub.Endpoint))], err)
				continue
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
				if err := s.removeSubscription(ctx, participantID, sub.Endpoint); err != nil {
					logger.Errorf("remove stale subscription: %v", err)
				}
				continue
			}
			sent++
		}
	}
	logger.Debugf("broadcast delivered=%d participants=%d", sent, len(participants))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) subscriptions(ctx context.Context, participantID string) ([]push.Subscription, error) {
	list, err := s.redis.LRange(ctx, subsKeyPrefix+participantID, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	subs := make([]push.Subscription, 0, len(list))
	for _, item := range list {
		var sub push.Subscription
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Endpoint != "" {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (s *Server) removeSubscription(ctx context.Context, participantID, endpoint string) error {
	key := subsKeyPrefix + participantID
	list, err := s.redis.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return err
	}
	var kept []any
	for _, item := range list {
		var sub push.Subscription
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Endpoint != endpoint {
			kept = append(kept, item)
		}
	}
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, key)
	if len(kept) > 0 {
		pipe.RPush(ctx, key, kept...)
		pipe.Expire(ctx, key, subscriptionTTL)
	} else {
		pipe.SRem(ctx, participantsKey, participantID)
	}
	_, err = pipe.Exec(ctx)
	return err
}
