package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/manenim/resilient-rate-limiter/pkg/limiter"
)

func main() {
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := loadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
	store, err := limiter.NewRedisStore(client,
		limiter.WithTimeout(500*time.Millisecond),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to init redis store")
	}
	defer store.Close()

	recorder, err := limiter.NewPrometheusRecorder(prometheus.DefaultRegisterer)
	if err != nil {
		log.WithError(err).Fatal("failed to register metrics")
	}

	l, err := limiter.New(store, cfg.limiter,
		limiter.WithLogger(log),
		limiter.WithRecorder(recorder),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to create limiter")
	}
	l.OnBreakerStateChange(func(from, to limiter.BreakerState) {
		log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).
			Warn("counter store breaker transition")
	})

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware(l))
		r.Get("/ping", func(w http.ResponseWriter, req *http.Request) {
			_, _ = w.Write([]byte("pong\n"))
		})
	})

	srv := &http.Server{Addr: ":" + cfg.port, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"addr": srv.Addr, "redis": cfg.redisAddr}).
			Info("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

type config struct {
	port      string
	redisAddr string
	limiter   limiter.Config
}

func loadConfig() (config, error) {
	cfg := config{
		port:      getEnv("PORT", "8080"),
		redisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
	}

	maxRequests, err := strconv.ParseInt(getEnv("RATE_LIMIT_MAX_REQUESTS", "100"), 10, 64)
	if err != nil {
		return config{}, err
	}
	windowSeconds, err := strconv.Atoi(getEnv("RATE_LIMIT_WINDOW_SECONDS", "60"))
	if err != nil {
		return config{}, err
	}
	skipFailed, err := strconv.ParseBool(getEnv("RATE_LIMIT_SKIP_FAILED_REQUESTS", "false"))
	if err != nil {
		return config{}, err
	}

	cfg.limiter = limiter.Config{
		Window:             time.Duration(windowSeconds) * time.Second,
		MaxRequests:        maxRequests,
		Whitelist:          splitList(os.Getenv("RATE_LIMIT_WHITELIST")),
		SkipFailedRequests: skipFailed,
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
