package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/nutrisensia/scheduling-service/internal/booking"
	"github.com/nutrisensia/scheduling-service/internal/config"
	"github.com/nutrisensia/scheduling-service/internal/db"
	"github.com/nutrisensia/scheduling-service/internal/notify"
	redisclient "github.com/nutrisensia/scheduling-service/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("config load error")
	}

	log := newLogger(cfg.Env)
	log.Info().Str("env", cfg.Env).Str("schedule", cfg.NotifyCronSpec).Msg("notify-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	repo := booking.NewPgRepository(pgPool)
	locker := redisclient.NewRedisProviderLocker(rdb, cfg.LockTTL)
	svc := booking.NewService(repo, locker, cfg, log)
	dispatcher := notify.NewLogDispatcher(log)

	// Run once at startup
	runOnce(rootCtx, svc, dispatcher, log)

	c := cron.New()
	_, err = c.AddFunc(cfg.NotifyCronSpec, func() {
		runOnce(rootCtx, svc, dispatcher, log)
	})
	if err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.NotifyCronSpec).Msg("invalid notify schedule")
	}
	c.Start()

	<-rootCtx.Done()
	log.Info().Msg("shutdown signal received, stopping notify worker")

	stopCtx := c.Stop()
	<-stopCtx.Done()
}

func runOnce(ctx context.Context, svc *booking.Service, dispatcher notify.Dispatcher, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	delivered, err := svc.DeliverQueuedNotifications(runCtx, dispatcher)
	if err != nil {
		log.Error().Err(err).Msg("notification sweep error")
		return
	}
	log.Info().Int("delivered", delivered).Dur("took", time.Since(start)).Msg("notification sweep complete")
}

func newLogger(env string) zerolog.Logger {
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
