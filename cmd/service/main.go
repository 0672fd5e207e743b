package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"musico/internal/auth"
	"musico/internal/catalog"
	"musico/internal/config"
	"musico/internal/logger"
	"musico/internal/queue"
	"musico/internal/realtime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "musico: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "musico: logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("musico stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// Redis
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		// queue operations degrade to soft failures until Redis is back
		log.Warn().Err(err).Msg("redis not reachable at startup")
	}

	// Track catalog
	var resolver queue.TrackResolver
	if cfg.CatalogEnabled() {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect catalog database: %w", err)
		}
		defer pool.Close()
		if err := catalog.AutoMigrate(ctx, pool); err != nil {
			return err
		}
		resolver = catalog.New(pool, log)
	} else {
		log.Info().Msg("DATABASE_URL not set, track ids are queued without metadata")
	}

	store := queue.NewStore(rdb, cfg.QueueKeyPrefix, cfg.QueueTTL, log)
	queues := queue.NewHandler(store, resolver, log)

	// Hub + relay
	hub := realtime.NewHub(log)
	go hub.Run(ctx)

	var fanout *realtime.Fanout
	if cfg.RelayFanout {
		fanout = realtime.NewFanout(rdb, hub, log)
		go func() {
			if err := fanout.Run(ctx); err != nil {
				log.Error().Err(err).Msg("relay fanout stopped")
			}
		}()
	}

	authn := auth.NewAuthenticator(auth.NewVerifier(cfg.JWTSecret))
	relay := realtime.NewServer(ctx, hub, authn, store, realtime.Options{
		FrontendBaseURL: cfg.FrontendBaseURL,
		Fanout:          fanout,
	}, log)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newRouter(queues, relay, cfg.RequestTimeout, cfg.MaxBodyBytes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Bool("catalog", resolver != nil).Bool("fanout", fanout != nil).Msg("musico listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
