package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/npezzotti/go-chatroom-realtime/internal/api"
	"github.com/npezzotti/go-chatroom-realtime/internal/cache"
	"github.com/npezzotti/go-chatroom-realtime/internal/config"
	"github.com/npezzotti/go-chatroom-realtime/internal/database"
	"github.com/npezzotti/go-chatroom-realtime/internal/relay"
	"github.com/npezzotti/go-chatroom-realtime/internal/server"
	"github.com/npezzotti/go-chatroom-realtime/internal/stats"
)

const (
	defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="
	localCacheSize    = 10000
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func env(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

var (
	addr               string
	driver             string
	dsn                string
	signingKey         string
	allowedOrigins     stringSliceFlag
	redisUrl           string
	natsUrl            string
	membershipCacheTTL time.Duration
	presenceCacheTTL   time.Duration
	maxPageSize        int
)

func main() {
	logger := log.New(os.Stderr, "[gochat] ", log.LstdFlags)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Fatal("load .env:", err)
	}

	flag.StringVar(&addr, "addr", env("GOCHAT_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&driver, "db-driver", env("GOCHAT_DB_DRIVER", config.DriverPostgres), "database driver (postgres or sqlite)")
	flag.StringVar(&dsn, "dsn", env("GOCHAT_DSN", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "database connection string")
	flag.StringVar(&signingKey, "signing-key", env("GOCHAT_SIGNING_KEY", defaultSigningKey), "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&redisUrl, "redis-url", env("GOCHAT_REDIS_URL", ""), "redis URL for the presence cache (in-process cache when empty)")
	flag.StringVar(&natsUrl, "nats-url", env("GOCHAT_NATS_URL", ""), "NATS URL for relaying room broadcasts between servers")
	flag.DurationVar(&membershipCacheTTL, "membership-cache-ttl", envDuration("GOCHAT_MEMBERSHIP_CACHE_TTL", 0), "how long membership checks are cached")
	flag.DurationVar(&presenceCacheTTL, "presence-cache-ttl", envDuration("GOCHAT_PRESENCE_CACHE_TTL", 0), "how long cached statuses live")
	flag.IntVar(&maxPageSize, "max-page-size", envInt("GOCHAT_MAX_PAGE_SIZE", 0), "largest page a client may request")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		if v := os.Getenv("GOCHAT_ALLOWED_ORIGINS"); v != "" {
			allowedOrigins.Set(v)
		}
	}

	cfg, err := config.NewConfig(config.Params{
		ServerAddr:         addr,
		DatabaseDriver:     driver,
		DatabaseDSN:        dsn,
		SigningKey:         signingKey,
		AllowedOrigins:     allowedOrigins,
		RedisURL:           redisUrl,
		NatsURL:            natsUrl,
		MembershipCacheTTL: membershipCacheTTL,
		PresenceCacheTTL:   presenceCacheTTL,
		MaxPageSize:        maxPageSize,
	})
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	var presenceCache cache.PresenceCache
	if cfg.RedisURL != "" {
		presenceCache, err = cache.NewRedisPresenceCache(cfg.RedisURL, cfg.PresenceCacheTTL)
		if err != nil {
			logger.Fatal("presence cache:", err)
		}
	} else {
		presenceCache = cache.NewLocalPresenceCache(localCacheSize, cfg.PresenceCacheTTL)
	}
	defer presenceCache.Close()

	opts := server.Options{
		MembershipCacheTTL: cfg.MembershipCacheTTL,
		PresenceCache:      presenceCache,
	}

	var natsRelay *relay.NatsRelay
	if cfg.NatsURL != "" {
		natsRelay, err = relay.NewNatsRelay(cfg.NatsURL, uuid.NewString(), logger)
		if err != nil {
			logger.Fatal("relay:", err)
		}
		opts.Relay = natsRelay
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, dbConn, statsUpdater, opts)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	srv := api.NewGoChatApp(mux, logger, chatServer, dbConn, cfg)
	srv.AddHealthCheck("presence_cache", presenceCache.Ping)
	if natsRelay != nil {
		srv.AddHealthCheck("relay", func(context.Context) error { return natsRelay.Ping() })
	}

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
