package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/awnumar/memguard"
	"github.com/gorilla/handlers"
	log "github.com/inconshreveable/log15"
	"github.com/layer-3/xrpauth/adapters/events"
	"github.com/layer-3/xrpauth/adapters/store"
	"github.com/layer-3/xrpauth/adapters/tokenizer"
	"github.com/layer-3/xrpauth/adapters/xumm"
	"github.com/layer-3/xrpauth/config"
	"github.com/layer-3/xrpauth/internal/secret"
	"github.com/layer-3/xrpauth/service"
	transport "github.com/layer-3/xrpauth/transport/http"
	"github.com/redis/go-redis/v9"
)

func initLogger(lvl log.Lvl) {
	var handler log.Handler
	if runtime.GOOS == "windows" {
		handler = log.LvlFilterHandler(lvl, log.StreamHandler(os.Stdout, log.LogfmtFormat()))
	} else {
		handler = log.LvlFilterHandler(lvl, log.StreamHandler(os.Stderr, log.TerminalFormat()))
	}
	log.Root().SetHandler(handler)
}

func run(configPath string, verbosity int) error {
	defer memguard.Purge()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	lvl := cfg.LogLevel()
	if verbosity >= 0 {
		lvl = log.Lvl(verbosity)
	}
	initLogger(lvl)
	logger := log.New("module", "xrpauth")

	for _, warning := range cfg.Warnings() {
		logger.Warn(warning)
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	authService, err := initAuth(cfg, redisClient, logger)
	if err != nil {
		return err
	}

	router := transport.SetupRouter(authService, logger.New("module", "http"))
	headersOk := handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization"})
	originsOk := handlers.AllowedOrigins(cfg.Server.AllowedOrigins)
	methodsOk := handlers.AllowedMethods([]string{"GET", "HEAD", "POST", "OPTIONS"})

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handlers.CORS(originsOk, headersOk, methodsOk)(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("Shutting down", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

func initAuth(cfg *config.Config, redisClient *redis.Client, logger log.Logger) (*service.AuthService, error) {
	tok := tokenizer.NewJWTTokenizer(secret.FromString(cfg.Session.Key))
	payloads := xumm.NewClient(cfg.Xumm.APIURL, cfg.Xumm.APIKey, secret.FromString(cfg.Xumm.APISecret), logger.New("module", "xumm"))

	opts := []service.Option{service.WithLogger(logger.New("module", "auth"))}

	if cfg.Challenges.SingleUse {
		if redisClient != nil {
			opts = append(opts, service.WithLedger(store.NewRedisLedger(redisClient), cfg.Challenges.LedgerTTL))
		} else {
			logger.Warn("Single-use challenges tracked in memory; replays are only detected by this instance")
			opts = append(opts, service.WithLedger(store.NewMemoryLedger(), cfg.Challenges.LedgerTTL))
		}
	}

	if cfg.Events.Enabled {
		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client: redisClient,
			},
			events.NewLoggerAdapter(logger.New("module", "events")),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis publisher: %w", err)
		}
		opts = append(opts, service.WithEventPublisher(events.NewWatermillPublisher(publisher, cfg.Events.Topic)))
	}

	return service.NewAuthService(tok, payloads, opts...), nil
}
