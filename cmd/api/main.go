package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/lingobridge/backend/internal/auth"
	"github.com/lingobridge/backend/internal/config"
	"github.com/lingobridge/backend/internal/handler"
	relayService "github.com/lingobridge/backend/internal/service/relay"
	sessionService "github.com/lingobridge/backend/internal/service/session"
	"github.com/lingobridge/backend/internal/service/translator"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	credentials, err := auth.NewCredentialService(auth.Config{
		Secret: cfg.Auth.Secret,
		Issuer: cfg.Auth.Issuer,
		TTL:    cfg.Auth.CredentialTTL,
	})
	if err != nil {
		log.Fatalf("failed to initialize credential service: %v", err)
	}

	var store sessionService.Store
	if cfg.Store.UseRedis() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to reach redis at %s: %v", cfg.Store.RedisAddr, err)
		}
		store = sessionService.NewRedisStore(client, 0)
		log.Printf("session store: redis (%s)", cfg.Store.RedisAddr)
	} else {
		store = sessionService.NewMemoryStore()
		log.Println("session store: in-memory (sessions are lost on restart)")
	}
	defer store.Close()

	sessions := sessionService.NewService(store, credentials)

	edge := translator.NewEdgeTranslator()

	var remote translator.Translator
	if cfg.Translator.Enabled() {
		chatModel, err := cfg.Translator.NewChatModel(ctx)
		if err != nil {
			log.Printf("warning: failed to initialize remote translator: %v", err)
			log.Println("continuing with the on-device path only")
		} else {
			remote, err = translator.NewRemoteTranslator(ctx, chatModel, cfg.Translator.Timeout)
			if err != nil {
				log.Fatalf("failed to build remote translator: %v", err)
			}
			log.Println("remote translator initialized successfully")
		}
	} else {
		log.Println("remote translator credentials not configured, running edge-only")
	}

	relay := relayService.New(sessions, remote, edge, relayService.Options{
		OutboxCapacity: cfg.Relay.OutboxCapacity,
		ProviderGrace:  cfg.Relay.ProviderGrace,
	})
	sessions.SetNotifier(relay)

	router := handler.NewRouter(cfg, sessions, relay, credentials)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("LingoBridge relay listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
