package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"wanderboard/api/internal/app"
	"wanderboard/api/internal/config"
	"wanderboard/api/internal/genai"
	"wanderboard/api/internal/media"
	"wanderboard/api/internal/presence"
	"wanderboard/api/internal/search"
	"wanderboard/api/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	service := app.New(cfg, dataStore)

	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
		service.WithSearch(meiliClient)
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		tracker, err := presence.NewRedisTracker(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer tracker.Close()
		service.WithPresence(tracker)
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		mediaService, err := media.NewService(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioBaseURL, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("media storage init failed: %v", err)
		}
		service.WithMedia(mediaService)
	}

	if strings.TrimSpace(cfg.GenAIURL) != "" {
		service.WithGenerator(genai.NewAdapter(genai.NewClient(cfg.GenAIURL, cfg.GenAIKey)))
	} else {
		log.Printf("GENAI_URL not set, AI boards use the deterministic fallback")
	}

	gcCtx, gcCancel := context.WithCancel(ctx)
	defer gcCancel()
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gcCtx.Done():
				return
			case <-ticker.C:
				service.CollectIdleSessions(gcCtx, cfg.SessionIdleTTL)
			}
		}
	}()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Wanderboard API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	// Flush every open editing session before exit.
	service.CollectIdleSessions(context.Background(), 0)
}
