/**
 * @description
 * This is the main entry point for the raffle-service. It loads configuration,
 * opens the store, verifies the clearing account, wires Redis, the outbox
 * dispatcher and Prometheus metrics, and serves the HTTP API until it receives
 * a termination signal.
 *
 * @dependencies
 * - internal/api, internal/app, internal/bootstrap, internal/config, internal/metrics.
 * - github.com/go-chi/chi/v5: HTTP routing.
 * - github.com/joho/godotenv: loads .env for local development.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/api"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/app"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/bootstrap"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/config"
	"github.com/nicolas-202/Proyecto-desarrollo-2/internal/metrics"
)

func main() {
	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found, using environment variables\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}
	log.Printf("level=info component=bootstrap msg=\"starting raffle-service\" port=%s store=%s", cfg.ServerPort, cfg.StoreDriver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repository, err := bootstrap.OpenRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"store open failed\" err=%v", err)
	}
	defer repository.Close()

	redisClient := bootstrap.OpenRedis(ctx, cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	registry := metrics.NewRegistry()
	collectors := metrics.New(registry)

	raffleService, err := bootstrap.NewService(ctx, cfg, repository, nil, collectors, redisClient)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"settlement service init failed\" err=%v", err)
	}

	if cfg.RabbitMQURL == "" {
		log.Println("level=warn component=bootstrap msg=\"rabbitmq url missing; settlement events stay in the outbox\" env=RABBITMQ_URL")
	} else {
		dispatcher := app.NewOutboxDispatcher(repository, cfg.RabbitMQURL, collectors)
		dispatcher.Configure(cfg.OutboxBatchSize, cfg.OutboxPollInterval)
		go dispatcher.Run(ctx)
		log.Printf("level=info component=bootstrap msg=\"outbox dispatcher started\" exchange=%s", cfg.RaffleEventsExchange)
	}

	handlers := api.NewRaffleHandlers(raffleService)
	auth := api.AuthConfig{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, Audience: cfg.JWTAudience}

	router := chi.NewRouter()
	router.Mount("/", api.RaffleRoutes(handlers, auth, registry))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	<-ctx.Done()
	log.Println("level=info component=http msg=\"shutdown started\"")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
