package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/verve/internal/api"
	"example.com/verve/internal/auth"
	"example.com/verve/internal/config"
	"example.com/verve/internal/domain"
	"example.com/verve/internal/engine"
	"example.com/verve/internal/outbox"
	"example.com/verve/internal/persistence/memory"
	"example.com/verve/internal/persistence/postgres"
	httptransport "example.com/verve/internal/transport/http"
)

func main() {
	cfg := config.Load()

	engineCfg, err := cfg.Engine()
	if err != nil {
		log.Fatalf("invalid engine configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		tracks     domain.TrackStore
		locations  domain.LocationStore
		dispatcher *outbox.Dispatcher
	)
	switch cfg.StoreBackend {
	case config.StoreMemory:
		store := memory.NewStore()
		tracks, locations = store, store
		log.Printf("using in-memory store; data is lost on restart")
	case config.StorePostgres:
		if cfg.RunMigrations {
			if err := postgres.Migrate(cfg.PostgresURL); err != nil {
				log.Fatalf("failed to run migrations: %v", err)
			}
		}
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pool.Close()

		repo := postgres.NewRepository(pool)
		tracks, locations = repo, repo

		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()
		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
		go dispatcher.Start(ctx)
	default:
		log.Fatalf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	service := engine.NewService(tracks, locations, engineCfg)

	handler := api.NewHandler(service)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, auth.PathSkipper("/healthz", "/metrics"))

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), httptransport.Chain(mux,
		httptransport.RequestLogger(log.Default()),
		httptransport.CORS(cfg.CORSOrigin),
		authMiddleware.Wrap,
	))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("track service listening on %s (store=%s)", cfg.HTTPAddress, cfg.StoreBackend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
}
