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

	"github.com/samebrave/StepScape/internal/aggregate"
	"github.com/samebrave/StepScape/internal/api"
	"github.com/samebrave/StepScape/internal/auth"
	"github.com/samebrave/StepScape/internal/config"
	"github.com/samebrave/StepScape/internal/domain"
	"github.com/samebrave/StepScape/internal/events"
	persistence "github.com/samebrave/StepScape/internal/persistence/postgres"
	"github.com/samebrave/StepScape/internal/provider"
	"github.com/samebrave/StepScape/internal/remote"
	"github.com/samebrave/StepScape/internal/syncer"
	httptransport "github.com/samebrave/StepScape/internal/transport/http"
)

func main() {
	cfg := config.Load()

	zone, err := cfg.Location()
	if err != nil {
		log.Fatalf("invalid timezone %q: %v", cfg.Timezone, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.PostgresURL)
	if err != nil {
		log.Fatalf("invalid postgres url: %v", err)
	}
	if cfg.PostgresMaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.PostgresMaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := persistence.Migrate(ctx, pool); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}

	repo := persistence.NewRepository(pool)
	providerClient := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderTimeout, zone)
	remoteClient := remote.NewClient(cfg.RemoteBaseURL, cfg.RemoteTimeout)

	serviceOpts := []domain.Option{}
	if len(cfg.KafkaBrokers) > 0 {
		producer := events.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()
		serviceOpts = append(serviceOpts, domain.WithPublisher(events.NewPublisher(producer)))
	}

	service := domain.NewService(repo, providerClient, remoteClient, zone, serviceOpts...)
	engine := aggregate.NewEngine(service, zone)

	worker := syncer.NewWorker(repo, service, cfg.SyncPollInterval)
	go worker.Start(ctx)

	handler := api.NewHandler(service, engine)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	requestLogger := api.RequestLogger(log.New(log.Writer(), "[http] ", log.LstdFlags))

	authMiddleware := auth.NewMiddleware(
		auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer},
		func(r *http.Request) bool {
			return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
		},
	)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, authMiddleware.Wrap(requestLogger(mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("stepscape api listening on %s", cfg.HTTPAddress)
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

	worker.Wait()
}
