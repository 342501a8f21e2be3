// Command syncworker runs the background reconciliation pass on its own,
// for deployments that keep remote sync off the API instances.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samebrave/StepScape/internal/config"
	"github.com/samebrave/StepScape/internal/domain"
	"github.com/samebrave/StepScape/internal/events"
	persistence "github.com/samebrave/StepScape/internal/persistence/postgres"
	"github.com/samebrave/StepScape/internal/provider"
	"github.com/samebrave/StepScape/internal/remote"
	"github.com/samebrave/StepScape/internal/syncer"
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
	worker := syncer.NewWorker(repo, service, cfg.SyncPollInterval)

	go func() {
		shutdownCh := make(chan os.Signal, 1)
		signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
		<-shutdownCh
		cancel()
	}()

	log.Printf("stepscape syncworker polling every %s", cfg.SyncPollInterval)
	worker.Start(ctx)
}
