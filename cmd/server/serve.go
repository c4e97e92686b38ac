package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	compositionhandler "ezweb/internal/composition/handler"
	compositionmetrics "ezweb/internal/composition/metrics"
	compositionservice "ezweb/internal/composition/service"
	"ezweb/internal/composition/store/binding"
	httpapi "ezweb/internal/http"
	jwttoken "ezweb/internal/jwt_token"
	"ezweb/internal/ownership"
	"ezweb/internal/ownership/directory"
	"ezweb/internal/platform/httpserver"
	"ezweb/internal/platform/logger"
	platformmetrics "ezweb/internal/platform/metrics"
	"ezweb/internal/platform/postgres"
	redisclient "ezweb/internal/platform/redis"
	registryhandler "ezweb/internal/registry/handler"
	registrymetrics "ezweb/internal/registry/metrics"
	registryservice "ezweb/internal/registry/service"
	"ezweb/internal/registry/store/definition"
	audit "ezweb/pkg/platform/audit"
	"ezweb/pkg/platform/audit/publisher"
	kafkasink "ezweb/pkg/platform/audit/publishers/kafka"
	"ezweb/pkg/platform/audit/store/fanout"
	auditmemory "ezweb/pkg/platform/audit/store/memory"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

// bindingStore is what both binding backends provide to the services.
type bindingStore interface {
	compositionservice.BindingReader
	compositionservice.StoreTx
	registryservice.BindingCounter
}

// infra holds the backends chosen by configuration.
type infra struct {
	definitions  registryservice.DefinitionStore
	bindings     bindingStore
	registryTx   registryservice.StoreTx
	sites        ownership.SiteDirectory
	auditStores  []audit.Store
	healthChecks map[string]httpapi.HealthCheck
	closers      []func()
}

func (i *infra) close() {
	for j := len(i.closers) - 1; j >= 0; j-- {
		i.closers[j]()
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := buildInfra(ctx, log)
	if err != nil {
		return err
	}
	defer deps.close()

	auditPublisher := publisher.NewPublisher(
		fanout.New(deps.auditStores...),
		publisher.WithAsyncBuffer(cfg.Audit.BufferSize),
		publisher.WithLogger(log),
	)
	defer auditPublisher.Close()

	registryOpts := []registryservice.Option{
		registryservice.WithLogger(log),
		registryservice.WithAuditPublisher(auditPublisher),
		registryservice.WithMetrics(registrymetrics.New()),
	}
	if deps.registryTx != nil {
		registryOpts = append(registryOpts, registryservice.WithStoreTx(deps.registryTx))
	}
	registry := registryservice.New(deps.definitions, deps.bindings, registryOpts...)

	guard := ownership.NewGuard(deps.sites,
		ownership.WithLogger(log),
		ownership.WithAuditPublisher(auditPublisher),
	)

	composition := compositionservice.New(deps.bindings, deps.bindings, registry, guard,
		compositionservice.WithLogger(log),
		compositionservice.WithAuditPublisher(auditPublisher),
		compositionservice.WithMetrics(compositionmetrics.New()),
	)

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	if cfg.Auth.AdminAPIToken == "" {
		log.Warn("ADMIN_API_TOKEN is empty; registry administration is disabled")
	}

	router := httpapi.NewRouter(httpapi.Options{
		Logger:         log,
		Metrics:        platformmetrics.New(),
		RequestTimeout: cfg.Server.RequestTimeout,
		HealthChecks:   deps.healthChecks,
	},
		registryhandler.New(registry, log, cfg.Auth.AdminAPIToken),
		compositionhandler.New(composition, jwttoken.NewJWTServiceAdapter(jwtService), log),
	)

	srv := httpserver.New(cfg.Server.Addr, router)
	log.Info("starting ezweb",
		"addr", cfg.Server.Addr,
		"environment", cfg.Environment,
		"version", version,
	)
	if err := httpserver.Run(ctx, srv, cfg.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	log.Info("ezweb stopped")
	return nil
}

func buildInfra(ctx context.Context, log *slog.Logger) (*infra, error) {
	deps := &infra{
		auditStores:  []audit.Store{auditmemory.NewInMemoryStore()},
		healthChecks: map[string]httpapi.HealthCheck{},
	}

	var sites directory.Source
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db, log); err != nil {
			deps.close()
			return nil, err
		}
		deps.definitions = definition.NewPostgres(db)
		deps.bindings = binding.NewPostgres(db)
		deps.registryTx = newRegistryPostgresTx(db)
		sites = directory.NewPostgres(db)
		deps.healthChecks["postgres"] = db.PingContext
		log.Info("using postgres stores")
	} else {
		definitions := definition.NewInMemory()
		bindings := binding.NewInMemory(binding.WithDefinitionCheck(definitions))
		deps.definitions = definitions
		deps.bindings = bindings
		deps.registryTx = bindings.DefinitionTx()
		memorySites := directory.NewInMemory()
		if cfg.IsDevelopment() {
			memorySites.Register(1, 1)
			log.Info("seeded development site", "site_id", 1, "owner_id", 1)
		}
		sites = memorySites
		log.Warn("DATABASE_URL is empty; using in-memory stores")
	}
	deps.sites = sites

	client, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		deps.close()
		return nil, err
	}
	if client != nil {
		deps.closers = append(deps.closers, func() { _ = client.Close() })
		deps.sites = directory.NewRedisCache(client.Client, sites,
			directory.WithTTL(cfg.Redis.OwnerCacheTTL),
			directory.WithLogger(log),
		)
		deps.healthChecks["redis"] = client.Health
		log.Info("site owner cache enabled", "ttl", cfg.Redis.OwnerCacheTTL)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kafkaClient, err := kafkasink.NewClient(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			deps.close()
			return nil, err
		}
		deps.closers = append(deps.closers, kafkaClient.Close)
		if err := kafkasink.EnsureTopic(ctx, kafkaClient, cfg.Kafka.Topic, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			log.Warn("could not ensure event topic", "topic", cfg.Kafka.Topic, "error", err)
		}
		deps.auditStores = append(deps.auditStores, kafkasink.New(kafkaClient, cfg.Kafka.Topic,
			kafkasink.WithLogger(log),
			kafkasink.WithMetrics(kafkasink.NewMetrics()),
			kafkasink.WithCircuitBreaker(cfg.Kafka.BreakerThreshold, cfg.Kafka.BreakerCooldown),
		))
		log.Info("event stream enabled", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}

	return deps, nil
}
