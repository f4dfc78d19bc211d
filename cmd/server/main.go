package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	audithandler "unionregistry/internal/audit/handler"
	authhandler "unionregistry/internal/auth/handler"
	authmetrics "unionregistry/internal/auth/metrics"
	authservice "unionregistry/internal/auth/service"
	"unionregistry/internal/auth/token"
	dealerhandler "unionregistry/internal/dealer/handler"
	dealermetrics "unionregistry/internal/dealer/metrics"
	dealerservice "unionregistry/internal/dealer/service"
	httpapi "unionregistry/internal/http"
	"unionregistry/internal/platform/config"
	"unionregistry/internal/platform/httpserver"
	"unionregistry/internal/platform/kafka"
	"unionregistry/internal/platform/logger"
	"unionregistry/internal/platform/metrics"
	"unionregistry/internal/platform/tracing"
	registryhandler "unionregistry/internal/registry/handler"
	registrymetrics "unionregistry/internal/registry/metrics"
	registryservice "unionregistry/internal/registry/service"
	transferhandler "unionregistry/internal/transfer/handler"
	transfermetrics "unionregistry/internal/transfer/metrics"
	transferservice "unionregistry/internal/transfer/service"
	"unionregistry/pkg/platform/audit/recorder"
	"unionregistry/pkg/platform/audit/worker"
)

const (
	serviceName     = "unionregistry"
	tokenIssuer     = "unionregistry"
	shutdownTimeout = 10 * time.Second
)

// main wires configuration, storage, services and the HTTP surface, then runs
// the server and the audit relay until SIGINT or SIGTERM.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.OTLPEndpoint, serviceName)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	store, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()

	rec := recorder.New(store.audit,
		recorder.WithLogger(log),
		recorder.WithMetrics(recorder.NewMetrics()),
	)

	dealers := dealerservice.New(store.tx, store.dealers, rec,
		dealerservice.WithLogger(log),
		dealerservice.WithMetrics(dealermetrics.New()),
	)
	registry := registryservice.New(store.tx, store.registry, dealers, rec,
		registryservice.WithLogger(log),
		registryservice.WithMetrics(registrymetrics.New()),
	)
	transfers := transferservice.New(store.tx, store.transfers, registry, dealers, rec,
		transferservice.WithLogger(log),
		transferservice.WithMetrics(transfermetrics.New()),
	)
	jwt := token.NewJWTService(cfg.JWTSigningKey, tokenIssuer, cfg.JWTTTL)
	accounts := authservice.New(store.tx, store.accounts, jwt, dealers, rec,
		authservice.WithLogger(log),
		authservice.WithMetrics(authmetrics.New()),
		authservice.WithLoginRate(cfg.LoginRatePerMinute),
	)

	if created, err := accounts.EnsureAdmin(ctx, cfg.BootstrapAdminPassword); err != nil {
		return err
	} else if created {
		log.Info("admin account bootstrapped; change the temporary password on first login")
	}

	router := httpapi.NewRouter(httpapi.Config{
		Logger:     log,
		Tokens:     token.NewJWTServiceAdapter(jwt),
		AdminToken: cfg.AdminToken,
		Metrics:    metrics.New(),
		Ready:      store.ready,
	}, httpapi.Handlers{
		Registry: registryhandler.New(registry, log),
		Transfer: transferhandler.New(transfers, log),
		Dealer:   dealerhandler.New(dealers, log),
		Auth:     authhandler.New(accounts, log),
		Audit:    audithandler.New(rec, log),
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting unionregistry", "addr", cfg.Addr, "environment", cfg.Environment, "postgres", cfg.UsesPostgres())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(sctx)
	})
	if err := startRelay(gctx, g, cfg, store, log); err != nil {
		stop()
		_ = g.Wait()
		return err
	}
	return g.Wait()
}

// startRelay publishes the audit outbox to Kafka when both Postgres and
// brokers are configured.
func startRelay(ctx context.Context, g *errgroup.Group, cfg config.Server, store *backend, log *slog.Logger) error {
	if store.outbox == nil || len(cfg.Kafka.Brokers) == 0 {
		return nil
	}
	client, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		return err
	}
	if err := kafka.EnsureTopic(ctx, client, cfg.Kafka.AuditTopic, 1, 1); err != nil {
		client.Close()
		return err
	}

	relay := worker.New(store.outbox, client, cfg.Kafka.AuditTopic, log,
		worker.WithPollInterval(cfg.Kafka.PollInterval),
	)
	g.Go(func() error {
		defer client.Close()
		log.Info("audit relay started", "topic", cfg.Kafka.AuditTopic)
		return relay.Run(ctx)
	})
	return nil
}
