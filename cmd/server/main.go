package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"docket/internal/jwtauth"
	ledgerhandler "docket/internal/ledger/handler"
	ledgermetrics "docket/internal/ledger/metrics"
	"docket/internal/ledger/outbox"
	ledgerservice "docket/internal/ledger/service"
	ledgerstore "docket/internal/ledger/store"
	"docket/internal/ledger/store/headcache"
	"docket/internal/platform/config"
	"docket/internal/platform/httpserver"
	"docket/internal/platform/logger"
	"docket/internal/platform/postgres"
	platformredis "docket/internal/platform/redis"
	resolverhandler "docket/internal/resolver/handler"
	resolvermetrics "docket/internal/resolver/metrics"
	resolverservice "docket/internal/resolver/service"
	resolverstore "docket/internal/resolver/store"
	transporthttp "docket/internal/transport/http"
	workspacehandler "docket/internal/workspace/handler"
	workspacemetrics "docket/internal/workspace/metrics"
	workspaceservice "docket/internal/workspace/service"
	workspacestore "docket/internal/workspace/store"
)

const (
	headCacheTTL      = 5 * time.Minute
	shutdownTimeout   = 10 * time.Second
	ledgerPartitions  = 6
	ledgerReplication = 1
)

// main wires configuration, storage, services and the HTTP surface. Business
// logic lives in the internal feature packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := postgres.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Error("apply migrations", "error", err)
		os.Exit(1)
	}

	ledgerMetrics := ledgermetrics.New()
	ledgerOpts := []ledgerservice.Option{
		ledgerservice.WithLogger(log),
		ledgerservice.WithMetrics(ledgerMetrics),
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		ledgerOpts = append(ledgerOpts,
			ledgerservice.WithHeadCache(headcache.NewRedis(redisClient.Client, headCacheTTL)))
	}

	var publisher *outbox.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err = outbox.NewPublisher(cfg.KafkaBrokers, cfg.LedgerTopic, log, ledgerMetrics)
		if err != nil {
			log.Error("create ledger publisher", "error", err)
			os.Exit(1)
		}
		if err := publisher.EnsureTopic(ctx, ledgerPartitions, ledgerReplication); err != nil {
			log.Error("ensure ledger topic", "error", err)
			os.Exit(1)
		}
		ledgerOpts = append(ledgerOpts, ledgerservice.WithPublisher(publisher))
	}

	ledgerSvc := ledgerservice.New(ledgerstore.NewPostgres(db), ledgerOpts...)

	resolverSvc := resolverservice.New(
		resolverstore.NewClientsPostgres(db),
		resolverstore.NewCasesPostgres(db),
		resolverstore.NewDocumentsPostgres(db),
		ledgerSvc,
		resolverservice.WithLogger(log),
		resolverservice.WithMetrics(resolvermetrics.New()),
		resolverservice.WithSimilarityThreshold(cfg.SimilarityThreshold),
	)

	workspaceSvc := workspaceservice.New(
		workspacestore.NewPostgres(db),
		ledgerSvc,
		workspaceservice.WithLogger(log),
		workspaceservice.WithMetrics(workspacemetrics.New()),
	)

	jwtSvc := jwtauth.NewService(cfg.JWTSigningKey, "docket", "docket-api")
	router := transporthttp.NewRouter(log, jwtSvc,
		resolverhandler.New(resolverSvc, log),
		workspacehandler.New(workspaceSvc, log),
		ledgerhandler.New(ledgerSvc, log),
	)
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting docket server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if publisher != nil {
			if err := publisher.Close(shutdownCtx); err != nil {
				log.Warn("close ledger publisher", "error", err)
			}
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("docket server stopped")
}
