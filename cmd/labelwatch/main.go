package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	labelwatch "github.com/goliatone/go-labelwatch"
	"github.com/goliatone/go-labelwatch/adapters/gocommand"
	"github.com/goliatone/go-labelwatch/adapters/gojob"
	"github.com/goliatone/go-labelwatch/adapters/gologger"
	lwprometheus "github.com/goliatone/go-labelwatch/adapters/prometheus"
	"github.com/goliatone/go-labelwatch/core"
	lwmigrations "github.com/goliatone/go-labelwatch/migrations"
	sqlstore "github.com/goliatone/go-labelwatch/store/sql"
	"github.com/goliatone/go-labelwatch/webhooks"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
	"go.uber.org/zap"
)

const envPrefix = "LABELWATCH"

func main() {
	root, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "labelwatch: init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = root.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, root); err != nil {
		root.Fatal("labelwatch stopped", zap.Error(err))
	}
}

func run(ctx context.Context, root *zap.Logger) error {
	provider := gologger.NewZapProvider(root)

	cfg, err := core.LoadConfig(ctx,
		core.NewCfgxConfigProvider(core.NewEnvConfigLoader(envPrefix, ".env")),
		core.GoOptionsResolver{},
		core.Config{},
	)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	client, err := openPersistence(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		return fmt.Errorf("repository factory: %w", err)
	}
	cacheConfig := repositorycache.DefaultConfig()
	if cfg.Store.CacheTTL > 0 {
		cacheConfig.TTL = cfg.Store.CacheTTL
	}
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		return fmt.Errorf("cache service: %w", err)
	}
	directory, err := factory.CachedDirectory(cacheService)
	if err != nil {
		return fmt.Errorf("subscription directory: %w", err)
	}
	tokens, err := factory.TokenStore(cfg.Client.DefaultToken)
	if err != nil {
		return fmt.Errorf("token store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := lwprometheus.NewRecorder(lwprometheus.Config{Namespace: "labelwatch", Registerer: registry})

	deadLetters, err := gojob.NewDeadLetterHook(
		deadLetterLog{logger: provider.GetLogger("labelwatch.dead_letter")},
		provider.GetLogger("labelwatch.gojob"),
	)
	if err != nil {
		return err
	}

	svc, err := labelwatch.NewService(cfg,
		labelwatch.WithLoggerProvider(provider),
		labelwatch.WithMetricsRecorder(recorder),
		labelwatch.WithRepositoryRecorder(factory.RepositoryStore()),
		labelwatch.WithSubscriptionBackend(directory),
		labelwatch.WithTokenStore(tokens),
		labelwatch.WithNotifyHooks(deadLetters),
	)
	if err != nil {
		return fmt.Errorf("new service: %w", err)
	}

	adapter := gocommand.NewRegistryAdapter(command.NewRegistry(), gocommand.WithLogger(provider.GetLogger("labelwatch.gocommand")))
	subs, err := gocommand.RegisterHandlers(adapter, gocommand.Handlers{
		Notifications: svc,
		Registrar:     svc,
		Subscriptions: svc,
		Repositories:  svc,
		Directory:     svc,
		Stats:         svc,
	})
	if err != nil {
		return fmt.Errorf("register handlers: %w", err)
	}
	defer subs.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		return fmt.Errorf("initialize command registry: %w", err)
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	router := chi.NewRouter()
	webhookPath := cfg.Webhook.Path
	if webhookPath == "" {
		webhookPath = webhooks.DefaultPath
	}
	router.Handle(webhookPath, svc.WebhookHandler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		root.Info("labelwatch listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	root.Info("labelwatch shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		root.Error("http shutdown failed", zap.Error(err))
	}
	return nil
}

type persistenceConfig struct {
	store core.StoreConfig
}

func (c persistenceConfig) GetDebug() bool                { return c.store.Debug }
func (c persistenceConfig) GetDriver() string             { return c.store.Driver }
func (c persistenceConfig) GetServer() string             { return c.store.DSN }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "labelwatch" }

func openPersistence(ctx context.Context, cfg core.StoreConfig) (*persistence.Client, error) {
	migrationsFor, err := lwmigrations.DialectForDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	var (
		dialect    schema.Dialect
		tableQuery string
	)
	if migrationsFor == lwmigrations.DialectPostgres {
		dialect = pgdialect.New()
		tableQuery = `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1`
	} else {
		dialect = sqlitedialect.New()
		tableQuery = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	}

	sqlDB, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if migrationsFor == lwmigrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{store: cfg}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("persistence client: %w", err)
	}

	if _, err := lwmigrations.Register(ctx, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, lwmigrations.WithValidationTargets(migrationsFor)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := lwmigrations.CheckTables(ctx, func(ctx context.Context, name string) (int, error) {
		var n int
		err := sqlDB.QueryRowContext(ctx, tableQuery, name).Scan(&n)
		return n, err
	}); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// deadLetterLog records notifications that exhausted their attempts.
type deadLetterLog struct {
	logger core.Logger
}

func (d deadLetterLog) Enqueue(ctx context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	if msg == nil {
		return queue.EnqueueReceipt{}, nil
	}
	core.Log(ctx, d.logger, core.LevelWarn, "notification dead lettered", map[string]any{
		"job_id":     msg.IdempotencyKey,
		"parameters": msg.Parameters,
	})
	return queue.EnqueueReceipt{}, nil
}
