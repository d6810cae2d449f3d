package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/tessera-ai/tessera/internal/api/handlers"
	"github.com/tessera-ai/tessera/internal/config"
	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/embed"
	"github.com/tessera-ai/tessera/internal/repository"
	"github.com/tessera-ai/tessera/internal/scheduler"
	"github.com/tessera-ai/tessera/internal/server"
	"github.com/tessera-ai/tessera/internal/service"
	"github.com/tessera-ai/tessera/internal/source"
	"github.com/tessera-ai/tessera/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the tessera API server with the indexing scheduler",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-cron", false, "Disable the scheduled full reindex")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.HasSentry() {
		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if cfg.Environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	fragmentRepo := repository.NewFragmentRepository(pool)
	edgeRepo := repository.NewEdgeRepository(pool)
	runRepo := repository.NewIndexRunRepository(pool)
	sourceRepo := repository.NewSourceRepository(pool)
	orgRepo := repository.NewOrgRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(orgRepo, apiKeyRepo, uuidGen)

	if cfg.InitOrgName != "" {
		if err := bootstrapInitialOrg(ctx, cfg, orgRepo, authSvc); err != nil {
			return fmt.Errorf("failed to bootstrap initial org: %w", err)
		}
	}

	var s3Client *source.S3Client
	if cfg.HasS3() {
		s3Client, err = source.NewS3Client(ctx, source.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			UsePathStyle:    cfg.S3Endpoint != "",
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		log.Println("S3 client ready for knowledge sources")
	}
	adapterFactory := source.NewFactory(s3Client)

	var provider embed.Provider
	if cfg.HasOpenAI() {
		provider, err = embed.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimension)
		if err != nil {
			return fmt.Errorf("failed to create embedding provider: %w", err)
		}
		log.Printf("embedding provider: openai model %s (%d dims)", cfg.EmbeddingModel, cfg.EmbeddingDimension)
	} else {
		provider = embed.NewNoopProvider(cfg.EmbeddingDimension)
		log.Println("embedding provider: none configured, using deterministic pseudo-vectors")
	}

	cache, err := embed.NewCache(cfg.EmbedCacheSize)
	if err != nil {
		return fmt.Errorf("failed to create embedding cache: %w", err)
	}
	batcher := embed.NewBatcher(provider, embed.BatcherOptions{
		BatchSize:     cfg.EmbedBatchSize,
		Concurrency:   cfg.EmbedConcurrency,
		RatePerSecond: cfg.EmbedRateLimit,
		Burst:         cfg.EmbedRateBurst,
		Cache:         cache,
	})

	searchSvc := service.NewSearchService(fragmentRepo, batcher)
	graphSvc := service.NewGraphService(fragmentRepo, edgeRepo, cfg.TraverseMaxDepth)
	contextSvc := service.NewContextService(fragmentRepo, searchSvc, graphSvc, cfg.ContextTokenBudget)
	statsSvc := service.NewStatsService(fragmentRepo, edgeRepo, runRepo)
	runSvc := service.NewRunService(runRepo)
	fragmentSvc := service.NewFragmentService(fragmentRepo, graphSvc)

	sched := scheduler.NewScheduler(sourceRepo, fragmentRepo, runRepo, txRunner, adapterFactory, batcher, uuidGen, scheduler.Options{
		InFlightLimit: cfg.IndexInFlightLimit,
	})
	if err := sched.RecoverStaleRuns(ctx); err != nil {
		log.Printf("stale run recovery failed: %v", err)
	}

	var cronTrigger *scheduler.CronTrigger
	noCron, _ := cmd.Flags().GetBool("no-cron")
	if !noCron && cfg.FullReindexCron != "" {
		cronTrigger, err = scheduler.NewCronTrigger(sched, sourceRepo, cfg.FullReindexCron)
		if err != nil {
			return fmt.Errorf("failed to schedule full reindex: %w", err)
		}
		cronTrigger.Start()
	}

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:    authSvc,
		IndexHandler:     handlers.NewIndexHandler(sched),
		SearchHandler:    handlers.NewSearchHandler(searchSvc),
		ContextHandler:   handlers.NewContextHandler(contextSvc),
		StatsHandler:     handlers.NewStatsHandler(statsSvc),
		RunsHandler:      handlers.NewRunsHandler(runSvc, sched),
		FragmentsHandler: handlers.NewFragmentsHandler(fragmentSvc),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if cronTrigger != nil {
		cronTrigger.Stop()
	}
	sched.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func bootstrapInitialOrg(ctx context.Context, cfg *config.Config, orgRepo *repository.OrgRepository, authSvc *service.AuthService) error {
	org, err := orgRepo.GetByName(ctx, cfg.InitOrgName)
	if err != nil && err != domain.ErrOrganizationNotFound {
		return fmt.Errorf("failed to check existing org: %w", err)
	}

	if org == nil {
		org, err = authSvc.CreateOrg(ctx, cfg.InitOrgName)
		if err != nil {
			return fmt.Errorf("failed to create org: %w", err)
		}
		log.Printf("bootstrap: created organization '%s' (id: %s)", org.Name, org.ID)
	} else {
		log.Printf("bootstrap: organization '%s' already exists (id: %s)", org.Name, org.ID)
	}

	if cfg.InitAPIKey != "" {
		if !service.IsValidAPIToken(cfg.InitAPIKey) {
			return fmt.Errorf("invalid TESSERA_INIT_API_KEY format (expected 'tsr_<64 hex chars>')")
		}

		existingKey, err := authSvc.GetAPIKeyByHash(ctx, cfg.InitAPIKey)
		if err == nil && existingKey != nil {
			log.Printf("bootstrap: API key already exists (id: %s)", existingKey.ID)
			return nil
		}

		if err := authSvc.CreateAPIKeyWithToken(ctx, org.ID, "bootstrap", cfg.InitAPIKey); err != nil {
			return fmt.Errorf("failed to create API key: %w", err)
		}
		log.Printf("bootstrap: created API key")
	}

	return nil
}

func runMigrations(databaseURL, migrationsPath string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://"+migrationsPath,
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	upErr := m.Up()
	if upErr != nil && upErr != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", upErr)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if upErr == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
