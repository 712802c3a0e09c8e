package cmd

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"example.com/fasttrack/services/delivery/config"
	"example.com/fasttrack/services/delivery/internal/cache"
	"example.com/fasttrack/services/delivery/internal/columns"
	"example.com/fasttrack/services/delivery/internal/database"
	"example.com/fasttrack/services/delivery/internal/feed"
	"example.com/fasttrack/services/delivery/internal/repositories"
	"example.com/fasttrack/services/delivery/internal/search"
	"example.com/fasttrack/services/delivery/internal/services"
	"example.com/fasttrack/services/delivery/internal/tracing"
	"example.com/fasttrack/services/delivery/internal/writer"
)

var rootCmd = &cobra.Command{
	Use:   "delivery-service",
	Short: "Delivery note reconciliation service",
	Long:  `Synchronizes delivery notes from the plan spreadsheet into Postgres, stamps movement timestamps, and captures hourly per-LSP snapshots`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfigAndLogging loads configuration and applies the logging setup
// shared by every subcommand.
func loadConfigAndLogging() (config.Config, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return config.Config{}, err
	}

	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(level)
	}

	return cfg, nil
}

// app bundles the wired service graph the subcommands run.
type app struct {
	cfg             config.Config
	db              *gorm.DB
	readOnlyDB      *gorm.DB
	cache           *cache.RedisCache
	tracer          tracing.Tracer
	registry        *columns.Registry
	notes           *repositories.DeliveryNoteRepository
	search          *search.ElasticClient
	syncService     *services.SyncService
	snapshotService *services.SnapshotService
}

func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	db, readOnlyDB, err := initDatabases(cfg)
	if err != nil {
		return nil, err
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		redisCache = nil
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = tracing.Disabled()
	}

	colRepo := repositories.NewColumnDefRepository(db, readOnlyDB)
	registry := columns.NewRegistry(colRepo)
	if err := registry.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("Could not load dynamic columns, starting with the base layout")
	}

	notes := repositories.NewDeliveryNoteRepository(db, readOnlyDB, registry)
	records := repositories.NewRecordRepository(db, readOnlyDB)
	runs := repositories.NewSyncRunRepository(db, readOnlyDB)
	snaps := repositories.NewSnapshotRepository(db, readOnlyDB)

	source, err := feed.NewSheetsSource(ctx, feed.SheetsConfig{
		SpreadsheetID:   cfg.Sheets.SpreadsheetID,
		APIKey:          cfg.Sheets.APIKey,
		CredentialsFile: cfg.Sheets.CredentialsFile,
		WorksheetPrefix: cfg.Sheets.WorksheetPrefix,
		HeaderRows:      cfg.Sheets.HeaderRows,
		MaxRetries:      cfg.Sheets.MaxRetries,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize the plan feed")
	}

	var indexer writer.Indexer
	var searchClient *search.ElasticClient
	if cfg.Elastic.Enabled {
		elasticClient, err := search.NewElasticClient(cfg.Elastic)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
		} else {
			searchClient = elasticClient
			indexer = search.NewNoteIndexer(elasticClient, notes)
		}
	}

	noteWriter := writer.New(notes, records, source, registry, indexer)
	syncService := services.NewSyncService(source, notes, runs, noteWriter, registry, redisCache, tracer, cfg.Sync.LogPath)
	snapshotService := services.NewSnapshotService(notes, records, snaps, tracer)

	return &app{
		cfg:             cfg,
		db:              db,
		readOnlyDB:      readOnlyDB,
		cache:           redisCache,
		tracer:          tracer,
		registry:        registry,
		notes:           notes,
		search:          searchClient,
		syncService:     syncService,
		snapshotService: snapshotService,
	}, nil
}

func (a *app) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis connection")
		}
	}
	if a.tracer != nil {
		a.tracer.Close()
	}
}

func initDatabases(cfg config.Config) (*gorm.DB, *gorm.DB, error) {
	writeDB, err := database.Connect(cfg.DB)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to write database")
	}
	readDB, err := database.ConnectReadOnly(cfg.DB)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to read-only database")
	}

	// Migrations run against the write database only.
	if err := database.AutoMigrate(writeDB); err != nil {
		return nil, nil, errors.Wrap(err, "failed to run migrations")
	}

	db, err := writeDB.DB()
	if err != nil {
		return nil, nil, err
	}
	readOnlyDB, err := readDB.DB()
	if err != nil {
		return nil, nil, err
	}
	return db, readOnlyDB, nil
}
