package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/myeurocoins/coin-catalog/internal/adapter"
	"github.com/myeurocoins/coin-catalog/internal/cache"
	"github.com/myeurocoins/coin-catalog/internal/config"
	"github.com/myeurocoins/coin-catalog/internal/domain"
	"github.com/myeurocoins/coin-catalog/internal/importer"
	"github.com/myeurocoins/coin-catalog/internal/ledger"
	"github.com/myeurocoins/coin-catalog/internal/logger"
	"github.com/myeurocoins/coin-catalog/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
	dryRun     = flag.Bool("dry-run", false, "Classify the upload without committing")
)

func main() {
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: import-history [-dry-run] <history.csv> [more.csv ...]")
		os.Exit(2)
	}

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadImporterConfig("import-history", *configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx := context.Background()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "import-history",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)

	// Connect to database
	db, err := store.Open(ctx, cfg.Database.DSN(), 30*time.Second)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}
	dataStore := store.NewPGStore(db)

	clock := adapter.NewClock()
	cacheSvc := cache.New(clock, 0)
	ledgerSvc := ledger.NewService(dataStore, cacheSvc, clock)
	importerSvc := importer.NewService(dataStore, ledgerSvc, cacheSvc, clock)

	// Parse the files concurrently, then commit everything as one sweep so
	// duplicate detection sees rows across files, not per file.
	workers := cfg.Import.Workers
	if workers <= 0 {
		workers = 4
	}
	pool := pond.NewResultPool[[]domain.HistoryEntry](workers)

	tasks := make([]pond.Result[[]domain.HistoryEntry], 0, len(files))
	for _, path := range files {
		tasks = append(tasks, pool.SubmitErr(func() ([]domain.HistoryEntry, error) {
			f, err := os.Open(path)
			if err != nil {
				return nil, fmt.Errorf("failed to open %s: %w", path, err)
			}
			defer f.Close()

			entries, err := importerSvc.ParseHistoryCSV(f)
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
			logger.InfoCtx(ctx, "Parsed history file",
				zap.String("file", path),
				zap.Int("rows", len(entries)),
			)
			return entries, nil
		}))
	}

	var entries []domain.HistoryEntry
	for _, task := range tasks {
		parsed, err := task.Wait()
		if err != nil {
			pool.StopAndWait()
			logger.FatalCtx(ctx, "Failed to read history upload", zap.Error(err))
		}
		entries = append(entries, parsed...)
	}
	pool.StopAndWait()

	rows, err := importerSvc.ClassifyHistory(ctx, entries)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to classify upload", zap.Error(err))
	}
	fresh, dup := 0, 0
	for _, row := range rows {
		if row.Status == importer.StatusNew {
			fresh++
		} else {
			dup++
		}
	}
	logger.InfoCtx(ctx, "Classified history upload",
		zap.Int("new", fresh),
		zap.Int("duplicate", dup),
	)

	if *dryRun {
		logger.InfoCtx(ctx, "Dry run, nothing committed")
		return
	}

	result, err := importerSvc.ImportHistory(ctx, entries)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to import history", zap.Error(err))
	}
	logger.InfoCtx(ctx, "History import finished",
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", len(result.Skipped)),
	)
}
