package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/myeurocoins/coin-catalog/internal/adapter"
	"github.com/myeurocoins/coin-catalog/internal/cache"
	"github.com/myeurocoins/coin-catalog/internal/config"
	"github.com/myeurocoins/coin-catalog/internal/importer"
	"github.com/myeurocoins/coin-catalog/internal/ledger"
	"github.com/myeurocoins/coin-catalog/internal/logger"
	"github.com/myeurocoins/coin-catalog/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
	csvFile    = flag.String("file", "", "Path to the catalog CSV file")
	dryRun     = flag.Bool("dry-run", false, "Classify the upload without committing")
)

func main() {
	flag.Parse()

	if *csvFile == "" {
		fmt.Fprintln(os.Stderr, "usage: import-catalog -file <catalog.csv> [-dry-run]")
		os.Exit(2)
	}

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadImporterConfig("import-catalog", *configFile, *envPath)
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
			"service": "import-catalog",
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

	// The CLI touches nothing that reads back, so caching is disabled
	clock := adapter.NewClock()
	cacheSvc := cache.New(clock, 0)
	ledgerSvc := ledger.NewService(dataStore, cacheSvc, clock)
	importerSvc := importer.NewService(dataStore, ledgerSvc, cacheSvc, clock)

	f, err := os.Open(*csvFile)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to open CSV file", zap.Error(err), zap.String("file", *csvFile))
	}
	defer f.Close()

	rows, err := importerSvc.ParseCoinCSV(f)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to parse CSV file", zap.Error(err), zap.String("file", *csvFile))
	}
	logger.InfoCtx(ctx, "Parsed catalog upload",
		zap.String("file", *csvFile),
		zap.Int("rows", len(rows)),
	)

	verdicts, err := importerSvc.ClassifyCoins(ctx, rows)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to classify upload", zap.Error(err))
	}
	var fresh, dup, conflict int
	for _, v := range verdicts {
		switch v.Status {
		case importer.StatusNew:
			fresh++
		case importer.StatusDuplicate:
			dup++
		case importer.StatusConflict:
			conflict++
			logger.WarnCtx(ctx, "Conflicting row",
				zap.String("coin_id", v.Row.CoinID),
				zap.Any("diffs", v.Diffs),
			)
		}
	}
	logger.InfoCtx(ctx, "Classified catalog upload",
		zap.Int("new", fresh),
		zap.Int("duplicate", dup),
		zap.Int("conflict", conflict),
	)

	if *dryRun {
		logger.InfoCtx(ctx, "Dry run, nothing committed")
		return
	}

	// Commit in chunks to keep transactions small on large catalogs
	chunkSize := cfg.Import.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 500
	}
	inserted, skipped := 0, 0
	for start := 0; start < len(rows); start += chunkSize {
		end := min(start+chunkSize, len(rows))
		result, err := importerSvc.ImportCoins(ctx, rows[start:end])
		if err != nil {
			logger.FatalCtx(ctx, "Failed to import chunk",
				zap.Error(err),
				zap.Int("offset", start),
			)
		}
		inserted += result.Inserted
		skipped += len(result.Skipped)
	}

	logger.InfoCtx(ctx, "Catalog import finished",
		zap.Int("inserted", inserted),
		zap.Int("skipped", skipped),
	)
}
