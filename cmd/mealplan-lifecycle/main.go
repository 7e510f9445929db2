package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/29m10/foodeasy-backend/internal/app"
	"github.com/29m10/foodeasy-backend/internal/config"
	"github.com/29m10/foodeasy-backend/internal/database"
	"github.com/29m10/foodeasy-backend/internal/lifecycle"
	"github.com/29m10/foodeasy-backend/internal/llm"
	"github.com/29m10/foodeasy-backend/internal/mealplan"
	"github.com/29m10/foodeasy-backend/internal/metrics"
	"github.com/29m10/foodeasy-backend/internal/notify"
	"github.com/29m10/foodeasy-backend/internal/planner"
	"github.com/29m10/foodeasy-backend/internal/supabase"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	config.LoadDotEnv()

	logger, err := newLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return app.ExitFatal
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	command := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	switch command {
	case "run":
		return runLifecycle(sugar, args)
	case "metrics-cleanup":
		return cleanupMetrics(sugar, args)
	case "metrics-report":
		return reportMetrics(sugar, args)
	case "help":
		printUsage(os.Stdout)
		return app.ExitOK
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage(os.Stderr)
		return app.ExitUsage
	}
}

func runLifecycle(logger *zap.SugaredLogger, args []string) int {
	runCmd := flag.NewFlagSet("run", flag.ContinueOnError)
	dryRun := runCmd.Bool("dry-run", false, "Report decisions without writing or generating")
	todayFlag := runCmd.String("today", "", "Override today's date (YYYY-MM-DD)")
	if err := runCmd.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return app.ExitOK
		}
		return app.ExitUsage
	}

	var opts app.RunOptions
	opts.DryRun = *dryRun
	if *todayFlag != "" {
		today, err := mealplan.ParseDate(*todayFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --today: %v\n", err)
			return app.ExitUsage
		}
		opts.Today = today
	}

	cfg, err := config.NewFromEnv()
	if err != nil {
		logger.Errorw("Failed to load configuration", "error", err)
		return app.ExitFatal
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		logger.Errorw("Failed to connect to meal plan store", "backend", cfg.StoreBackend, "error", err)
		return app.ExitFatal
	}
	defer closeStore()

	textGen, err := llm.NewTextGenerator(ctx, cfg)
	if err != nil {
		logger.Errorw("Failed to initialize LLM client", "provider", cfg.LLMProvider, "error", err)
		return app.ExitFatal
	}
	defer func() {
		if err := llm.Close(textGen); err != nil {
			logger.Warnw("Failed to close LLM client", "error", err)
		}
	}()

	var metricsStore *metrics.Store
	if db, err := database.NewDB(cfg.MetricsDBPath, logger); err != nil {
		logger.Warnw("Metrics disabled, failed to open metrics database", "path", cfg.MetricsDBPath, "error", err)
	} else {
		metricsStore = metrics.NewStore(db.SQL)
		defer metricsStore.Close()
	}

	var notifier app.Notifier
	if cfg.NotifierEnabled() {
		n, err := notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramAdminChatID, cfg.NotifyOnlyOnError, logger)
		if err != nil {
			logger.Warnw("Notifications disabled", "error", err)
		} else {
			notifier = n
		}
	}

	generator := planner.NewGenerator(textGen, store)
	application := app.NewApp(cfg, store, generator, metricsStore, notifier, logger, os.Stdout)

	summary, err := application.RunLifecycle(ctx, opts)
	if err != nil {
		logger.Errorw("Meal plan lifecycle run failed", "run_id", summary.RunID, "error", err)
	}
	code := app.ExitCode(summary, err, cfg.FailOnRecordError)
	if err == nil && code != app.ExitOK {
		logger.Errorw("Run finished with record errors", "run_id", summary.RunID, "errors", len(summary.Errors))
	}
	return code
}

// mealPlanStore is what the run needs from a backend.
type mealPlanStore interface {
	lifecycle.Store
	planner.CatalogReader
}

func newStore(ctx context.Context, cfg *config.Config) (mealPlanStore, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		repo, err := mealplan.NewPostgresRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil
	case config.BackendSupabase:
		repo := mealplan.NewRESTRepository(supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey))
		return repo, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func cleanupMetrics(logger *zap.SugaredLogger, args []string) int {
	cleanupCmd := flag.NewFlagSet("metrics-cleanup", flag.ContinueOnError)
	days := cleanupCmd.Int("days", 30, "Keep records for the last N days")
	if err := cleanupCmd.Parse(args); err != nil || *days < 0 {
		return app.ExitUsage
	}

	store, err := openMetrics(logger)
	if err != nil {
		logger.Errorw("Failed to open metrics store", "error", err)
		return app.ExitFatal
	}
	defer store.Close()

	affected, err := store.Cleanup(*days)
	if err != nil {
		logger.Errorw("Cleanup failed", "error", err)
		return app.ExitFatal
	}
	fmt.Printf("Successfully removed %d old metric records.\n", affected)
	return app.ExitOK
}

func reportMetrics(logger *zap.SugaredLogger, args []string) int {
	reportCmd := flag.NewFlagSet("metrics-report", flag.ContinueOnError)
	days := reportCmd.Int("days", 7, "Show usage for the last N days")
	if err := reportCmd.Parse(args); err != nil || *days < 1 {
		return app.ExitUsage
	}

	store, err := openMetrics(logger)
	if err != nil {
		logger.Errorw("Failed to open metrics store", "error", err)
		return app.ExitFatal
	}
	defer store.Close()

	if err := app.PrintMetricsReport(os.Stdout, store, config.MetricsDBPathFromEnv(), *days); err != nil {
		logger.Errorw("Report failed", "error", err)
		return app.ExitFatal
	}
	return app.ExitOK
}

func openMetrics(logger *zap.SugaredLogger) (*metrics.Store, error) {
	db, err := database.NewDB(config.MetricsDBPathFromEnv(), logger)
	if err != nil {
		return nil, err
	}
	return metrics.NewStore(db.SQL), nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
		}
		lvl = parsed
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mealplan-lifecycle <command> [arguments]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  run                Deactivate expired meal plans and generate upcoming ones (default)")
	fmt.Fprintln(w, "      --dry-run      Report decisions without writing or generating")
	fmt.Fprintln(w, "      --today DATE   Override today's date (YYYY-MM-DD)")
	fmt.Fprintln(w, "  metrics-cleanup    Remove old metric records (--days N, default 30)")
	fmt.Fprintln(w, "  metrics-report     Show recent LLM usage and runs (--days N, default 7)")
	fmt.Fprintln(w, "  help               Show this message")
}
