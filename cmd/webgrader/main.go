package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-webgrader/internal/archive"
	"github.com/noah-isme/gema-webgrader/internal/cache"
	"github.com/noah-isme/gema-webgrader/internal/checker"
	"github.com/noah-isme/gema-webgrader/internal/config"
	"github.com/noah-isme/gema-webgrader/internal/database"
	"github.com/noah-isme/gema-webgrader/internal/grading"
	"github.com/noah-isme/gema-webgrader/internal/observability"
	"github.com/noah-isme/gema-webgrader/internal/report"
	"github.com/noah-isme/gema-webgrader/internal/repository"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "webgrader [input-dir]",
		Short:         "Grade zipped student web pages and print a score table",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := cmd.Flags().Set("input", args[0]); err != nil {
					return err
				}
			}
			return runGrade(cmd, stdout, stderr)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("input", "", "Directory holding one archive per student (default \"src\")")
	flags.Int("cap", grading.DefaultScoreCap, "Maximum final score")
	flags.String("logo-href", "", "Expected href of the logo link")
	flags.String("store-driver", "", "Result store driver [sqlite, postgres]")
	flags.String("store-dsn", "", "Result store connection string")
	flags.String("redis-url", "", "Redis URL for the result cache")
	flags.String("metrics-textfile", "", "Write Prometheus metrics to this file after the run")
	flags.String("log-level", "info", "Log level [trace, debug, info, warn, error]")
	flags.String("log-format", "console", "Log format [console, json]")

	rootCmd.AddCommand(newShowCommand(stdout, stderr))

	return rootCmd
}

type app struct {
	cfg    config.Config
	logger zerolog.Logger
	repo   repository.GradeRepository
	redis  *redis.Client
}

// setup loads configuration and opens the optional result store and cache.
func setup(cmd *cobra.Command, stderr io.Writer) (*app, error) {
	cfg, err := config.LoadWithFlags(cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}

	if cfg.StoreDriver != "" {
		db, err := database.Connect(cfg.StoreDriver, cfg.StoreDSN)
		if err != nil {
			return nil, err
		}
		a.repo = repository.NewGradeRepository(db)
	}

	if cfg.RedisURL != "" {
		client, err := database.ConnectRedis(cmd.Context(), cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("result cache disabled")
		} else {
			a.redis = client
		}
	}

	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
	}
}

func runGrade(cmd *cobra.Command, stdout, stderr io.Writer) error {
	a, err := setup(cmd, stderr)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	logger := a.logger

	opts := []grading.Option{grading.WithScoreCap(cfg.ScoreCap)}
	if a.repo != nil {
		opts = append(opts, grading.WithRepository(a.repo))
	}
	if a.redis != nil {
		opts = append(opts, grading.WithCache(cache.NewRedisCache(a.redis, cfg.CacheTTL), cfg.LogoHref))
	}

	driver := grading.NewDriver(
		archive.NewExtractor(cfg.MaxUncompressedBytes(), logger),
		checker.NewHTMLChecker(cfg.LogoHref),
		checker.NewCSSChecker(),
		logger,
		opts...,
	)

	submissions, err := grading.Discover(cfg.InputDir, cfg.Ignored)
	if err != nil {
		return err
	}
	logger.Info().Str("input_dir", cfg.InputDir).Int("submissions", len(submissions)).Msg("grading started")

	result, runErr := driver.Run(cmd.Context(), cfg.InputDir, submissions)
	if runErr != nil {
		logger.Warn().Err(runErr).Int("graded", len(result.Results)).Msg("grading interrupted")
	}

	if err := report.Render(stdout, result.Results, cfg.ScoreCap); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	summary := report.Summarize(result.Results, cfg.ScoreCap)
	logger.Info().
		Str("run_id", result.RunID).
		Int("submissions", summary.Submissions).
		Int("graded", summary.Graded).
		Int("failed", summary.Failed).
		Int("full_marks", summary.FullMarks).
		Msg("grading finished")

	if cfg.MetricsTextfile != "" {
		if err := observability.WriteTextfile(cfg.MetricsTextfile); err != nil {
			logger.Warn().Err(err).Str("path", cfg.MetricsTextfile).Msg("failed to write metrics")
		}
	}

	return runErr
}
