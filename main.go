package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"agent-crawler/config"
	"agent-crawler/crawler"
	"agent-crawler/database"
	"agent-crawler/extractor"
	"agent-crawler/logging"
	"agent-crawler/models"
	"agent-crawler/pagination"
	"agent-crawler/render"
	"agent-crawler/sink"
	"agent-crawler/summary"
)

type flags struct {
	configPath string
	renderer   string
	output     string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:           "agent-crawler",
		Short:         "Crawl a brokerage staff directory and save every agent's contact card",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.configPath, "config", "", "YAML config file")
	cmd.Flags().StringVar(&f.renderer, "renderer", "", "page renderer: browser or static")
	cmd.Flags().StringVar(&f.output, "output", "", "output file path")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")

	return cmd
}

func run(cmd *cobra.Command, f *flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return err
	}
	if f.renderer != "" {
		cfg.Renderer = f.renderer
	}
	if f.output != "" {
		cfg.OutputPath = f.output
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return err
	}
	defer logger.Sync()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			logger.Info("shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	ex, planner, err := newParsers(cfg)
	if err != nil {
		logger.Error("invalid crawl settings", zap.Error(err))
		return err
	}

	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))
	logger.Info("starting crawl", zap.String("url", cfg.BaseURL), zap.String("renderer", cfg.Renderer))

	out, store, err := openSinks(ctx, cfg, runID)
	if err != nil {
		logger.Error("failed to open output", zap.Error(err))
		return err
	}

	stats, runErr := crawl(ctx, cfg, runID, ex, planner, out, logger)
	if runErr != nil {
		kind, _ := crawler.KindOf(runErr)
		logger.Error("unable to complete crawl", zap.Stringer("kind", kind), zap.Error(runErr))
	}

	if store != nil {
		if err := store.FinishRun(context.WithoutCancel(ctx), stats, runErr); err != nil {
			logger.Warn("failed to record run", zap.Error(err))
		}
	}
	if err := out.Close(); err != nil {
		logger.Warn("failed to close output", zap.Error(err))
	}

	summary.Print(cmd.OutOrStdout(), stats, runErr)
	return runErr
}

// newParsers builds the card extractor and page planner. Both only depend on
// configuration, so they are checked before any output is touched.
func newParsers(cfg *config.Config) (*extractor.Extractor, *pagination.LinkTokenPlanner, error) {
	ex, err := extractor.New(cfg.CardSelector, nil)
	if err != nil {
		return nil, nil, err
	}
	planner, err := pagination.NewLinkTokenPlanner(cfg.PageLinkPattern, cfg.PageTokenPattern, cfg.StartPage, cfg.MaxPages)
	if err != nil {
		return nil, nil, err
	}
	return ex, planner, nil
}

func crawl(ctx context.Context, cfg *config.Config, runID string, ex crawler.Extractor, planner pagination.Planner, out crawler.Sink, logger *zap.Logger) (*models.CrawlStats, error) {
	stats := &models.CrawlStats{RunID: runID, BaseURL: cfg.BaseURL}

	renderer, err := newRenderer(ctx, cfg, logger)
	if err != nil {
		return stats, &crawler.Error{Kind: crawler.KindRender, Page: 1, URL: cfg.BaseURL, Err: err}
	}

	d := crawler.New(renderer, ex, planner, out, rate.NewLimiter(rate.Every(cfg.PageInterval), 1), crawler.Options{
		BaseURL:            cfg.BaseURL,
		RunID:              runID,
		FirstPageSettle:    cfg.FirstPageSettle,
		PageSettle:         cfg.PageSettle,
		SkipDuplicatePages: cfg.SkipDuplicatePages,
		Logger:             logger,
	})
	return d.Run(ctx)
}

func newRenderer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (crawler.Renderer, error) {
	if cfg.Renderer == config.RendererStatic {
		return render.NewStatic(cfg.UserAgent, cfg.RenderTimeout), nil
	}
	return render.NewBrowser(ctx, render.BrowserOptions{
		ExecPath:       cfg.BrowserPath,
		Headless:       cfg.Headless,
		Timeout:        cfg.RenderTimeout,
		WaitSelector:   cfg.WaitSelector,
		ElementTimeout: cfg.ElementTimeout,
		Logger:         logger,
	})
}

// openSinks builds the configured outputs. store is nil unless a database is set.
func openSinks(ctx context.Context, cfg *config.Config, runID string) (sink.Multi, *database.Store, error) {
	var out sink.Multi
	keep := cfg.OutputMode == config.ModeAppend

	if cfg.OutputPath != "" {
		var (
			s   sink.Sink
			err error
		)
		switch cfg.OutputFormat {
		case config.FormatJSONL:
			s, err = sink.NewJSONLines(cfg.OutputPath, keep)
		default:
			s, err = sink.NewJSONFile(cfg.OutputPath, keep)
		}
		if err != nil {
			return nil, nil, err
		}
		out = append(out, s)
	}

	if cfg.DatabaseDriver == "" || cfg.DatabaseURL == "" {
		return out, nil, nil
	}

	store, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, multierr.Combine(err, out.Close())
	}
	if err := store.StartRun(ctx, runID, cfg.BaseURL); err != nil {
		return nil, nil, multierr.Combine(fmt.Errorf("failed to start run: %w", err), out.Close(), store.Close())
	}
	return append(out, store), store, nil
}
