// Package cmd defines and implements the CLI commands for the jobcrawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-crawler/internal/app"
	"github.com/JakeFAU/jobpost-crawler/internal/config"
	"github.com/JakeFAU/jobpost-crawler/internal/crawler"
	"github.com/JakeFAU/jobpost-crawler/internal/logging"
)

var (
	cfgFile       string
	dryRunPublish bool
)

// runtimeKeyType is the key for storing the runtime in the context.
type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// Runner is what commands need from the application. Tests inject a fake.
type Runner interface {
	Run(ctx context.Context, q crawler.Query) (*app.Outcome, error)
	Query() crawler.Query
	Logger() *zap.Logger
	Close()
}

type runtime struct {
	cfg config.Config
	app Runner
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config) (Runner, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

// newRootCmd creates and configures the root command. The returned func
// closes the application services once the command has finished, whether
// or not it succeeded.
func newRootCmd() (*cobra.Command, func()) {
	var built *runtime
	cmd := &cobra.Command{
		Use:   "jobcrawler",
		Short: "A polite job-posting crawler.",
		Long: `jobcrawler collects job postings for a search query in three phases:
listing pages, job detail pages and company about pages. Requests are
strictly sequential with randomized delays and exponential backoff on 429,
and every run writes versioned JSON records plus a scrape report.`,
		SilenceUsage: true,

		// Runs before the subcommand's RunE: load config and build the app.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("dry-run-publish") {
				cfg.PubSub.DryRun = dryRunPublish
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			built = &runtime{cfg: cfg, app: a}
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey, built))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	cmd.PersistentFlags().BoolVar(&dryRunPublish, "dry-run-publish", false, "log run notifications instead of sending them to Pub/Sub")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newScheduleCmd())

	closeApp := func() {
		if built != nil {
			built.app.Close()
			built = nil
		}
	}
	return cmd, closeApp
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil || rt.app == nil {
		return nil, errors.New("application services not initialized")
	}
	return rt, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the running
// command; partial output is still written.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, args []string) error {
	cmd, closeApp := newRootCmd()
	defer closeApp()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}
