package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-crawler/internal/crawler"
)

// newScheduleCmd creates the 'schedule' subcommand, which repeats incremental
// crawls on a cron schedule until the process is interrupted.
func newScheduleCmd() *cobra.Command {
	var (
		flags     searchFlags
		spec      string
		immediate bool
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Runs incremental crawls on a cron schedule",
		Long: `Runs the crawl pipeline on every tick of a cron schedule with
incremental mode forced on, so each run only fetches jobs no earlier run
has collected. A tick that fires while a run is still going is skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("cron") {
				spec = rt.cfg.Schedule.Cron
			}
			q := flags.apply(cmd, rt.app.Query())
			q.Incremental = true

			s := newScheduler(rt.app, q, rt.app.Logger())
			return s.run(cmd.Context(), spec, immediate)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&spec, "cron", "", "cron spec (overrides schedule.cron), e.g. \"@every 6h\"")
	cmd.Flags().BoolVar(&immediate, "immediate", true, "run once at startup before the first tick")
	return cmd
}

type scheduler struct {
	app    Runner
	query  crawler.Query
	logger *zap.Logger

	mu   sync.Mutex
	runs int
}

func newScheduler(a Runner, q crawler.Query, logger *zap.Logger) *scheduler {
	return &scheduler{app: a, query: q, logger: logger.Named("scheduler")}
}

// run blocks until ctx is done, then waits for an in-flight crawl to finish.
func (s *scheduler) run(ctx context.Context, spec string, immediate bool) error {
	c := cron.New(cron.WithLogger(cron.PrintfLogger(zap.NewStdLog(s.logger))))
	if _, err := c.AddFunc(spec, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("cron spec %q: %w", spec, err)
	}
	c.Start()
	s.logger.Info("scheduler started", zap.String("spec", spec))

	if immediate {
		go s.tick(ctx)
	}

	<-ctx.Done()
	<-c.Stop().Done()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Info("scheduler stopped", zap.Int("runs", s.runs))
	return nil
}

// tick runs one crawl unless another is still in progress.
func (s *scheduler) tick(ctx context.Context) {
	if !s.mu.TryLock() {
		s.logger.Warn("previous run still in progress, skipping tick")
		return
	}
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	s.runs++
	s.logger.Info("scheduled run started", zap.Int("n", s.runs))
	out, err := s.app.Run(ctx, s.query)
	logOutcome(s.logger, out)
	if err != nil {
		s.logger.Error("scheduled run failed", zap.Error(err))
	}
}
