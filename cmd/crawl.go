package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-crawler/internal/app"
	"github.com/JakeFAU/jobpost-crawler/internal/crawler"
)

type searchFlags struct {
	keywords       string
	location       string
	limit          int
	noCompanyPages bool
	incremental    bool
}

func (f *searchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.keywords, "keywords", "", "search keywords (overrides search.keywords)")
	cmd.Flags().StringVar(&f.location, "location", "", "search location (overrides search.location)")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum number of job postings (overrides search.limit)")
	cmd.Flags().BoolVar(&f.noCompanyPages, "no-company-pages", false, "skip company about pages")
	cmd.Flags().BoolVar(&f.incremental, "incremental", false, "skip jobs already collected by earlier runs")
}

// apply overrides q with the flags the user actually set.
func (f *searchFlags) apply(cmd *cobra.Command, q crawler.Query) crawler.Query {
	flags := cmd.Flags()
	if flags.Changed("keywords") {
		q.Keywords = f.keywords
	}
	if flags.Changed("location") {
		q.Location = f.location
	}
	if flags.Changed("limit") {
		q.Limit = f.limit
	}
	if flags.Changed("no-company-pages") {
		q.CompanyPages = !f.noCompanyPages
	}
	if flags.Changed("incremental") {
		q.Incremental = f.incremental
	}
	return q
}

// newCrawlCmd creates the 'crawl' subcommand, which runs one pipeline.
func newCrawlCmd() *cobra.Command {
	var flags searchFlags
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl and writes its output",
		Long: `Fetches listing pages for the configured query, then every job detail
page and, unless disabled, each company's about page. Records, a checkpoint
and a scrape report are written to the output directories; configured
stores, exports and notifications receive the result afterwards.

Exits non-zero when no job record was collected.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, &flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func runCrawl(cmd *cobra.Command, flags *searchFlags) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	q := flags.apply(cmd, rt.app.Query())
	if q.Limit <= 0 {
		return fmt.Errorf("--limit must be > 0, got %d", q.Limit)
	}

	out, err := rt.app.Run(cmd.Context(), q)
	logOutcome(rt.app.Logger(), out)
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	rt.app.Logger().Info("crawl command finished")
	return nil
}

func logOutcome(logger *zap.Logger, out *app.Outcome) {
	if out == nil || out.Result == nil {
		return
	}
	res := out.Result
	logger.Info("run summary",
		zap.String("run_id", res.RunID),
		zap.Int("listings", len(res.Listings)),
		zap.Int("jobs", len(res.Jobs)),
		zap.Int("companies", len(res.Companies)),
		zap.Int("failures", res.Report.TotalFailures),
		zap.Any("failure_reasons", res.Report.FailureReasons),
		zap.Strings("files", out.Files.All()),
		zap.Int("exports", len(out.Exports)),
	)
}
