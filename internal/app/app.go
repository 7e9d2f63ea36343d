// Package app builds the long-lived services one crawl needs from
// configuration and runs the pipeline end to end: crawl, write files,
// persist to the optional stores, export, announce.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-crawler/internal/clock/system"
	"github.com/JakeFAU/jobpost-crawler/internal/config"
	"github.com/JakeFAU/jobpost-crawler/internal/crawler"
	"github.com/JakeFAU/jobpost-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/jobpost-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/jobpost-crawler/internal/hash/sha256"
	"github.com/JakeFAU/jobpost-crawler/internal/id/uuid"
	"github.com/JakeFAU/jobpost-crawler/internal/logging"
	"github.com/JakeFAU/jobpost-crawler/internal/metrics"
	"github.com/JakeFAU/jobpost-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/jobpost-crawler/internal/publisher"
	memorypublisher "github.com/JakeFAU/jobpost-crawler/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/jobpost-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/jobpost-crawler/internal/storage"
	gcsstore "github.com/JakeFAU/jobpost-crawler/internal/storage/gcs"
	"github.com/JakeFAU/jobpost-crawler/internal/storage/local"
	"github.com/JakeFAU/jobpost-crawler/internal/storage/postgres"
	redisstore "github.com/JakeFAU/jobpost-crawler/internal/storage/redis"
	s3store "github.com/JakeFAU/jobpost-crawler/internal/storage/s3"
)

// DefaultTopic is used when notifications are enabled without a configured topic.
const DefaultTopic = "jobcrawler-runs"

// ErrNoJobs reports a run that finished without a single job record.
var ErrNoJobs = errors.New("pipeline aborted: no job records collected")

type namedSink struct {
	name string
	sink storage.RunSink
}

type namedExporter struct {
	name  string
	store storage.BlobStore
}

// App holds the services shared by every run of one process.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	engine    *crawler.Engine
	local     *local.Store
	sinks     []namedSink
	exporters []namedExporter
	publisher publisher.Publisher
	topic     string
	closers   []func() error
}

// Option customizes New.
type Option func(*options)

type options struct {
	publisher publisher.Publisher
	pauser    crawler.Pauser
	clock     crawler.Clock
	exporters []namedExporter
}

// WithPublisher replaces the configured Pub/Sub publisher.
func WithPublisher(p publisher.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithPauser replaces the timer-based pauser used for polite delays and backoff.
func WithPauser(p crawler.Pauser) Option {
	return func(o *options) { o.pauser = p }
}

// WithClock replaces the system clock.
func WithClock(c crawler.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithExporter adds an object store that receives the run's output files.
func WithExporter(name string, store storage.BlobStore) Option {
	return func(o *options) { o.exporters = append(o.exporters, namedExporter{name: name, store: store}) }
}

// Outcome is what one pipeline run produced and where it went.
type Outcome struct {
	Result    *crawler.Result
	Files     local.Files
	Exports   []string
	MessageID string
}

// New connects every configured backend and builds the engine. It fails fast
// when a configured backend cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{cfg: cfg, logger: logging.OrNop(logger), topic: cfg.PubSub.Topic}
	a.logger.Info("initializing application services")

	if err := a.init(ctx, o); err != nil {
		a.Close()
		return nil, err
	}
	a.logger.Info("application services initialized",
		zap.Int("sinks", len(a.sinks)),
		zap.Int("exporters", len(a.exporters)),
		zap.Bool("publisher", a.publisher != nil),
	)
	return a, nil
}

func (a *App) init(ctx context.Context, o options) error {
	store, err := local.New(local.Config{Dir: a.cfg.Output.Dir, ReportDir: a.cfg.Output.ReportDir}, a.logger)
	if err != nil {
		return fmt.Errorf("init local store: %w", err)
	}
	a.local = store
	known := []crawler.KnownJobSource{store}

	if a.cfg.Postgres.DSN != "" {
		pg, err := postgres.NewStore(ctx, postgres.Config{
			DSN:            a.cfg.Postgres.DSN,
			JobsTable:      a.cfg.Postgres.JobsTable,
			CompaniesTable: a.cfg.Postgres.CompaniesTable,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("init postgres: %w", err)
		}
		a.closers = append(a.closers, func() error { pg.Close(); return nil })
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("postgres schema: %w", err)
		}
		a.sinks = append(a.sinks, namedSink{name: "postgres", sink: pg})
		known = append(known, pg)
	}

	if a.cfg.Redis.URL != "" {
		client, err := redisstore.NewClient(ctx, a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		seen := redisstore.NewSeenSet(client, a.cfg.Redis.SeenKey, a.logger)
		a.sinks = append(a.sinks, namedSink{name: "redis", sink: seen})
		known = append(known, seen)
	}

	if err := a.initExporters(ctx); err != nil {
		return err
	}
	a.exporters = append(a.exporters, o.exporters...)

	switch {
	case o.publisher != nil:
		a.publisher = o.publisher
		if a.topic == "" {
			a.topic = DefaultTopic
		}
	case a.cfg.PubSub.DryRun:
		a.publisher = memorypublisher.New(a.logger)
		if a.topic == "" {
			a.topic = DefaultTopic
		}
	case a.cfg.PubSub.Topic != "":
		pub, err := pubsubpublisher.Open(ctx, a.cfg.PubSub.ProjectID, a.logger)
		if err != nil {
			return fmt.Errorf("init pubsub: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		a.publisher = pub
	}

	if a.cfg.Metrics.Addr != "" {
		a.startMetricsServer()
	}

	engine, err := a.buildEngine(store, known, o)
	if err != nil {
		return err
	}
	a.engine = engine
	return nil
}

func (a *App) initExporters(ctx context.Context) error {
	if bucket := a.cfg.Export.GCSBucket; bucket != "" {
		gcs, err := gcsstore.Open(ctx, gcsstore.Config{Bucket: bucket}, a.logger)
		if err != nil {
			return fmt.Errorf("init gcs export: %w", err)
		}
		a.closers = append(a.closers, gcs.Close)
		a.exporters = append(a.exporters, namedExporter{name: "gcs", store: gcs})
	}
	if bucket := a.cfg.Export.S3Bucket; bucket != "" {
		s3, err := s3store.Open(ctx, s3store.Config{
			Bucket:   bucket,
			Region:   a.cfg.Export.S3Region,
			Endpoint: a.cfg.Export.S3Endpoint,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("init s3 export: %w", err)
		}
		a.exporters = append(a.exporters, namedExporter{name: "s3", store: s3})
	}
	return nil
}

func (a *App) startMetricsServer() {
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           metrics.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("starting metrics server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}

func (a *App) buildEngine(store *local.Store, known []crawler.KnownJobSource, o options) (*crawler.Engine, error) {
	table := extract.DefaultTable()
	if path := a.cfg.Crawler.SelectorTable; path != "" {
		loaded, err := extract.LoadTable(path)
		if err != nil {
			return nil, fmt.Errorf("load selector table: %w", err)
		}
		table = loaded
	}

	quality, err := crawler.NewQualityScorer(
		a.cfg.Quality.CriticalFields,
		a.cfg.Quality.HighThreshold,
		a.cfg.Quality.MediumThreshold,
	)
	if err != nil {
		return nil, fmt.Errorf("quality scorer: %w", err)
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.HTTP.UserAgent,
		RespectRobots: a.cfg.HTTP.RespectRobots,
		Timeout:       a.cfg.HTTP.Timeout,
	}, a.logger)

	headers := http.Header{}
	headers.Set("Accept", a.cfg.HTTP.Accept)
	headers.Set("Accept-Language", a.cfg.HTTP.AcceptLanguage)
	pageOpts := []crawler.PageFetcherOption{crawler.WithHeaders(headers)}
	if a.cfg.HTTP.MaxRPS > 0 {
		pageOpts = append(pageOpts, crawler.WithLimiter(ratelimit.New(ratelimit.Config{RPS: a.cfg.HTTP.MaxRPS})))
	}
	if o.pauser != nil {
		pageOpts = append(pageOpts, crawler.WithPauser(o.pauser))
	}
	pages := crawler.NewPageFetcher(fetcher, a.logger, pageOpts...)

	listingProfile, detailProfile, companyProfile := a.profiles()

	var clock crawler.Clock = system.New()
	if o.clock != nil {
		clock = o.clock
	}

	engine, err := crawler.NewEngine(crawler.EngineConfig{
		BaseURL:                    a.cfg.Search.BaseURL,
		UserAgent:                  a.cfg.HTTP.UserAgent,
		PageSize:                   a.cfg.Crawler.PageSize,
		MaxConsecutivePageFailures: a.cfg.Crawler.MaxConsecutivePageFailures,
		CheckpointEvery:            a.cfg.Crawler.CheckpointEvery,
		Listing:                    listingProfile,
	}, crawler.Dependencies{
		Pages:    pages,
		Listings: extract.NewListingExtractor(table, a.logger),
		Details: extract.NewDetailExtractor(pages, table, extract.DetailOptions{
			MinDescriptionLength: a.cfg.Crawler.MinDescriptionLength,
			FallbackMinLength:    a.cfg.Crawler.FallbackMinLength,
			Profile:              detailProfile,
		}, a.logger),
		Companies:   extract.NewCompanyExtractor(pages, table, companyProfile, a.logger),
		Hasher:      sha256.New(),
		Clock:       clock,
		IDs:         uuid.New(),
		Checkpoints: store,
		Known:       known,
		Quality:     quality,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	return engine, nil
}

func (a *App) profiles() (listing, detail, company crawler.Profile) {
	p := a.cfg.Politeness
	listing = crawler.Profile{
		Name:        string(crawler.PhaseListing),
		MinDelay:    p.ListingMinDelay,
		MaxDelay:    p.ListingMaxDelay,
		MaxAttempts: a.cfg.HTTP.MaxAttempts,
	}
	detail = crawler.Profile{
		Name:        string(crawler.PhaseDetail),
		MinDelay:    p.DetailMinDelay,
		MaxDelay:    p.DetailMaxDelay,
		MaxAttempts: a.cfg.HTTP.MaxAttempts,
	}
	company = detail
	company.Name = string(crawler.PhaseCompany)
	company.MaxAttempts = a.cfg.Crawler.CompanyMaxAttempts
	return listing, detail, company
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Query builds the run query from the search configuration.
func (a *App) Query() crawler.Query {
	return crawler.Query{
		Keywords:     a.cfg.Search.Keywords,
		Location:     a.cfg.Search.Location,
		Limit:        a.cfg.Search.Limit,
		CompanyPages: a.cfg.Search.CompanyPages,
		Incremental:  a.cfg.Search.Incremental,
	}
}

// Run executes one crawl and hands its output to every configured backend.
// Partial results are written even when the crawl was interrupted. The
// returned error joins the crawl error, ErrNoJobs and any backend failures.
func (a *App) Run(ctx context.Context, q crawler.Query) (*Outcome, error) {
	res, runErr := a.engine.Run(ctx, q)
	if res == nil {
		return nil, fmt.Errorf("run crawler: %w", runErr)
	}
	out := &Outcome{Result: res}
	errs := make([]error, 0, 4)
	if runErr != nil {
		errs = append(errs, fmt.Errorf("run crawler: %w", runErr))
	}

	// Output is written even when the caller has been cancelled.
	persistCtx := context.WithoutCancel(ctx)

	files, err := a.local.WriteRun(persistCtx, res)
	if err != nil {
		return out, errors.Join(append(errs, fmt.Errorf("write output files: %w", err))...)
	}
	out.Files = files

	for _, s := range a.sinks {
		if err := s.sink.PersistRun(persistCtx, res); err != nil {
			a.logger.Error("persist run", zap.String("sink", s.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("persist to %s: %w", s.name, err))
		}
	}

	for _, e := range a.exporters {
		uris, err := storage.Upload(persistCtx, e.store, a.cfg.Export.Prefix, res.RunID, files.All())
		out.Exports = append(out.Exports, uris...)
		if err != nil {
			a.logger.Error("export run", zap.String("exporter", e.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("export to %s: %w", e.name, err))
			continue
		}
		a.logger.Info("run exported", zap.String("exporter", e.name), zap.Int("objects", len(uris)))
	}

	if len(res.Jobs) == 0 {
		a.logger.Error("no job records collected", zap.String("run_id", res.RunID))
		errs = append(errs, ErrNoJobs)
	}

	if a.publisher != nil {
		ev := publisher.NewRunCompleted(res, time.Now().UTC(), files.All(), out.Exports, runErr)
		id, err := a.publisher.Publish(persistCtx, a.topic, ev)
		if err != nil {
			a.logger.Error("publish run notification", zap.Error(err))
			errs = append(errs, fmt.Errorf("publish run notification: %w", err))
		}
		out.MessageID = id
	}

	return out, errors.Join(errs...)
}

// Close shuts down every backend in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close service", zap.Error(err))
		}
	}
	a.closers = nil
	// Sync fails on some terminals; nothing useful can be done with the error.
	_ = a.logger.Sync()
}
