package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-crawler/internal/logging"
	"github.com/JakeFAU/jobpost-crawler/internal/metrics"
	"github.com/JakeFAU/jobpost-crawler/internal/record"
)

// Dependencies are the collaborators an Engine drives.
type Dependencies struct {
	Pages       PageSource
	Listings    ListingParser
	Details     DetailSource
	Companies   CompanySource
	Hasher      Hasher
	Clock       Clock
	IDs         IDGenerator
	Checkpoints Checkpointer
	Known       []KnownJobSource
	Quality     *QualityScorer
}

// Engine runs the listing, detail and company phases for one query at a time.
type Engine struct {
	cfg  EngineConfig
	deps Dependencies
	log  *zap.Logger
}

// NewEngine validates cfg and deps and builds an Engine.
func NewEngine(cfg EngineConfig, deps Dependencies, logger *zap.Logger) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Pages == nil:
		return nil, errors.New("engine: page source is required")
	case deps.Listings == nil:
		return nil, errors.New("engine: listing parser is required")
	case deps.Details == nil:
		return nil, errors.New("engine: detail source is required")
	case deps.Companies == nil:
		return nil, errors.New("engine: company source is required")
	case deps.Hasher == nil:
		return nil, errors.New("engine: hasher is required")
	case deps.Clock == nil:
		return nil, errors.New("engine: clock is required")
	case deps.IDs == nil:
		return nil, errors.New("engine: id generator is required")
	}
	if deps.Quality == nil {
		q, err := NewQualityScorer(DefaultCriticalFields, 3, 1)
		if err != nil {
			return nil, err
		}
		deps.Quality = q
	}
	metrics.Init()
	return &Engine{cfg: cfg, deps: deps, log: logging.OrNop(logger).Named("engine")}, nil
}

// Run executes one crawl. It always returns the partial Result it collected;
// the error is non-nil only for systemic failures: no listings at all, a
// record that cannot be serialized, or cancellation of ctx.
func (e *Engine) Run(ctx context.Context, q Query) (*Result, error) {
	if q.Limit <= 0 {
		return nil, fmt.Errorf("engine: limit must be > 0, got %d", q.Limit)
	}
	runID, err := e.deps.IDs.NewID()
	if err != nil {
		return nil, fmt.Errorf("engine: run id: %w", err)
	}
	state := newRunState(runID, q, e.deps.Clock.Now())
	e.log.Info("run started",
		zap.String("run_id", runID),
		zap.String("keywords", q.Keywords),
		zap.String("location", q.Location),
		zap.Int("limit", q.Limit),
		zap.Bool("company_pages", q.CompanyPages),
		zap.Bool("incremental", q.Incremental),
	)
	if q.Incremental {
		e.loadKnown(ctx, state)
	}

	runErr := e.listingPhase(ctx, state)
	if runErr == nil && len(state.listings) == 0 {
		e.log.Error("no listings found, aborting")
		runErr = ErrNoListings
	}
	if runErr == nil {
		runErr = e.detailPhase(ctx, state)
	}
	return e.finalize(ctx, state, runErr)
}

func (e *Engine) loadKnown(ctx context.Context, state *RunState) {
	for _, src := range e.deps.Known {
		if src == nil {
			continue
		}
		ids, err := src.KnownJobIDs(ctx)
		if err != nil {
			e.log.Warn("load known job ids", zap.Error(err))
			continue
		}
		state.seen.Merge(ids)
	}
	e.log.Info("known job ids loaded", zap.Int("count", state.seen.Len()))
}

func (e *Engine) listingPhase(ctx context.Context, state *RunState) error {
	start := time.Now()
	defer func() { metrics.ObservePhase(string(PhaseListing), time.Since(start)) }()
	e.log.Info("listing phase started", zap.Int("limit", state.query.Limit))

	breaker := newPageBreaker(e.cfg.MaxConsecutivePageFailures)
	skipped := 0
	for offset := 0; len(state.listings) < state.query.Limit; offset += e.cfg.PageSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		pageURL, err := ListingURL(e.cfg.BaseURL, state.query.Keywords, state.query.Location, offset)
		if err != nil {
			return err
		}
		page, err := e.deps.Pages.FetchPage(ctx, pageURL, e.cfg.Listing)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			e.recordFailure(state, record.Listing{}, pageURL, PhaseListing, err)
			if breaker.Failure() {
				e.log.Warn("listing circuit breaker open, stopping pagination",
					zap.Int("offset", offset),
					zap.Int("consecutive_failures", e.cfg.MaxConsecutivePageFailures),
				)
				break
			}
			continue
		}
		breaker.Success()

		entries := e.deps.Listings.ParseListings(page)
		if len(entries) == 0 {
			e.log.Info("no more listing cards", zap.Int("offset", offset))
			break
		}
		for _, entry := range entries {
			if len(state.listings) >= state.query.Limit {
				break
			}
			if entry.JobURL == nil {
				e.recordFailure(state, entry, "", PhaseListing, ErrMissingJobURL)
				continue
			}
			id := deref(e.deps.Hasher.URL(entry.JobURL))
			if !state.seen.MarkIfNew(id) {
				skipped++
				continue
			}
			state.listings = append(state.listings, entry)
			e.log.Debug("listing accepted",
				zap.Int("n", len(state.listings)),
				zap.String("title", deref(entry.TitleRaw)),
				zap.String("company", deref(entry.CompanyRaw)),
			)
		}
	}
	e.log.Info("listing phase finished",
		zap.Int("listings", len(state.listings)),
		zap.Int("skipped_seen", skipped),
	)
	return nil
}

func (e *Engine) detailPhase(ctx context.Context, state *RunState) error {
	start := time.Now()
	defer func() { metrics.ObservePhase(string(PhaseDetail), time.Since(start)) }()
	total := len(state.listings)
	e.log.Info("detail phase started", zap.Int("listings", total))

	for i, stub := range state.listings {
		if err := ctx.Err(); err != nil {
			return err
		}
		jobURL := deref(stub.JobURL)
		e.log.Info("fetching job", zap.Int("n", i+1), zap.Int("of", total), zap.String("url", jobURL))

		res := e.deps.Details.Extract(ctx, jobURL)
		if !res.Success {
			if err := ctx.Err(); err != nil {
				return err
			}
			e.recordFailure(state, stub, jobURL, PhaseDetail, res.Err)
			continue
		}

		seenAt := e.deps.Clock.Now()
		rec := e.buildJob(state, stub, res, seenAt)
		if err := record.ValidateJob(&rec); err != nil {
			e.log.Error("job record cannot be serialized", zap.String("url", jobURL), zap.Error(err))
			return err
		}
		state.jobs = append(state.jobs, rec)
		metrics.ObserveRecord("job", string(rec.QualityTracking.ExtractionQuality))

		if len(state.jobs)%e.cfg.CheckpointEvery == 0 {
			e.checkpoint(ctx, state)
		}

		if state.query.CompanyPages && stub.CompanyURL != nil {
			if err := e.visitCompany(ctx, state, stub, seenAt); err != nil {
				return err
			}
		}
	}
	e.log.Info("detail phase finished",
		zap.Int("jobs", len(state.jobs)),
		zap.Int("companies", len(state.companyOrder)),
		zap.Int("failures", len(state.failures)),
	)
	return nil
}

func (e *Engine) buildJob(state *RunState, stub record.Listing, res DetailResult, seenAt time.Time) record.JobRecord {
	keyword := state.query.Keywords
	location := state.query.Location
	userAgent := e.cfg.UserAgent
	fields := res.Fields

	var companyHash *string
	if stub.CompanyURL != nil {
		canonical := e.deps.Companies.CanonicalURL(*stub.CompanyURL)
		companyHash = e.deps.Hasher.URL(&canonical)
	}
	jobID := e.deps.Hasher.URL(stub.JobURL)
	history := res.StatusHistory
	if history == nil {
		history = []int{}
	}
	retries := res.Attempts - 1
	if retries < 0 {
		retries = 0
	}

	return record.JobRecord{
		ScraperVersion:   record.ScraperVersion,
		RawSchemaVersion: record.RawSchemaVersion,
		ScrapeMetadata: record.ScrapeMetadata{
			SearchKeyword:   &keyword,
			SearchLocation:  &location,
			ScrapeTimestamp: record.FormatTime(seenAt),
			UserAgentUsed:   record.String(userAgent),
			RunID:           state.runID,
		},
		JobIdentity: record.JobIdentity{JobIDRaw: jobID, JobURL: stub.JobURL},
		JobCardRaw: record.JobCardRaw{
			TitleRaw:       stub.TitleRaw,
			CompanyRaw:     stub.CompanyRaw,
			LocationRaw:    stub.LocationRaw,
			DatePostedRaw:  stub.DatePostedRaw,
			DatePostedAttr: stub.DatePostedAttr,
		},
		JobPageRaw:  fields,
		CompanyInfo: record.CompanyInfo{CompanyURL: stub.CompanyURL, CompanyIDHash: companyHash},
		QualityTracking: record.JobQuality{
			ExtractionQuality: e.deps.Quality.Tier(&fields),
			SelectorHits:      res.SelectorHits,
			StatusCodeHistory: history,
			RetryCount:        retries,
		},
		Hashing: record.JobHashing{
			JobDescriptionContentHash: e.deps.Hasher.Content(fields.JobDescriptionRawText),
			JobPostIDHash:             jobID,
		},
	}
}

func (e *Engine) visitCompany(ctx context.Context, state *RunState, stub record.Listing, seenAt time.Time) error {
	canonical := e.deps.Companies.CanonicalURL(*stub.CompanyURL)
	// Keyed by identity hash so case-only URL variants share one fetch.
	id := deref(e.deps.Hasher.URL(&canonical))
	if outcome, ok := state.companyCache[id]; ok {
		if outcome.ok {
			state.touchCompany(outcome.id, seenAt)
		}
		return nil
	}

	res := e.deps.Companies.Extract(ctx, canonical)
	if !res.Success {
		if err := ctx.Err(); err != nil {
			return err
		}
		state.companyCache[id] = companyOutcome{}
		e.recordFailure(state, stub, canonical, PhaseCompany, res.Err)
		return nil
	}

	state.companyCache[id] = companyOutcome{id: id, ok: true}
	if _, exists := state.companies[id]; exists {
		state.touchCompany(id, seenAt)
		return nil
	}

	fields := res.Fields
	retries := res.Attempts - 1
	if retries < 0 {
		retries = 0
	}
	ts := record.FormatTime(seenAt)
	rec := &record.CompanyRecord{
		ScraperVersion:   record.ScraperVersion,
		RawSchemaVersion: record.RawSchemaVersion,
		CompanyIdentity: record.CompanyIdentity{
			CompanyIDHash:  id,
			CompanyNameRaw: stub.CompanyRaw,
			CompanyURL:     canonical,
		},
		CompanyPageRaw: fields,
		Hashing:        record.CompanyHashing{CompanyContentHash: e.deps.Hasher.Content(fields.CompanyAboutRawText)},
		Timestamps:     record.CompanyTimestamps{FirstSeen: ts, LastSeen: ts},
		QualityTracking: record.CompanyQuality{
			ExtractionQuality: CompanyQuality(&fields),
			RetryCount:        retries,
		},
	}
	if err := record.ValidateCompany(rec); err != nil {
		e.log.Error("company record cannot be serialized", zap.String("url", canonical), zap.Error(err))
		return err
	}
	state.companies[id] = rec
	state.companyOrder = append(state.companyOrder, id)
	metrics.ObserveRecord("company", string(rec.QualityTracking.ExtractionQuality))
	e.log.Info("company captured", zap.String("url", canonical), zap.String("company_id", id))
	return nil
}

func (e *Engine) checkpoint(ctx context.Context, state *RunState) {
	if e.deps.Checkpoints == nil {
		return
	}
	if err := e.deps.Checkpoints.SaveCheckpoint(ctx, state.jobs); err != nil {
		e.log.Error("write checkpoint", zap.Int("jobs", len(state.jobs)), zap.Error(err))
		return
	}
	e.log.Debug("checkpoint written", zap.Int("jobs", len(state.jobs)))
}

func (e *Engine) recordFailure(state *RunState, stub record.Listing, url string, phase Phase, err error) {
	entry := FailureLogEntry{
		URL:       url,
		Title:     derefOr(stub.TitleRaw, "N/A"),
		Company:   derefOr(stub.CompanyRaw, "N/A"),
		Reason:    FailureReason(err),
		Phase:     phase,
		Timestamp: record.FormatTime(e.deps.Clock.Now()),
	}
	state.failures = append(state.failures, entry)
	metrics.ObserveFailure(string(phase))
	e.log.Warn("discarded",
		zap.String("phase", string(phase)),
		zap.String("url", url),
		zap.String("title", entry.Title),
		zap.String("company", entry.Company),
		zap.String("reason", entry.Reason),
		zap.Error(err),
	)
}

// finalize clears the checkpoint unless the run was cut short, then builds
// the Result. The checkpoint of an interrupted run stays on disk so the next
// incremental run can skip its jobs.
func (e *Engine) finalize(ctx context.Context, state *RunState, runErr error) (*Result, error) {
	interrupted := runErr != nil && !errors.Is(runErr, ErrNoListings)
	if e.deps.Checkpoints != nil && !interrupted {
		if err := e.deps.Checkpoints.ClearCheckpoint(ctx); err != nil {
			e.log.Warn("clear checkpoint", zap.Error(err))
		}
	}
	result := state.result()
	e.log.Info("run finished",
		zap.String("run_id", state.runID),
		zap.Int("jobs", len(result.Jobs)),
		zap.Int("companies", len(result.Companies)),
		zap.Int("failures", result.Report.TotalFailures),
		zap.Error(runErr),
	)
	return result, runErr
}

// RunState is the mutable state of exactly one run, owned by the Engine for
// the duration of Run and never shared across runs.
type RunState struct {
	runID        string
	query        Query
	startedAt    time.Time
	seen         *seenSet
	listings     []record.Listing
	jobs         []record.JobRecord
	companies    map[string]*record.CompanyRecord
	companyOrder []string
	companyCache map[string]companyOutcome
	failures     []FailureLogEntry
}

type companyOutcome struct {
	id string
	ok bool
}

func newRunState(runID string, q Query, startedAt time.Time) *RunState {
	return &RunState{
		runID:        runID,
		query:        q,
		startedAt:    startedAt,
		seen:         newSeenSet(),
		companies:    make(map[string]*record.CompanyRecord),
		companyCache: make(map[string]companyOutcome),
	}
}

func (s *RunState) touchCompany(id string, seenAt time.Time) {
	if rec, ok := s.companies[id]; ok {
		rec.Timestamps.LastSeen = record.FormatTime(seenAt)
	}
}

func (s *RunState) result() *Result {
	companies := make([]record.CompanyRecord, 0, len(s.companyOrder))
	for _, id := range s.companyOrder {
		companies = append(companies, *s.companies[id])
	}
	return &Result{
		RunID:     s.runID,
		StartedAt: s.startedAt,
		Query:     s.query,
		Listings:  append([]record.Listing(nil), s.listings...),
		Jobs:      append([]record.JobRecord(nil), s.jobs...),
		Companies: companies,
		Report:    NewScrapeReport(s.failures),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
