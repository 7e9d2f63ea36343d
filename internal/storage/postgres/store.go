// Package postgres stores job and company records in Postgres and serves the
// job IDs of earlier runs for incremental crawling.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-crawler/internal/crawler"
	"github.com/JakeFAU/jobpost-crawler/internal/logging"
	"github.com/JakeFAU/jobpost-crawler/internal/record"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	JobsTable       string
	CompaniesTable  string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store upserts run records and reads known job IDs.
type Store struct {
	pool      pool
	jobs      string
	companies string
	logger    *zap.Logger
}

// NewStore connects to Postgres using cfg.
func NewStore(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewStoreWithPool(p, cfg.JobsTable, cfg.CompaniesTable, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(p pool, jobsTable, companiesTable string, logger *zap.Logger) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if jobsTable == "" {
		jobsTable = "raw_jobs"
	}
	if companiesTable == "" {
		companiesTable = "raw_companies"
	}
	for _, table := range []string{jobsTable, companiesTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &Store{
		pool:      p,
		jobs:      jobsTable,
		companies: companiesTable,
		logger:    logging.OrNop(logger).Named("postgres"),
	}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates both tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	job_id             TEXT PRIMARY KEY,
	job_url            TEXT,
	run_id             TEXT NOT NULL,
	scraped_at         TIMESTAMPTZ NOT NULL,
	extraction_quality TEXT NOT NULL,
	content_hash       TEXT,
	payload            JSONB NOT NULL
)`, s.jobs),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	company_id         TEXT PRIMARY KEY,
	company_url        TEXT NOT NULL,
	first_seen         TIMESTAMPTZ NOT NULL,
	last_seen          TIMESTAMPTZ NOT NULL,
	extraction_quality TEXT NOT NULL,
	content_hash       TEXT,
	payload            JSONB NOT NULL
)`, s.companies),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// PersistRun implements storage.RunSink. Jobs are replaced by ID; companies
// keep their first captured content and only move last_seen forward.
func (s *Store) PersistRun(ctx context.Context, res *crawler.Result) error {
	if res == nil {
		return fmt.Errorf("result is required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := s.persist(ctx, tx, res); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("run persisted",
		zap.String("run_id", res.RunID),
		zap.Int("jobs", len(res.Jobs)),
		zap.Int("companies", len(res.Companies)),
	)
	return nil
}

func (s *Store) persist(ctx context.Context, tx pgx.Tx, res *crawler.Result) error {
	for i := range res.Jobs {
		query, args, err := s.jobUpsert(&res.Jobs[i])
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert job %s: %w", res.Jobs[i].ID(), err)
		}
	}
	for i := range res.Companies {
		query, args, err := s.companyUpsert(&res.Companies[i])
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert company %s: %w", res.Companies[i].ID(), err)
		}
	}
	return nil
}

func (s *Store) jobUpsert(rec *record.JobRecord) (string, []any, error) {
	if rec.ID() == "" {
		return "", nil, fmt.Errorf("job record without id")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", nil, fmt.Errorf("marshal job %s: %w", rec.ID(), err)
	}
	query, args, err := psql.Insert(s.jobs).
		Columns("job_id", "job_url", "run_id", "scraped_at", "extraction_quality", "content_hash", "payload").
		Values(
			rec.ID(),
			rec.JobIdentity.JobURL,
			rec.ScrapeMetadata.RunID,
			rec.ScrapeMetadata.ScrapeTimestamp,
			string(rec.QualityTracking.ExtractionQuality),
			rec.Hashing.JobDescriptionContentHash,
			payload,
		).
		Suffix(`ON CONFLICT (job_id) DO UPDATE SET
	run_id = EXCLUDED.run_id,
	scraped_at = EXCLUDED.scraped_at,
	extraction_quality = EXCLUDED.extraction_quality,
	content_hash = EXCLUDED.content_hash,
	payload = EXCLUDED.payload`).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build job upsert: %w", err)
	}
	return query, args, nil
}

func (s *Store) companyUpsert(rec *record.CompanyRecord) (string, []any, error) {
	if rec.ID() == "" {
		return "", nil, fmt.Errorf("company record without id")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", nil, fmt.Errorf("marshal company %s: %w", rec.ID(), err)
	}
	query, args, err := psql.Insert(s.companies).
		Columns("company_id", "company_url", "first_seen", "last_seen", "extraction_quality", "content_hash", "payload").
		Values(
			rec.ID(),
			rec.CompanyIdentity.CompanyURL,
			rec.Timestamps.FirstSeen,
			rec.Timestamps.LastSeen,
			string(rec.QualityTracking.ExtractionQuality),
			rec.Hashing.CompanyContentHash,
			payload,
		).
		Suffix(fmt.Sprintf(`ON CONFLICT (company_id) DO UPDATE SET
	last_seen = GREATEST(%s.last_seen, EXCLUDED.last_seen)`, s.companies)).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build company upsert: %w", err)
	}
	return query, args, nil
}

// KnownJobIDs implements crawler.KnownJobSource.
func (s *Store) KnownJobIDs(ctx context.Context) (map[string]struct{}, error) {
	query, args, err := psql.Select("job_id").From(s.jobs).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build known ids query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query known ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job ids: %w", err)
	}
	return ids, nil
}
