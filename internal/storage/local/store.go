// Package local writes run output as JSON files on the local filesystem and
// keeps the interim checkpoint used for crash recovery.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-crawler/internal/crawler"
	"github.com/JakeFAU/jobpost-crawler/internal/logging"
	"github.com/JakeFAU/jobpost-crawler/internal/record"
)

const (
	checkpointFile      = "jobs_checkpoint.json"
	jobsLatestFile      = "jobs_raw_latest.json"
	companiesLatestFile = "companies_raw_latest.json"
	fileStampLayout     = "20060102_150405"
)

// Config captures where files are written.
type Config struct {
	// Dir receives record files and the checkpoint.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// ReportDir receives scrape reports.
	ReportDir string `mapstructure:"report_dir" yaml:"report_dir"`
}

// Store writes record files, reports and the checkpoint.
type Store struct {
	dir       string
	reportDir string
	logger    *zap.Logger
}

// Files lists the paths written for one run.
type Files struct {
	Listings        string
	Jobs            string
	Companies       string
	JobsLatest      string
	CompaniesLatest string
	Report          string
}

// All returns every written path.
func (f Files) All() []string {
	out := make([]string, 0, 6)
	for _, p := range []string{f.Listings, f.Jobs, f.Companies, f.JobsLatest, f.CompaniesLatest, f.Report} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Report is the persisted summary of a run's failures.
type Report struct {
	Timestamp        string                    `json:"timestamp"`
	RunID            string                    `json:"run_id"`
	ScraperVersion   string                    `json:"scraper_version"`
	RawSchemaVersion string                    `json:"raw_schema_version"`
	SearchKeyword    string                    `json:"search_keyword"`
	SearchLocation   string                    `json:"search_location"`
	TotalListings    int                       `json:"total_listings"`
	TotalJobs        int                       `json:"total_jobs"`
	TotalCompanies   int                       `json:"total_companies"`
	TotalFailures    int                       `json:"total_failures"`
	FailureReasons   map[string]int            `json:"failure_reasons"`
	Failures         []crawler.FailureLogEntry `json:"failures"`
}

// New creates a Store, creating both directories if needed.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	reportDir := cfg.ReportDir
	if strings.TrimSpace(reportDir) == "" {
		reportDir = cfg.Dir
	}
	for _, dir := range []string{cfg.Dir, reportDir} {
		if err := ensureWritable(dir); err != nil {
			return nil, err
		}
	}
	return &Store{
		dir:       cfg.Dir,
		reportDir: reportDir,
		logger:    logging.OrNop(logger).Named("local_store"),
	}, nil
}

func ensureWritable(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return fmt.Errorf("create directory %s: %w", dir, mkErr)
		}
	case err != nil:
		return fmt.Errorf("stat directory %s: %w", dir, err)
	case !info.IsDir():
		return fmt.Errorf("%s is not a directory", dir)
	}

	probe := filepath.Join(dir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("clean up probe file: %w", err)
	}
	return nil
}

// CheckpointPath is the single interim file overwritten during a run.
func (s *Store) CheckpointPath() string {
	return filepath.Join(s.dir, checkpointFile)
}

// SaveCheckpoint implements crawler.Checkpointer. The file is replaced
// atomically so a crash never leaves a truncated checkpoint.
func (s *Store) SaveCheckpoint(_ context.Context, jobs []record.JobRecord) error {
	if jobs == nil {
		jobs = []record.JobRecord{}
	}
	return writeJSON(s.CheckpointPath(), jobs)
}

// ClearCheckpoint implements crawler.Checkpointer.
func (s *Store) ClearCheckpoint(_ context.Context) error {
	if err := os.Remove(s.CheckpointPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads the checkpoint left by an interrupted run. A missing
// file yields no records and no error.
func (s *Store) LoadCheckpoint(_ context.Context) ([]record.JobRecord, error) {
	return readJobs(s.CheckpointPath())
}

// KnownJobIDs implements crawler.KnownJobSource from every job file written
// so far and any checkpoint left by an interrupted run.
func (s *Store) KnownJobIDs(ctx context.Context) (map[string]struct{}, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "jobs_raw_*.json"))
	if err != nil {
		return nil, fmt.Errorf("list job files: %w", err)
	}
	ids := make(map[string]struct{})
	for _, path := range paths {
		jobs, err := readJobs(path)
		if err != nil {
			return nil, err
		}
		addIDs(ids, jobs)
	}
	pending, err := s.LoadCheckpoint(ctx)
	if err != nil {
		return nil, err
	}
	addIDs(ids, pending)
	if len(pending) > 0 {
		s.logger.Info("resuming from checkpoint", zap.Int("jobs", len(pending)))
	}
	s.logger.Debug("known jobs loaded", zap.Int("files", len(paths)), zap.Int("ids", len(ids)))
	return ids, nil
}

func addIDs(ids map[string]struct{}, jobs []record.JobRecord) {
	for _, rec := range jobs {
		if id := rec.ID(); id != "" {
			ids[id] = struct{}{}
		}
	}
}

// WriteRun writes the versioned record files, their latest copies, the raw
// listings and the scrape report for res.
func (s *Store) WriteRun(_ context.Context, res *crawler.Result) (Files, error) {
	if res == nil {
		return Files{}, fmt.Errorf("result is required")
	}
	stamp := res.StartedAt.UTC().Format(fileStampLayout)
	files := Files{
		Listings:        filepath.Join(s.dir, fmt.Sprintf("raw_listings_%s.json", stamp)),
		Jobs:            filepath.Join(s.dir, fmt.Sprintf("jobs_raw_%s.json", stamp)),
		Companies:       filepath.Join(s.dir, fmt.Sprintf("companies_raw_%s.json", stamp)),
		JobsLatest:      filepath.Join(s.dir, jobsLatestFile),
		CompaniesLatest: filepath.Join(s.dir, companiesLatestFile),
		Report:          filepath.Join(s.reportDir, fmt.Sprintf("scrape_report_%s.json", stamp)),
	}

	writes := []struct {
		path  string
		value any
	}{
		{files.Listings, nonNil(res.Listings)},
		{files.Jobs, nonNil(res.Jobs)},
		{files.Companies, nonNil(res.Companies)},
		{files.JobsLatest, nonNil(res.Jobs)},
		{files.CompaniesLatest, nonNil(res.Companies)},
		{files.Report, newReport(res, time.Now())},
	}
	for _, w := range writes {
		if err := writeJSON(w.path, w.value); err != nil {
			return Files{}, err
		}
	}
	s.logger.Info("run written",
		zap.String("jobs", files.Jobs),
		zap.String("companies", files.Companies),
		zap.String("report", files.Report),
	)
	return files, nil
}

// PersistRun implements storage.RunSink.
func (s *Store) PersistRun(ctx context.Context, res *crawler.Result) error {
	_, err := s.WriteRun(ctx, res)
	return err
}

func newReport(res *crawler.Result, now time.Time) Report {
	failures := res.Report.Failures
	if failures == nil {
		failures = []crawler.FailureLogEntry{}
	}
	reasons := res.Report.FailureReasons
	if reasons == nil {
		reasons = map[string]int{}
	}
	return Report{
		Timestamp:        record.FormatTime(now),
		RunID:            res.RunID,
		ScraperVersion:   record.ScraperVersion,
		RawSchemaVersion: record.RawSchemaVersion,
		SearchKeyword:    res.Query.Keywords,
		SearchLocation:   res.Query.Location,
		TotalListings:    len(res.Listings),
		TotalJobs:        len(res.Jobs),
		TotalCompanies:   len(res.Companies),
		TotalFailures:    res.Report.TotalFailures,
		FailureReasons:   reasons,
		Failures:         failures,
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func readJobs(path string) ([]record.JobRecord, error) {
	// #nosec G304 -- path is built from the configured output directory.
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var jobs []record.JobRecord
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return jobs, nil
}

// writeJSON encodes value with HTML left unescaped and renames a temp file
// over path.
func writeJSON(path string, value any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
