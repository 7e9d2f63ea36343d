package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Search.Keywords != "Data Scientist" || cfg.Search.Limit != 25 {
		t.Fatalf("unexpected search defaults: %+v", cfg.Search)
	}
	if !cfg.Search.CompanyPages || cfg.Search.Incremental {
		t.Fatalf("expected company pages on and incremental off: %+v", cfg.Search)
	}
	if cfg.HTTP.Timeout != 15*time.Second || cfg.HTTP.MaxAttempts != 3 {
		t.Fatalf("unexpected http defaults: %+v", cfg.HTTP)
	}
	if cfg.Politeness.DetailMinDelay != 1500*time.Millisecond || cfg.Politeness.DetailMaxDelay != 4*time.Second {
		t.Fatalf("unexpected detail delay defaults: %+v", cfg.Politeness)
	}
	if cfg.Politeness.ListingMinDelay != 500*time.Millisecond || cfg.Politeness.ListingMaxDelay != time.Second {
		t.Fatalf("unexpected listing delay defaults: %+v", cfg.Politeness)
	}
	if cfg.Crawler.CheckpointEvery != 10 || cfg.Crawler.PageSize != 25 {
		t.Fatalf("unexpected crawler defaults: %+v", cfg.Crawler)
	}
	if len(cfg.Quality.CriticalFields) != 3 || cfg.Quality.HighThreshold != 3 || cfg.Quality.MediumThreshold != 1 {
		t.Fatalf("unexpected quality defaults: %+v", cfg.Quality)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
search:
  keywords: Data Engineer
  location: Berlin
  limit: 60
  company_pages: false
  incremental: true
http:
  timeout: 30s
  max_attempts: 5
  max_rps: 0.5
politeness:
  detail_min_delay: 2s
  detail_max_delay: 5s
crawler:
  checkpoint_every: 4
quality:
  critical_fields: [description, salary]
  high_threshold: 2
  medium_threshold: 1
logging:
  development: false
  level: debug
redis:
  url: redis://localhost:6379/0
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Search.Keywords != "Data Engineer" || cfg.Search.Location != "Berlin" || cfg.Search.Limit != 60 {
		t.Fatalf("expected search overrides to apply: %+v", cfg.Search)
	}
	if cfg.Search.CompanyPages || !cfg.Search.Incremental {
		t.Fatalf("expected boolean overrides to apply: %+v", cfg.Search)
	}
	if cfg.HTTP.Timeout != 30*time.Second || cfg.HTTP.MaxAttempts != 5 || cfg.HTTP.MaxRPS != 0.5 {
		t.Fatalf("expected http overrides to apply: %+v", cfg.HTTP)
	}
	if cfg.Politeness.DetailMinDelay != 2*time.Second || cfg.Politeness.DetailMaxDelay != 5*time.Second {
		t.Fatalf("expected politeness overrides to apply: %+v", cfg.Politeness)
	}
	if cfg.Crawler.CheckpointEvery != 4 {
		t.Fatalf("expected checkpoint override, got %d", cfg.Crawler.CheckpointEvery)
	}
	if cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging overrides: %+v", cfg.Logging)
	}
	if cfg.Redis.SeenKey != "jobcrawler:seen_jobs" {
		t.Fatalf("expected default seen key, got %q", cfg.Redis.SeenKey)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("JOBCRAWLER_SEARCH_LIMIT", "7")
	t.Setenv("JOBCRAWLER_SEARCH_KEYWORDS", "ML Engineer")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Search.Limit != 7 || cfg.Search.Keywords != "ML Engineer" {
		t.Fatalf("expected env overrides, got %+v", cfg.Search)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func validConfig() Config {
	return Config{
		Search:     SearchConfig{Limit: 25, BaseURL: DefaultBaseURL},
		HTTP:       HTTPConfig{Timeout: time.Second, MaxAttempts: 3},
		Politeness: PolitenessConfig{ListingMaxDelay: time.Second, DetailMaxDelay: time.Second},
		Crawler: CrawlerConfig{
			PageSize:                   25,
			MaxConsecutivePageFailures: 3,
			CheckpointEvery:            10,
			CompanyMaxAttempts:         3,
		},
		Quality: QualityConfig{
			CriticalFields:  []string{"description", "salary", "applicant_count"},
			HighThreshold:   3,
			MediumThreshold: 1,
		},
		Output: OutputConfig{Dir: "data/raw"},
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid base config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "limit", mutate: func(c *Config) { c.Search.Limit = 0 }, want: "search.limit"},
		{name: "base url", mutate: func(c *Config) { c.Search.BaseURL = " " }, want: "search.base_url"},
		{name: "timeout", mutate: func(c *Config) { c.HTTP.Timeout = 0 }, want: "http.timeout"},
		{name: "attempts", mutate: func(c *Config) { c.HTTP.MaxAttempts = 0 }, want: "http.max_attempts"},
		{name: "rps", mutate: func(c *Config) { c.HTTP.MaxRPS = -1 }, want: "http.max_rps"},
		{
			name:   "detail delay inverted",
			mutate: func(c *Config) { c.Politeness.DetailMinDelay = 2 * time.Second },
			want:   "politeness.detail",
		},
		{name: "page size", mutate: func(c *Config) { c.Crawler.PageSize = 0 }, want: "crawler.page_size"},
		{name: "checkpoint", mutate: func(c *Config) { c.Crawler.CheckpointEvery = 0 }, want: "crawler.checkpoint_every"},
		{
			name:   "company attempts",
			mutate: func(c *Config) { c.Crawler.CompanyMaxAttempts = 0 },
			want:   "crawler.company_max_attempts",
		},
		{name: "no critical fields", mutate: func(c *Config) { c.Quality.CriticalFields = nil }, want: "quality.critical_fields"},
		{name: "high above field count", mutate: func(c *Config) { c.Quality.HighThreshold = 4 }, want: "quality thresholds"},
		{name: "medium above high", mutate: func(c *Config) { c.Quality.MediumThreshold = 3; c.Quality.HighThreshold = 2 }, want: "quality thresholds"},
		{name: "medium zero", mutate: func(c *Config) { c.Quality.MediumThreshold = 0 }, want: "quality thresholds"},
		{name: "pubsub project", mutate: func(c *Config) { c.PubSub.Topic = "runs" }, want: "pubsub.project_id"},
		{name: "redis key", mutate: func(c *Config) { c.Redis.URL = "redis://x" }, want: "redis.seen_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateDryRunPublisherNeedsNoProject(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.PubSub.Topic = "runs"
	cfg.PubSub.DryRun = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("dry run should not require pubsub.project_id: %v", err)
	}
}
