// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/jobpost-crawler/internal/logging"
)

const (
	// DefaultBaseURL is the guest job search endpoint used for listing pages.
	DefaultBaseURL = "https://www.linkedin.com/jobs-guest/jobs/api/seeMoreJobPostings/search"
	// DefaultUserAgent is the desktop browser identity presented on every request.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Search     SearchConfig     `mapstructure:"search"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Quality    QualityConfig    `mapstructure:"quality"`
	Output     OutputConfig     `mapstructure:"output"`
	Logging    logging.Config   `mapstructure:"logging"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Export     ExportConfig     `mapstructure:"export"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
}

// SearchConfig describes the query a run executes.
type SearchConfig struct {
	Keywords     string `mapstructure:"keywords"`
	Location     string `mapstructure:"location"`
	Limit        int    `mapstructure:"limit"`
	CompanyPages bool   `mapstructure:"company_pages"`
	Incremental  bool   `mapstructure:"incremental"`
	BaseURL      string `mapstructure:"base_url"`
}

// HTTPConfig configures the shared client session.
type HTTPConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	UserAgent      string        `mapstructure:"user_agent"`
	AcceptLanguage string        `mapstructure:"accept_language"`
	Accept         string        `mapstructure:"accept"`
	RespectRobots  bool          `mapstructure:"respect_robots"`
	MaxRPS         float64       `mapstructure:"max_rps"`
}

// PolitenessConfig bounds the randomized delay applied before every request.
type PolitenessConfig struct {
	ListingMinDelay time.Duration `mapstructure:"listing_min_delay"`
	ListingMaxDelay time.Duration `mapstructure:"listing_max_delay"`
	DetailMinDelay  time.Duration `mapstructure:"detail_min_delay"`
	DetailMaxDelay  time.Duration `mapstructure:"detail_max_delay"`
}

// CrawlerConfig governs pagination, checkpointing and extraction gates.
type CrawlerConfig struct {
	PageSize                   int    `mapstructure:"page_size"`
	MaxConsecutivePageFailures int    `mapstructure:"max_consecutive_page_failures"`
	CheckpointEvery            int    `mapstructure:"checkpoint_every"`
	CompanyMaxAttempts         int    `mapstructure:"company_max_attempts"`
	MinDescriptionLength       int    `mapstructure:"min_description_length"`
	FallbackMinLength          int    `mapstructure:"fallback_min_length"`
	SelectorTable              string `mapstructure:"selector_table"`
}

// QualityConfig defines how job records are tiered.
type QualityConfig struct {
	CriticalFields  []string `mapstructure:"critical_fields"`
	HighThreshold   int      `mapstructure:"high_threshold"`
	MediumThreshold int      `mapstructure:"medium_threshold"`
}

// OutputConfig sets where record files and reports are written.
type OutputConfig struct {
	Dir       string `mapstructure:"dir"`
	ReportDir string `mapstructure:"report_dir"`
}

// PostgresConfig enables the relational record store when DSN is set.
type PostgresConfig struct {
	DSN            string `mapstructure:"dsn"`
	JobsTable      string `mapstructure:"jobs_table"`
	CompaniesTable string `mapstructure:"companies_table"`
}

// RedisConfig enables the shared seen-job set when URL is set.
type RedisConfig struct {
	URL     string `mapstructure:"url"`
	SeenKey string `mapstructure:"seen_key"`
}

// ExportConfig selects object stores that receive the final output files.
type ExportConfig struct {
	GCSBucket  string `mapstructure:"gcs_bucket"`
	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Region   string `mapstructure:"s3_region"`
	S3Endpoint string `mapstructure:"s3_endpoint"`
	Prefix     string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for run-completed notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
	// DryRun logs notifications instead of sending them.
	DryRun bool `mapstructure:"dry_run"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// ScheduleConfig drives the repeated-run command.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

// Load builds a Config from .env, disk and environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !isNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("JOBCRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("search.keywords", "Data Scientist")
	v.SetDefault("search.location", "")
	v.SetDefault("search.limit", 25)
	v.SetDefault("search.company_pages", true)
	v.SetDefault("search.incremental", false)
	v.SetDefault("search.base_url", DefaultBaseURL)
	v.SetDefault("http.timeout", 15*time.Second)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.user_agent", DefaultUserAgent)
	v.SetDefault("http.accept_language", "en-US,en;q=0.9")
	v.SetDefault("http.accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("http.max_rps", 0.0)
	v.SetDefault("politeness.listing_min_delay", 500*time.Millisecond)
	v.SetDefault("politeness.listing_max_delay", time.Second)
	v.SetDefault("politeness.detail_min_delay", 1500*time.Millisecond)
	v.SetDefault("politeness.detail_max_delay", 4*time.Second)
	v.SetDefault("crawler.page_size", 25)
	v.SetDefault("crawler.max_consecutive_page_failures", 3)
	v.SetDefault("crawler.checkpoint_every", 10)
	v.SetDefault("crawler.company_max_attempts", 3)
	v.SetDefault("crawler.min_description_length", 50)
	v.SetDefault("crawler.fallback_min_length", 200)
	v.SetDefault("crawler.selector_table", "")
	v.SetDefault("quality.critical_fields", []string{"description", "salary", "applicant_count"})
	v.SetDefault("quality.high_threshold", 3)
	v.SetDefault("quality.medium_threshold", 1)
	v.SetDefault("output.dir", "data/raw")
	v.SetDefault("output.report_dir", "outputs/tables")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.jobs_table", "raw_jobs")
	v.SetDefault("postgres.companies_table", "raw_companies")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.seen_key", "jobcrawler:seen_jobs")
	v.SetDefault("export.gcs_bucket", "")
	v.SetDefault("export.s3_bucket", "")
	v.SetDefault("export.s3_region", "us-east-1")
	v.SetDefault("export.s3_endpoint", "")
	v.SetDefault("export.prefix", "runs")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("pubsub.dry_run", false)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("schedule.cron", "@every 6h")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Search.BaseURL) == "" {
		return fmt.Errorf("search.base_url must be set")
	}
	if c.Search.Limit <= 0 {
		return fmt.Errorf("search.limit must be > 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.HTTP.MaxRPS < 0 {
		return fmt.Errorf("http.max_rps must be >= 0")
	}
	if err := validateRange("politeness.listing", c.Politeness.ListingMinDelay, c.Politeness.ListingMaxDelay); err != nil {
		return err
	}
	if err := validateRange("politeness.detail", c.Politeness.DetailMinDelay, c.Politeness.DetailMaxDelay); err != nil {
		return err
	}
	if c.Crawler.PageSize <= 0 {
		return fmt.Errorf("crawler.page_size must be > 0")
	}
	if c.Crawler.MaxConsecutivePageFailures <= 0 {
		return fmt.Errorf("crawler.max_consecutive_page_failures must be > 0")
	}
	if c.Crawler.CheckpointEvery <= 0 {
		return fmt.Errorf("crawler.checkpoint_every must be > 0")
	}
	if c.Crawler.CompanyMaxAttempts <= 0 {
		return fmt.Errorf("crawler.company_max_attempts must be > 0")
	}
	if c.Crawler.MinDescriptionLength < 0 || c.Crawler.FallbackMinLength < 0 {
		return fmt.Errorf("crawler description lengths must be >= 0")
	}
	if len(c.Quality.CriticalFields) == 0 {
		return fmt.Errorf("quality.critical_fields must not be empty")
	}
	if c.Quality.MediumThreshold <= 0 ||
		c.Quality.MediumThreshold > c.Quality.HighThreshold ||
		c.Quality.HighThreshold > len(c.Quality.CriticalFields) {
		return fmt.Errorf("quality thresholds must satisfy 0 < medium_threshold <= high_threshold <= len(critical_fields)")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir must be set")
	}
	if c.Redis.URL != "" && c.Redis.SeenKey == "" {
		return fmt.Errorf("redis.seen_key must be set when redis.url is set")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" && !c.PubSub.DryRun {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	return nil
}

func validateRange(prefix string, lo, hi time.Duration) error {
	if lo < 0 || hi < lo {
		return fmt.Errorf("%s delays must satisfy 0 <= min_delay <= max_delay", prefix)
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
