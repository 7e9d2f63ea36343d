package crawler

import (
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/jobpost-crawler/internal/record"
)

// Phase names the crawl stage a failure happened in.
type Phase string

// Crawl phases.
const (
	PhaseListing Phase = "listing"
	PhaseDetail  Phase = "detail"
	PhaseCompany Phase = "company"
)

// FetchRequest captures everything needed for one HTTP attempt.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result of a single attempt. StatusCode is zero when no
// response was received.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Profile sets the delay range and attempt budget for one kind of page.
type Profile struct {
	Name        string
	MinDelay    time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// Page is a successfully fetched and parsed HTML page.
type Page struct {
	URL           string
	StatusCode    int
	Body          []byte
	Doc           *goquery.Document
	Attempts      int
	StatusHistory []int
}

// Query is the input to one crawl run.
type Query struct {
	Keywords     string
	Location     string
	Limit        int
	CompanyPages bool
	Incremental  bool
}

// DetailResult is the outcome of extracting one job detail page.
type DetailResult struct {
	Success       bool
	Err           error
	Fields        record.JobPageRaw
	SelectorHits  int
	Attempts      int
	StatusHistory []int
}

// CompanyResult is the outcome of extracting one company about page.
type CompanyResult struct {
	Success  bool
	Err      error
	URL      string
	Fields   record.CompanyPageRaw
	Attempts int
}

// FailureLogEntry records one listing, detail or company fetch that did not
// yield a usable record.
type FailureLogEntry struct {
	URL       string `json:"job_url"`
	Title     string `json:"raw_title"`
	Company   string `json:"company"`
	Reason    string `json:"reason"`
	Phase     Phase  `json:"phase"`
	Timestamp string `json:"timestamp"`
}

// ScrapeReport summarizes the failures of one run.
type ScrapeReport struct {
	TotalFailures  int               `json:"total_failures"`
	FailureReasons map[string]int    `json:"failure_reasons"`
	Failures       []FailureLogEntry `json:"failures"`
}

// Result is everything one run produced, including partial data.
type Result struct {
	RunID     string
	StartedAt time.Time
	Query     Query
	Listings  []record.Listing
	Jobs      []record.JobRecord
	Companies []record.CompanyRecord
	Report    ScrapeReport
}

// NewScrapeReport derives a report from the failure log.
func NewScrapeReport(failures []FailureLogEntry) ScrapeReport {
	reasons := make(map[string]int, len(failures))
	for _, f := range failures {
		reasons[f.Reason]++
	}
	out := make([]FailureLogEntry, len(failures))
	copy(out, failures)
	return ScrapeReport{
		TotalFailures:  len(failures),
		FailureReasons: reasons,
		Failures:       out,
	}
}
