package crawler

import (
	"context"
	"time"

	"github.com/JakeFAU/jobpost-crawler/internal/record"
)

// Fetcher performs a single HTTP attempt. HTTP error statuses are reported
// through FetchResponse.StatusCode; only transport failures return an error.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// PageSource fetches and parses a page under a retry profile.
type PageSource interface {
	FetchPage(ctx context.Context, url string, profile Profile) (*Page, error)
}

// ListingParser turns a results page into listing cards.
type ListingParser interface {
	ParseListings(page *Page) []record.Listing
}

// DetailSource extracts a job detail page.
type DetailSource interface {
	Extract(ctx context.Context, url string) DetailResult
}

// CompanySource extracts a company about page.
type CompanySource interface {
	CanonicalURL(raw string) string
	Extract(ctx context.Context, url string) CompanyResult
}

// Hasher computes identity and content digests.
type Hasher interface {
	URL(raw *string) *string
	Content(text *string) *string
}

// Checkpointer persists the interim snapshot of collected job records.
type Checkpointer interface {
	SaveCheckpoint(ctx context.Context, jobs []record.JobRecord) error
	ClearCheckpoint(ctx context.Context) error
}

// KnownJobSource reports job identity hashes stored by earlier runs.
type KnownJobSource interface {
	KnownJobIDs(ctx context.Context) (map[string]struct{}, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Pauser blocks for a delay or until ctx is done.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// RateLimiter blocks until a request to url may be sent.
type RateLimiter interface {
	Wait(ctx context.Context, url string) error
}
