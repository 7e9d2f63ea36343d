package crawler

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultMaxAttempts                = 3
	defaultMaxConsecutivePageFailures = 3
	defaultPageSize                   = 25
	defaultCheckpointEvery            = 10
)

// EngineConfig captures the knobs that shape one crawl run.
type EngineConfig struct {
	BaseURL                    string
	UserAgent                  string
	PageSize                   int
	MaxConsecutivePageFailures int
	CheckpointEvery            int
	Listing                    Profile
}

// DefaultListingProfile is the retry profile for results pages.
func DefaultListingProfile() Profile {
	return Profile{
		Name:        string(PhaseListing),
		MinDelay:    500 * time.Millisecond,
		MaxDelay:    time.Second,
		MaxAttempts: defaultMaxAttempts,
	}
}

// DefaultDetailProfile is the retry profile for job detail pages.
func DefaultDetailProfile() Profile {
	return Profile{
		Name:        string(PhaseDetail),
		MinDelay:    1500 * time.Millisecond,
		MaxDelay:    4 * time.Second,
		MaxAttempts: defaultMaxAttempts,
	}
}

// DefaultCompanyProfile is the retry profile for company about pages.
func DefaultCompanyProfile() Profile {
	p := DefaultDetailProfile()
	p.Name = string(PhaseCompany)
	return p
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.MaxConsecutivePageFailures <= 0 {
		c.MaxConsecutivePageFailures = defaultMaxConsecutivePageFailures
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = defaultCheckpointEvery
	}
	if c.Listing.Name == "" {
		c.Listing.Name = string(PhaseListing)
	}
	if c.Listing.MaxAttempts <= 0 {
		c.Listing.MaxAttempts = defaultMaxAttempts
	}
	return c
}

// Validate checks for obviously bad configuration combinations.
func (c EngineConfig) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("engine: base url must be set")
	}
	if c.Listing.MinDelay < 0 || c.Listing.MaxDelay < c.Listing.MinDelay {
		return fmt.Errorf("engine: listing delays must satisfy 0 <= min <= max")
	}
	return nil
}
