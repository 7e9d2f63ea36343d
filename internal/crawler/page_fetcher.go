package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-crawler/internal/logging"
	"github.com/JakeFAU/jobpost-crawler/internal/metrics"
)

// PageFetcher wraps a single-attempt Fetcher with the retry loop shared by
// every phase: a polite delay before each fetch, exponential backoff on 429,
// a polite delay between other failed attempts.
type PageFetcher struct {
	fetcher Fetcher
	headers http.Header
	backoff *BackoffPolicy
	pauser  Pauser
	rand    RandFunc
	limiter RateLimiter
	logger  *zap.Logger
}

// PageFetcherOption customizes a PageFetcher.
type PageFetcherOption func(*PageFetcher)

// WithPauser replaces the timer-based pauser.
func WithPauser(p Pauser) PageFetcherOption {
	return func(f *PageFetcher) {
		if p != nil {
			f.pauser = p
		}
	}
}

// WithRand replaces the random source used for delays and jitter.
func WithRand(rnd RandFunc) PageFetcherOption {
	return func(f *PageFetcher) {
		if rnd != nil {
			f.rand = rnd
			f.backoff = NewBackoffPolicy(rnd)
		}
	}
}

// WithLimiter gates every attempt on l. A nil limiter disables the gate.
func WithLimiter(l RateLimiter) PageFetcherOption {
	return func(f *PageFetcher) {
		f.limiter = l
	}
}

// WithHeaders sets headers sent on every request.
func WithHeaders(h http.Header) PageFetcherOption {
	return func(f *PageFetcher) {
		f.headers = h.Clone()
	}
}

// NewPageFetcher builds a PageFetcher around fetcher.
func NewPageFetcher(fetcher Fetcher, logger *zap.Logger, opts ...PageFetcherOption) *PageFetcher {
	f := &PageFetcher{
		fetcher: fetcher,
		headers: http.Header{},
		backoff: NewBackoffPolicy(nil),
		pauser:  TimerPauser{},
		rand:    cryptoFloat,
		logger:  logging.OrNop(logger).Named("fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	metrics.Init()
	return f
}

// FetchPage fetches url with up to profile.MaxAttempts attempts and parses
// the body. Exhaustion returns a *FetchError wrapping ErrRateLimited when
// the last response was 429, a *StatusError for other statuses, or the
// transport error.
func (f *PageFetcher) FetchPage(ctx context.Context, url string, profile Profile) (*Page, error) {
	maxAttempts := profile.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	f.politePause(ctx, profile)

	var (
		history []int
		lastErr error
		made    int
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := f.wait(ctx, url); err != nil {
			return nil, &FetchError{URL: url, Attempts: made, StatusHistory: history, Err: err}
		}
		made = attempt
		resp, err := f.fetcher.Fetch(ctx, FetchRequest{URL: url, Headers: f.headers})
		metrics.ObserveAttempt(profile.Name, url, resp.StatusCode, len(resp.Body))
		if resp.StatusCode != 0 {
			history = append(history, resp.StatusCode)
		}

		switch {
		case err != nil:
			lastErr = err
			f.logger.Warn("request error",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		case resp.StatusCode == http.StatusOK:
			page, perr := f.parse(url, resp, attempt, history)
			if perr == nil {
				metrics.ObserveFetch(profile.Name, "success")
				return page, nil
			}
			lastErr = perr
			f.logger.Warn("parse page", zap.String("url", url), zap.Int("attempt", attempt), zap.Error(perr))
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = ErrRateLimited
			if attempt < maxAttempts {
				wait := f.backoff.Backoff(attempt)
				f.logger.Warn("rate limited",
					zap.String("url", url),
					zap.Int("attempt", attempt),
					zap.Duration("wait", wait),
				)
				metrics.ObserveRateLimitBackoff(profile.Name, wait)
				f.pauser.Pause(ctx, wait)
			}
		default:
			lastErr = &StatusError{URL: url, StatusCode: resp.StatusCode}
			f.logger.Warn("unexpected status",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Int("status", resp.StatusCode),
			)
		}

		if !f.backoff.ShouldRetry(lastErr, attempt, maxAttempts) {
			break
		}
		f.politePause(ctx, profile)
	}

	metrics.ObserveFetch(profile.Name, "failed")
	f.logger.Error("fetch exhausted",
		zap.String("url", url),
		zap.Int("max_attempts", maxAttempts),
		zap.Ints("status_history", history),
		zap.Error(lastErr),
	)
	return nil, &FetchError{URL: url, Attempts: made, StatusHistory: history, Err: lastErr}
}

func (f *PageFetcher) parse(url string, resp FetchResponse, attempt int, history []int) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Page{
		URL:           url,
		StatusCode:    resp.StatusCode,
		Body:          resp.Body,
		Doc:           doc,
		Attempts:      attempt,
		StatusHistory: history,
	}, nil
}

func (f *PageFetcher) politePause(ctx context.Context, profile Profile) {
	delay := politeDelay(profile.MinDelay, profile.MaxDelay, f.rand)
	if delay <= 0 {
		return
	}
	metrics.ObservePoliteDelay(profile.Name, delay)
	f.pauser.Pause(ctx, delay)
}

func (f *PageFetcher) wait(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.limiter == nil {
		return nil
	}
	return f.limiter.Wait(ctx, url)
}
