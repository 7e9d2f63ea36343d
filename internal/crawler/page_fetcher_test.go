package crawler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedStep struct {
	status int
	err    error
}

// scriptedFetcher replays a fixed sequence of attempt outcomes.
type scriptedFetcher struct {
	mu       sync.Mutex
	steps    []scriptedStep
	requests []FetchRequest
}

func (f *scriptedFetcher) Fetch(_ context.Context, req FetchRequest) (FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.steps) == 0 {
		return FetchResponse{}, errors.New("script exhausted")
	}
	step := f.steps[0]
	f.steps = f.steps[1:]
	if step.err != nil {
		return FetchResponse{URL: req.URL}, step.err
	}
	body := []byte("<html><body><p>ok</p></body></html>")
	return FetchResponse{URL: req.URL, StatusCode: step.status, Body: body}, nil
}

// recordingPauser records requested delays instead of sleeping.
type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *recordingPauser) Pause(_ context.Context, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delays = append(p.delays, d)
}

var testProfile = Profile{Name: "test", MinDelay: time.Second, MaxDelay: 3 * time.Second, MaxAttempts: 3}

func newTestPageFetcher(steps ...scriptedStep) (*PageFetcher, *scriptedFetcher, *recordingPauser) {
	fetcher := &scriptedFetcher{steps: steps}
	pauser := &recordingPauser{}
	pf := NewPageFetcher(fetcher, nil,
		WithPauser(pauser),
		WithRand(func() float64 { return 0.5 }),
	)
	return pf, fetcher, pauser
}

func TestPageFetcherSuccessIsPrecededByPoliteDelay(t *testing.T) {
	t.Parallel()

	pf, fetcher, pauser := newTestPageFetcher(scriptedStep{status: http.StatusOK})
	page, err := pf.FetchPage(context.Background(), "https://example.com/a", testProfile)
	require.NoError(t, err)
	require.NotNil(t, page.Doc)
	assert.Equal(t, "ok", page.Doc.Find("p").Text())
	assert.Equal(t, 1, page.Attempts)
	assert.Equal(t, []int{200}, page.StatusHistory)
	assert.Equal(t, []time.Duration{2 * time.Second}, pauser.delays)
	assert.Len(t, fetcher.requests, 1)
}

func TestPageFetcherBacksOffOnRateLimit(t *testing.T) {
	t.Parallel()

	pf, _, pauser := newTestPageFetcher(
		scriptedStep{status: http.StatusTooManyRequests},
		scriptedStep{status: http.StatusTooManyRequests},
		scriptedStep{status: http.StatusOK},
	)
	page, err := pf.FetchPage(context.Background(), "https://example.com/a", testProfile)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Attempts)
	assert.Equal(t, []int{429, 429, 200}, page.StatusHistory)

	assert.Equal(t, []time.Duration{
		2 * time.Second,
		2500 * time.Millisecond,
		2 * time.Second,
		4500 * time.Millisecond,
		2 * time.Second,
	}, pauser.delays, "every request is preceded by a polite delay, backoff comes first after a 429")
	assert.Greater(t, pauser.delays[3], pauser.delays[1], "backoff must grow with the attempt number")
}

func TestPageFetcherPoliteDelayFollowsRateLimitBackoff(t *testing.T) {
	t.Parallel()

	pf, fetcher, pauser := newTestPageFetcher(
		scriptedStep{status: http.StatusTooManyRequests},
		scriptedStep{status: http.StatusOK},
	)
	_, err := pf.FetchPage(context.Background(), "https://example.com/a", testProfile)
	require.NoError(t, err)
	assert.Len(t, fetcher.requests, 2)
	assert.Equal(t, []time.Duration{2 * time.Second, 2500 * time.Millisecond, 2 * time.Second}, pauser.delays)
}

func TestPageFetcherRateLimitExhausted(t *testing.T) {
	t.Parallel()

	pf, fetcher, pauser := newTestPageFetcher(
		scriptedStep{status: http.StatusTooManyRequests},
		scriptedStep{status: http.StatusTooManyRequests},
		scriptedStep{status: http.StatusTooManyRequests},
	)
	page, err := pf.FetchPage(context.Background(), "https://example.com/a", testProfile)
	require.Error(t, err)
	assert.Nil(t, page)
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.Equal(t, ErrRateLimited.Error(), FailureReason(err))

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, 3, fetchErr.Attempts)
	assert.Equal(t, []int{429, 429, 429}, fetchErr.StatusHistory)
	assert.Len(t, fetcher.requests, 3)
	assert.Equal(t, []time.Duration{
		2 * time.Second,
		2500 * time.Millisecond,
		2 * time.Second,
		4500 * time.Millisecond,
		2 * time.Second,
	}, pauser.delays, "no backoff or polite delay after the final attempt")
}

func TestPageFetcherOtherFailuresUsePoliteDelay(t *testing.T) {
	t.Parallel()

	pf, _, pauser := newTestPageFetcher(
		scriptedStep{status: http.StatusInternalServerError},
		scriptedStep{err: errors.New("connection reset")},
		scriptedStep{status: http.StatusNotFound},
	)
	_, err := pf.FetchPage(context.Background(), "https://example.com/a", testProfile)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, "http 404 Not Found", FailureReason(err))

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, 3, fetchErr.Attempts)
	assert.Equal(t, []int{500, 404}, fetchErr.StatusHistory)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, pauser.delays)
}

func TestPageFetcherTransportErrorReason(t *testing.T) {
	t.Parallel()

	pf, _, _ := newTestPageFetcher(
		scriptedStep{err: errors.New("dial tcp: refused")},
		scriptedStep{err: errors.New("dial tcp: refused")},
		scriptedStep{err: errors.New("dial tcp: refused")},
	)
	_, err := pf.FetchPage(context.Background(), "https://example.com/a", testProfile)
	require.Error(t, err)
	assert.Equal(t, "request error", FailureReason(err))
	assert.ErrorContains(t, err, "after 3 attempts")
}

func TestPageFetcherStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	pf, fetcher, _ := newTestPageFetcher(scriptedStep{status: http.StatusOK})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pf.FetchPage(ctx, "https://example.com/a", testProfile)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, fetcher.requests)
}

func TestPageFetcherSendsHeaders(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{steps: []scriptedStep{{status: http.StatusOK}}}
	headers := http.Header{}
	headers.Set("Accept-Language", "en-US,en;q=0.9")
	limiter := &recordingLimiter{}
	pf := NewPageFetcher(fetcher, nil, WithPauser(&recordingPauser{}), WithHeaders(headers), WithLimiter(limiter))

	_, err := pf.FetchPage(context.Background(), "https://example.com/a", Profile{Name: "test"})
	require.NoError(t, err)
	require.Len(t, fetcher.requests, 1)
	assert.Equal(t, "en-US,en;q=0.9", fetcher.requests[0].Headers.Get("Accept-Language"))
	assert.Equal(t, []string{"https://example.com/a"}, limiter.urls)
}

type recordingLimiter struct {
	urls []string
	err  error
}

func (l *recordingLimiter) Wait(_ context.Context, url string) error {
	l.urls = append(l.urls, url)
	return l.err
}

func TestPageFetcherLimiterErrorStopsFetch(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{steps: []scriptedStep{{status: http.StatusOK}}}
	limiter := &recordingLimiter{err: errors.New("rate limit wait: context deadline exceeded")}
	pf := NewPageFetcher(fetcher, nil, WithPauser(&recordingPauser{}), WithLimiter(limiter))

	_, err := pf.FetchPage(context.Background(), "https://example.com/a", Profile{Name: "test"})
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 0, fe.Attempts)
	assert.Empty(t, fetcher.requests)
}
