package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobpost-crawler/internal/crawler"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", RespectRobots: true, Timeout: time.Second}, nil)
	collector := f.buildCollector(context.Background(), crawler.FetchRequest{URL: "https://example.com"},
		time.Unix(0, 0), &crawler.FetchResponse{}, new(error))
	assert.Equal(t, "coverage-agent", collector.UserAgent)
	assert.False(t, collector.IgnoreRobotsTxt)
	assert.True(t, collector.AllowURLRevisit)
	assert.True(t, collector.ParseHTTPErrorResponse)

	f = New(Config{}, nil)
	collector = f.buildCollector(context.Background(), crawler.FetchRequest{URL: "https://example.com"},
		time.Unix(0, 0), &crawler.FetchResponse{}, new(error))
	assert.True(t, collector.IgnoreRobotsTxt)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	req := crawler.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"Accept-Language": {"en-US,en;q=0.9"}},
	}
	var result crawler.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	assert.Equal(t, "en-US,en;q=0.9", collyReq.Headers.Get("Accept-Language"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "body", string(result.Body))
	assert.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onError(&colly.Response{StatusCode: http.StatusTooManyRequests, Request: &colly.Request{}}, errors.New("Too Many Requests"))
	assert.Equal(t, http.StatusTooManyRequests, result.StatusCode)
	assert.NoError(t, fetchErr, "status errors are reported through the response")

	hooks.onError(nil, errors.New("boom"))
	require.Error(t, fetchErr)
	assert.Equal(t, "boom", fetchErr.Error())
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(crawler.FetchRequest{}, collyReq)
	assert.Empty(t, *collyReq.Headers)
}

func TestFetchAgainstServer(t *testing.T) {
	t.Parallel()

	var (
		mu             sync.Mutex
		gotUA, gotLang string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			mu.Lock()
			gotUA = r.Header.Get("User-Agent")
			gotLang = r.Header.Get("Accept-Language")
			mu.Unlock()
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body><p>hello</p></body></html>"))
		case "/slow-down":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "test-agent/1.0", Timeout: 5 * time.Second}, nil)
	headers := http.Header{"Accept-Language": {"en-US,en;q=0.9"}}

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/ok", Headers: headers})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "hello")
	mu.Lock()
	assert.Equal(t, "test-agent/1.0", gotUA)
	assert.Equal(t, "en-US,en;q=0.9", gotLang)
	mu.Unlock()

	// Revisiting the same URL must be allowed for retries.
	resp, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/ok", Headers: headers})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/slow-down"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, err = f.Fetch(context.Background(), crawler.FetchRequest{URL: srv.URL + "/missing"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFetchTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	f := New(Config{Timeout: time.Second}, nil)
	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: addr + "/gone"})
	require.Error(t, err)
	assert.Zero(t, resp.StatusCode)
}

func TestFetchCanceledReturnsEmptyResponse(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		<-release
		_, _ = w.Write([]byte("<p>late</p>"))
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	f := New(Config{Timeout: 5 * time.Second}, nil)
	resp, err := f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL + "/hang"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, crawler.FetchResponse{}, resp)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
