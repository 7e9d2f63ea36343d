package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()

	if fetchAttemptsTotal == nil || recordsTotal == nil || httpRequestsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveHelpers(t *testing.T) {
	Init()
	before := testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("detail", "429"))
	ObserveAttempt("detail", "https://www.example.com/jobs/view/1", 429, 0)
	if got := testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("detail", "429")); got != before+1 {
		t.Errorf("expected attempt counter to increase by 1, got %f -> %f", before, got)
	}

	beforeRecords := testutil.ToFloat64(recordsTotal.WithLabelValues("job", "high"))
	ObserveRecord("job", "high")
	if got := testutil.ToFloat64(recordsTotal.WithLabelValues("job", "high")); got != beforeRecords+1 {
		t.Errorf("expected record counter to increase by 1, got %f", got)
	}

	ObserveRateLimitBackoff("detail", 2*time.Second)
	ObservePoliteDelay("listing", 700*time.Millisecond)
	ObservePhase("listing", time.Second)
	ObserveFailure("detail")
	ObserveFetch("detail", "failed")
	ObserveRateLimitWait("www.example.com", 150*time.Millisecond)
	if n := testutil.CollectAndCount(rateLimitWaitSeconds); n == 0 {
		t.Error("expected rate limit wait histogram to be observed")
	}
	if n := testutil.CollectAndCount(rateLimitBackoffSeconds); n == 0 {
		t.Error("expected backoff histogram to be observed")
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
