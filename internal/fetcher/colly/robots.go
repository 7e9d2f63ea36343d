package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-crawler/internal/metrics"
)

const robotsProfile = "robots"

var defaultRobotsBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsTransport sits under the collector when robots.txt is honoured.
// Colly reads a 5xx robots.txt as "disallow everything", so a probe that
// times out or gets a server error is retried and, if it never recovers,
// answered with an allow-all file. Page requests pass through untouched.
type robotsTransport struct {
	base    http.RoundTripper
	backoff []time.Duration
	logger  *zap.Logger
}

func newRobotsTransport(base http.RoundTripper, logger *zap.Logger) *robotsTransport {
	return &robotsTransport{base: base, backoff: defaultRobotsBackoff, logger: logger}
}

func (t *robotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("robots transport received nil request")
	}
	if !isRobotsTxtRequest(req) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("robots transport base roundtrip: %w", err)
		}
		return resp, nil
	}
	return t.probe(req)
}

func isRobotsTxtRequest(req *http.Request) bool {
	if req == nil || req.URL == nil {
		return false
	}
	return strings.EqualFold(req.URL.Path, "/robots.txt")
}

func (t *robotsTransport) probe(req *http.Request) (*http.Response, error) {
	maxAttempts := len(t.backoff) + 1
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		switch {
		case err == nil && !retryableRobotsStatus(resp.StatusCode):
			metrics.ObserveAttempt(robotsProfile, req.URL.String(), resp.StatusCode, 0)
			return resp, nil
		case err == nil:
			metrics.ObserveAttempt(robotsProfile, req.URL.String(), resp.StatusCode, 0)
			drain(resp)
			lastErr = fmt.Errorf("robots.txt status %d", resp.StatusCode)
		case isTransientError(err):
			metrics.ObserveAttempt(robotsProfile, req.URL.String(), 0, 0)
			lastErr = err
		default:
			metrics.ObserveAttempt(robotsProfile, req.URL.String(), 0, 0)
			return nil, fmt.Errorf("robots roundtrip non-transient: %w", err)
		}

		if attempt == maxAttempts-1 {
			break
		}
		if err := sleepWithContext(req.Context(), t.backoff[attempt]); err != nil {
			return nil, fmt.Errorf("robots roundtrip backoff sleep: %w", err)
		}
	}
	t.logger.Warn("robots.txt probe kept failing, allowing all",
		zap.String("host", req.URL.Host),
		zap.Int("attempts", maxAttempts),
		zap.Error(lastErr),
	)
	return allowAllRobots(req), nil
}

func retryableRobotsStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("robots backoff sleep context: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func allowAllRobots(req *http.Request) *http.Response {
	const body = "User-agent: *\nAllow: /"
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Header:        http.Header{"Content-Type": []string{"text/plain"}},
		Request:       req,
	}
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
