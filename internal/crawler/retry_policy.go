package crawler

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"
)

// RandFunc returns a uniform value in [0, 1).
type RandFunc func() float64

// BackoffPolicy schedules waits after rate-limit responses: 2^attempt
// seconds plus up to one second of jitter.
type BackoffPolicy struct {
	unit time.Duration
	rand RandFunc
}

// NewBackoffPolicy builds the policy. A nil rand uses crypto/rand.
func NewBackoffPolicy(rnd RandFunc) *BackoffPolicy {
	if rnd == nil {
		rnd = cryptoFloat
	}
	return &BackoffPolicy{unit: time.Second, rand: rnd}
}

// ShouldRetry decides whether another attempt is allowed after err.
func (p *BackoffPolicy) ShouldRetry(err error, attempt, maxAttempts int) bool {
	if attempt >= maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Base returns the jitter-free backoff for attempt (1-based).
func (p *BackoffPolicy) Base(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	return p.unit * time.Duration(int64(1)<<attempt)
}

// Backoff returns the wait before the attempt following a 429 on attempt.
func (p *BackoffPolicy) Backoff(attempt int) time.Duration {
	return p.Base(attempt) + time.Duration(p.rand()*float64(p.unit))
}

func cryptoFloat() float64 {
	const precision = 1 << 53
	n, err := rand.Int(rand.Reader, big.NewInt(precision))
	if err != nil {
		return 0.5
	}
	return float64(n.Int64()) / precision
}
