package crawler

import (
	"context"
	"time"
)

// seenSet tracks job identity hashes already accepted or known from earlier
// runs. It is owned by a single run and needs no locking.
type seenSet struct {
	ids map[string]struct{}
}

func newSeenSet() *seenSet {
	return &seenSet{ids: make(map[string]struct{})}
}

// MarkIfNew stores the id if it has not been seen before and returns true.
func (s *seenSet) MarkIfNew(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Merge adds every id in known.
func (s *seenSet) Merge(known map[string]struct{}) {
	for id := range known {
		s.ids[id] = struct{}{}
	}
}

func (s *seenSet) Len() int {
	return len(s.ids)
}

// pageBreaker trips after a run of consecutive full-page failures.
type pageBreaker struct {
	threshold int
	failures  int
}

func newPageBreaker(threshold int) *pageBreaker {
	if threshold <= 0 {
		threshold = defaultMaxConsecutivePageFailures
	}
	return &pageBreaker{threshold: threshold}
}

// Failure records a failed page and returns true once the breaker is open.
func (b *pageBreaker) Failure() bool {
	b.failures++
	return b.failures >= b.threshold
}

// Success resets the consecutive failure count.
func (b *pageBreaker) Success() {
	b.failures = 0
}

// TimerPauser sleeps on a timer and returns early when ctx is done.
type TimerPauser struct{}

// Pause blocks for delay or until ctx is done.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// politeDelay draws a uniform delay from [lo, hi].
func politeDelay(lo, hi time.Duration, rnd RandFunc) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rnd()*float64(hi-lo))
}
