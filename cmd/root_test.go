package cmd

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-crawler/internal/app"
	"github.com/JakeFAU/jobpost-crawler/internal/config"
	"github.com/JakeFAU/jobpost-crawler/internal/crawler"
)

type fakeRunner struct {
	mu      sync.Mutex
	base    crawler.Query
	queries []crawler.Query
	err     error
	onRun   func()
	closed  int
}

func (f *fakeRunner) Run(_ context.Context, q crawler.Query) (*app.Outcome, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	onRun := f.onRun
	f.mu.Unlock()
	if onRun != nil {
		onRun()
	}
	return &app.Outcome{Result: &crawler.Result{RunID: "run-1"}}, f.err
}

func (f *fakeRunner) Query() crawler.Query { return f.base }
func (f *fakeRunner) Logger() *zap.Logger  { return zap.NewNop() }
func (f *fakeRunner) Close()               { f.closed++ }

func useFakeApp(t *testing.T, f *fakeRunner) {
	t.Helper()
	orig := newApp
	newApp = func(context.Context, config.Config) (Runner, error) { return f, nil }
	t.Cleanup(func() { newApp = orig })
}

func TestCrawlAppliesFlags(t *testing.T) {
	f := &fakeRunner{base: crawler.Query{Keywords: "Data Scientist", Limit: 25, CompanyPages: true}}
	useFakeApp(t, f)

	err := execute(context.Background(), []string{"crawl", "--keywords", "Go Developer", "--limit", "5", "--no-company-pages"})
	require.NoError(t, err)
	require.Len(t, f.queries, 1)
	assert.Equal(t, crawler.Query{Keywords: "Go Developer", Limit: 5, CompanyPages: false}, f.queries[0])
	assert.Equal(t, 1, f.closed)
}

func TestDryRunPublishFlagReachesConfig(t *testing.T) {
	f := &fakeRunner{base: crawler.Query{Limit: 25}}
	var got []config.Config
	orig := newApp
	newApp = func(_ context.Context, cfg config.Config) (Runner, error) {
		got = append(got, cfg)
		return f, nil
	}
	t.Cleanup(func() { newApp = orig })

	require.NoError(t, execute(context.Background(), []string{"crawl"}))
	require.NoError(t, execute(context.Background(), []string{"crawl", "--dry-run-publish"}))
	require.Len(t, got, 2)
	assert.False(t, got[0].PubSub.DryRun)
	assert.True(t, got[1].PubSub.DryRun)
}

func TestCrawlKeepsConfiguredQueryWithoutFlags(t *testing.T) {
	base := crawler.Query{Keywords: "Data Scientist", Location: "Berlin", Limit: 25, CompanyPages: true, Incremental: true}
	f := &fakeRunner{base: base}
	useFakeApp(t, f)

	require.NoError(t, execute(context.Background(), []string{"crawl"}))
	require.Len(t, f.queries, 1)
	assert.Equal(t, base, f.queries[0])
}

func TestCrawlFailsWhenNoJobs(t *testing.T) {
	f := &fakeRunner{base: crawler.Query{Limit: 25}, err: app.ErrNoJobs}
	useFakeApp(t, f)

	err := execute(context.Background(), []string{"crawl"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, app.ErrNoJobs))
	assert.Equal(t, 1, f.closed, "services are closed after a failed run")
}

func TestCrawlRejectsNonPositiveLimit(t *testing.T) {
	f := &fakeRunner{base: crawler.Query{Limit: 25}}
	useFakeApp(t, f)

	err := execute(context.Background(), []string{"crawl", "--limit", "0"})
	assert.ErrorContains(t, err, "--limit must be > 0")
	assert.Empty(t, f.queries)
}

func TestScheduleForcesIncrementalAndStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &fakeRunner{base: crawler.Query{Keywords: "Data Scientist", Limit: 10}, onRun: cancel}
	useFakeApp(t, f)

	err := execute(ctx, []string{"schedule", "--cron", "@every 1h"})
	require.NoError(t, err)
	require.Len(t, f.queries, 1)
	assert.True(t, f.queries[0].Incremental)
	assert.Equal(t, 10, f.queries[0].Limit)
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	f := &fakeRunner{base: crawler.Query{Limit: 10}}
	useFakeApp(t, f)

	err := execute(context.Background(), []string{"schedule", "--cron", "not a spec", "--immediate=false"})
	assert.ErrorContains(t, err, "cron spec")
}

func TestSchedulerSkipsOverlappingTicks(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	f := &fakeRunner{onRun: func() {
		close(started)
		<-release
	}}
	s := newScheduler(f, crawler.Query{Limit: 1}, zap.NewNop())

	done := make(chan struct{})
	go func() {
		s.tick(context.Background())
		close(done)
	}()
	<-started
	s.tick(context.Background())
	close(release)
	<-done

	assert.Len(t, f.queries, 1)
	assert.Equal(t, 1, s.runs)
}
