// Package redis shares the set of seen job IDs between machines running
// incremental crawls against the same query.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-crawler/internal/crawler"
	"github.com/JakeFAU/jobpost-crawler/internal/logging"
)

const defaultSeenKey = "jobcrawler:seen_jobs"

type setClient interface {
	SMembers(ctx context.Context, key string) *goredis.StringSliceCmd
	SAdd(ctx context.Context, key string, members ...any) *goredis.IntCmd
}

// SeenSet is a Redis set of job identity hashes.
type SeenSet struct {
	client setClient
	key    string
	logger *zap.Logger
}

// NewClient parses redisURL and verifies connectivity.
func NewClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// NewSeenSet wraps client; an empty key uses the default set name.
func NewSeenSet(client setClient, key string, logger *zap.Logger) *SeenSet {
	if key == "" {
		key = defaultSeenKey
	}
	return &SeenSet{client: client, key: key, logger: logging.OrNop(logger).Named("redis")}
}

// KnownJobIDs implements crawler.KnownJobSource.
func (s *SeenSet) KnownJobIDs(ctx context.Context) (map[string]struct{}, error) {
	members, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", s.key, err)
	}
	ids := make(map[string]struct{}, len(members))
	for _, m := range members {
		ids[m] = struct{}{}
	}
	return ids, nil
}

// PersistRun implements storage.RunSink by adding every job ID of res.
func (s *SeenSet) PersistRun(ctx context.Context, res *crawler.Result) error {
	if res == nil || len(res.Jobs) == 0 {
		return nil
	}
	members := make([]any, 0, len(res.Jobs))
	for _, job := range res.Jobs {
		if id := job.ID(); id != "" {
			members = append(members, id)
		}
	}
	if len(members) == 0 {
		return nil
	}
	added, err := s.client.SAdd(ctx, s.key, members...).Result()
	if err != nil {
		return fmt.Errorf("sadd %s: %w", s.key, err)
	}
	s.logger.Info("seen set updated", zap.String("key", s.key), zap.Int64("added", added))
	return nil
}
