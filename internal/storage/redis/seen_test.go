package redis

import (
	"context"
	"errors"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobpost-crawler/internal/crawler"
	"github.com/JakeFAU/jobpost-crawler/internal/record"
)

type fakeSets struct {
	sets map[string]map[string]struct{}
	err  error
}

func (f *fakeSets) SMembers(ctx context.Context, key string) *goredis.StringSliceCmd {
	if f.err != nil {
		return goredis.NewStringSliceResult(nil, f.err)
	}
	out := make([]string, 0, len(f.sets[key]))
	for m := range f.sets[key] {
		out = append(out, m)
	}
	return goredis.NewStringSliceResult(out, nil)
}

func (f *fakeSets) SAdd(ctx context.Context, key string, members ...any) *goredis.IntCmd {
	if f.err != nil {
		return goredis.NewIntResult(0, f.err)
	}
	if f.sets[key] == nil {
		f.sets[key] = map[string]struct{}{}
	}
	var added int64
	for _, m := range members {
		id := m.(string)
		if _, ok := f.sets[key][id]; !ok {
			f.sets[key][id] = struct{}{}
			added++
		}
	}
	return goredis.NewIntResult(added, nil)
}

func jobWithID(id string) record.JobRecord {
	return record.JobRecord{JobIdentity: record.JobIdentity{JobIDRaw: &id}}
}

func TestSeenSetRoundTrip(t *testing.T) {
	t.Parallel()

	client := &fakeSets{sets: map[string]map[string]struct{}{}}
	seen := NewSeenSet(client, "", nil)

	ids, err := seen.KnownJobIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)

	res := &crawler.Result{Jobs: []record.JobRecord{jobWithID("a"), jobWithID("b"), {}}}
	require.NoError(t, seen.PersistRun(context.Background(), res))
	assert.Len(t, client.sets[defaultSeenKey], 2)

	ids, err = seen.KnownJobIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"a": {}, "b": {}}, ids)
}

func TestSeenSetErrors(t *testing.T) {
	t.Parallel()

	seen := NewSeenSet(&fakeSets{err: errors.New("connection refused")}, "custom", nil)
	_, err := seen.KnownJobIDs(context.Background())
	assert.ErrorContains(t, err, "smembers custom")

	err = seen.PersistRun(context.Background(), &crawler.Result{Jobs: []record.JobRecord{jobWithID("a")}})
	assert.ErrorContains(t, err, "sadd custom")

	assert.NoError(t, seen.PersistRun(context.Background(), &crawler.Result{}), "nothing to add")
}
