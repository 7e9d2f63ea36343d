package uuid

import (
	"sort"
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewIDIsVersion7(t *testing.T) {
	t.Parallel()

	id, err := New().NewID()
	require.NoError(t, err)
	parsed, err := goUUID.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, goUUID.Version(7), parsed.Version())
}

func TestGeneratorNewIDSortsByCreation(t *testing.T) {
	t.Parallel()

	gen := New()
	ids := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		id, err := gen.NewID()
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.True(t, sort.StringsAreSorted(ids), "run ids should sort in creation order")

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, len(ids))
}
