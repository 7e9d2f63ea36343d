package crawler

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripQuery(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://www.example.com/jobs/search?start=25")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "tracking params", in: "https://WWW.Example.com/jobs/view/123?refId=abc&trk=x", want: "https://www.example.com/jobs/view/123"},
		{name: "fragment", in: "https://example.com/company/acme#about", want: "https://example.com/company/acme"},
		{name: "relative", in: "/jobs/view/77?trk=1", want: "https://www.example.com/jobs/view/77"},
		{name: "already clean", in: "https://example.com/jobs/view/5", want: "https://example.com/jobs/view/5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := StripQuery(tt.in, base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripQueryRejectsRelativeWithoutBase(t *testing.T) {
	t.Parallel()

	_, err := StripQuery("/jobs/view/1", nil)
	assert.Error(t, err)
	_, err = StripQuery("http://[::1", nil)
	assert.Error(t, err)
}

func TestListingURL(t *testing.T) {
	t.Parallel()

	got, err := ListingURL("https://example.com/search", "Data Scientist", "", 50)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/search?keywords=Data+Scientist&location=&start=50", got)
}
