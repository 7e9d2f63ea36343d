package crawler

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// StripQuery removes the query string and fragment from rawURL. Relative
// references are resolved against base when base is non-nil; the result is
// either an absolute URL or an error.
func StripQuery(rawURL string, base *url.URL) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if !u.IsAbs() && base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", rawURL)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

// ListingURL builds the results-page URL for the given offset.
func ListingURL(base, keywords, location string, start int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("keywords", keywords)
	q.Set("location", location)
	q.Set("start", strconv.Itoa(start))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
