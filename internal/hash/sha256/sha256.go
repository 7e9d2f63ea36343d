// Package sha256 provides the SHA-256 digests used as record identities and
// change-detection hashes.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hasher implements crawler.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Content hashes trimmed text and returns a lowercase hex digest.
// A nil input, or one that is empty after trimming, yields nil so that
// "no content" never collides with the digest of an empty string.
func (h *Hasher) Content(text *string) *string {
	if text == nil {
		return nil
	}
	return digest(strings.TrimSpace(*text))
}

// URL hashes a URL after lowercasing and trimming it, so case-only variants
// share one identity.
func (h *Hasher) URL(rawURL *string) *string {
	if rawURL == nil {
		return nil
	}
	return digest(strings.TrimSpace(strings.ToLower(*rawURL)))
}

// ContentString is Content for callers holding a plain string.
func (h *Hasher) ContentString(text string) *string {
	return h.Content(&text)
}

// URLString is URL for callers holding a plain string.
func (h *Hasher) URLString(rawURL string) *string {
	return h.URL(&rawURL)
}

func digest(normalized string) *string {
	if normalized == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(normalized))
	out := hex.EncodeToString(sum[:])
	return &out
}
