package seo

import (
	"math"
	"strings"
)

// CleanDomain reduces a URL or hostname to a bare domain: protocol, path,
// port, and trailing slash removed, lowercased. www is preserved.
func CleanDomain(raw string) string {
	d := strings.TrimSpace(strings.ToLower(raw))
	for _, prefix := range []string{"https://", "http://"} {
		d = strings.TrimPrefix(d, prefix)
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.IndexByte(d, ':'); i >= 0 {
		d = d[:i]
	}
	return d
}

// StripWWW removes a single leading "www." for exact-match comparison.
func StripWWW(domain string) string {
	return strings.TrimPrefix(domain, "www.")
}

// SameDomain reports whether two domains are equal once www-stripped.
// Exact match only; subdomains do not match their parent.
func SameDomain(a, b string) bool {
	return StripWWW(CleanDomain(a)) == StripWWW(CleanDomain(b))
}

// CitationFlow maps a raw backlink count onto a 0-100 log scale.
func CitationFlow(backlinks int) int {
	if backlinks < 0 {
		backlinks = 0
	}
	cf := int(math.Round(math.Log10(float64(backlinks)+1) * 20))
	if cf > 100 {
		return 100
	}
	return cf
}

// TrustFlow clamps the upstream authority rank to 0-100.
func TrustFlow(rank int) int {
	if rank < 0 {
		return 0
	}
	if rank > 100 {
		return 100
	}
	return rank
}

// DofollowPct is the rounded percentage of dofollow links, 0 when the sample
// is empty.
func DofollowPct(dofollow, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(dofollow) / float64(total) * 100))
}
