package crawler

import (
	"net/url"
	"path"
	"strings"
)

// normalizeURL canonicalizes a URL for the visited set and cache keys.
//
// Design decision: We normalize URLs because:
//  1. Same page can have different URL representations
//  2. Fragment (#anchor) doesn't change content
//  3. An empty path and "/" are the same resource
func normalizeURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}

	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

// sameOrigin reports whether candidate shares the root's host.
func sameOrigin(root *url.URL, candidate *url.URL) bool {
	return strings.EqualFold(root.Host, candidate.Host) ||
		strings.EqualFold(root.Hostname(), candidate.Hostname())
}

// matchesAny reports whether the URL path matches any glob pattern
// (path.Match syntax, e.g. "/admin/*", "/logout*", "*.pdf").
func matchesAny(patterns []string, urlPath string) bool {
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, urlPath); err == nil && ok {
			return true
		}
		// Also try against the last path element so "*.pdf" style
		// patterns work without a leading directory glob.
		if ok, err := path.Match(pattern, path.Base(urlPath)); err == nil && ok {
			return true
		}
	}
	return false
}
