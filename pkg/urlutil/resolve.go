// Package urlutil holds the URL resolution rule used to turn discovered
// href/src values into sitemap keys. Equality between crawl targets is exact
// string equality of the resolved form; nothing here canonicalizes beyond
// the rules below.
package urlutil

import (
	"fmt"
	"net/url"
)

// Resolve rewrites ref to use the absolute scheme and network location of
// root when ref carries none of its own. Fragments are discarded, queries
// retained. A lone trailing slash is equivalent to an empty path (otherwise
// trailing slashes are significant and left alone).
//
// Redirects (301), including http/https scheme bounces and trailing-slash
// redirects, are a separate concern not handled here.
func Resolve(root, ref string) (string, error) {
	parsedRoot, err := url.Parse(root)
	if err != nil {
		return "", fmt.Errorf("parsing root %q: %w", root, err)
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parsing %q: %w", ref, err)
	}

	scheme := parsed.Scheme
	if scheme == "" {
		scheme = parsedRoot.Scheme
	}
	host := parsed.Host
	if host == "" {
		host = parsedRoot.Host
	}
	path := parsed.Path
	if path == "" && parsed.Opaque != "" {
		path = parsed.Opaque
	}
	if path == "/" {
		path = ""
	}

	resolved := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     path,
		RawQuery: parsed.RawQuery,
	}
	return resolved.String(), nil
}
