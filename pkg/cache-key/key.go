// Package cachekey builds canonical cache keys for HTTP requests.
// Two requests naming the same resource must map to the same key, so
// relative URLs are resolved against the configured origin, hosts are
// lower-cased and query parameters are sorted before the key is assembled.
package cachekey

import (
	"net/http"
	"net/url"
	"strings"
)

const methodSeparator = ":"

// Keyer builds cache keys for requests hitting one origin.
type Keyer struct {
	origin *url.URL
}

// NewKeyer creates a Keyer that resolves relative request URLs against the
// given origin. A nil origin leaves relative URLs as they are.
func NewKeyer(origin *url.URL) Keyer {
	return Keyer{origin: origin}
}

// Canonical returns the cache key for the given request: the method and
// the absolute request URL with a sorted query string.
func (k Keyer) Canonical(r *http.Request) string {
	u := *r.URL
	if u.Host == "" && k.origin != nil {
		u.Scheme = k.origin.Scheme
		u.Host = k.origin.Host
	}
	return key(r.Method, &u)
}

// ForPath returns the key a plain GET request for the given origin path
// would get. Use it for keys known ahead of time, such as the entries of a
// precache manifest.
func (k Keyer) ForPath(path string) string {
	u, err := url.Parse(path)
	if err != nil {
		u = &url.URL{Path: path}
	}
	if k.origin != nil {
		u.Scheme = k.origin.Scheme
		u.Host = k.origin.Host
	}
	return key(http.MethodGet, u)
}

func key(method string, u *url.URL) string {
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	u.RawQuery = sortQuery(u.RawQuery)
	return method + methodSeparator + u.String()
}

// sortQuery rewrites a query string with its parameters in sorted order.
// Queries that do not parse are kept as-is.
func sortQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	return values.Encode()
}
