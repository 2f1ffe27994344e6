package offlinecache

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	classifier "github.com/prototypingcove/offline-cache/pkg/content-classifier"
	serializer "github.com/prototypingcove/offline-cache/pkg/response-serializer"
)

// fallback resolves the response for an intercepted request whose origin
// fetch failed. Page navigations get the cached shell, image requests get
// the cached placeholder, everything else gets the synthesized offline
// response. The chain always terminates, so the caller is guaranteed an
// answer even with an empty cache.
func (p *Proxy) fallback(r *http.Request, cs *CacheStatus) *http.Response {
	logger := p.requestLogger(r)
	if isNavigation(r) {
		if res := p.storedFallback(p.shellKey); res != nil {
			cs.Detail("fallback-shell")
			logger.Debug().Str("path", r.URL.Path).Msg("Serving shell fallback")
			return res
		}
	}
	if p.categorize(r.URL.Path) == classifier.Image && p.placeholderKey != "" {
		if res := p.storedFallback(p.placeholderKey); res != nil {
			cs.Detail("fallback-placeholder")
			logger.Debug().Str("path", r.URL.Path).Msg("Serving placeholder fallback")
			return res
		}
	}
	cs.Detail("offline")
	return p.offlineResponse(r)
}

// storedFallback loads a fallback asset from the tiers. Any failure just
// means the asset is not available.
func (p *Proxy) storedFallback(key string) *http.Response {
	bts, _, ok := p.lookup(key)
	if !ok {
		return nil
	}
	res, err := serializer.BytesToResponse(bts)
	if err != nil {
		p.log.Error().Err(err).Str("key", key).Msg("Could not read fallback from cache")
		return nil
	}
	return res
}

// isNavigation reports whether the request is a page navigation. Browsers
// say so explicitly with Sec-Fetch-Mode, older clients are recognized by
// their Accept header.
func isNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// offlineResponse synthesizes the terminal offline answer: a service
// unavailable status with a small machine-readable body.
func (p *Proxy) offlineResponse(r *http.Request) *http.Response {
	body, _ := json.Marshal(map[string]string{
		"error": "offline",
		"path":  r.URL.Path,
	})
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Cache-Control", "no-store")
	return &http.Response{
		Status:        "503 " + http.StatusText(http.StatusServiceUnavailable),
		StatusCode:    http.StatusServiceUnavailable,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       r,
	}
}
