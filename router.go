package offlinecache

import (
	"net/http"

	classifier "github.com/prototypingcove/offline-cache/pkg/content-classifier"
	serializer "github.com/prototypingcove/offline-cache/pkg/response-serializer"
)

// lookup probes the static tier first and the dynamic tier second.
// The static tier holds the installed application assets, so its copies
// always win over anything cached on the fly. A read failure counts as a
// miss: worst case the entry is fetched again.
func (p *Proxy) lookup(key string) ([]byte, string, bool) {
	for _, tierName := range []string{p.staticTier, p.dynamicTier} {
		bts, ok, err := p.store.Get(tierName, key)
		if err != nil {
			p.log.Error().Err(err).Str("key", key).Str("tier", tierName).Msg("Could not retrieve from cache")
			continue
		}
		if ok {
			return bts, tierName, true
		}
	}
	return nil, "", false
}

// categorize classifies a path, honoring the configured document routes
// for extension-less paths the rule table cannot know about.
func (p *Proxy) categorize(path string) classifier.Category {
	category := classifier.Classify(path)
	if category == classifier.Other {
		if _, ok := p.docRoutes[path]; ok {
			return classifier.Document
		}
	}
	return category
}

// shouldStore reports whether a response may be written to a tier at all.
// Only plain successes for GET requests against an allowed origin are
// cacheable, and only when the path classifies as a known content type.
func (p *Proxy) shouldStore(r *http.Request, res *http.Response, category classifier.Category) bool {
	if r.Method != http.MethodGet {
		return false
	}
	// cache only success (HTTP 200), notably no redirects and no partials
	if res.StatusCode != http.StatusOK {
		return false
	}
	if !p.originAllowed(r) {
		return false
	}
	switch category {
	case classifier.Image, classifier.Font, classifier.Style, classifier.Script, classifier.Document:
		return true
	}
	return false
}

// storeTier picks the destination tier for a cacheable response. A fixed
// asset that is part of the precache manifest refreshes in place in the
// static tier, everything else lands in the dynamic tier. Documents always
// go dynamic so the installed shell stays pristine.
func (p *Proxy) storeTier(key string, category classifier.Category) string {
	switch category {
	case classifier.Style, classifier.Script, classifier.Font, classifier.Image:
		if _, ok := p.precacheKeys[key]; ok {
			return p.staticTier
		}
	}
	return p.dynamicTier
}

// storeResponse persists a response copy. It runs outside the request
// path, so failures are logged and never surface to the client.
func (p *Proxy) storeResponse(key string, category classifier.Category, res *http.Response) {
	bts, err := serializer.ResponseToBytes(res)
	if err != nil {
		p.log.Error().Err(err).Str("key", key).Msg("Could not serialize response")
		return
	}
	tierName := p.storeTier(key, category)
	if err := p.store.Put(tierName, key, bts); err != nil {
		p.log.Error().Err(err).Str("key", key).Str("tier", tierName).Msg("Could not write to cache")
		return
	}
	p.log.Trace().Str("key", key).Str("tier", tierName).Str("category", string(category)).Msg("Cache write")
}
