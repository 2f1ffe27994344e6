// Package offlinecache implements a cache-first caching proxy for the
// offline support layer of a web application. Intercepted requests are
// served from tiered storage whenever possible, fetched from the origin
// otherwise, and answered with a fallback when the origin is unreachable.
// A caller always receives a response.
package offlinecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	cachekey "github.com/prototypingcove/offline-cache/pkg/cache-key"
	serializer "github.com/prototypingcove/offline-cache/pkg/response-serializer"
	tee "github.com/prototypingcove/offline-cache/pkg/response-writer-tee"
	"github.com/prototypingcove/offline-cache/tier"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

type Config struct {
	// Storage for cache tiers. An in-memory store is used if nil.
	Store tier.Store
	// URL of the origin server.
	// Leave empty when the proxy is only used as middleware in front of a
	// local handler.
	Origin url.URL
	// Version names the deployment generation. Tier names derive from it,
	// so bumping the version starts with empty tiers.
	// Defaults to "v1".
	Version string
	// Precache lists the origin paths installed into the static tier.
	Precache []string
	// Shell is the path of the document served when a page navigation
	// cannot be satisfied. Defaults to "/".
	Shell string
	// Placeholder is the path of the image served when an image request
	// cannot be satisfied. No image fallback is served if empty.
	Placeholder string
	// DocumentRoutes lists extension-less paths that should be treated as
	// documents, e.g. "/pricing".
	DocumentRoutes []string
	// AllowedOrigins lists additional origins whose responses may be
	// cached, e.g. a font CDN. Requests to any other foreign origin pass
	// through untouched.
	AllowedOrigins []string
	// DynamicLimit caps the entry count of the dynamic tier.
	// Defaults to 50.
	DynamicLimit int
	// SweepInterval is the pause between eviction sweeps.
	// Defaults to one minute.
	SweepInterval time.Duration
	// Disable the background eviction sweeper.
	DisableSweeper bool
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Transport used for origin requests. http.DefaultTransport if nil.
	Transport http.RoundTripper
	// Optional function invoked when a sync signal arrives.
	// Sync signals are acknowledged and dropped if nil.
	SyncFunc func(context.Context) error
}

type Proxy struct {
	store          tier.Store
	keyer          cachekey.Keyer
	log            zerolog.Logger
	origin         *url.URL
	allowed        map[string]struct{}
	staticTier     string
	dynamicTier    string
	precache       []string
	precacheKeys   map[string]struct{}
	docRoutes      map[string]struct{}
	shellKey       string
	placeholderKey string
	dynamicLimit   int
	sweepInterval  time.Duration
	client         http.Client
	syncFunc       func(context.Context) error
}

var errNoOrigin = errors.New("no origin server configured")

// CreateProxy initializes the offline cache instance.
// It starts the needed background processes
// and sets up the needed variables
func CreateProxy(config Config) *Proxy {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	version := config.Version
	if version == "" {
		version = "v1"
	}

	var origin *url.URL
	if config.Origin.Host != "" {
		u := config.Origin
		origin = &u
	}

	// create a child logger and add defaults
	loggerCtx := logger.With().Str("version", version)
	if origin != nil {
		loggerCtx = loggerCtx.Str("origin", origin.String())
	}
	logger = loggerCtx.Logger()

	store := config.Store
	if store == nil {
		store = tier.NewMemStore()
	}

	keyer := cachekey.NewKeyer(origin)

	shell := config.Shell
	if shell == "" {
		shell = "/"
	}
	placeholderKey := ""
	if config.Placeholder != "" {
		placeholderKey = keyer.ForPath(config.Placeholder)
	}

	precacheKeys := make(map[string]struct{}, len(config.Precache))
	for _, path := range config.Precache {
		precacheKeys[keyer.ForPath(path)] = struct{}{}
	}
	docRoutes := make(map[string]struct{}, len(config.DocumentRoutes))
	for _, path := range config.DocumentRoutes {
		docRoutes[path] = struct{}{}
	}
	allowed := make(map[string]struct{}, len(config.AllowedOrigins))
	for _, entry := range config.AllowedOrigins {
		allowed[strings.ToLower(originHost(entry))] = struct{}{}
	}

	dynamicLimit := config.DynamicLimit
	if dynamicLimit == 0 {
		dynamicLimit = 50
	}
	sweepInterval := config.SweepInterval
	if sweepInterval == 0 {
		sweepInterval = time.Minute
	}

	p := &Proxy{
		store:          store,
		keyer:          keyer,
		log:            logger,
		origin:         origin,
		allowed:        allowed,
		staticTier:     tier.Name(tier.RoleStatic, version),
		dynamicTier:    tier.Name(tier.RoleDynamic, version),
		precache:       config.Precache,
		precacheKeys:   precacheKeys,
		docRoutes:      docRoutes,
		shellKey:       keyer.ForPath(shell),
		placeholderKey: placeholderKey,
		dynamicLimit:   dynamicLimit,
		sweepInterval:  sweepInterval,
		syncFunc:       config.SyncFunc,
		// do not follow redirects: anything but a plain success must
		// reach the client as-is and stay out of the cache
		client: http.Client{
			Transport: config.Transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}

	// start a goroutine to keep the dynamic tier bounded
	if !config.DisableSweeper {
		go p.sweepLoop()
	}

	return p
}

// fetchFn produces the origin response for a request. Which origin that is
// depends on how the proxy is mounted: a reverse proxy fetches over the
// network, the middleware runs the wrapped handler.
type fetchFn func(*http.Request) (*http.Response, error)

// ServeHTTP implements the http.Handler interface.
// It is the main entry point when the proxy runs as a reverse proxy.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer p.recover(w, r)
	if !p.intercepts(r) {
		p.bypass(w, r)
		return
	}
	res, cs := p.intercept(r, p.fetchOrigin)
	p.send(w, r, res, cs)
}

// Middleware wraps next so that its responses get the same cache-first
// treatment as proxied origin responses. A panic in next counts as an
// unreachable origin.
func (p *Proxy) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer p.recover(w, r)
		if !p.intercepts(r) {
			next.ServeHTTP(w, r)
			return
		}
		res, cs := p.intercept(r, handlerFetch(next))
		p.send(w, r, res, cs)
	})
}

// RoundTripper wraps base so that outbound requests of an http.Client get
// the same cache-first treatment as incoming ones. Requests outside the
// allowed origins pass through to base untouched.
func (p *Proxy) RoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &cachingTransport{p: p, base: base}
}

type cachingTransport struct {
	p    *Proxy
	base http.RoundTripper
}

func (t *cachingTransport) RoundTrip(r *http.Request) (res *http.Response, err error) {
	if !t.p.intercepts(r) {
		return t.base.RoundTrip(r)
	}
	defer func() {
		if v := recover(); v != nil {
			t.p.log.WithLevel(zerolog.PanicLevel).Interface("error", v).Msg("Panic in transport")
			res = t.p.offlineResponse(r)
			err = nil
		}
	}()
	res, cs := t.p.intercept(r, t.base.RoundTrip)
	res.Header.Add("Cache-Status", cs.String())
	t.p.logRequest(r, cs)
	return res, nil
}

// intercepts reports whether the request goes through the cache at all.
// Only GET requests for the configured origins do, everything else passes
// through without any interception side effects.
func (p *Proxy) intercepts(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	return p.originAllowed(r)
}

func (p *Proxy) originAllowed(r *http.Request) bool {
	host := strings.ToLower(r.URL.Host)
	if host == "" {
		return true
	}
	if p.origin != nil && host == strings.ToLower(p.origin.Host) {
		return true
	}
	_, ok := p.allowed[host]
	return ok
}

// intercept runs the cache-first state machine for one request:
// tier lookup, origin fetch on a miss, fallback resolution when the fetch
// fails. It always returns a response.
func (p *Proxy) intercept(r *http.Request, fetch fetchFn) (*http.Response, *CacheStatus) {
	logger := p.requestLogger(r)
	cs := &CacheStatus{}
	key := p.keyer.Canonical(r)

	if bts, tierName, ok := p.lookup(key); ok {
		if res, err := serializer.BytesToResponse(bts); err == nil {
			cs.Hit()
			logger.Trace().Str("key", key).Str("tier", tierName).Msg("Cache hit and serving")
			return res, cs
		} else {
			// in case we have a corrupted cache entry, we delete it and
			// fall through to the origin
			logger.Error().Err(err).Str("key", key).Msg("Could not read from cache")
			if err := p.store.Delete(tierName, key); err != nil {
				logger.Error().Err(err).Str("key", key).Msg("Could not delete corrupted entry")
			}
		}
	}

	cs.Forward(FwdUriMiss)
	res, err := fetch(r)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Could not fetch from origin")
		return p.fallback(r, cs), cs
	}

	// buffer the whole body so the client copy and the stored copy read
	// independently; a failure mid-body counts as an unreachable origin
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Could not read origin response")
		return p.fallback(r, cs), cs
	}
	res.Body = io.NopCloser(bytes.NewReader(body))
	res.ContentLength = int64(len(body))

	category := p.categorize(r.URL.Path)
	if p.shouldStore(r, res, category) {
		cs.Stored()
		stored := &http.Response{
			Status:        res.Status,
			StatusCode:    res.StatusCode,
			Proto:         res.Proto,
			ProtoMajor:    res.ProtoMajor,
			ProtoMinor:    res.ProtoMinor,
			Header:        res.Header.Clone(),
			Body:          io.NopCloser(bytes.NewReader(body)),
			ContentLength: int64(len(body)),
			Request:       r,
		}
		// save to cache in goroutine (do not slow down response)
		go p.storeResponse(key, category, stored)
	}
	return res, cs
}

// fetch the resource specified in the incoming request from the origin
func (p *Proxy) fetchOrigin(r *http.Request) (*http.Response, error) {
	if p.origin == nil {
		return nil, errNoOrigin
	}
	u := *r.URL
	if u.Host == "" {
		u.Scheme = p.origin.Scheme
		u.Host = p.origin.Host
	}
	req, err := http.NewRequestWithContext(r.Context(), r.Method, u.String(), r.Body)
	if err != nil {
		return nil, err
	}
	copyHeader(req.Header, r.Header)
	return p.client.Do(req)
}

// handlerFetch turns an http.Handler into a fetchFn by recording its
// output. A panic in the handler surfaces as a fetch error.
func handlerFetch(next http.Handler) fetchFn {
	return func(r *http.Request) (res *http.Response, err error) {
		defer func() {
			if v := recover(); v != nil {
				res = nil
				err = fmt.Errorf("handler panicked: %v", v)
			}
		}()
		rw := tee.NewResponseSaver(nil)
		next.ServeHTTP(rw, r)
		return serializer.BytesToResponse(rw.Response())
	}
}

// bypass just pipes the original request through to the origin and
// immediately responds to the client
func (p *Proxy) bypass(w http.ResponseWriter, r *http.Request) {
	res, err := p.fetchOrigin(r)
	if err != nil {
		p.requestLogger(r).Error().Err(err).Msg("Could not reach origin")
		http.Error(w, "Could not get response", http.StatusBadGateway)
		return
	}
	defer res.Body.Close()
	copyHeader(w.Header(), res.Header)
	w.WriteHeader(res.StatusCode)
	if _, err := io.Copy(w, res.Body); err != nil {
		p.requestLogger(r).Error().Err(err).Msg("Could not write response body to client")
	}
}

func (p *Proxy) send(w http.ResponseWriter, r *http.Request, res *http.Response, cs *CacheStatus) {
	if res.Body != nil {
		defer res.Body.Close()
	}
	copyHeader(w.Header(), res.Header)
	w.Header().Add("Cache-Status", cs.String())
	w.WriteHeader(res.StatusCode)
	bytesWritten, err := io.Copy(w, res.Body)
	if err != nil {
		p.log.Error().Err(err).Msg("Could not write response body to client")
	}
	p.logRequest(r, cs)
	p.log.Trace().Msgf("Wrote body (%d bytes)", bytesWritten)
}

// recover recovers from panics and sends the offline fallback if needed.
func (p *Proxy) recover(w http.ResponseWriter, r *http.Request) {
	if err := recover(); err != nil {
		p.log.WithLevel(zerolog.PanicLevel).Interface("error", err).Msg("Panic in proxy handler")
		p.escapeHatch(w, r)
	}
}

// escapeHatch serves the synthesized offline response as a last resort.
func (p *Proxy) escapeHatch(w http.ResponseWriter, r *http.Request) {
	res := p.offlineResponse(r)
	defer res.Body.Close()
	copyHeader(w.Header(), res.Header)
	w.WriteHeader(res.StatusCode)
	io.Copy(w, res.Body)
}

// requestLogger returns the logger from the request context.
// If no logger is found, it will return the proxy logger.
func (p *Proxy) requestLogger(r *http.Request) *zerolog.Logger {
	logger := hlog.FromRequest(r)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &p.log
	}
	return logger
}

func (p *Proxy) logRequest(r *http.Request, cs *CacheStatus) {
	isHit := 0
	if cs.hit {
		isHit = 1
	}
	p.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("sourceIp", getRequestSourceIp(r)).
		Str("fwd", string(cs.fwdReason)).
		Bool("stored", cs.stored).
		Int("hit", isHit).
		Msg("Sending response to client")
}

func getRequestSourceIp(r *http.Request) string {
	// RemoteAddr is in the format:
	// 1.2.3.4:10000 for ipv4
	// [1:2:3]:10000 for ipv6
	ipAndPort := r.RemoteAddr
	portSepIdx := strings.LastIndex(ipAndPort, ":")
	// if not found, return
	if portSepIdx < 0 {
		return ipAndPort
	}
	ip := ipAndPort[:portSepIdx]
	return ip
}

// originHost extracts the host part of an allowed origin entry. Entries
// may be full URLs or bare hosts.
func originHost(entry string) string {
	if u, err := url.Parse(entry); err == nil && u.Host != "" {
		return u.Host
	}
	return entry
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		// this is a workaround to remove default headers sent by an upstream proxy
		// some servers do not like the presence of these headers in the downstream request
		if k != "X-Forwarded-For" && k != "X-Forwarded-Proto" && k != "X-Forwarded-Host" {
			for _, v := range vv {
				dst.Add(k, v)
			}
		}
	}
}
