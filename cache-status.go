package offlinecache

import "fmt"

// CacheStatus renders the Cache-Status response header (RFC 9211) for one
// handled request. Only the parameters this proxy can actually report are
// implemented.
type CacheStatus struct {
	hit       bool
	fwdReason FwdReason
	stored    bool
	detail    string
}

type FwdReason string

const (
	// The cache did not contain any responses that matched the
	// request URI.
	FwdUriMiss FwdReason = "uri-miss"
)

// Hit marks the request as served from a tier.
func (cs *CacheStatus) Hit() {
	cs.hit = true
}

// Forward marks the request as forwarded to the origin.
func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.hit = false
	cs.fwdReason = reason
}

// Stored marks the forwarded response as written to a tier.
func (cs *CacheStatus) Stored() {
	cs.stored = true
}

// Detail attaches extra information, e.g. which fallback was served.
func (cs *CacheStatus) Detail(detail string) {
	cs.detail = detail
}

func (cs *CacheStatus) String() string {
	status := "Offline-Cache; hit"
	if !cs.hit {
		status = fmt.Sprintf("Offline-Cache; fwd=%s", cs.fwdReason)
	}
	if cs.stored {
		status = status + "; stored"
	}
	if cs.detail != "" {
		status = status + "; detail=" + cs.detail
	}
	return status
}
