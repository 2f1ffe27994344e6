// Package tier implements the storage layer of the offline cache.
//
// Cached responses live in named storage tiers. A tier name couples a role
// with a deployment generation, e.g. "static-v3" or "dynamic-v3", so that
// rolling out a new generation never mixes entries with the previous one.
// Tiers are created lazily on first write and destroyed only explicitly.
package tier

// Tier roles. The static tier holds the pre-populated application assets,
// the dynamic tier holds everything cached on the fly.
const (
	RoleStatic  = "static"
	RoleDynamic = "dynamic"
)

// Name returns the storage name of a tier role within a generation.
// The format is "{role}-{version}".
func Name(role, version string) string {
	return role + "-" + version
}

// Entry is one stored response, addressed by its canonical request key.
// Bytes holds the serialized HTTP response.
type Entry struct {
	Key   string
	Bytes []byte
}

// Store is an interface for tiered cache storage.
// It stores and retrieves []byte values, which represent HTTP responses,
// keyed by tier name and canonical request key. Within a tier, stores must
// preserve insertion order: a replaced entry counts as a new insertion and
// moves to the back of the tier.
//
// Implementations must be thread-safe!
type Store interface {
	// Get returns the stored response for the given key in the given tier,
	// if it exists. It also returns a boolean indicating whether retrieval
	// was successful.
	Get(tier, key string) ([]byte, bool, error)
	// Put stores the given response in the given tier under the given key.
	// An existing entry with the same key is replaced wholesale.
	Put(tier, key string, bytes []byte) error
	// PutAll stores all given entries in the given tier as one unit.
	// Either every entry is stored or none is.
	PutAll(tier string, entries []Entry) error
	// Delete removes the entry for the given key from the given tier.
	// Deleting a missing key is not an error.
	Delete(tier, key string) error
	// Count returns the number of entries in the given tier.
	Count(tier string) (int, error)
	// OldestKeys returns up to n keys of the given tier in insertion order,
	// oldest first.
	OldestKeys(tier string, n int) ([]string, error)
	// Tiers returns the names of all tiers currently in the store.
	Tiers() ([]string, error)
	// Drop destroys the given tier and every entry in it.
	Drop(tier string) error
}
