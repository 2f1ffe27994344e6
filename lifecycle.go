package offlinecache

import (
	"context"
	"fmt"
	"net/http"

	serializer "github.com/prototypingcove/offline-cache/pkg/response-serializer"
	"github.com/prototypingcove/offline-cache/tier"
)

// Install populates the static tier of the current generation with every
// entry of the precache manifest. The write is all-or-nothing: if any
// asset cannot be fetched, nothing is written and the error is returned.
// Install is idempotent, re-running it refreshes the installed assets.
func (p *Proxy) Install(ctx context.Context) error {
	if len(p.precache) == 0 {
		p.log.Debug().Msg("Nothing to install, precache manifest is empty")
		return nil
	}
	entries := make([]tier.Entry, 0, len(p.precache))
	for _, path := range p.precache {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
		if err != nil {
			return fmt.Errorf("precache %s: %w", path, err)
		}
		res, err := p.fetchOrigin(req)
		if err != nil {
			return fmt.Errorf("precache %s: %w", path, err)
		}
		if res.StatusCode != http.StatusOK {
			res.Body.Close()
			return fmt.Errorf("precache %s: got status %d", path, res.StatusCode)
		}
		bts, err := serializer.ResponseToBytes(res)
		res.Body.Close()
		if err != nil {
			return fmt.Errorf("precache %s: %w", path, err)
		}
		entries = append(entries, tier.Entry{Key: p.keyer.ForPath(path), Bytes: bts})
		p.log.Trace().Str("path", path).Msg("Precached")
	}
	if err := p.store.PutAll(p.staticTier, entries); err != nil {
		return fmt.Errorf("populate %s: %w", p.staticTier, err)
	}
	p.log.Info().Int("assets", len(entries)).Str("tier", p.staticTier).Msg("Static tier installed")
	return nil
}

// Activate makes the current generation the only one: every tier that
// does not belong to it is destroyed. Entries of the current generation
// are left untouched. Activate is idempotent.
func (p *Proxy) Activate() error {
	tiers, err := p.store.Tiers()
	if err != nil {
		return fmt.Errorf("enumerate tiers: %w", err)
	}
	var firstErr error
	for _, tierName := range tiers {
		if tierName == p.staticTier || tierName == p.dynamicTier {
			continue
		}
		if err := p.store.Drop(tierName); err != nil {
			p.log.Error().Err(err).Str("tier", tierName).Msg("Could not drop stale tier")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		p.log.Debug().Str("tier", tierName).Msg("Dropped stale tier")
	}
	if firstErr == nil {
		p.log.Info().Str("static", p.staticTier).Str("dynamic", p.dynamicTier).Msg("Generation activated")
	}
	return firstErr
}

// Resync handles a background sync signal. What re-syncing means is up to
// the embedding application, so the work is delegated to the configured
// SyncFunc. Without one the signal is acknowledged and dropped.
func (p *Proxy) Resync(ctx context.Context) error {
	if p.syncFunc == nil {
		p.log.Debug().Msg("Sync signal dropped, no sync function configured")
		return nil
	}
	return p.syncFunc(ctx)
}

// TierInfo describes one storage tier for diagnostics.
type TierInfo struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Current bool   `json:"current"`
}

// Tiers lists the tiers currently in the store together with their entry
// counts.
func (p *Proxy) Tiers() ([]TierInfo, error) {
	names, err := p.store.Tiers()
	if err != nil {
		return nil, err
	}
	infos := make([]TierInfo, 0, len(names))
	for _, name := range names {
		count, err := p.store.Count(name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, TierInfo{
			Name:    name,
			Entries: count,
			Current: name == p.staticTier || name == p.dynamicTier,
		})
	}
	return infos, nil
}
