package offlinecache

import "time"

// sweepLoop runs an infinite loop to keep the dynamic tier bounded.
// It wakes up on a fixed interval rather than on every write, so the
// entry count may briefly overshoot the limit between sweeps.
func (p *Proxy) sweepLoop() {
	p.log.Info().
		Str("tier", p.dynamicTier).
		Int("limit", p.dynamicLimit).
		Dur("interval", p.sweepInterval).
		Msg("Starting eviction sweep loop")
	for {
		time.Sleep(p.sweepInterval)
		if err := p.Sweep(); err != nil {
			p.log.Error().Err(err).Msg("Could not sweep dynamic tier")
		}
	}
}

// Sweep deletes the oldest entries of the dynamic tier until the entry
// count is back under the configured limit. Eviction is strictly first in
// first out and best effort: a failed delete is skipped, the entry will
// come up again on the next sweep.
func (p *Proxy) Sweep() error {
	count, err := p.store.Count(p.dynamicTier)
	if err != nil {
		return err
	}
	excess := count - p.dynamicLimit
	if excess <= 0 {
		return nil
	}
	keys, err := p.store.OldestKeys(p.dynamicTier, excess)
	if err != nil {
		return err
	}
	evicted := 0
	for _, key := range keys {
		if err := p.store.Delete(p.dynamicTier, key); err != nil {
			p.log.Error().Err(err).Str("key", key).Str("tier", p.dynamicTier).Msg("Could not evict entry")
			continue
		}
		evicted++
		p.log.Trace().Str("key", key).Str("tier", p.dynamicTier).Msg("Evicted")
	}
	p.log.Debug().
		Int("count", count).
		Int("evicted", evicted).
		Int("limit", p.dynamicLimit).
		Msg("Dynamic tier swept")
	return nil
}
