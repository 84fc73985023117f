// Package cache memoizes expensive external calls (geocoding, elevation,
// timezone lookups) behind namespaced string keys, storing both successful
// payloads and sticky error markers with outcome-dependent TTLs.
package cache

import (
	"context"
	"math/rand/v2"
	"time"
)

// Outcome classifies what kind of record is stored at a cache key, driving
// both the TTL chosen on write and the metrics label on read.
type Outcome int

const (
	// OutcomeSuccess marks a genuine payload.
	OutcomeSuccess Outcome = iota
	// OutcomeUsageLimit marks an upstream rate-exhaustion error marker.
	OutcomeUsageLimit
	// OutcomeError marks any other sticky upstream error marker.
	OutcomeError
)

// Entry is one cache record: either a JSON-ish payload (on OutcomeSuccess)
// or an error message (otherwise).
type Entry struct {
	Outcome Outcome
	Payload map[string]any
	Error   string
}

// Base TTLs and jitter spreads: success ~60-90 days, usage-limit ~12 hours,
// other-error ~30 days, all ± jitter. Timeouts are never cached at all
// (callers simply never call Put for a Timeout result).
const (
	successBaseTTL   = 60 * 24 * time.Hour
	successJitter    = 30 * 24 * time.Hour
	usageLimitBase   = 12 * time.Hour
	usageLimitJitter = 2 * time.Hour
	errorBaseTTL     = 30 * 24 * time.Hour
	errorJitter      = 5 * 24 * time.Hour
)

// TTLFor returns the TTL to use when writing an entry with the given
// outcome, including random jitter so many entries written at once don't
// all expire in the same instant.
func TTLFor(outcome Outcome) time.Duration {
	switch outcome {
	case OutcomeUsageLimit:
		return usageLimitBase + jitter(usageLimitJitter)
	case OutcomeError:
		return errorBaseTTL + jitter(errorJitter)
	default:
		return successBaseTTL + jitter(successJitter)
	}
}

func jitter(spread time.Duration) time.Duration {
	if spread <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(spread)))
}

// Cache is a mapping from namespaced string keys to Entry records with
// per-entry TTL. Keys are content-addressed by coordinates (e.g.
// "address2/46.713,6.503") so entries survive station identity changes.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, entry Entry) error
	Ping(ctx context.Context) error
}
