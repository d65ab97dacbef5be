// Package connector wraps the external registries behind a uniform fetch
// contract. Every connector caches its last successful normalized result
// keyed by subject identifier and reports ordinary unavailability as a
// *domain.SourceError sentinel, never as a raised fault.
package connector

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/opensource-health/harrier/internal/domain"
)

// Clock supplies the current time. Injectable for deterministic tests.
type Clock func() time.Time

// base holds the plumbing shared by all connectors: HTTP client, cache
// namespace, TTL and timeout.
type base struct {
	source  string
	baseURL string
	cache   domain.Cache
	ttl     time.Duration
	timeout time.Duration
	client  *http.Client
	now     Clock
}

func newBase(source, baseURL string, cache domain.Cache, ttl, timeout time.Duration) base {
	return base{
		source:  source,
		baseURL: baseURL,
		cache:   cache,
		ttl:     ttl,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// readCache returns the cached payload for key, or nil. A cache read
// failure is logged and treated as a miss so the caller falls back to a
// live fetch.
func (b *base) readCache(ctx context.Context, key string) []byte {
	if b.cache == nil {
		return nil
	}
	val, err := b.cache.Get(ctx, b.source, key)
	if err != nil {
		slog.Warn("cache read failed, falling back to live fetch",
			"source", b.source,
			"key", key,
			"error", err,
		)
		return nil
	}
	return val
}

// writeCache stores a normalized payload. Failures are logged, not surfaced.
func (b *base) writeCache(ctx context.Context, key string, payload []byte) {
	if b.cache == nil {
		return
	}
	if err := b.cache.Set(ctx, b.source, key, payload, b.ttl); err != nil {
		slog.Warn("cache write failed",
			"source", b.source,
			"key", key,
			"error", err,
		)
	}
}

func (b *base) softErr(reason, detail string) *domain.SourceError {
	return &domain.SourceError{Source: b.source, Reason: reason, Detail: detail}
}

// fetchCtx derives the per-request timeout context. Fetches are never
// cancelled by the caller once issued; they run to completion or their
// own timeout.
func (b *base) fetchCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), b.timeout)
}

// isTimeout distinguishes deadline expiry from other transport failures
// for soft-error reason codes.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	type timeout interface{ Timeout() bool }
	for e := err; e != nil; {
		if te, ok := e.(timeout); ok && te.Timeout() {
			return true
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return err == context.DeadlineExceeded
}
