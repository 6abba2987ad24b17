// Package cache implements the cache-aside policy around record generation:
// read through on every lookup, write back only successful generations, and
// never let the cache itself fail a request.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rabbitwit/PT-Gen-Refactor/internal/domain"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/metrics"
)

// Executor wraps a generation thunk with read-through/write-through caching.
//
// Concurrent misses for the same resource id race: each in-flight request may
// invoke its own generation and each success writes the key, last write wins.
// There is deliberately no per-key single-flight; generations are idempotent
// and the raw payloads are equal, so the duplicate work is bounded and the
// stored value converges.
type Executor struct {
	store  Store
	logger *slog.Logger
}

func NewExecutor(store Store, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{store: store, logger: logger}
}

// Do returns the cached record for resourceID when one exists, otherwise runs
// generate. A successful generation is written back with the format field
// stripped; failures are returned to the caller but never cached, because
// upstream failures are usually transient. The second return reports whether
// the record came from the cache.
func (e *Executor) Do(ctx context.Context, resourceID string, generate func(context.Context) domain.MediaRecord) (domain.MediaRecord, bool) {
	if e.store != nil {
		data, found, err := e.store.Get(ctx, resourceID)
		if err != nil {
			e.logger.Warn("cache read failed, generating",
				slog.String("resourceId", resourceID),
				slog.String("error", err.Error()),
			)
		} else if found {
			var record domain.MediaRecord
			if err := json.Unmarshal(data, &record); err != nil {
				e.logger.Warn("cache payload malformed, regenerating",
					slog.String("resourceId", resourceID),
					slog.String("error", err.Error()),
				)
			} else {
				metrics.CacheHitsTotal.Inc()
				return record, true
			}
		}
	}
	metrics.CacheMissesTotal.Inc()

	record := generate(ctx)

	if record.Success && e.store != nil {
		stored := record
		stored.Format = ""
		if data, err := json.Marshal(stored); err != nil {
			e.logger.Warn("cache encode failed",
				slog.String("resourceId", resourceID),
				slog.String("error", err.Error()),
			)
		} else if err := e.store.Set(ctx, resourceID, data); err != nil {
			// Caching is best-effort; a write failure never fails the request.
			e.logger.Warn("cache write failed",
				slog.String("resourceId", resourceID),
				slog.String("error", err.Error()),
			)
		}
	}
	return record, false
}
