// Package dispatch routes an inbound URL or source+id pair to the provider
// that owns it and runs the generation through the cache-aside executor.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitwit/PT-Gen-Refactor/internal/cache"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/domain"
	"github.com/rabbitwit/PT-Gen-Refactor/internal/metrics"
)

// ArchiveSource is an alternate, pre-scraped data source consulted before a
// live generator runs. A nil ArchiveSource disables archival lookups.
type ArchiveSource interface {
	Lookup(ctx context.Context, resourceID string) (domain.MediaRecord, bool, error)
}

type Dispatcher struct {
	registry *Registry
	executor *cache.Executor
	archive  ArchiveSource
	health   *HealthTracker
	logger   *slog.Logger
}

func NewDispatcher(registry *Registry, executor *cache.Executor, archive ArchiveSource, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		executor: executor,
		archive:  archive,
		health:   NewHealthTracker(),
		logger:   logger,
	}
}

// DispatchURL resolves an arbitrary input URL to a provider and identifier
// and produces the record. Unroutable input is a structured failure, not an
// error: clients always receive the envelope shape.
func (d *Dispatcher) DispatchURL(ctx context.Context, rawURL string) domain.MediaRecord {
	provider, ok := d.registry.Match(rawURL)
	if !ok {
		return domain.Failure("", "", domain.ErrUnsupportedURL.Error())
	}
	id, ok := provider.ExtractID(rawURL)
	if !ok {
		return domain.Failure(provider.Name(), "",
			fmt.Sprintf("%s: no valid %s identifier in url", domain.ErrInvalidProviderURL.Error(), provider.Name()))
	}
	return d.generate(ctx, provider, id)
}

// DispatchByID serves the direct source+id path, bypassing domain matching.
// The identifier is accepted in either canonical or cache-key shape.
func (d *Dispatcher) DispatchByID(ctx context.Context, source, id string) domain.MediaRecord {
	provider, ok := d.registry.ByName(source)
	if !ok {
		return domain.Failure(source, id, fmt.Sprintf("%s: %s", domain.ErrUnknownSource.Error(), source))
	}
	if normalizer, ok := provider.(IDNormalizer); ok {
		id = normalizer.NormalizeID(id)
	}
	return d.generate(ctx, provider, id)
}

func (d *Dispatcher) generate(ctx context.Context, provider Provider, id string) domain.MediaRecord {
	resourceID := ResourceID(provider.Name(), id)

	record, cached := d.executor.Do(ctx, resourceID, func(ctx context.Context) domain.MediaRecord {
		if d.archive != nil {
			archived, found, err := d.archive.Lookup(ctx, resourceID)
			if err != nil {
				d.logger.Warn("archive lookup failed, scraping live",
					slog.String("resourceId", resourceID),
					slog.String("error", err.Error()),
				)
			} else if found {
				d.logger.Info("record served from archive", slog.String("resourceId", resourceID))
				return archived
			}
		}

		if blocked, until, lastError := d.health.Blocked(provider.Name()); blocked {
			d.logger.Warn("provider temporarily blocked",
				slog.String("provider", provider.Name()),
				slog.Time("until", until),
			)
			return domain.Failure(provider.Name(), id,
				fmt.Sprintf("%s temporarily unavailable: %s", provider.Name(), lastError))
		}

		startedAt := time.Now()
		generated, err := provider.Generate(ctx, id)
		metrics.GeneratorDuration.WithLabelValues(provider.Name()).Observe(time.Since(startedAt).Seconds())
		d.health.Record(provider.Name(), err)
		if err != nil {
			metrics.GeneratorRequestsTotal.WithLabelValues(provider.Name(), "error").Inc()
			d.logger.Warn("generation failed",
				slog.String("provider", provider.Name()),
				slog.String("sid", id),
				slog.String("error", err.Error()),
			)
			return domain.Failure(provider.Name(), id, err.Error())
		}
		metrics.GeneratorRequestsTotal.WithLabelValues(provider.Name(), "ok").Inc()
		generated.Site = provider.Name()
		generated.SID = id
		return generated
	})

	// The formatter runs on every successful return, cached or fresh, so a
	// formatter fix applies retroactively to previously cached raw data.
	if record.Success {
		record.Format = provider.Format(record)
	}
	if cached {
		d.logger.Debug("record served from cache", slog.String("resourceId", resourceID))
	}
	return record
}
