package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"fitspot/placesearch/internal/domain"
)

// DetailEnricher merges detail fields onto places, consulting the result cache
// before asking the provider.
type DetailEnricher struct {
	provider    PlacesProvider
	cache       ResultCache
	maxInFlight int
	fields      []string
}

func NewDetailEnricher(provider PlacesProvider, cache ResultCache, maxInFlight int, fields []string) *DetailEnricher {
	if cache == nil {
		cache = NewMemoryResultCache(0)
	}
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	if len(fields) == 0 {
		fields = DefaultDetailFields
	}
	return &DetailEnricher{provider: provider, cache: cache, maxInFlight: maxInFlight, fields: fields}
}

// Fetch returns the detailed record for placeID, from cache when present.
func (d *DetailEnricher) Fetch(ctx context.Context, placeID string) (domain.Place, error) {
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return domain.Place{}, fmt.Errorf("%w: empty identifier", domain.ErrPlaceNotFound)
	}
	if cached, ok := d.cache.Get(ctx, placeID); ok {
		return cached, nil
	}
	details, err := d.provider.Details(ctx, placeID, d.fields)
	if err != nil {
		return domain.Place{}, err
	}
	if details.ID == "" {
		details.ID = placeID
	}
	details.DetailsLoaded = true
	d.cache.Put(ctx, placeID, details)
	return details, nil
}

// Enrich returns a copy of places in input order with detail fields merged.
// A place whose details cannot be fetched is returned as it came in.
func (d *DetailEnricher) Enrich(ctx context.Context, places []domain.Place) []domain.Place {
	out := make([]domain.Place, len(places))
	sem := semaphore.NewWeighted(int64(d.maxInFlight))
	var wg sync.WaitGroup

	for i, place := range places {
		out[i] = place.Clone()
		wg.Add(1)
		go func(index int, place domain.Place) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			details, err := d.Fetch(ctx, place.ID)
			if err != nil {
				slog.Debug("detail enrichment skipped",
					slog.String("placeId", place.ID),
					slog.String("error", err.Error()),
				)
				return
			}
			item := place.Clone()
			item.MergeDetails(details)
			out[index] = item
		}(i, place)
	}
	wg.Wait()
	return out
}
