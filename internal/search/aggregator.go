package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fitspot/placesearch/internal/domain"
	"fitspot/placesearch/internal/geo"
)

// Aggregator runs one provider search per category filter and merges the
// outcomes into a single deduplicated list.
type Aggregator struct {
	provider      PlacesProvider
	vocabulary    *Vocabulary
	defaultRadius int
}

type AggregateResult struct {
	Places   []domain.Place
	Statuses []domain.CategoryStatus
}

type categoryOutcome struct {
	filter domain.CategoryFilter
	places []domain.Place
	err    error
}

func NewAggregator(provider PlacesProvider, vocabulary *Vocabulary, defaultRadius int) *Aggregator {
	if vocabulary == nil {
		vocabulary = DefaultVocabulary()
	}
	if defaultRadius <= 0 {
		defaultRadius = defaultSearchRadius
	}
	return &Aggregator{provider: provider, vocabulary: vocabulary, defaultRadius: defaultRadius}
}

// Aggregate issues every category search concurrently and waits for all of them
// to settle. Merge order is category declaration order, then provider order; the
// first occurrence of an identifier keeps its fields and position while later
// occurrences only contribute their category tag. Failed categories are dropped
// unless every category failed, which yields ErrAllCategoriesFailed.
func (a *Aggregator) Aggregate(ctx context.Context, request domain.SearchRequest) (AggregateResult, error) {
	filters, err := a.vocabulary.Resolve(request.Categories)
	if err != nil {
		return AggregateResult{}, err
	}

	var (
		nearby bool
		center domain.Coordinate
		radius int
	)
	if request.Bias != nil {
		center, radius, err = geo.CenterRadius(*request.Bias, a.defaultRadius)
		if err != nil {
			return AggregateResult{}, err
		}
		nearby = true
	}

	startedAt := time.Now()
	outcomes := make([]categoryOutcome, len(filters))
	var wg sync.WaitGroup
	for i, filter := range filters {
		wg.Add(1)
		go func(index int, filter domain.CategoryFilter) {
			defer wg.Done()
			var (
				places []domain.Place
				err    error
			)
			if nearby {
				places, err = a.provider.NearbySearch(ctx, nearbyQueryFor(request.Query, filter, center, radius))
			} else {
				places, err = a.provider.TextSearch(ctx, textQueryFor(request.Query, filter))
			}
			outcomes[index] = categoryOutcome{filter: filter, places: places, err: err}
		}(i, filter)
	}
	wg.Wait()

	statuses := make([]domain.CategoryStatus, len(outcomes))
	failures := make([]error, 0, len(outcomes))
	for i, outcome := range outcomes {
		status := domain.CategoryStatus{Name: outcome.filter.Name, OK: outcome.err == nil, Count: len(outcome.places)}
		if outcome.err != nil {
			status.Error = outcome.err.Error()
			failures = append(failures, fmt.Errorf("%s: %w", outcome.filter.Name, outcome.err))
			slog.Debug("category search failed",
				slog.String("category", outcome.filter.Name),
				slog.String("error", outcome.err.Error()),
			)
		}
		statuses[i] = status
	}

	if len(failures) == len(outcomes) {
		slog.Warn("all category searches failed",
			slog.String("query", request.Query),
			slog.Int("categories", len(outcomes)),
			slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
		)
		return AggregateResult{Statuses: statuses}, fmt.Errorf("%w: %w", ErrAllCategoriesFailed, errors.Join(failures...))
	}

	var bounds *domain.Bounds
	if request.Bias != nil {
		bounds = request.Bias.Bounds
	}
	places := mergeCategoryOutcomes(outcomes, bounds)

	slog.Debug("category searches completed",
		slog.String("query", request.Query),
		slog.Int("categories", len(outcomes)),
		slog.Int("failed", len(failures)),
		slog.Int("places", len(places)),
		slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
	)
	return AggregateResult{Places: places, Statuses: statuses}, nil
}

// mergeCategoryOutcomes walks outcomes in declaration order. With bounds set,
// places outside the viewport are left out.
func mergeCategoryOutcomes(outcomes []categoryOutcome, bounds *domain.Bounds) []domain.Place {
	merged := make([]domain.Place, 0)
	positions := make(map[string]int)
	for _, outcome := range outcomes {
		if outcome.err != nil {
			continue
		}
		for _, place := range outcome.places {
			if place.ID == "" {
				continue
			}
			if pos, exists := positions[place.ID]; exists {
				merged[pos].AddCategories(outcome.filter.Name)
				continue
			}
			if bounds != nil && !geo.Contains(*bounds, place.Location) {
				continue
			}
			item := place.Clone()
			item.Categories = nil
			item.AddCategories(outcome.filter.Name)
			positions[place.ID] = len(merged)
			merged = append(merged, item)
		}
	}
	return merged
}
