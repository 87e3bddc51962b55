package search

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"fitspot/placesearch/internal/domain"
)

const (
	opTextSearch   = "textsearch"
	opNearbySearch = "nearbysearch"
	opDetails      = "details"
	opDistance     = "distance"
	opAutocomplete = "autocomplete"
	opPhoto        = "photo"
)

var allOperations = []string{opTextSearch, opNearbySearch, opDetails, opDistance, opAutocomplete, opPhoto}

type guardConfig struct {
	retry   RetryConfig
	rps     float64
	burst   int
	breaker bool
}

// guardedProvider puts rate limiting, the circuit breaker and retries in front
// of every upstream call, keyed by operation.
type guardedProvider struct {
	next     PlacesProvider
	retry    RetryConfig
	limiters map[string]*rate.Limiter
	health   *healthBoard
}

func newGuardedProvider(next PlacesProvider, cfg guardConfig) *guardedProvider {
	g := &guardedProvider{
		next:     next,
		retry:    cfg.retry,
		limiters: make(map[string]*rate.Limiter, len(allOperations)),
		health:   newHealthBoard(cfg.breaker, allOperations),
	}
	if cfg.rps > 0 {
		burst := cfg.burst
		if burst <= 0 {
			burst = 1
		}
		for _, operation := range allOperations {
			g.limiters[operation] = rate.NewLimiter(rate.Limit(cfg.rps), burst)
		}
	}
	return g
}

func (g *guardedProvider) waitRateLimit(ctx context.Context, operation string) error {
	limiter := g.limiters[operation]
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

func (g *guardedProvider) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	if err := g.health.admit(operation, time.Now()); err != nil {
		return err
	}
	if err := g.waitRateLimit(ctx, operation); err != nil {
		return fmt.Errorf("%w: rate limit wait cancelled: %v", domain.ErrProviderUnavailable, err)
	}

	startedAt := time.Now()
	err := RetryWithBackoff(ctx, g.retry, fn)
	g.health.record(operation, err, time.Since(startedAt), time.Now())
	return err
}

func (g *guardedProvider) TextSearch(ctx context.Context, query domain.TextQuery) ([]domain.Place, error) {
	var places []domain.Place
	err := g.call(ctx, opTextSearch, func(ctx context.Context) error {
		var err error
		places, err = g.next.TextSearch(ctx, query)
		return err
	})
	return places, err
}

func (g *guardedProvider) NearbySearch(ctx context.Context, query domain.NearbyQuery) ([]domain.Place, error) {
	var places []domain.Place
	err := g.call(ctx, opNearbySearch, func(ctx context.Context) error {
		var err error
		places, err = g.next.NearbySearch(ctx, query)
		return err
	})
	return places, err
}

func (g *guardedProvider) Details(ctx context.Context, placeID string, fields []string) (domain.Place, error) {
	var place domain.Place
	err := g.call(ctx, opDetails, func(ctx context.Context) error {
		var err error
		place, err = g.next.Details(ctx, placeID, fields)
		return err
	})
	return place, err
}

func (g *guardedProvider) Distance(ctx context.Context, origin, destination domain.Coordinate, mode domain.TravelMode) (domain.Distance, error) {
	var distance domain.Distance
	err := g.call(ctx, opDistance, func(ctx context.Context) error {
		var err error
		distance, err = g.next.Distance(ctx, origin, destination, mode)
		return err
	})
	return distance, err
}

func (g *guardedProvider) Autocomplete(ctx context.Context, input string, bias *domain.GeoBias) ([]string, error) {
	var suggestions []string
	err := g.call(ctx, opAutocomplete, func(ctx context.Context) error {
		var err error
		suggestions, err = g.next.Autocomplete(ctx, input, bias)
		return err
	})
	return suggestions, err
}

func (g *guardedProvider) Photo(ctx context.Context, reference string, maxWidth int) (domain.Photo, error) {
	var photo domain.Photo
	err := g.call(ctx, opPhoto, func(ctx context.Context) error {
		var err error
		photo, err = g.next.Photo(ctx, reference, maxWidth)
		return err
	})
	return photo, err
}

func (g *guardedProvider) diagnostics() []domain.ProviderDiagnostics {
	return g.health.snapshot()
}
