package search

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"fitspot/placesearch/internal/domain"
	"fitspot/placesearch/internal/geo"
	"fitspot/placesearch/internal/metrics"
)

// ErrSuperseded is returned by a distance pass whose generation was replaced by
// a newer pass before it finished. Callers drop it silently.
var ErrSuperseded = errors.New("enrichment pass superseded")

type DistanceOptions struct {
	MaxInFlight  int
	Mode         domain.TravelMode
	StraightLine bool
}

// DistanceEnricher annotates places with travel distance from an origin. One
// enricher belongs to one logical search session: each Enrich call starts a new
// generation and every write of an older generation is discarded.
type DistanceEnricher struct {
	provider PlacesProvider
	opts     DistanceOptions

	mu         sync.Mutex
	generation uint64
	cancelPass context.CancelFunc
}

type distanceSlot struct {
	done     bool
	known    bool
	distance domain.Distance
}

func NewDistanceEnricher(provider PlacesProvider, opts DistanceOptions) *DistanceEnricher {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = defaultMaxInFlight
	}
	opts.Mode = domain.NormalizeTravelMode(string(opts.Mode))
	return &DistanceEnricher{provider: provider, opts: opts}
}

// Generation returns the tag of the most recently started pass.
func (e *DistanceEnricher) Generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// begin starts a new generation and cancels the calls of the pass it replaces.
func (e *DistanceEnricher) begin(ctx context.Context) (context.Context, uint64, context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancelPass != nil {
		e.cancelPass()
	}
	e.generation++
	passCtx, cancel := context.WithCancel(ctx)
	e.cancelPass = cancel
	return passCtx, e.generation, cancel
}

func (e *DistanceEnricher) finish(generation uint64, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if generation == e.generation {
		e.cancelPass = nil
	}
	cancel()
}

func (e *DistanceEnricher) isCurrent(generation uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return generation == e.generation
}

// Enrich returns a copy of places with distance fields set, in input order.
// Distances that cannot be determined are left empty. When the deadline of ctx
// passes mid-pass, lookups still outstanding count as unknown; cancellation and
// supersession are reported as errors.
func (e *DistanceEnricher) Enrich(ctx context.Context, places []domain.Place, origin domain.Coordinate) ([]domain.Place, error) {
	out, _, err := e.EnrichTagged(ctx, places, origin)
	return out, err
}

// EnrichTagged is Enrich that also reports the generation of the pass, so the
// caller can later publish derived results with CommitIfCurrent.
func (e *DistanceEnricher) EnrichTagged(ctx context.Context, places []domain.Place, origin domain.Coordinate) ([]domain.Place, uint64, error) {
	if err := origin.Validate(); err != nil {
		return nil, 0, err
	}

	passCtx, generation, cancel := e.begin(ctx)
	defer e.finish(generation, cancel)

	slots := make([]distanceSlot, len(places))
	var slotsMu sync.Mutex
	sem := semaphore.NewWeighted(int64(e.opts.MaxInFlight))
	var wg sync.WaitGroup

	for i, place := range places {
		task := domain.EnrichmentTask{Index: i, Place: place, Origin: origin, Generation: generation}
		wg.Add(1)
		go func(task domain.EnrichmentTask) {
			defer wg.Done()

			if err := sem.Acquire(passCtx, 1); err != nil {
				e.writeSlot(&slotsMu, slots, task, e.unknown(passCtx, task))
				return
			}
			defer sem.Release(1)

			e.writeSlot(&slotsMu, slots, task, e.measure(passCtx, task))
		}(task)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, generation, err
	}
	if !e.isCurrent(generation) {
		return nil, generation, ErrSuperseded
	}

	out := make([]domain.Place, len(places))
	for i, place := range places {
		item := place.Clone()
		item.DistanceText = ""
		item.DistanceMeters = 0
		if slot := slots[i]; slot.done && slot.known {
			item.DistanceText = slot.distance.Text
			item.DistanceMeters = slot.distance.Meters
		}
		out[i] = item
	}
	return out, generation, nil
}

// Advance starts a generation without a distance pass, superseding any pass in flight.
func (e *DistanceEnricher) Advance() uint64 {
	_, generation, cancel := e.begin(context.Background())
	e.finish(generation, cancel)
	return generation
}

// CommitIfCurrent runs fn only while generation is still the latest one.
func (e *DistanceEnricher) CommitIfCurrent(generation uint64, fn func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if generation != e.generation {
		metrics.StaleDistanceWritesTotal.Inc()
		return false
	}
	fn()
	return true
}

func (e *DistanceEnricher) measure(ctx context.Context, task domain.EnrichmentTask) distanceSlot {
	distance, err := e.provider.Distance(ctx, task.Origin, task.Place.Location, e.opts.Mode)
	if err == nil && distance.Text != "" {
		return distanceSlot{done: true, known: true, distance: distance}
	}
	if err != nil && !errors.Is(err, domain.ErrDistanceUnknown) && ctx.Err() == nil {
		slog.Debug("distance lookup failed",
			slog.String("placeId", task.Place.ID),
			slog.String("error", err.Error()),
		)
	}
	return e.unknown(ctx, task)
}

// unknown is the slot for a place whose travel distance could not be measured:
// empty, or the straight-line distance when that fallback is on. A cancelled
// pass gets no fallback.
func (e *DistanceEnricher) unknown(ctx context.Context, task domain.EnrichmentTask) distanceSlot {
	if e.opts.StraightLine && !errors.Is(ctx.Err(), context.Canceled) && task.Place.Location.Validate() == nil {
		meters := geo.DistanceMeters(task.Origin, task.Place.Location)
		return distanceSlot{done: true, known: true, distance: domain.Distance{
			Text:   geo.FormatDistance(meters),
			Meters: int(meters),
		}}
	}
	return distanceSlot{done: true}
}

// writeSlot stores a result at the task's position unless its generation was
// superseded in the meantime.
func (e *DistanceEnricher) writeSlot(mu *sync.Mutex, slots []distanceSlot, task domain.EnrichmentTask, slot distanceSlot) {
	if !e.isCurrent(task.Generation) {
		metrics.StaleDistanceWritesTotal.Inc()
		return
	}
	mu.Lock()
	slots[task.Index] = slot
	mu.Unlock()
}
