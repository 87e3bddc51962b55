package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"fitspot/placesearch/internal/domain"
)

func distanceByLat(_ context.Context, _ domain.Coordinate, destination domain.Coordinate) (domain.Distance, error) {
	if destination.Lat == 3 {
		return domain.Distance{}, domain.ErrDistanceUnknown
	}
	meters := int(destination.Lat * 1000)
	return domain.Distance{Text: fmt.Sprintf("%d m", meters), Meters: meters}, nil
}

func TestDistanceEnrichKeepsInputOrder(t *testing.T) {
	fake := &fakePlaces{distanceFn: distanceByLat}
	enricher := NewDistanceEnricher(fake, DistanceOptions{MaxInFlight: 4})

	places := []domain.Place{testPlace("A", "A", 1, 0), testPlace("B", "B", 2, 0), testPlace("C", "C", 3, 0)}
	places[2].DistanceText = "stale"
	places[2].DistanceMeters = 42

	out, err := enricher.Enrich(context.Background(), places, domain.Coordinate{Lat: 0, Lng: 0})
	if err != nil {
		t.Fatalf("enrich error: %v", err)
	}
	assertIDs(t, out, "A", "B", "C")
	if out[0].DistanceText != "1000 m" || out[0].DistanceMeters != 1000 {
		t.Fatalf("unexpected distance for A: %q %d", out[0].DistanceText, out[0].DistanceMeters)
	}
	if out[1].DistanceText != "2000 m" {
		t.Fatalf("unexpected distance for B: %q", out[1].DistanceText)
	}
	if out[2].DistanceText != "" || out[2].DistanceMeters != 0 {
		t.Fatalf("unknown distance must be empty, got %q %d", out[2].DistanceText, out[2].DistanceMeters)
	}
	if places[2].DistanceText != "stale" {
		t.Fatal("input list must not be mutated")
	}
}

func TestDistanceEnrichBoundsInFlightCalls(t *testing.T) {
	fake := &fakePlaces{distanceFn: func(ctx context.Context, origin, destination domain.Coordinate) (domain.Distance, error) {
		time.Sleep(15 * time.Millisecond)
		return domain.Distance{Text: "1 km", Meters: 1000}, nil
	}}
	enricher := NewDistanceEnricher(fake, DistanceOptions{MaxInFlight: 2})

	places := make([]domain.Place, 10)
	for i := range places {
		places[i] = testPlace(fmt.Sprintf("P%d", i), "P", 1, float64(i))
	}
	out, err := enricher.Enrich(context.Background(), places, domain.Coordinate{})
	if err != nil {
		t.Fatalf("enrich error: %v", err)
	}
	if got := fake.maxInFlight.Load(); got > 2 {
		t.Fatalf("expected at most 2 concurrent distance calls, got %d", got)
	}
	if got := fake.distanceCalls.Load(); got != 10 {
		t.Fatalf("expected 10 distance calls, got %d", got)
	}
	for _, item := range out {
		if item.DistanceText != "1 km" {
			t.Fatalf("missing distance on %s", item.ID)
		}
	}
}

func TestDistanceEnrichStraightLineFallback(t *testing.T) {
	enricher := NewDistanceEnricher(&fakePlaces{}, DistanceOptions{StraightLine: true})

	out, err := enricher.Enrich(context.Background(),
		[]domain.Place{testPlace("A", "A", 0.01, 0)}, domain.Coordinate{Lat: 0, Lng: 0})
	if err != nil {
		t.Fatalf("enrich error: %v", err)
	}
	if out[0].DistanceText == "" || out[0].DistanceMeters < 1000 || out[0].DistanceMeters > 1200 {
		t.Fatalf("expected great-circle distance of about 1.1 km, got %q %d", out[0].DistanceText, out[0].DistanceMeters)
	}
}

func TestDistanceEnrichInvalidOrigin(t *testing.T) {
	fake := &fakePlaces{distanceFn: distanceByLat}
	enricher := NewDistanceEnricher(fake, DistanceOptions{})

	_, err := enricher.Enrich(context.Background(),
		[]domain.Place{testPlace("A", "A", 1, 0)}, domain.Coordinate{Lat: 91, Lng: 0})
	if !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
	}
	if fake.distanceCalls.Load() != 0 {
		t.Fatal("no distance call expected for an invalid origin")
	}
}

func TestDistanceEnrichParentCancelled(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	fake := &fakePlaces{distanceFn: func(ctx context.Context, origin, destination domain.Coordinate) (domain.Distance, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return domain.Distance{}, ctx.Err()
	}}
	enricher := NewDistanceEnricher(fake, DistanceOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	out, err := enricher.Enrich(ctx, []domain.Place{testPlace("A", "A", 1, 0)}, domain.Coordinate{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if out != nil {
		t.Fatal("a cancelled pass must not return places")
	}
}

func TestDistanceEnrichDeadlineLeavesUnknown(t *testing.T) {
	fake := &fakePlaces{distanceFn: func(ctx context.Context, origin, destination domain.Coordinate) (domain.Distance, error) {
		if destination.Lat == 2 {
			<-ctx.Done()
			return domain.Distance{}, ctx.Err()
		}
		return domain.Distance{Text: "1 km", Meters: 1000}, nil
	}}
	places := []domain.Place{testPlace("A", "A", 1, 0), testPlace("B", "B", 2, 0)}

	cases := []struct {
		name         string
		straightLine bool
		wantUnknown  bool
	}{
		{name: "empty", wantUnknown: true},
		{name: "straight line", straightLine: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enricher := NewDistanceEnricher(fake, DistanceOptions{StraightLine: tc.straightLine})
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()

			out, err := enricher.Enrich(ctx, places, domain.Coordinate{})
			if err != nil {
				t.Fatalf("an expired pass must still return places, got %v", err)
			}
			assertIDs(t, out, "A", "B")
			if out[0].DistanceText != "1 km" {
				t.Fatalf("finished lookup lost: %q", out[0].DistanceText)
			}
			if unknown := out[1].DistanceText == ""; unknown != tc.wantUnknown {
				t.Fatalf("unexpected distance for B: %q", out[1].DistanceText)
			}
		})
	}
}

// reverseGate holds call i until call i+1 has returned, so n calls complete
// last to first.
type reverseGate struct {
	done []chan struct{}

	mu    sync.Mutex
	order []int
}

func newReverseGate(n int) *reverseGate {
	g := &reverseGate{done: make([]chan struct{}, n)}
	for i := range g.done {
		g.done[i] = make(chan struct{})
	}
	return g
}

func (g *reverseGate) wait(ctx context.Context, i int) error {
	if i+1 >= len(g.done) {
		return nil
	}
	select {
	case <-g.done[i+1]:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *reverseGate) finish(i int) {
	g.mu.Lock()
	g.order = append(g.order, i)
	g.mu.Unlock()
	close(g.done[i])
}

func (g *reverseGate) completionOrder() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.order...)
}

func TestDistanceEnrichOrderUnderReversedCompletion(t *testing.T) {
	const n = 5
	gate := newReverseGate(n)
	fake := &fakePlaces{distanceFn: func(ctx context.Context, origin, destination domain.Coordinate) (domain.Distance, error) {
		i := int(destination.Lat) - 1
		if err := gate.wait(ctx, i); err != nil {
			return domain.Distance{}, err
		}
		defer gate.finish(i)
		return domain.Distance{Text: fmt.Sprintf("%d km", i), Meters: i * 1000}, nil
	}}
	enricher := NewDistanceEnricher(fake, DistanceOptions{MaxInFlight: n})

	places := make([]domain.Place, n)
	for i := range places {
		places[i] = testPlace(fmt.Sprintf("P%d", i), "P", float64(i+1), 0)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := enricher.Enrich(ctx, places, domain.Coordinate{})
	if err != nil {
		t.Fatalf("enrich error: %v", err)
	}

	if diff := cmp.Diff([]int{4, 3, 2, 1, 0}, gate.completionOrder()); diff != "" {
		t.Fatalf("calls did not complete in reverse (-want +got):\n%s", diff)
	}
	assertIDs(t, out, "P0", "P1", "P2", "P3", "P4")
	for i, item := range out {
		if want := fmt.Sprintf("%d km", i); item.DistanceText != want {
			t.Fatalf("distance of %s is %q, want %q", item.ID, item.DistanceText, want)
		}
	}
}

// A pass for an older origin that is still running when a newer origin arrives
// must never overwrite the newer distances.
func TestDistanceEnrichNewerOriginSupersedesOlder(t *testing.T) {
	first := domain.Coordinate{Lat: 10, Lng: 10}
	second := domain.Coordinate{Lat: 20, Lng: 20}

	firstStarted := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	fake := &fakePlaces{distanceFn: func(ctx context.Context, origin, destination domain.Coordinate) (domain.Distance, error) {
		if origin == first {
			once.Do(func() { close(firstStarted) })
			// Ignore cancellation so the late answer actually reaches writeSlot.
			<-release
			return domain.Distance{Text: "from first", Meters: 1}, nil
		}
		return domain.Distance{Text: "from second", Meters: 2}, nil
	}}
	enricher := NewDistanceEnricher(fake, DistanceOptions{MaxInFlight: 4})
	places := []domain.Place{testPlace("A", "A", 1, 1), testPlace("B", "B", 2, 2)}

	type passResult struct {
		places     []domain.Place
		generation uint64
		err        error
	}
	firstDone := make(chan passResult, 1)
	go func() {
		out, generation, err := enricher.EnrichTagged(context.Background(), places, first)
		firstDone <- passResult{out, generation, err}
	}()

	select {
	case <-firstStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("first pass never started")
	}

	out, secondGeneration, err := enricher.EnrichTagged(context.Background(), places, second)
	if err != nil {
		t.Fatalf("second pass error: %v", err)
	}
	for _, item := range out {
		if item.DistanceText != "from second" {
			t.Fatalf("second pass returned %q for %s", item.DistanceText, item.ID)
		}
	}

	close(release)
	var firstResult passResult
	select {
	case firstResult = <-firstDone:
	case <-time.After(2 * time.Second):
		t.Fatal("first pass never finished")
	}
	if !errors.Is(firstResult.err, ErrSuperseded) {
		t.Fatalf("expected first pass to be superseded, got %v", firstResult.err)
	}
	if firstResult.places != nil {
		t.Fatal("superseded pass must not return places")
	}

	if enricher.Generation() != secondGeneration {
		t.Fatalf("expected current generation %d, got %d", secondGeneration, enricher.Generation())
	}
	committed := false
	if enricher.CommitIfCurrent(firstResult.generation, func() { committed = true }) || committed {
		t.Fatal("stale generation must not commit")
	}
	if !enricher.CommitIfCurrent(secondGeneration, func() { committed = true }) || !committed {
		t.Fatal("current generation must commit")
	}
}

func TestDistanceAdvanceCancelsPassInFlight(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	fake := &fakePlaces{distanceFn: func(ctx context.Context, origin, destination domain.Coordinate) (domain.Distance, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return domain.Distance{}, ctx.Err()
	}}
	enricher := NewDistanceEnricher(fake, DistanceOptions{})

	done := make(chan error, 1)
	go func() {
		_, err := enricher.Enrich(context.Background(), []domain.Place{testPlace("A", "A", 1, 1)}, domain.Coordinate{})
		done <- err
	}()
	<-started
	enricher.Advance()

	select {
	case err := <-done:
		if !errors.Is(err, ErrSuperseded) {
			t.Fatalf("expected ErrSuperseded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("advance did not cancel the running pass")
	}
}
