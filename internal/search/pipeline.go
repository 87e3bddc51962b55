package search

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fitspot/placesearch/internal/domain"
	"fitspot/placesearch/internal/metrics"
)

var tracer = otel.Tracer("fitspot/placesearch/search")

// Pipeline runs aggregation, distance enrichment and cache-checked detail
// enrichment for one request, publishing two snapshots in the same order: the
// searched list (with distances when an origin is given) and the enriched list.
type Pipeline struct {
	aggregator *Aggregator
	details    *DetailEnricher
	timeout    time.Duration
	onFinal    func(context.Context, domain.SearchRequest, domain.SearchSnapshot)
}

func NewPipeline(aggregator *Aggregator, details *DetailEnricher, timeout time.Duration) *Pipeline {
	return &Pipeline{aggregator: aggregator, details: details, timeout: timeout}
}

// Execute blocks until the enriched list is ready and returns it.
func (p *Pipeline) Execute(ctx context.Context, session *Session, request domain.SearchRequest) (domain.SearchSnapshot, error) {
	return p.run(ctx, session, request, func(domain.SearchSnapshot) bool { return true })
}

// Stream emits the searched snapshot as soon as it exists and the enriched one
// (Final=true) afterwards. A run that fails before its final snapshot ends with
// a Final snapshot carrying Error. A run superseded by a newer one in the same
// session closes the channel without further snapshots.
func (p *Pipeline) Stream(ctx context.Context, session *Session, request domain.SearchRequest) <-chan domain.SearchSnapshot {
	ch := make(chan domain.SearchSnapshot, 2)
	go func() {
		defer close(ch)
		sent := 0
		finalSent := false
		send := func(snapshot domain.SearchSnapshot) bool {
			select {
			case ch <- snapshot:
				sent++
				finalSent = snapshot.Final
				return true
			case <-ctx.Done():
				return false
			}
		}
		_, err := p.run(ctx, session, request, send)
		switch {
		case err == nil || finalSent:
		case errors.Is(err, ErrSuperseded):
			slog.Debug("stream search superseded", slog.String("sessionId", session.ID))
		default:
			failed := domain.SearchSnapshot{
				SessionID: session.ID,
				Query:     request.Query,
				Origin:    request.Origin,
				Stage:     domain.StageSearched,
				Items:     []domain.Place{},
				Final:     true,
				Error:     err.Error(),
			}
			if sent > 0 {
				failed.Stage = domain.StageEnriched
			}
			send(failed)
		}
	}()
	return ch
}

func (p *Pipeline) run(
	ctx context.Context,
	session *Session,
	request domain.SearchRequest,
	emit func(domain.SearchSnapshot) bool,
) (domain.SearchSnapshot, error) {
	if request.Origin != nil {
		if err := request.Origin.Validate(); err != nil {
			return domain.SearchSnapshot{}, err
		}
	}

	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	runCtx, span := tracer.Start(runCtx, "search.pipeline",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("search.session", session.ID),
			attribute.StringSlice("search.categories", request.Categories),
			attribute.Bool("search.origin", request.Origin != nil),
		),
	)
	defer span.End()

	startedAt := time.Now()
	base := domain.SearchSnapshot{
		SessionID: session.ID,
		Query:     request.Query,
		Origin:    request.Origin,
	}

	aggregated, err := p.aggregator.Aggregate(runCtx, request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		failed := base
		failed.Stage = domain.StageSearched
		failed.Items = []domain.Place{}
		failed.Categories = aggregated.Statuses
		failed.Final = true
		failed.Error = err.Error()
		failed.ElapsedMS = time.Since(startedAt).Milliseconds()
		emit(failed)
		return failed, err
	}

	places := aggregated.Places
	var generation uint64
	if request.Origin != nil {
		places, generation, err = session.enricher.EnrichTagged(runCtx, places, *request.Origin)
		if err != nil {
			return domain.SearchSnapshot{}, err
		}
		if err := ctx.Err(); err != nil {
			return domain.SearchSnapshot{}, err
		}
		if runCtx.Err() != nil {
			slog.Warn("distance stage ran out of time",
				slog.String("sessionId", session.ID),
				slog.Int("places", len(places)),
			)
		}
	} else {
		generation = session.enricher.Advance()
	}

	searched := base
	searched.Stage = domain.StageSearched
	searched.Items = places
	searched.Categories = aggregated.Statuses
	searched.ElapsedMS = time.Since(startedAt).Milliseconds()
	if !session.enricher.CommitIfCurrent(generation, func() {
		session.publish(request.Query, places, request.Origin)
	}) {
		return domain.SearchSnapshot{}, ErrSuperseded
	}
	metrics.SearchSnapshotsTotal.WithLabelValues(string(domain.StageSearched)).Inc()
	if !emit(searched) {
		return searched, ctx.Err()
	}

	enriched := p.details.Enrich(runCtx, places)

	final := base
	final.Stage = domain.StageEnriched
	final.Items = enriched
	final.Categories = aggregated.Statuses
	final.Final = true
	final.ElapsedMS = time.Since(startedAt).Milliseconds()
	if !session.enricher.CommitIfCurrent(generation, func() {
		session.publish(request.Query, enriched, request.Origin)
	}) {
		return domain.SearchSnapshot{}, ErrSuperseded
	}
	metrics.SearchSnapshotsTotal.WithLabelValues(string(domain.StageEnriched)).Inc()

	slog.Info("search completed",
		slog.String("sessionId", session.ID),
		slog.String("query", request.Query),
		slog.Int("places", len(enriched)),
		slog.Int("categories", len(aggregated.Statuses)),
		slog.Bool("origin", request.Origin != nil),
		slog.Int64("elapsedMs", final.ElapsedMS),
	)
	if p.onFinal != nil {
		p.onFinal(ctx, request, final)
	}
	emit(final)
	return final, nil
}
