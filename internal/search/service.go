package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"fitspot/placesearch/internal/domain"
	"fitspot/placesearch/internal/store"
)

const (
	maxAutocompleteInput = 200
	defaultPhotoMaxWidth = 800
	maxPhotoWidth        = 1600
)

func (s *Service) pipeline() *Pipeline {
	p := NewPipeline(s.newAggregator(), s.newDetailEnricher(), s.timeout)
	p.onFinal = s.recordHistory
	return p
}

// Search runs the full pipeline and returns the enriched snapshot.
func (s *Service) Search(ctx context.Context, request domain.SearchRequest) (domain.SearchSnapshot, error) {
	if s.provider == nil {
		return domain.SearchSnapshot{}, ErrNoProvider
	}
	session := s.sessions.acquire(request.SessionID, s.newDistanceEnricher)
	return s.pipeline().Execute(ctx, session, request)
}

// SearchStream runs the pipeline in the background and emits both stages.
func (s *Service) SearchStream(ctx context.Context, request domain.SearchRequest) <-chan domain.SearchSnapshot {
	if s.provider == nil {
		ch := make(chan domain.SearchSnapshot, 1)
		ch <- domain.SearchSnapshot{Query: request.Query, Final: true, Items: []domain.Place{}, Error: ErrNoProvider.Error()}
		close(ch)
		return ch
	}
	session := s.sessions.acquire(request.SessionID, s.newDistanceEnricher)
	return s.pipeline().Stream(ctx, session, request)
}

// Relocate recomputes distances of a session's latest list for a new origin.
// Only the newest pass of the session publishes its result.
func (s *Service) Relocate(ctx context.Context, sessionID string, origin domain.Coordinate) (domain.SearchSnapshot, error) {
	if s.provider == nil {
		return domain.SearchSnapshot{}, ErrNoProvider
	}
	session, ok := s.sessions.get(sessionID)
	if !ok {
		return domain.SearchSnapshot{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	startedAt := time.Now()
	current, _ := session.Places()
	places, generation, err := session.enricher.EnrichTagged(ctx, current, origin)
	if err != nil {
		return domain.SearchSnapshot{}, err
	}
	places = s.newDetailEnricher().Enrich(ctx, places)

	query := session.Query()
	if !session.enricher.CommitIfCurrent(generation, func() {
		session.publish(query, places, &origin)
	}) {
		return domain.SearchSnapshot{}, ErrSuperseded
	}
	return domain.SearchSnapshot{
		SessionID: session.ID,
		Query:     query,
		Stage:     domain.StageEnriched,
		Items:     places,
		Origin:    &origin,
		ElapsedMS: time.Since(startedAt).Milliseconds(),
		Final:     true,
	}, nil
}

// Details returns the cache-checked detailed record and remembers it as recently viewed.
func (s *Service) Details(ctx context.Context, owner, placeID string) (domain.Place, error) {
	if s.provider == nil {
		return domain.Place{}, ErrNoProvider
	}
	place, err := s.newDetailEnricher().Fetch(ctx, placeID)
	if err != nil {
		return domain.Place{}, err
	}
	if s.store != nil {
		if err := s.store.AddRecent(ctx, owner, place); err != nil {
			slog.Warn("recent place not recorded",
				slog.String("placeId", place.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return place, nil
}

func (s *Service) Suggest(ctx context.Context, input string, bias *domain.GeoBias) ([]string, error) {
	if s.provider == nil {
		return nil, ErrNoProvider
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrInvalidQuery
	}
	if len(input) > maxAutocompleteInput {
		cut := maxAutocompleteInput
		for cut > 0 && !utf8.RuneStart(input[cut]) {
			cut--
		}
		input = input[:cut]
	}
	suggestions, err := s.provider.Autocomplete(ctx, input, bias)
	if err != nil {
		return nil, err
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	return suggestions, nil
}

func (s *Service) Photo(ctx context.Context, reference string, maxWidth int) (domain.Photo, error) {
	if s.provider == nil {
		return domain.Photo{}, ErrNoProvider
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.Photo{}, domain.ErrPhotoUnavailable
	}
	if maxWidth <= 0 {
		maxWidth = defaultPhotoMaxWidth
	}
	if maxWidth > maxPhotoWidth {
		maxWidth = maxPhotoWidth
	}
	return s.provider.Photo(ctx, reference, maxWidth)
}

// EnrichSaved runs the distance and detail stages over stored places. Without an
// origin the stored order and fields come back with details refreshed.
func (s *Service) EnrichSaved(ctx context.Context, places []domain.Place, origin *domain.Coordinate) ([]domain.Place, error) {
	if s.provider == nil {
		return places, nil
	}
	out := domain.ClonePlaces(places)
	if origin != nil {
		var err error
		out, err = s.newDistanceEnricher().Enrich(ctx, out, *origin)
		if err != nil {
			return nil, err
		}
	}
	return s.newDetailEnricher().Enrich(ctx, out), nil
}

func (s *Service) Favorites(ctx context.Context, owner string, origin *domain.Coordinate) ([]domain.Place, error) {
	if s.store == nil {
		return []domain.Place{}, nil
	}
	places, err := s.store.ListFavorites(ctx, owner)
	if err != nil {
		return nil, err
	}
	return s.EnrichSaved(ctx, places, origin)
}

// AddFavorite stores the detailed record of placeID.
func (s *Service) AddFavorite(ctx context.Context, owner, placeID string) (domain.Place, error) {
	if s.store == nil {
		return domain.Place{}, ErrNoStore
	}
	if s.provider == nil {
		return domain.Place{}, ErrNoProvider
	}
	place, err := s.newDetailEnricher().Fetch(ctx, placeID)
	if err != nil {
		return domain.Place{}, err
	}
	if err := s.store.SaveFavorite(ctx, owner, place); err != nil {
		return domain.Place{}, err
	}
	return place, nil
}

func (s *Service) RemoveFavorite(ctx context.Context, owner, placeID string) error {
	if s.store == nil {
		return ErrNoStore
	}
	return s.store.RemoveFavorite(ctx, owner, placeID)
}

func (s *Service) Recents(ctx context.Context, owner string, limit int, origin *domain.Coordinate) ([]domain.Place, error) {
	if s.store == nil {
		return []domain.Place{}, nil
	}
	places, err := s.store.ListRecents(ctx, owner, limit)
	if err != nil {
		return nil, err
	}
	return s.EnrichSaved(ctx, places, origin)
}

func (s *Service) History(ctx context.Context, owner string, limit int) ([]domain.HistoryEntry, error) {
	if s.store == nil {
		return []domain.HistoryEntry{}, nil
	}
	return s.store.ListHistory(ctx, owner, limit)
}

func (s *Service) recordHistory(ctx context.Context, request domain.SearchRequest, snapshot domain.SearchSnapshot) {
	if s.store == nil || strings.TrimSpace(request.Query) == "" {
		return
	}
	entry := domain.HistoryEntry{
		Query:      strings.TrimSpace(request.Query),
		Categories: append([]string(nil), request.Categories...),
		Results:    len(snapshot.Items),
		SearchedAt: time.Now().UTC(),
	}
	if err := s.store.AddHistory(context.WithoutCancel(ctx), store.NormalizeOwner(request.Owner), entry); err != nil {
		slog.Warn("search history not recorded",
			slog.String("query", entry.Query),
			slog.String("error", err.Error()),
		)
	}
}
