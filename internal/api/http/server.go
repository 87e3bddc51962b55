package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fitspot/placesearch/internal/domain"
	"fitspot/placesearch/internal/search"
	"fitspot/placesearch/internal/store"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type SearchService interface {
	Search(ctx context.Context, request domain.SearchRequest) (domain.SearchSnapshot, error)
	SearchStream(ctx context.Context, request domain.SearchRequest) <-chan domain.SearchSnapshot
	Relocate(ctx context.Context, sessionID string, origin domain.Coordinate) (domain.SearchSnapshot, error)
	Categories() []domain.CategoryFilter
	DefaultCategory() domain.CategoryFilter
	ProviderDiagnostics() []domain.ProviderDiagnostics
}

type PlaceService interface {
	Details(ctx context.Context, owner, placeID string) (domain.Place, error)
	Suggest(ctx context.Context, input string, bias *domain.GeoBias) ([]string, error)
	Photo(ctx context.Context, reference string, maxWidth int) (domain.Photo, error)
}

type LibraryService interface {
	Favorites(ctx context.Context, owner string, origin *domain.Coordinate) ([]domain.Place, error)
	AddFavorite(ctx context.Context, owner, placeID string) (domain.Place, error)
	RemoveFavorite(ctx context.Context, owner, placeID string) error
	Recents(ctx context.Context, owner string, limit int, origin *domain.Coordinate) ([]domain.Place, error)
	History(ctx context.Context, owner string, limit int) ([]domain.HistoryEntry, error)
}

type Server struct {
	search    SearchService
	places    PlaceService
	library   LibraryService
	logger    *slog.Logger
	rateRPS   float64
	rateBurst int
}

const (
	maxQueryLength = 500
	deviceHeader   = "X-Device-ID"
)

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithPlaces(places PlaceService) ServerOption {
	return func(s *Server) {
		s.places = places
	}
}

func WithLibrary(library LibraryService) ServerOption {
	return func(s *Server) {
		s.library = library
	}
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 && burst > 0 {
			s.rateRPS = rps
			s.rateBurst = burst
		}
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search:    searchService,
		logger:    slog.Default(),
		rateRPS:   50,
		rateBurst: 100,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /search/stream", s.handleSearchStream)
	mux.HandleFunc("POST /search/sessions/{id}/origin", s.handleRelocate)
	mux.HandleFunc("GET /search/categories", s.handleCategories)
	mux.HandleFunc("GET /search/providers/health", s.handleProvidersHealth)
	mux.HandleFunc("GET /places/autocomplete", s.handleAutocomplete)
	mux.HandleFunc("GET /places/photo", s.handlePhoto)
	mux.HandleFunc("GET /places/{id}", s.handlePlaceDetails)
	mux.HandleFunc("GET /favorites", s.handleFavorites)
	mux.HandleFunc("PUT /favorites/{id}", s.handleAddFavorite)
	mux.HandleFunc("DELETE /favorites/{id}", s.handleRemoveFavorite)
	mux.HandleFunc("GET /recents", s.handleRecents)
	mux.HandleFunc("GET /history", s.handleHistory)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "place-search",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(s.rateRPS, s.rateBurst, metricsMiddleware(traced)))
}

func (s *Server) searchReady(w http.ResponseWriter) bool {
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !s.searchReady(w) {
		return
	}
	request, err := parseSearchRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	snapshot, err := s.search.Search(r.Context(), request)
	if err != nil {
		s.logger.Warn("search request failed",
			slog.String("query", truncate(request.Query, 80)),
			slog.Any("categories", request.Categories),
			slog.String("error", err.Error()),
		)
		s.writeServiceError(w, err, "search failed")
		return
	}

	failedCategories := make([]string, 0, len(snapshot.Categories))
	for _, status := range snapshot.Categories {
		if !status.OK {
			failedCategories = append(failedCategories, status.Name)
		}
	}
	if len(failedCategories) > 0 {
		s.logger.Warn("search categories partially failed",
			slog.String("query", truncate(request.Query, 80)),
			slog.Any("failedCategories", failedCategories),
		)
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	if !s.searchReady(w) {
		return
	}
	stream, ok := openEventStream(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming is not supported")
		return
	}
	request, err := parseSearchRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if request.SessionID == "" {
		request.SessionID = uuid.NewString()
	}

	stream.start()
	if stream.send("bootstrap", map[string]any{
		"phase":     "bootstrap",
		"final":     false,
		"query":     request.Query,
		"sessionId": request.SessionID,
		"status":    "started",
	}) != nil {
		return
	}
	for snapshot := range s.search.SearchStream(r.Context(), request) {
		if r.Context().Err() != nil {
			return
		}
		if snapshot.Error != "" {
			_ = stream.send("error", map[string]any{
				"message":    snapshot.Error,
				"categories": snapshot.Categories,
			})
			break
		}
		if stream.send("update", snapshot) != nil {
			return
		}
	}
	_ = stream.send("done", map[string]any{"final": true})
}

func (s *Server) handleRelocate(w http.ResponseWriter, r *http.Request) {
	if !s.searchReady(w) {
		return
	}
	var origin domain.Coordinate
	if err := decodeJSONBody(r, &origin); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := origin.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sessionID := r.PathValue("id")
	snapshot, err := s.search.Relocate(r.Context(), sessionID, origin)
	if err != nil {
		s.writeServiceError(w, err, "relocate failed")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	if !s.searchReady(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":   s.search.Categories(),
		"default": s.search.DefaultCategory().Name,
	})
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, _ *http.Request) {
	if !s.searchReady(w) {
		return
	}
	items := s.search.ProviderDiagnostics()
	if items == nil {
		items = []domain.ProviderDiagnostics{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     items,
	})
}

// writeServiceError maps service errors onto HTTP statuses. Unknown errors are
// reported as a generic 500 with fallback as the message.
func (s *Server) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, search.ErrInvalidQuery),
		errors.Is(err, search.ErrUnknownCategory),
		errors.Is(err, domain.ErrInvalidCoordinate),
		errors.Is(err, store.ErrInvalidPlace):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, search.ErrSessionNotFound),
		errors.Is(err, domain.ErrPlaceNotFound),
		errors.Is(err, domain.ErrPhotoUnavailable):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, search.ErrSuperseded):
		writeError(w, http.StatusConflict, "superseded", "a newer request replaced this one")
	case errors.Is(err, search.ErrNoProvider), errors.Is(err, search.ErrNoStore):
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", "upstream timed out")
	case errors.Is(err, search.ErrAllCategoriesFailed),
		errors.Is(err, domain.ErrProviderUnavailable),
		errors.Is(err, domain.ErrDecodeFailure):
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
	default:
		s.logger.Error("request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", fallback)
	}
}

func parseSearchRequest(r *http.Request) (domain.SearchRequest, error) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if len(query) > maxQueryLength {
		return domain.SearchRequest{}, fmt.Errorf("query too long (max %d characters)", maxQueryLength)
	}
	origin, err := parseCoordinate(q.Get("lat"), q.Get("lng"))
	if err != nil {
		return domain.SearchRequest{}, fmt.Errorf("invalid origin: %w", err)
	}
	bias, err := parseBias(r)
	if err != nil {
		return domain.SearchRequest{}, err
	}
	return domain.SearchRequest{
		Query:      query,
		Categories: parseCSV(q.Get("categories")),
		Bias:       bias,
		Origin:     origin,
		SessionID:  strings.TrimSpace(q.Get("session")),
		Owner:      deviceOwner(r),
	}, nil
}

// parseBias reads either bounds=swLat,swLng,neLat,neLng or near=lat,lng with an
// optional radius in meters.
func parseBias(r *http.Request) (*domain.GeoBias, error) {
	q := r.URL.Query()
	if raw := strings.TrimSpace(q.Get("bounds")); raw != "" {
		values, err := parseFloats(raw, 4)
		if err != nil {
			return nil, errors.New("invalid bounds")
		}
		bounds := &domain.Bounds{
			SouthWest: domain.Coordinate{Lat: values[0], Lng: values[1]},
			NorthEast: domain.Coordinate{Lat: values[2], Lng: values[3]},
		}
		if bounds.SouthWest.Validate() != nil || bounds.NorthEast.Validate() != nil {
			return nil, errors.New("invalid bounds")
		}
		return &domain.GeoBias{Bounds: bounds}, nil
	}
	if raw := strings.TrimSpace(q.Get("near")); raw != "" {
		values, err := parseFloats(raw, 2)
		if err != nil {
			return nil, errors.New("invalid near")
		}
		center := domain.Coordinate{Lat: values[0], Lng: values[1]}
		if center.Validate() != nil {
			return nil, errors.New("invalid near")
		}
		radius, err := parsePositiveInt(r, "radius", 0)
		if err != nil {
			return nil, errors.New("invalid radius")
		}
		return &domain.GeoBias{Center: &center, RadiusMeters: radius}, nil
	}
	return nil, nil
}

func parseFloats(raw string, want int) ([]float64, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != want {
		return nil, fmt.Errorf("expected %d values", want)
	}
	values := make([]float64, 0, want)
	for _, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

// parseCoordinate returns nil when both parts are absent.
func parseCoordinate(rawLat, rawLng string) (*domain.Coordinate, error) {
	rawLat, rawLng = strings.TrimSpace(rawLat), strings.TrimSpace(rawLng)
	if rawLat == "" && rawLng == "" {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return nil, domain.ErrInvalidCoordinate
	}
	lng, err := strconv.ParseFloat(rawLng, 64)
	if err != nil {
		return nil, domain.ErrInvalidCoordinate
	}
	c := domain.Coordinate{Lat: lat, Lng: lng}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func deviceOwner(r *http.Request) string {
	return store.NormalizeOwner(truncate(r.Header.Get(deviceHeader), 128))
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		value := strings.ToLower(strings.TrimSpace(part))
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return errors.New("request body is required")
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func parsePositiveInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
