package search

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"fitspot/placesearch/internal/domain"
	"fitspot/placesearch/internal/store"
)

var (
	ErrInvalidQuery        = errors.New("query is required")
	ErrAllCategoriesFailed = errors.New("all category searches failed")
	ErrSessionNotFound     = errors.New("search session not found")
	ErrNoProvider          = errors.New("no places provider configured")
	ErrNoStore             = errors.New("no local store configured")
)

// PlacesProvider is the upstream Places capability. Every operation is a single
// fallible request/response call.
type PlacesProvider interface {
	TextSearch(ctx context.Context, query domain.TextQuery) ([]domain.Place, error)
	NearbySearch(ctx context.Context, query domain.NearbyQuery) ([]domain.Place, error)
	Details(ctx context.Context, placeID string, fields []string) (domain.Place, error)
	Distance(ctx context.Context, origin, destination domain.Coordinate, mode domain.TravelMode) (domain.Distance, error)
	Autocomplete(ctx context.Context, input string, bias *domain.GeoBias) ([]string, error)
	Photo(ctx context.Context, reference string, maxWidth int) (domain.Photo, error)
}

// DefaultDetailFields is the field mask used for detail enrichment.
var DefaultDetailFields = []string{
	"place_id",
	"name",
	"formatted_address",
	"geometry",
	"formatted_phone_number",
	"opening_hours",
	"photos",
	"reviews",
	"website",
	"rating",
	"user_ratings_total",
}

const (
	defaultMaxInFlight    = 8
	defaultSearchRadius   = 5000
	defaultSessionIdleTTL = 30 * time.Minute
)

type Service struct {
	provider      *guardedProvider
	timeout       time.Duration
	vocabulary    *Vocabulary
	cache         ResultCache
	store         store.LocalStore
	maxInFlight   int
	travelMode    domain.TravelMode
	straightLine  bool
	defaultRadius int
	detailFields  []string
	guardCfg      guardConfig
	sessions      *sessionRegistry
	sessionTTL    time.Duration
	janitorRun    atomic.Bool
}

type ServiceOption func(*Service)

func WithVocabulary(vocabulary *Vocabulary) ServiceOption {
	return func(s *Service) {
		if vocabulary != nil {
			s.vocabulary = vocabulary
		}
	}
}

func WithResultCache(cache ResultCache) ServiceOption {
	return func(s *Service) {
		if cache != nil {
			s.cache = cache
		}
	}
}

func WithLocalStore(localStore store.LocalStore) ServiceOption {
	return func(s *Service) {
		s.store = localStore
	}
}

func WithMaxInFlight(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxInFlight = n
		}
	}
}

func WithTravelMode(mode domain.TravelMode) ServiceOption {
	return func(s *Service) {
		s.travelMode = domain.NormalizeTravelMode(string(mode))
	}
}

// WithStraightLineFallback fills unknown distances with the great-circle distance.
func WithStraightLineFallback(enabled bool) ServiceOption {
	return func(s *Service) {
		s.straightLine = enabled
	}
}

func WithDefaultRadius(meters int) ServiceOption {
	return func(s *Service) {
		if meters > 0 {
			s.defaultRadius = meters
		}
	}
}

func WithDetailFields(fields []string) ServiceOption {
	return func(s *Service) {
		if len(fields) > 0 {
			s.detailFields = append([]string(nil), fields...)
		}
	}
}

func WithRetryConfig(cfg RetryConfig) ServiceOption {
	return func(s *Service) {
		s.guardCfg.retry = cfg
	}
}

func WithProviderRateLimit(rps float64, burst int) ServiceOption {
	return func(s *Service) {
		s.guardCfg.rps = rps
		s.guardCfg.burst = burst
	}
}

func WithCircuitBreaker(enabled bool) ServiceOption {
	return func(s *Service) {
		s.guardCfg.breaker = enabled
	}
}

func WithSessionIdleTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

func NewService(provider PlacesProvider, timeout time.Duration, opts ...ServiceOption) *Service {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	svc := &Service{
		timeout:       timeout,
		vocabulary:    DefaultVocabulary(),
		cache:         NewMemoryResultCache(0),
		maxInFlight:   defaultMaxInFlight,
		travelMode:    domain.TravelModeDriving,
		defaultRadius: defaultSearchRadius,
		detailFields:  DefaultDetailFields,
		guardCfg: guardConfig{
			retry:   DefaultRetryConfig(),
			breaker: true,
		},
		sessionTTL: defaultSessionIdleTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if provider != nil {
		svc.provider = newGuardedProvider(provider, svc.guardCfg)
	}
	svc.sessions = newSessionRegistry(svc.sessionTTL)
	return svc
}

// StartBackground runs the idle session janitor until ctx is done.
func (s *Service) StartBackground(ctx context.Context) {
	if s.janitorRun.CompareAndSwap(false, true) {
		go s.runJanitor(ctx)
	}
}

func (s *Service) Categories() []domain.CategoryFilter {
	return s.vocabulary.Filters()
}

func (s *Service) DefaultCategory() domain.CategoryFilter {
	return s.vocabulary.Default()
}

func (s *Service) ProviderDiagnostics() []domain.ProviderDiagnostics {
	if s.provider == nil {
		return nil
	}
	return s.provider.diagnostics()
}

func (s *Service) newAggregator() *Aggregator {
	return NewAggregator(s.provider, s.vocabulary, s.defaultRadius)
}

func (s *Service) newDistanceEnricher() *DistanceEnricher {
	return NewDistanceEnricher(s.provider, DistanceOptions{
		MaxInFlight:  s.maxInFlight,
		Mode:         s.travelMode,
		StraightLine: s.straightLine,
	})
}

func (s *Service) newDetailEnricher() *DetailEnricher {
	return NewDetailEnricher(s.provider, s.cache, s.maxInFlight, s.detailFields)
}
