package search

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fitspot/placesearch/internal/domain"
)

const janitorInterval = time.Minute

// Session is one logical search view. Its distance enricher tags every pass
// with a generation, so a newer search or origin supersedes older work.
type Session struct {
	ID       string
	enricher *DistanceEnricher

	mu       sync.Mutex
	query    string
	places   []domain.Place
	origin   *domain.Coordinate
	lastUsed time.Time
}

// Places returns a copy of the session's latest published list and its origin.
func (s *Session) Places() ([]domain.Place, *domain.Coordinate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var origin *domain.Coordinate
	if s.origin != nil {
		value := *s.origin
		origin = &value
	}
	return domain.ClonePlaces(s.places), origin
}

func (s *Session) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

func (s *Session) publish(query string, places []domain.Place, origin *domain.Coordinate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = query
	s.places = domain.ClonePlaces(places)
	if origin != nil {
		value := *origin
		s.origin = &value
	} else {
		s.origin = nil
	}
	s.lastUsed = time.Now()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

type sessionRegistry struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*Session
}

func newSessionRegistry(ttl time.Duration) *sessionRegistry {
	if ttl <= 0 {
		ttl = defaultSessionIdleTTL
	}
	return &sessionRegistry{ttl: ttl, sessions: make(map[string]*Session)}
}

// acquire returns the session with id, creating it when missing. An empty id
// gets a fresh random identifier.
func (r *sessionRegistry) acquire(id string, newEnricher func() *DistanceEnricher) *Session {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[id]; ok {
		session.touch(now)
		return session
	}
	session := &Session{ID: id, enricher: newEnricher(), lastUsed: now}
	r.sessions[id] = session
	return session
}

func (r *sessionRegistry) get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[strings.TrimSpace(id)]
	if ok {
		session.touch(time.Now())
	}
	return session, ok
}

func (r *sessionRegistry) evictIdle(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, session := range r.sessions {
		if now.Sub(session.idleSince()) > r.ttl {
			delete(r.sessions, id)
			evicted++
		}
	}
	return evicted
}

func (r *sessionRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (s *Service) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := s.sessions.evictIdle(time.Now()); evicted > 0 {
				slog.Debug("idle search sessions evicted",
					slog.Int("evicted", evicted),
					slog.Int("remaining", s.sessions.len()),
				)
			}
		}
	}
}

// Session looks up a live search session.
func (s *Service) Session(id string) (*Session, bool) {
	return s.sessions.get(id)
}
