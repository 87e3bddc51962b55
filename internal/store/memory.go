package store

import (
	"context"
	"strings"
	"sync"

	"fitspot/placesearch/internal/domain"
)

type ownerRecords struct {
	favorites     map[string]domain.Place
	favoriteOrder []string
	recents       []domain.Place
	history       []domain.HistoryEntry
}

// MemoryStore keeps records for the life of the process.
type MemoryStore struct {
	mu         sync.Mutex
	owners     map[string]*ownerRecords
	recentsMax int
	historyMax int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		owners:     make(map[string]*ownerRecords),
		recentsMax: DefaultRecentsMax,
		historyMax: DefaultHistoryMax,
	}
}

func (m *MemoryStore) recordsLocked(owner string) *ownerRecords {
	owner = NormalizeOwner(owner)
	records := m.owners[owner]
	if records == nil {
		records = &ownerRecords{favorites: make(map[string]domain.Place)}
		m.owners[owner] = records
	}
	return records
}

// ListFavorites returns favorites newest first.
func (m *MemoryStore) ListFavorites(_ context.Context, owner string) ([]domain.Place, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.recordsLocked(owner)
	items := make([]domain.Place, 0, len(records.favoriteOrder))
	for i := len(records.favoriteOrder) - 1; i >= 0; i-- {
		items = append(items, records.favorites[records.favoriteOrder[i]].Clone())
	}
	return items, nil
}

func (m *MemoryStore) SaveFavorite(_ context.Context, owner string, place domain.Place) error {
	if strings.TrimSpace(place.ID) == "" {
		return ErrInvalidPlace
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.recordsLocked(owner)
	if _, exists := records.favorites[place.ID]; !exists {
		records.favoriteOrder = append(records.favoriteOrder, place.ID)
	}
	records.favorites[place.ID] = storedPlace(place)
	return nil
}

func (m *MemoryStore) RemoveFavorite(_ context.Context, owner, placeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.recordsLocked(owner)
	if _, exists := records.favorites[placeID]; !exists {
		return nil
	}
	delete(records.favorites, placeID)
	for i, id := range records.favoriteOrder {
		if id == placeID {
			records.favoriteOrder = append(records.favoriteOrder[:i], records.favoriteOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) IsFavorite(_ context.Context, owner, placeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.recordsLocked(owner).favorites[placeID]
	return exists, nil
}

// ListRecents returns recently viewed places, most recent first.
func (m *MemoryStore) ListRecents(_ context.Context, owner string, limit int) ([]domain.Place, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.recordsLocked(owner)
	limit = clampLimit(limit, len(records.recents))
	return domain.ClonePlaces(records.recents[:limit]), nil
}

// AddRecent moves place to the front, dropping the oldest entries past the cap.
func (m *MemoryStore) AddRecent(_ context.Context, owner string, place domain.Place) error {
	if strings.TrimSpace(place.ID) == "" {
		return ErrInvalidPlace
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.recordsLocked(owner)
	recents := make([]domain.Place, 0, len(records.recents)+1)
	recents = append(recents, storedPlace(place))
	for _, existing := range records.recents {
		if existing.ID != place.ID {
			recents = append(recents, existing)
		}
	}
	if len(recents) > m.recentsMax {
		recents = recents[:m.recentsMax]
	}
	records.recents = recents
	return nil
}

func (m *MemoryStore) ListHistory(_ context.Context, owner string, limit int) ([]domain.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.recordsLocked(owner)
	limit = clampLimit(limit, len(records.history))
	items := make([]domain.HistoryEntry, limit)
	copy(items, records.history[:limit])
	return items, nil
}

func (m *MemoryStore) AddHistory(_ context.Context, owner string, entry domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.recordsLocked(owner)
	history := make([]domain.HistoryEntry, 0, len(records.history)+1)
	history = append(history, entry)
	history = append(history, records.history...)
	if len(history) > m.historyMax {
		history = history[:m.historyMax]
	}
	records.history = history
	return nil
}
