// Package store persists per-device favorites, recently viewed places and search history.
package store

import (
	"context"
	"errors"
	"strings"

	"fitspot/placesearch/internal/domain"
)

const (
	DefaultOwner      = "anonymous"
	DefaultRecentsMax = 50
	DefaultHistoryMax = 100
)

var ErrInvalidPlace = errors.New("place identifier is required")

// LocalStore is the record store for favorites, recents and search history.
type LocalStore interface {
	ListFavorites(ctx context.Context, owner string) ([]domain.Place, error)
	SaveFavorite(ctx context.Context, owner string, place domain.Place) error
	RemoveFavorite(ctx context.Context, owner, placeID string) error
	IsFavorite(ctx context.Context, owner, placeID string) (bool, error)

	ListRecents(ctx context.Context, owner string, limit int) ([]domain.Place, error)
	AddRecent(ctx context.Context, owner string, place domain.Place) error

	ListHistory(ctx context.Context, owner string, limit int) ([]domain.HistoryEntry, error)
	AddHistory(ctx context.Context, owner string, entry domain.HistoryEntry) error
}

// NormalizeOwner maps an empty owner onto DefaultOwner.
func NormalizeOwner(owner string) string {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return DefaultOwner
	}
	return owner
}

// storedPlace strips per-request annotations before a place is persisted.
func storedPlace(place domain.Place) domain.Place {
	out := place.Clone()
	out.DistanceText = ""
	out.DistanceMeters = 0
	return out
}

func clampLimit(limit, ceiling int) int {
	if limit <= 0 || limit > ceiling {
		return ceiling
	}
	return limit
}
