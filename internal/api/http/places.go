package apihttp

import (
	"log/slog"
	"net/http"
	"strings"

	"fitspot/placesearch/internal/domain"
)

const defaultListLimit = 20

func (s *Server) placesReady(w http.ResponseWriter) bool {
	if s.places == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "place lookups are not configured")
		return false
	}
	return true
}

func (s *Server) libraryReady(w http.ResponseWriter) bool {
	if s.library == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "library is not configured")
		return false
	}
	return true
}

func (s *Server) handlePlaceDetails(w http.ResponseWriter, r *http.Request) {
	if !s.placesReady(w) {
		return
	}
	placeID := strings.TrimSpace(r.PathValue("id"))
	if placeID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing place id")
		return
	}
	place, err := s.places.Details(r.Context(), deviceOwner(r), placeID)
	if err != nil {
		s.writeServiceError(w, err, "details failed")
		return
	}
	writeJSON(w, http.StatusOK, place)
}

func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	if !s.placesReady(w) {
		return
	}
	input := strings.TrimSpace(r.URL.Query().Get("input"))
	if input == "" {
		input = strings.TrimSpace(r.URL.Query().Get("q"))
	}
	if input == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing query")
		return
	}
	bias, err := parseBias(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	limit, err := parsePositiveInt(r, "limit", 8)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}
	if limit > 20 {
		limit = 20
	}

	suggestions, err := s.places.Suggest(r.Context(), input, bias)
	if err != nil {
		// Suggestions are best-effort; the search box keeps working without them.
		s.logger.Debug("autocomplete failed",
			slog.String("input", truncate(input, 80)),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusOK, map[string]any{"query": input, "items": []string{}})
		return
	}
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": input, "items": suggestions})
}

func (s *Server) handleFavorites(w http.ResponseWriter, r *http.Request) {
	if !s.libraryReady(w) {
		return
	}
	origin, err := parseCoordinate(r.URL.Query().Get("lat"), r.URL.Query().Get("lng"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid origin")
		return
	}
	items, err := s.library.Favorites(r.Context(), deviceOwner(r), origin)
	if err != nil {
		s.writeServiceError(w, err, "favorites failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNilPlaces(items)})
}

func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	if !s.libraryReady(w) {
		return
	}
	placeID := strings.TrimSpace(r.PathValue("id"))
	if placeID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing place id")
		return
	}
	place, err := s.library.AddFavorite(r.Context(), deviceOwner(r), placeID)
	if err != nil {
		s.writeServiceError(w, err, "save favorite failed")
		return
	}
	writeJSON(w, http.StatusOK, place)
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	if !s.libraryReady(w) {
		return
	}
	placeID := strings.TrimSpace(r.PathValue("id"))
	if err := s.library.RemoveFavorite(r.Context(), deviceOwner(r), placeID); err != nil {
		s.writeServiceError(w, err, "remove favorite failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecents(w http.ResponseWriter, r *http.Request) {
	if !s.libraryReady(w) {
		return
	}
	limit, err := parsePositiveInt(r, "limit", defaultListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}
	origin, err := parseCoordinate(r.URL.Query().Get("lat"), r.URL.Query().Get("lng"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid origin")
		return
	}
	items, err := s.library.Recents(r.Context(), deviceOwner(r), limit, origin)
	if err != nil {
		s.writeServiceError(w, err, "recents failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNilPlaces(items)})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.libraryReady(w) {
		return
	}
	limit, err := parsePositiveInt(r, "limit", defaultListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}
	items, err := s.library.History(r.Context(), deviceOwner(r), limit)
	if err != nil {
		s.writeServiceError(w, err, "history failed")
		return
	}
	if items == nil {
		items = []domain.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func nonNilPlaces(items []domain.Place) []domain.Place {
	if items == nil {
		return []domain.Place{}
	}
	return items
}
