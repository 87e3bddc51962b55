package search

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"fitspot/placesearch/internal/domain"
)

// expandedQueryForCategory combines the user's text with the category keyword.
// An empty query falls back to the keyword alone.
func expandedQueryForCategory(query string, filter domain.CategoryFilter) string {
	base := strings.Join(strings.Fields(query), " ")
	keyword := strings.TrimSpace(filter.Keyword)
	if base == "" {
		return keyword
	}
	if keyword == "" || containsAllTokens(base, keyword) {
		return base
	}
	return base + " " + keyword
}

func containsAllTokens(input, tokens string) bool {
	have := make(map[string]struct{})
	for _, token := range foldedTokens(input) {
		have[token] = struct{}{}
	}
	for _, token := range foldedTokens(tokens) {
		if _, ok := have[token]; !ok {
			return false
		}
	}
	return true
}

func foldedTokens(input string) []string {
	value := cases.Fold().String(norm.NFKC.String(input))
	return strings.Fields(value)
}

func nearbyQueryFor(query string, filter domain.CategoryFilter, center domain.Coordinate, radius int) domain.NearbyQuery {
	return domain.NearbyQuery{
		Center:       center,
		RadiusMeters: radius,
		Keyword:      expandedQueryForCategory(query, filter),
		Type:         filter.Type,
	}
}

func textQueryFor(query string, filter domain.CategoryFilter) domain.TextQuery {
	return domain.TextQuery{
		Query: expandedQueryForCategory(query, filter),
		Type:  filter.Type,
	}
}
