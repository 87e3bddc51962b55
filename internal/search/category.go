package search

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"fitspot/placesearch/internal/domain"
)

var ErrUnknownCategory = errors.New("unknown category")

const DefaultCategoryName = "gym"

var builtinCategories = []domain.CategoryFilter{
	{Name: "gym", Label: "Gyms", Type: "gym", Keyword: "gym"},
	{Name: "pilates", Label: "Pilates studios", Type: "gym", Keyword: "pilates"},
	{Name: "yoga", Label: "Yoga studios", Type: "gym", Keyword: "yoga"},
	{Name: "pool", Label: "Swimming pools", Keyword: "swimming pool"},
	{Name: "crossfit", Label: "CrossFit boxes", Type: "gym", Keyword: "crossfit"},
	{Name: "climbing", Label: "Climbing gyms", Keyword: "climbing gym"},
	{Name: "martial_arts", Label: "Martial arts", Keyword: "martial arts"},
	{Name: "boxing", Label: "Boxing clubs", Type: "gym", Keyword: "boxing"},
	{Name: "dance", Label: "Dance studios", Keyword: "dance studio"},
	{Name: "spa", Label: "Spas", Type: "spa", Keyword: "spa"},
}

var builtinAliases = map[string]string{
	"fitness":        "gym",
	"fitness_center": "gym",
	"swimming":       "pool",
	"swimming_pool":  "pool",
	"bouldering":     "climbing",
	"mma":            "martial_arts",
	"karate":         "martial_arts",
	"judo":           "martial_arts",
}

// NormalizeCategoryName folds case and width so "Pilates", "ＰＩＬＡＴＥＳ" and
// "pilates " resolve to the same vocabulary entry.
func NormalizeCategoryName(raw string) string {
	value := norm.NFKC.String(strings.TrimSpace(raw))
	value = cases.Fold().String(value)
	value = strings.Join(strings.FieldsFunc(value, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '\t'
	}), "_")
	return value
}

// Vocabulary maps logical category names onto provider filters.
type Vocabulary struct {
	filters     map[string]domain.CategoryFilter
	order       []string
	aliases     map[string]string
	defaultName string
}

func DefaultVocabulary() *Vocabulary {
	v, _ := NewVocabulary(builtinCategories, builtinAliases, DefaultCategoryName)
	return v
}

func NewVocabulary(filters []domain.CategoryFilter, aliases map[string]string, defaultName string) (*Vocabulary, error) {
	v := &Vocabulary{
		filters: make(map[string]domain.CategoryFilter, len(filters)),
		aliases: make(map[string]string, len(aliases)),
	}
	for _, filter := range filters {
		v.put(filter)
	}
	for alias, target := range aliases {
		v.aliases[NormalizeCategoryName(alias)] = NormalizeCategoryName(target)
	}
	name := NormalizeCategoryName(defaultName)
	if _, ok := v.lookup(name); !ok {
		return nil, fmt.Errorf("%w: default %q", ErrUnknownCategory, defaultName)
	}
	v.defaultName = name
	return v, nil
}

// WithOverrides returns a copy where the given filters replace or extend entries.
func (v *Vocabulary) WithOverrides(filters []domain.CategoryFilter, defaultName string) (*Vocabulary, error) {
	all := v.Filters()
	all = append(all, filters...)
	if strings.TrimSpace(defaultName) == "" {
		defaultName = v.defaultName
	}
	return NewVocabulary(all, v.aliases, defaultName)
}

func (v *Vocabulary) put(filter domain.CategoryFilter) {
	name := NormalizeCategoryName(filter.Name)
	if name == "" {
		return
	}
	filter.Name = name
	if filter.Label == "" {
		filter.Label = name
	}
	if _, exists := v.filters[name]; !exists {
		v.order = append(v.order, name)
	}
	v.filters[name] = filter
}

func (v *Vocabulary) lookup(name string) (domain.CategoryFilter, bool) {
	if filter, ok := v.filters[name]; ok {
		return filter, true
	}
	if target, ok := v.aliases[name]; ok {
		filter, ok := v.filters[target]
		return filter, ok
	}
	return domain.CategoryFilter{}, false
}

func (v *Vocabulary) Default() domain.CategoryFilter {
	filter, _ := v.lookup(v.defaultName)
	return filter
}

func (v *Vocabulary) Filters() []domain.CategoryFilter {
	items := make([]domain.CategoryFilter, 0, len(v.order))
	for _, name := range v.order {
		items = append(items, v.filters[name])
	}
	return items
}

// Resolve maps requested names to filters in declaration order. Repeats collapse
// onto their first position; an empty request yields the default category.
func (v *Vocabulary) Resolve(names []string) ([]domain.CategoryFilter, error) {
	resolved := make([]domain.CategoryFilter, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := NormalizeCategoryName(raw)
		if name == "" {
			continue
		}
		filter, ok := v.lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, strings.TrimSpace(raw))
		}
		if _, exists := seen[filter.Name]; exists {
			continue
		}
		seen[filter.Name] = struct{}{}
		resolved = append(resolved, filter)
	}
	if len(resolved) == 0 {
		resolved = append(resolved, v.Default())
	}
	return resolved, nil
}
