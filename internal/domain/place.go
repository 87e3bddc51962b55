package domain

import "math"

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lng) || math.IsInf(c.Lng, 0) {
		return ErrInvalidCoordinate
	}
	if c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
		return ErrInvalidCoordinate
	}
	return nil
}

type PhotoRef struct {
	Reference string `json:"reference"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

type Review struct {
	Author string `json:"author"`
	// Rating is nil when the reviewer left only text.
	Rating *int   `json:"rating,omitempty"`
	Text   string `json:"text,omitempty"`
	Time   int64  `json:"time,omitempty"`
}

type Place struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Address          string     `json:"address,omitempty"`
	Location         Coordinate `json:"location"`
	Categories       []string   `json:"categories,omitempty"`
	Types            []string   `json:"types,omitempty"`
	Rating           float64    `json:"rating,omitempty"`
	UserRatingsTotal int        `json:"userRatingsTotal,omitempty"`
	Photos           []PhotoRef `json:"photos,omitempty"`

	DistanceText   string `json:"distanceText,omitempty"`
	DistanceMeters int    `json:"distanceMeters,omitempty"`

	Phone         string   `json:"phone,omitempty"`
	OpeningHours  []string `json:"openingHours,omitempty"`
	OpenNow       *bool    `json:"openNow,omitempty"`
	Website       string   `json:"website,omitempty"`
	Reviews       []Review `json:"reviews,omitempty"`
	DetailsLoaded bool     `json:"detailsLoaded,omitempty"`
}

// SameAs reports whether both records denote the same real-world place.
func (p Place) SameAs(other Place) bool {
	return p.ID != "" && p.ID == other.ID
}

// HasCategory reports whether name is already among the place's category tags.
func (p Place) HasCategory(name string) bool {
	for _, existing := range p.Categories {
		if existing == name {
			return true
		}
	}
	return false
}

// AddCategories appends tags not yet present, keeping first-contribution order.
func (p *Place) AddCategories(names ...string) {
	for _, name := range names {
		if name == "" || p.HasCategory(name) {
			continue
		}
		p.Categories = append(p.Categories, name)
	}
}

// MergeDetails copies detail fields from a fully fetched record. Identity,
// search fields and distance annotation of p are left untouched.
func (p *Place) MergeDetails(details Place) {
	if details.Phone != "" {
		p.Phone = details.Phone
	}
	if len(details.OpeningHours) > 0 {
		p.OpeningHours = append([]string(nil), details.OpeningHours...)
	}
	if details.OpenNow != nil {
		openNow := *details.OpenNow
		p.OpenNow = &openNow
	}
	if len(details.Reviews) > 0 {
		p.Reviews = append([]Review(nil), details.Reviews...)
	}
	if len(details.Photos) > 0 {
		p.Photos = append([]PhotoRef(nil), details.Photos...)
	}
	if details.Website != "" {
		p.Website = details.Website
	}
	if p.Address == "" {
		p.Address = details.Address
	}
	p.DetailsLoaded = true
}

// Clone returns a deep copy so working lists never share slices with caches.
func (p Place) Clone() Place {
	out := p
	out.Categories = append([]string(nil), p.Categories...)
	out.Types = append([]string(nil), p.Types...)
	out.Photos = append([]PhotoRef(nil), p.Photos...)
	out.OpeningHours = append([]string(nil), p.OpeningHours...)
	out.Reviews = append([]Review(nil), p.Reviews...)
	if p.OpenNow != nil {
		openNow := *p.OpenNow
		out.OpenNow = &openNow
	}
	return out
}

func ClonePlaces(places []Place) []Place {
	if places == nil {
		return nil
	}
	out := make([]Place, len(places))
	for i, place := range places {
		out[i] = place.Clone()
	}
	return out
}
