package googleplaces

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"fitspot/placesearch/internal/domain"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewProvider(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Client:  server.Client(),
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return provider
}

func TestNewProviderRequiresAPIKey(t *testing.T) {
	if _, err := NewProvider(Config{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestTextSearchMapsResults(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/maps/api/place/textsearch/json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("query"); got != "gym" {
			t.Errorf("unexpected query: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "OK",
			"results": [
				{
					"place_id": "A",
					"name": "Iron Gym",
					"formatted_address": "1 Main St",
					"geometry": {"location": {"lat": 40.1, "lng": -73.9}},
					"types": ["gym", "health"],
					"rating": 4.5,
					"user_ratings_total": 120,
					"photos": [{"photo_reference": "ref-1", "width": 400, "height": 300}]
				},
				{"place_id": "", "name": "Nameless"}
			]
		}`))
	})

	places, err := provider.TextSearch(context.Background(), domain.TextQuery{Query: "gym", Type: "gym"})
	if err != nil {
		t.Fatalf("text search: %v", err)
	}
	if len(places) != 1 {
		t.Fatalf("expected 1 place, got %d", len(places))
	}
	place := places[0]
	if place.ID != "A" || place.Name != "Iron Gym" || place.Address != "1 Main St" {
		t.Fatalf("unexpected place: %#v", place)
	}
	if place.Location.Lat != 40.1 || place.Location.Lng != -73.9 {
		t.Fatalf("unexpected location: %#v", place.Location)
	}
	if place.Rating != 4.5 || place.UserRatingsTotal != 120 {
		t.Fatalf("unexpected rating: %v (%d)", place.Rating, place.UserRatingsTotal)
	}
	if len(place.Photos) != 1 || place.Photos[0].Reference != "ref-1" {
		t.Fatalf("unexpected photos: %#v", place.Photos)
	}
}

func TestNearbySearchSendsLocationAndRadius(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/maps/api/place/nearbysearch/json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("radius"); got != "1500" {
			t.Errorf("unexpected radius: %q", got)
		}
		if got := r.URL.Query().Get("location"); got == "" {
			t.Error("expected location parameter")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"OK","results":[{"place_id":"B","name":"Studio","vicinity":"2 Side St","geometry":{"location":{"lat":1,"lng":2}}}]}`))
	})

	places, err := provider.NearbySearch(context.Background(), domain.NearbyQuery{
		Center:       domain.Coordinate{Lat: 1, Lng: 2},
		RadiusMeters: 1500,
		Keyword:      "pilates",
	})
	if err != nil {
		t.Fatalf("nearby search: %v", err)
	}
	if len(places) != 1 || places[0].Address != "2 Side St" {
		t.Fatalf("unexpected places: %#v", places)
	}
}

func TestDetailsMapsFields(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/maps/api/place/details/json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "OK",
			"result": {
				"place_id": "A",
				"name": "Iron Gym",
				"formatted_phone_number": "555-0100",
				"website": "https://iron.example",
				"opening_hours": {"open_now": true, "weekday_text": ["Monday: 6 AM - 10 PM"]},
				"reviews": [
					{"author_name": "Ann", "rating": 5, "text": "great", "time": 1700000000},
					{"author_name": "Bob", "text": "no stars"}
				]
			}
		}`))
	})

	place, err := provider.Details(context.Background(), "A", []string{"formatted_phone_number", "opening_hours", "reviews"})
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if place.Phone != "555-0100" || place.Website != "https://iron.example" {
		t.Fatalf("unexpected contact fields: %#v", place)
	}
	if len(place.OpeningHours) != 1 || place.OpenNow == nil || !*place.OpenNow {
		t.Fatalf("unexpected opening hours: %#v %v", place.OpeningHours, place.OpenNow)
	}
	if len(place.Reviews) != 2 {
		t.Fatalf("expected 2 reviews, got %d", len(place.Reviews))
	}
	if place.Reviews[0].Rating == nil || *place.Reviews[0].Rating != 5 {
		t.Fatalf("unexpected first review rating: %#v", place.Reviews[0])
	}
	if place.Reviews[1].Rating != nil {
		t.Fatalf("expected unrated review, got %v", *place.Reviews[1].Rating)
	}
}

func TestDetailsNotFound(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"NOT_FOUND"}`))
	})

	_, err := provider.Details(context.Background(), "missing", nil)
	if !errors.Is(err, domain.ErrPlaceNotFound) {
		t.Fatalf("expected ErrPlaceNotFound, got %v", err)
	}
}

func TestDistanceOK(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/maps/api/distancematrix/json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("mode"); got != "walking" {
			t.Errorf("unexpected mode: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"OK","rows":[{"elements":[{"status":"OK","distance":{"text":"1.2 km","value":1200}}]}]}`))
	})

	distance, err := provider.Distance(context.Background(),
		domain.Coordinate{Lat: 1, Lng: 1}, domain.Coordinate{Lat: 1.01, Lng: 1}, domain.TravelModeWalking)
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if distance.Text != "1.2 km" || distance.Meters != 1200 {
		t.Fatalf("unexpected distance: %#v", distance)
	}
}

func TestDistanceElementNotOKIsUnknown(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"OK","rows":[{"elements":[{"status":"ZERO_RESULTS"}]}]}`))
	})

	_, err := provider.Distance(context.Background(),
		domain.Coordinate{Lat: 1, Lng: 1}, domain.Coordinate{Lat: 50, Lng: 50}, domain.TravelModeDriving)
	if !errors.Is(err, domain.ErrDistanceUnknown) {
		t.Fatalf("expected ErrDistanceUnknown, got %v", err)
	}
}

func TestMalformedResponseIsDecodeFailure(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`not json`))
	})

	_, err := provider.TextSearch(context.Background(), domain.TextQuery{Query: "gym"})
	if !errors.Is(err, domain.ErrDecodeFailure) {
		t.Fatalf("expected ErrDecodeFailure, got %v", err)
	}
}

func TestDeniedRequestIsUnavailable(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"REQUEST_DENIED","error_message":"bad key"}`))
	})

	_, err := provider.TextSearch(context.Background(), domain.TextQuery{Query: "gym"})
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestAutocompleteReturnsDescriptions(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/maps/api/place/autocomplete/json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"OK","predictions":[{"description":"Iron Gym, Main St"},{"description":"Iron Yoga"}]}`))
	})

	suggestions, err := provider.Autocomplete(context.Background(), "iron", nil)
	if err != nil {
		t.Fatalf("autocomplete: %v", err)
	}
	if len(suggestions) != 2 || suggestions[0] != "Iron Gym, Main St" {
		t.Fatalf("unexpected suggestions: %#v", suggestions)
	}
}

func TestPhotoReturnsImageBytes(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/maps/api/place/photo" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xff, 0xd8, 0xff})
	})

	photo, err := provider.Photo(context.Background(), "ref-1", 400)
	if err != nil {
		t.Fatalf("photo: %v", err)
	}
	if photo.ContentType != "image/jpeg" || len(photo.Data) != 3 {
		t.Fatalf("unexpected photo: %s (%d bytes)", photo.ContentType, len(photo.Data))
	}
}

func TestClassifyErrorKeepsContextCause(t *testing.T) {
	err := classifyError("textsearch", context.DeadlineExceeded)
	if !errors.Is(err, domain.ErrProviderUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped deadline, got %v", err)
	}
}
